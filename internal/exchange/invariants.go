package exchange

import (
	"fmt"

	"github.com/shopspring/decimal"

	"backxchange/internal/order"
	"backxchange/pkg/types"
)

// checkInvariants verifies I1, I3, I4 (data-model invariants) across the
// three order indices and the ledger. It is only run when
// cfg.DebugInvariants is set; a violation here is a programmer/contract
// error, not a strategy-visible one.
func (e *Exchange) checkInvariants() error {
	if err := e.checkReservations(); err != nil {
		return err
	}
	if err := e.checkOwnership(); err != nil {
		return err
	}
	return e.checkFillBounds()
}

// checkReservations verifies I1: reserved[A] equals the sum, over every
// order still reserving funds against A, of its locked amount.
func (e *Exchange) checkReservations() error {
	want := make(map[types.Asset]decimal.Decimal)
	for _, id := range e.open.Snapshot() {
		o, ok := e.open.Get(id)
		if !ok {
			continue
		}
		quoteAsset, baseAsset := o.Symbol.Split()
		if o.Side == types.Buy {
			want[baseAsset] = want[baseAsset].Add(o.Remaining().Mul(o.Price))
		} else {
			want[quoteAsset] = want[quoteAsset].Add(o.Remaining())
		}
	}

	for _, asset := range e.ledger.Assets() {
		entry, ok := e.ledger.Balance(asset)
		if !ok {
			continue
		}
		if !types.EqualWithTolerance(entry.Used, want[asset]) {
			return fmt.Errorf("I1 violated for asset %s: reserved=%s, want %s", asset, entry.Used, want[asset])
		}
	}
	return nil
}

// checkOwnership verifies I3: every order id appears in exactly one of the
// Submitted Queue, the Open Book, and the Closed Book.
func (e *Exchange) checkOwnership() error {
	seen := make(map[string]string)
	record := func(id, owner string) error {
		if prev, ok := seen[id]; ok {
			return fmt.Errorf("I3 violated: order %s present in both %s and %s", id, prev, owner)
		}
		seen[id] = owner
		return nil
	}
	for _, id := range e.queue.IDs() {
		if err := record(id, "submitted queue"); err != nil {
			return err
		}
	}
	for _, id := range e.open.Snapshot() {
		if err := record(id, "open book"); err != nil {
			return err
		}
	}
	for _, id := range e.closed.Snapshot() {
		if err := record(id, "closed book"); err != nil {
			return err
		}
	}
	return nil
}

// checkFillBounds verifies I4 across every order this Exchange still
// tracks: filled <= amount, and status == Filled iff filled == amount.
func (e *Exchange) checkFillBounds() error {
	check := func(o *order.Order) error {
		if o.Filled.GreaterThan(o.Amount) && !types.EqualWithTolerance(o.Filled, o.Amount) {
			return fmt.Errorf("I4 violated: order %s filled %s exceeds amount %s", o.ID, o.Filled, o.Amount)
		}
		isFilled := o.Status == types.Filled
		atAmount := types.EqualWithTolerance(o.Filled, o.Amount)
		if isFilled != atAmount {
			return fmt.Errorf("I4 violated: order %s status=%s filled=%s amount=%s", o.ID, o.Status, o.Filled, o.Amount)
		}
		return nil
	}

	for _, id := range e.queue.IDs() {
		if o, ok := e.queue.Get(id); ok {
			if err := check(o); err != nil {
				return err
			}
		}
	}
	for _, id := range e.open.Snapshot() {
		if o, ok := e.open.Get(id); ok {
			if err := check(o); err != nil {
				return err
			}
		}
	}
	for _, id := range e.closed.Snapshot() {
		if o, ok := e.closed.Get(id); ok {
			if err := check(o); err != nil {
				return err
			}
		}
	}
	return nil
}

// Package ledger implements the Balance Ledger: total and
// reserved balances per asset, deposit history, and the settlement
// arithmetic the Matching Engine drives at fill time.
package ledger

import (
	"log/slog"

	"github.com/shopspring/decimal"

	"backxchange/internal/errs"
	"backxchange/internal/order"
	"backxchange/pkg/types"
)

// DepositRecord is an append-only audit entry. Amount is signed:
// positive for a deposit, negative for a withdraw.
type DepositRecord struct {
	Timestamp int64
	Asset types.Asset
	Amount decimal.Decimal
}

// Entry is the observable {total, free, used} balance shape, rounded to 8
// digits at this API boundary.
type Entry struct {
	Total decimal.Decimal
	Free decimal.Decimal
	Used decimal.Decimal
}

type balance struct {
	total decimal.Decimal
	reserved decimal.Decimal
}

// Ledger holds per-asset balances and the deposit/withdraw history.
type Ledger struct {
	log *slog.Logger
	balances map[types.Asset]*balance
	history []DepositRecord
}

// New builds an empty Ledger.
func New(log *slog.Logger) *Ledger {
	return &Ledger{
		log: log.With("component", "ledger"),
		balances: make(map[types.Asset]*balance),
	}
}

// CreateEntry creates a zero balance entry for asset if it does not already
// exist, used by the Listing Controller on first listing and by the facade's
// constructor when it seeds balances.
func (l *Ledger) CreateEntry(asset types.Asset) {
	if _, ok := l.balances[asset]; ok {
		return
	}
	l.balances[asset] = &balance{total: decimal.Zero, reserved: decimal.Zero}
}

// RemoveEntry deletes the balance entry for asset. The caller must ensure
// reserved == 0 and total == 0 first; violating that is a
// programmer error.
func (l *Ledger) RemoveEntry(asset types.Asset) error {
	b, ok := l.balances[asset]
	if !ok {
		return nil
	}
	if !b.reserved.IsZero() || !b.total.IsZero() {
		return errs.Newf(errs.NotSupported, "remove_entry", "asset %s still has reserved=%s total=%s", asset, b.reserved, b.total)
	}
	delete(l.balances, asset)
	return nil
}

// HasEntry reports whether asset has a balance entry — the supported asset
// set, from the ledger's point of view.
func (l *Ledger) HasEntry(asset types.Asset) bool {
	_, ok := l.balances[asset]
	return ok
}

// Assets returns every asset currently carrying a balance entry.
func (l *Ledger) Assets() []types.Asset {
	out := make([]types.Asset, 0, len(l.balances))
	for a := range l.balances {
		out = append(out, a)
	}
	return out
}

// Balance returns the {total, free, used} entry for asset, rounded to 8
// digits.
func (l *Ledger) Balance(asset types.Asset) (Entry, bool) {
	b, ok := l.balances[asset]
	if !ok {
		return Entry{}, false
	}
	free := b.total.Sub(b.reserved)
	return Entry{
		Total: types.Round8(b.total),
		Free: types.Round8(free),
		Used: types.Round8(b.reserved),
	}, true
}

// History returns the full deposit/withdraw audit log.
func (l *Ledger) History() []DepositRecord {
	out := make([]DepositRecord, len(l.history))
	copy(out, l.history)
	return out
}

// Deposit adds qty of asset to total. A non-positive qty is a no-op that
// returns zero, not an error.
func (l *Ledger) Deposit(now int64, asset types.Asset, qty decimal.Decimal) (decimal.Decimal, error) {
	if qty.Sign() <= 0 {
		return decimal.Zero, nil
	}
	b, ok := l.balances[asset]
	if !ok {
		return decimal.Zero, errs.Newf(errs.NotSupported, "deposit", "asset %s is not supported", asset)
	}
	b.total = b.total.Add(qty)
	l.history = append(l.history, DepositRecord{Timestamp: now, Asset: asset, Amount: qty})
	return qty, nil
}

// Withdraw removes up to qty of asset from the available (unreserved)
// balance, clamping to what is actually available. A
// non-positive qty is a no-op that returns zero.
func (l *Ledger) Withdraw(now int64, asset types.Asset, qty decimal.Decimal) (decimal.Decimal, error) {
	if qty.Sign() <= 0 {
		return decimal.Zero, nil
	}
	b, ok := l.balances[asset]
	if !ok {
		return decimal.Zero, errs.Newf(errs.NotSupported, "withdraw", "asset %s is not supported", asset)
	}
	available := b.total.Sub(b.reserved)
	withdrawn := qty
	if withdrawn.GreaterThan(available) {
		l.log.Warn("withdraw clamped to available balance", "asset", asset, "requested", qty, "available", available)
		withdrawn = available
	}
	b.total = b.total.Sub(withdrawn)
	l.history = append(l.history, DepositRecord{Timestamp: now, Asset: asset, Amount: withdrawn.Neg()})
	return withdrawn, nil
}

// Reserve locks qty of asset out of the available balance. If qty exceeds
// available[asset] (beyond Tolerance) nothing is reserved and an
// InsufficientFunds error is returned; the Matching Engine relies on this
// as its availability check.
func (l *Ledger) Reserve(asset types.Asset, qty decimal.Decimal) error {
	b, ok := l.balances[asset]
	if !ok {
		return errs.Newf(errs.NotSupported, "reserve", "asset %s is not supported", asset)
	}
	available := b.total.Sub(b.reserved)
	if qty.GreaterThan(available) && !types.EqualWithTolerance(qty, available) {
		return errs.Newf(errs.InsufficientFunds, "reserve", "asset %s: requested %s exceeds available %s", asset, qty, available)
	}
	b.reserved = b.reserved.Add(qty)
	return nil
}

// Release unlocks qty of asset back into the available balance.
// Precondition: qty <= reserved[asset].
func (l *Ledger) Release(asset types.Asset, qty decimal.Decimal) error {
	b, ok := l.balances[asset]
	if !ok {
		return errs.Newf(errs.NotSupported, "release", "asset %s is not supported", asset)
	}
	if qty.GreaterThan(b.reserved) && !types.EqualWithTolerance(qty, b.reserved) {
		return errs.Newf(errs.InsufficientFunds, "release", "asset %s: releasing %s exceeds reserved %s", asset, qty, b.reserved)
	}
	b.reserved = b.reserved.Sub(qty)
	if b.reserved.IsNegative() {
		b.reserved = decimal.Zero
	}
	return nil
}

// SettleBuy applies a buy fill's settlement arithmetic for
// symbol quote/base: the quote asset is credited net of fee, the base asset
// is debited at fillPrice, and the chunk of the original reservation taken
// at reservedPrice is released — the difference between reservedPrice and
// fillPrice flows back into available[base] automatically. For a Market
// order, pass fillPrice as reservedPrice (reservation and execution happen
// at the same price, so no refund occurs). Returns the fee charged, in the
// quote asset.
func (l *Ledger) SettleBuy(quote, base types.Asset, reservedPrice, fillPrice, fillAmount, feeRatePct decimal.Decimal) (decimal.Decimal, error) {
	qb, ok := l.balances[quote]
	if !ok {
		return decimal.Zero, errs.Newf(errs.NotSupported, "settle_buy", "asset %s is not supported", quote)
	}
	bb, ok := l.balances[base]
	if !ok {
		return decimal.Zero, errs.Newf(errs.NotSupported, "settle_buy", "asset %s is not supported", base)
	}

	reservedAmt := reservedPrice.Mul(fillAmount)
	bb.reserved = bb.reserved.Sub(reservedAmt)
	if bb.reserved.IsNegative() {
		bb.reserved = decimal.Zero
	}
	bb.total = bb.total.Sub(fillPrice.Mul(fillAmount))

	fee := fillAmount.Mul(feeRatePct).Div(decimal.NewFromInt(100))
	qb.total = qb.total.Add(fillAmount.Sub(fee))

	return fee, nil
}

// SettleSell applies a sell fill's settlement arithmetic for
// symbol quote/base: the quote asset (sold) is debited and its matching
// reservation chunk released 1:1, the base asset (received) is credited net
// of fee. Returns the fee charged, in the base asset.
func (l *Ledger) SettleSell(quote, base types.Asset, fillPrice, fillAmount, feeRatePct decimal.Decimal) (decimal.Decimal, error) {
	qb, ok := l.balances[quote]
	if !ok {
		return decimal.Zero, errs.Newf(errs.NotSupported, "settle_sell", "asset %s is not supported", quote)
	}
	bb, ok := l.balances[base]
	if !ok {
		return decimal.Zero, errs.Newf(errs.NotSupported, "settle_sell", "asset %s is not supported", base)
	}

	qb.reserved = qb.reserved.Sub(fillAmount)
	if qb.reserved.IsNegative() {
		qb.reserved = decimal.Zero
	}
	qb.total = qb.total.Sub(fillAmount)

	proceeds := fillPrice.Mul(fillAmount)
	fee := proceeds.Mul(feeRatePct).Div(decimal.NewFromInt(100))
	bb.total = bb.total.Add(proceeds.Sub(fee))

	return fee, nil
}

// CancelAndRefund cancels o and releases its remaining reservation. A
// cancel refund always uses remaining, not amount, even for a
// partially-filled order. Used by both the Listing Controller (delisting)
// and the Exchange Facade (cancel_open_order).
func (l *Ledger) CancelAndRefund(o *order.Order) error {
	quoteAsset, baseAsset := o.Symbol.Split()
	remaining := o.Remaining()
	if err := o.Cancel(); err != nil {
		return err
	}
	if o.Side == types.Buy {
		return l.Release(baseAsset, remaining.Mul(o.Price))
	}
	return l.Release(quoteAsset, remaining)
}

// Package order implements the order and transaction value types and the
// order lifecycle state machine.
package order

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"backxchange/pkg/types"
)

// Transaction is an append-only fill record.
type Transaction struct {
	Timestamp int64
	Price decimal.Decimal
	Amount decimal.Decimal
	Side types.Side
	Symbol types.Symbol
	OrderID string
}

// Order is an immutable identity plus mutable fill/state. After creation it
// is mutated only through the transition methods below (by the matching
// engine, and by the cancel paths of the Submitted Queue and the ledger);
// every transition method rejects illegal transitions as a programmer error.
type Order struct {
	ID string
	CreatedAt int64
	Symbol types.Symbol
	Side types.Side
	Type types.OrderType
	Amount decimal.Decimal
	Price decimal.Decimal // limit price; 0 for Market
	StopPrice decimal.Decimal // 0 except StopLimit

	Status types.OrderStatus
	Filled decimal.Decimal
	Transactions []Transaction
	Fees map[types.Asset]decimal.Decimal
}

// New constructs a Submitted order, enforcing: amount > 0; price == 0 for
// Market; stop_price == 0 for non-StopLimit; otherwise prices >= 0.
func New(id string, createdAt int64, symbol types.Symbol, side types.Side, typ types.OrderType, amount, price, stopPrice decimal.Decimal) (*Order, error) {
	if amount.Sign() <= 0 {
		return nil, fmt.Errorf("order: amount must be > 0, got %s", amount)
	}
	switch typ {
	case types.Market:
		if !price.IsZero() {
			return nil, fmt.Errorf("order: price must be 0 for market orders, got %s", price)
		}
		if !stopPrice.IsZero() {
			return nil, fmt.Errorf("order: stop_price must be 0 for market orders, got %s", stopPrice)
		}
	case types.Limit:
		if price.IsNegative() {
			return nil, fmt.Errorf("order: price must be >= 0, got %s", price)
		}
		if !stopPrice.IsZero() {
			return nil, fmt.Errorf("order: stop_price must be 0 for limit orders, got %s", stopPrice)
		}
	case types.StopLimit:
		if price.IsNegative() {
			return nil, fmt.Errorf("order: price must be >= 0, got %s", price)
		}
		if stopPrice.IsNegative() {
			return nil, fmt.Errorf("order: stop_price must be >= 0, got %s", stopPrice)
		}
	default:
		return nil, fmt.Errorf("order: unknown order type %q", typ)
	}

	return &Order{
		ID: id,
		CreatedAt: createdAt,
		Symbol: symbol,
		Side: side,
		Type: typ,
		Amount: amount,
		Price: price,
		StopPrice: stopPrice,
		Status: types.Submitted,
		Filled: decimal.Zero,
		Fees: make(map[types.Asset]decimal.Decimal),
	}, nil
}

// Remaining returns amount - filled.
func (o *Order) Remaining() decimal.Decimal {
	return o.Amount.Sub(o.Filled)
}

// FilledPercentage returns filled/amount * 100, rounded to 2 digits. Amount
// is always > 0 by construction, so no zero-guard is needed.
func (o *Order) FilledPercentage() decimal.Decimal {
	return types.Round2(o.Filled.Div(o.Amount).Mul(decimal.NewFromInt(100)))
}

// Open transitions Submitted->Open (a newly submitted Limit order) or
// Accepted->Open (a triggered StopLimit order).
func (o *Order) Open() error {
	switch o.Status {
	case types.Submitted, types.Accepted:
		o.Status = types.Open
		return nil
	default:
		return fmt.Errorf("order %s: cannot open from status %s", o.ID, o.Status)
	}
}

// Accept transitions Submitted->Accepted, used for a newly submitted
// StopLimit order awaiting trigger.
func (o *Order) Accept() error {
	if o.Status != types.Submitted {
		return fmt.Errorf("order %s: cannot accept from status %s", o.ID, o.Status)
	}
	o.Status = types.Accepted
	return nil
}

// Cancel transitions Submitted|Accepted|Open -> Cancelled.
func (o *Order) Cancel() error {
	if o.Status.Terminal() {
		return fmt.Errorf("order %s: cannot cancel terminal status %s", o.ID, o.Status)
	}
	o.Status = types.Cancelled
	return nil
}

// Apply appends tx and increments filled. It may be called from Submitted
// (a Market order filling in one shot) or from Open (a Limit/StopLimit
// partial or full fill). It returns true iff the order is now Filled.
func (o *Order) Apply(tx Transaction) (filled bool, err error) {
	if o.Status != types.Submitted && o.Status != types.Open {
		return false, fmt.Errorf("order %s: cannot apply fill from status %s", o.ID, o.Status)
	}
	newFilled := o.Filled.Add(tx.Amount)
	if newFilled.GreaterThan(o.Amount) && !types.EqualWithTolerance(newFilled, o.Amount) {
		return false, fmt.Errorf("order %s: fill amount %s would overfill amount %s", o.ID, tx.Amount, o.Amount)
	}
	o.Transactions = append(o.Transactions, tx)
	o.Filled = newFilled
	if types.EqualWithTolerance(o.Filled, o.Amount) {
		o.Status = types.Filled
		return true, nil
	}
	return false, nil
}

// PayFee accrues qty of asset into the order's fee map.
func (o *Order) PayFee(asset types.Asset, qty decimal.Decimal) {
	o.Fees[asset] = o.Fees[asset].Add(qty)
}

// Info is the observable DTO returned by the facade's order queries.
// Datetime is derived from Timestamp for human-readable display.
type Info struct {
	ID string `json:"id"`
	Datetime string `json:"datetime"`
	Timestamp int64 `json:"timestamp"`
	Status types.OrderStatus `json:"status"`
	Symbol types.Symbol `json:"symbol"`
	Type types.OrderType `json:"type"`
	Side types.Side `json:"side"`
	Price decimal.Decimal `json:"price"`
	StopPrice decimal.Decimal `json:"stop_price"`
	Amount decimal.Decimal `json:"amount"`
	Filled decimal.Decimal `json:"filled"`
	Remaining decimal.Decimal `json:"remaining"`
	Transaction []TransactionInfo `json:"transaction"`
	Fee map[types.Asset]decimal.Decimal `json:"fee"`
}

// TransactionInfo is the observable shape of a single fill.
type TransactionInfo struct {
	Timestamp int64 `json:"timestamp"`
	Price decimal.Decimal `json:"price"`
	Amount decimal.Decimal `json:"amount"`
}

// Info renders the observable DTO for this order, rounding amounts to 8
// digits at this API boundary.
func (o *Order) Info() Info {
	txs := make([]TransactionInfo, 0, len(o.Transactions))
	for _, tx := range o.Transactions {
		txs = append(txs, TransactionInfo{
				Timestamp: tx.Timestamp,
				Price: types.Round8(tx.Price),
				Amount: types.Round8(tx.Amount),
			})
	}
	fees := make(map[types.Asset]decimal.Decimal, len(o.Fees))
	for asset, qty := range o.Fees {
		fees[asset] = types.Round8(qty)
	}
	return Info{
		ID: o.ID,
		Datetime: time.UnixMilli(o.CreatedAt).UTC().Format(time.RFC3339),
		Timestamp: o.CreatedAt,
		Status: o.Status,
		Symbol: o.Symbol,
		Type: o.Type,
		Side: o.Side,
		Price: types.Round8(o.Price),
		StopPrice: types.Round8(o.StopPrice),
		Amount: types.Round8(o.Amount),
		Filled: types.Round8(o.Filled),
		Remaining: types.Round8(o.Remaining()),
		Transaction: txs,
		Fee: fees,
	}
}

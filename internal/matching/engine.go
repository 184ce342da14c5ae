// Package matching implements the matching engine, the heart of the core: a
// per-tick resolver that drains the Submitted Queue and then re-examines
// the Open Book, applying the exact settlement arithmetic for each fill.
//
// Process runs to completion synchronously with no suspension points: no
// goroutines, no channels.
package matching

import (
	"log/slog"

	"github.com/shopspring/decimal"

	"backxchange/internal/book"
	"backxchange/internal/errs"
	"backxchange/internal/ledger"
	"backxchange/internal/order"
	"backxchange/internal/quote"
	"backxchange/internal/slippage"
	"backxchange/pkg/types"
)

// Config is the subset of exchange configuration the engine needs: the fee
// rate and the reference-price field used for buy-side and sell-side
// triggers/fills.
type Config struct {
	FeeRatePct decimal.Decimal
	BuyPrice types.PriceField
	SellPrice types.PriceField
}

// Engine resolves one tick at a time against a shared Submitted Queue, Open
// Book, Closed Book, and Balance Ledger.
type Engine struct {
	log *slog.Logger
	cfg Config
	source quote.Source
	model slippage.Model
	ledger *ledger.Ledger
}

// New builds an Engine.
func New(log *slog.Logger, cfg Config, source quote.Source, model slippage.Model, l *ledger.Ledger) *Engine {
	return &Engine{
		log: log.With("component", "matching"),
		cfg: cfg,
		source: source,
		model: model,
		ledger: l,
	}
}

// Process runs the tick algorithm exactly once: drain the Submitted Queue,
// then re-examine the Open Book. A tick-time failure (InsufficientFunds,
// InvalidOrder, SlippageModelError) aborts the remainder of this call and
// bubbles up unhandled — the caller decides whether to terminate the run.
func (e *Engine) Process(now int64, queue *book.SubmittedQueue, open, closed *book.OrderBook) error {
	if err := e.drain(now, queue, open, closed); err != nil {
		return err
	}
	return e.reexamineOpen(now, open, closed)
}

func (e *Engine) drain(now int64, queue *book.SubmittedQueue, open, closed *book.OrderBook) error {
	for {
		o := queue.PeekFront()
		if o == nil {
			return nil
		}

		if o.Status == types.Cancelled {
			queue.Dequeue(o.ID)
			closed.Insert(o)
			continue
		}

		bar, err := e.source.Bar(o.Symbol, now)
		if err != nil {
			return errs.Newf(errs.InvalidOrder, "process", "symbol %s not supported at %d", o.Symbol, now)
		}

		switch o.Type {
		case types.Market:
			if err := e.fillMarket(now, o, bar); err != nil {
				return err
			}
			queue.Dequeue(o.ID)
			closed.Insert(o)

		case types.Limit:
			if err := e.reserveForOpen(o); err != nil {
				return err
			}
			if err := o.Open(); err != nil {
				return err
			}
			queue.Dequeue(o.ID)
			open.Insert(o)

		case types.StopLimit:
			if err := e.reserveForOpen(o); err != nil {
				return err
			}
			if err := o.Accept(); err != nil {
				return err
			}
			queue.Dequeue(o.ID)
			open.Insert(o)

		default:
			return errs.Newf(errs.InvalidOrder, "process", "order %s: unknown type %q", o.ID, o.Type)
		}
	}
}

// reserveForOpen computes and takes the reservation for a newly-submitted
// Limit or StopLimit order: amount*limit_price in base for a buy, amount in
// quote for a sell.
func (e *Engine) reserveForOpen(o *order.Order) error {
	quoteAsset, baseAsset := o.Symbol.Split()
	if o.Side == types.Buy {
		return e.ledger.Reserve(baseAsset, o.Amount.Mul(o.Price))
	}
	return e.ledger.Reserve(quoteAsset, o.Amount)
}

// fillMarket reserves exactly the slippage-produced notional/quantity and
// settles the order in one shot; a Market order must end Filled or the
// whole call fails.
func (e *Engine) fillMarket(now int64, o *order.Order, bar types.Bar) error {
	refField := e.cfg.SellPrice
	if o.Side == types.Buy {
		refField = e.cfg.BuyPrice
	}
	ctx := slippage.Context{
		ReferencePrice: bar.Field(refField),
		RequestedAmount: o.Remaining(),
		OrderType: types.Market,
		OrderSide: o.Side,
		Symbol: o.Symbol,
		Bar: bar,
		Timestamp: now,
	}
	price, amount := e.model.GenerateFill(ctx)
	if price.IsNegative() {
		return errs.Newf(errs.SlippageModelError, "process", "order %s: slippage model returned negative price %s", o.ID, price)
	}
	if !types.EqualWithTolerance(amount, o.Remaining()) {
		return errs.Newf(errs.SlippageModelError, "process", "order %s: market order partially filled (%s of %s)", o.ID, amount, o.Remaining())
	}

	quoteAsset, baseAsset := o.Symbol.Split()
	if o.Side == types.Buy {
		if err := e.ledger.Reserve(baseAsset, price.Mul(amount)); err != nil {
			return err
		}
	} else {
		if err := e.ledger.Reserve(quoteAsset, amount); err != nil {
			return err
		}
	}

	return e.settle(now, o, price, amount)
}

// reexamineOpen iterates a snapshot of the Open Book (safe against
// removals during the pass), triggers pending StopLimit
// orders, and attempts a fill for every Open order.
func (e *Engine) reexamineOpen(now int64, open, closed *book.OrderBook) error {
	for _, id := range open.Snapshot() {
		o, ok := open.Get(id)
		if !ok {
			continue
		}

		bar, err := e.source.Bar(o.Symbol, now)
		if err != nil {
			continue // symbol no longer supported; the Listing Controller handles delisting
		}

		if o.Status == types.Accepted {
			if !e.triggered(o, bar) {
				continue
			}
			if err := o.Open(); err != nil {
				return err
			}
		}

		if o.Status != types.Open {
			continue
		}

		filled, err := e.tryFill(now, o, bar)
		if err != nil {
			return err
		}
		if filled {
			open.Remove(id)
			closed.Insert(o)
		}
	}
	return nil
}

// triggered reports whether a StopLimit order's trigger condition holds at
// the current bar: buy-side triggers when ref >= stop - tol; sell-side
// when ref <= stop + tol.
func (e *Engine) triggered(o *order.Order, bar types.Bar) bool {
	refField := e.cfg.SellPrice
	if o.Side == types.Buy {
		refField = e.cfg.BuyPrice
	}
	ref := bar.Field(refField)
	if o.Side == types.Buy {
		return types.GTEWithTolerance(ref, o.StopPrice)
	}
	return types.LTEWithTolerance(ref, o.StopPrice)
}

// tryFill attempts one fill of an Open order against the slippage model.
// Buy fills iff p <= limit_price + tol, executing at the slippage price p.
// Sell fills iff p >= limit_price - tol, executing at the limit price
// itself — both sides honor the limit as a worst-case bound.
func (e *Engine) tryFill(now int64, o *order.Order, bar types.Bar) (bool, error) {
	refField := e.cfg.SellPrice
	if o.Side == types.Buy {
		refField = e.cfg.BuyPrice
	}
	ctx := slippage.Context{
		ReferencePrice: bar.Field(refField),
		RequestedAmount: o.Remaining(),
		OrderType: o.Type,
		OrderSide: o.Side,
		Symbol: o.Symbol,
		Bar: bar,
		Timestamp: now,
	}
	p, a := e.model.GenerateFill(ctx)
	if p.IsNegative() {
		return false, errs.Newf(errs.SlippageModelError, "process", "order %s: slippage model returned negative price %s", o.ID, p)
	}
	if a.GreaterThan(o.Remaining()) && !types.EqualWithTolerance(a, o.Remaining()) {
		return false, errs.Newf(errs.SlippageModelError, "process", "order %s: slippage model returned fill amount %s exceeding remaining %s", o.ID, a, o.Remaining())
	}

	var execPrice decimal.Decimal
	switch o.Side {
	case types.Buy:
		if p.GreaterThan(o.Price) && !types.EqualWithTolerance(p, o.Price) {
			return false, nil
		}
		execPrice = p
	case types.Sell:
		if p.LessThan(o.Price) && !types.EqualWithTolerance(p, o.Price) {
			return false, nil
		}
		execPrice = o.Price
	}

	return e.settle(now, o, execPrice, a)
}

// settle applies tx to o and runs the matching ledger settlement, paying
// the fee onto the order's fee map.
func (e *Engine) settle(now int64, o *order.Order, price, amount decimal.Decimal) (bool, error) {
	quoteAsset, baseAsset := o.Symbol.Split()

	filled, err := o.Apply(order.Transaction{
			Timestamp: now,
			Price: price,
			Amount: amount,
			Side: o.Side,
			Symbol: o.Symbol,
			OrderID: o.ID,
		})
	if err != nil {
		return false, err
	}

	if o.Side == types.Buy {
		reservedPrice := o.Price
		if o.Type == types.Market {
			reservedPrice = price
		}
		fee, err := e.ledger.SettleBuy(quoteAsset, baseAsset, reservedPrice, price, amount, e.cfg.FeeRatePct)
		if err != nil {
			return false, err
		}
		o.PayFee(quoteAsset, fee)
	} else {
		fee, err := e.ledger.SettleSell(quoteAsset, baseAsset, price, amount, e.cfg.FeeRatePct)
		if err != nil {
			return false, err
		}
		o.PayFee(baseAsset, fee)
	}

	return filled, nil
}

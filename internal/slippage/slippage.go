// Package slippage implements the pluggable slippage adapter: a single
// capability, one method, several variants, no inheritance chain.
package slippage

import (
	"github.com/shopspring/decimal"

	"backxchange/pkg/types"
)

// Context carries everything a Model needs to turn a requested fill into an
// achievable one.
type Context struct {
	ReferencePrice decimal.Decimal
	RequestedAmount decimal.Decimal
	OrderType types.OrderType
	OrderSide types.Side
	Symbol types.Symbol
	Bar types.Bar
	Timestamp int64
}

// Model is the slippage adapter's single capability. The matching engine
// enforces the contract on the return value (fill_price >= 0; Market orders
// must not be partially filled; Limit/StopLimit fill_amount must not exceed
// requested) — Model implementations are trusted to attempt the contract but
// are not the enforcement point.
type Model interface {
	GenerateFill(ctx Context) (fillPrice, fillAmount decimal.Decimal)
}

// Identity returns the reference price and the full requested amount
// unchanged. It is the default model.
type Identity struct{}

// GenerateFill implements Model.
func (Identity) GenerateFill(ctx Context) (decimal.Decimal, decimal.Decimal) {
	return ctx.ReferencePrice, ctx.RequestedAmount
}

// VolumeCapped caps the fill amount for non-Market orders at
// bar.Volume * RatePct/100, leaving the price unchanged. RatePct is
// expressed as a percentage, e.g. 0.1 means 0.1% of the bar's volume.
type VolumeCapped struct {
	RatePct decimal.Decimal
}

// GenerateFill implements Model.
func (m VolumeCapped) GenerateFill(ctx Context) (decimal.Decimal, decimal.Decimal) {
	if ctx.OrderType == types.Market {
		return ctx.ReferencePrice, ctx.RequestedAmount
	}
	capped := ctx.Bar.Volume.Mul(m.RatePct).Div(decimal.NewFromInt(100))
	amount := ctx.RequestedAmount
	if capped.LessThan(amount) {
		amount = capped
	}
	return ctx.ReferencePrice, amount
}

// BidAsk is the companion quote a Spread model needs. A source that cannot
// produce one for a symbol at a timestamp should report ok=false, which
// causes Spread to fall back to Identity.
type BidAsk interface {
	BidAsk(symbol types.Symbol, t int64) (bid, ask decimal.Decimal, ok bool)
}

// Spread adjusts the reference price by ±(ask-bid)*RatePct, worsening it
// against the order's side: a buy pays more, a sell receives less. Falls
// back to Identity when the companion source has no quote.
type Spread struct {
	Source BidAsk
	RatePct decimal.Decimal
}

// GenerateFill implements Model.
func (m Spread) GenerateFill(ctx Context) (decimal.Decimal, decimal.Decimal) {
	if m.Source == nil {
		return Identity{}.GenerateFill(ctx)
	}
	bid, ask, ok := m.Source.BidAsk(ctx.Symbol, ctx.Timestamp)
	if !ok {
		return Identity{}.GenerateFill(ctx)
	}
	adjustment := ask.Sub(bid).Mul(m.RatePct)
	price := ctx.ReferencePrice
	if ctx.OrderSide == types.Buy {
		price = price.Add(adjustment)
	} else {
		price = price.Sub(adjustment)
	}
	return price, ctx.RequestedAmount
}

// SpreadVolume composes Spread's price adjustment with VolumeCapped's
// amount cap.
type SpreadVolume struct {
	Source BidAsk
	SpreadPct decimal.Decimal
	VolumeRatePct decimal.Decimal
}

// GenerateFill implements Model.
func (m SpreadVolume) GenerateFill(ctx Context) (decimal.Decimal, decimal.Decimal) {
	price, _ := Spread{Source: m.Source, RatePct: m.SpreadPct}.GenerateFill(ctx)
	_, amount := VolumeCapped{RatePct: m.VolumeRatePct}.GenerateFill(ctx)
	return price, amount
}

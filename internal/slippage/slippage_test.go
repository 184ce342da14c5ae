package slippage

import (
	"testing"

	"github.com/shopspring/decimal"

	"backxchange/pkg/types"
)

func TestIdentity(t *testing.T) {
	t.Parallel()

	ctx := Context{
		ReferencePrice:  decimal.NewFromFloat(0.1),
		RequestedAmount: decimal.NewFromInt(500),
	}
	price, amount := Identity{}.GenerateFill(ctx)
	if !price.Equal(ctx.ReferencePrice) || !amount.Equal(ctx.RequestedAmount) {
		t.Fatalf("GenerateFill() = (%s, %s), want unchanged inputs", price, amount)
	}
}

func TestVolumeCapped(t *testing.T) {
	t.Parallel()

	m := VolumeCapped{RatePct: decimal.NewFromFloat(0.1)}

	ctx := Context{
		ReferencePrice:  decimal.NewFromFloat(0.1),
		RequestedAmount: decimal.NewFromInt(500),
		OrderType:       types.Limit,
		Bar:             types.Bar{Volume: decimal.NewFromInt(155550)},
	}
	price, amount := m.GenerateFill(ctx)
	if !price.Equal(ctx.ReferencePrice) {
		t.Fatalf("price changed: %s", price)
	}
	want := decimal.NewFromFloat(155.55)
	if !amount.Equal(want) {
		t.Fatalf("amount = %s, want %s", amount, want)
	}
}

func TestVolumeCappedDoesNotCapMarket(t *testing.T) {
	t.Parallel()

	m := VolumeCapped{RatePct: decimal.NewFromFloat(0.1)}
	ctx := Context{
		ReferencePrice:  decimal.NewFromInt(1),
		RequestedAmount: decimal.NewFromInt(1000),
		OrderType:       types.Market,
		Bar:             types.Bar{Volume: decimal.NewFromInt(1)},
	}
	_, amount := m.GenerateFill(ctx)
	if !amount.Equal(ctx.RequestedAmount) {
		t.Fatalf("amount = %s, want unchanged %s for market orders", amount, ctx.RequestedAmount)
	}
}

type fakeBidAsk struct {
	bid, ask decimal.Decimal
	ok       bool
}

func (f fakeBidAsk) BidAsk(symbol types.Symbol, t int64) (decimal.Decimal, decimal.Decimal, bool) {
	return f.bid, f.ask, f.ok
}

func TestSpreadAdjustsAgainstSide(t *testing.T) {
	t.Parallel()

	src := fakeBidAsk{bid: decimal.NewFromInt(99), ask: decimal.NewFromInt(101), ok: true}
	m := Spread{Source: src, RatePct: decimal.NewFromFloat(0.5)}

	buyCtx := Context{ReferencePrice: decimal.NewFromInt(100), OrderSide: types.Buy, RequestedAmount: decimal.NewFromInt(1)}
	price, _ := m.GenerateFill(buyCtx)
	if !price.Equal(decimal.NewFromInt(101)) {
		t.Fatalf("buy price = %s, want 101", price)
	}

	sellCtx := Context{ReferencePrice: decimal.NewFromInt(100), OrderSide: types.Sell, RequestedAmount: decimal.NewFromInt(1)}
	price, _ = m.GenerateFill(sellCtx)
	if !price.Equal(decimal.NewFromInt(99)) {
		t.Fatalf("sell price = %s, want 99", price)
	}
}

func TestSpreadFallsBackToIdentityWithoutQuote(t *testing.T) {
	t.Parallel()

	m := Spread{Source: fakeBidAsk{ok: false}, RatePct: decimal.NewFromFloat(0.5)}
	ctx := Context{ReferencePrice: decimal.NewFromInt(100), RequestedAmount: decimal.NewFromInt(1)}
	price, amount := m.GenerateFill(ctx)
	if !price.Equal(ctx.ReferencePrice) || !amount.Equal(ctx.RequestedAmount) {
		t.Fatalf("GenerateFill() = (%s, %s), want identity fallback", price, amount)
	}
}

func TestSpreadVolumeComposes(t *testing.T) {
	t.Parallel()

	src := fakeBidAsk{bid: decimal.NewFromInt(99), ask: decimal.NewFromInt(101), ok: true}
	m := SpreadVolume{Source: src, SpreadPct: decimal.NewFromFloat(0.5), VolumeRatePct: decimal.NewFromFloat(1)}

	ctx := Context{
		ReferencePrice:  decimal.NewFromInt(100),
		RequestedAmount: decimal.NewFromInt(1000),
		OrderSide:       types.Buy,
		OrderType:       types.Limit,
		Bar:             types.Bar{Volume: decimal.NewFromInt(10000)},
	}
	price, amount := m.GenerateFill(ctx)
	if !price.Equal(decimal.NewFromInt(101)) {
		t.Fatalf("price = %s, want 101", price)
	}
	if !amount.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("amount = %s, want 100", amount)
	}
}

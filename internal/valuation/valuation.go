// Package valuation converts a multi-asset balance snapshot into a single
// value denominated in a target asset. It builds a directed graph over the
// supported assets, weights each edge by the negative log of its
// conversion rate, and finds the shortest-weight (= most favorable
// conversion) path from every held asset to the target. A conversion rate
// above 1 gives a negative edge weight, so path search runs Bellman-Ford
// rather than Dijkstra.
package valuation

import (
	"math"

	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/graph/path"
	"gonum.org/v1/gonum/graph/simple"

	"backxchange/internal/errs"
	"backxchange/internal/ledger"
	"backxchange/internal/listing"
	"backxchange/internal/quote"
	"backxchange/pkg/types"
)

// Config is the subset of exchange configuration the valuator needs.
type Config struct {
	FeeRatePct decimal.Decimal
	BuyPrice   types.PriceField
	SellPrice  types.PriceField
}

// Valuator answers "what is this portfolio worth in asset T" queries.
type Valuator struct {
	cfg      Config
	source   quote.Source
	listing  *listing.Controller
	ledger   *ledger.Ledger
}

// New builds a Valuator over the supported-symbol graph exposed by the
// Listing Controller and the balances held by ledger.
func New(cfg Config, source quote.Source, l *listing.Controller, led *ledger.Ledger) *Valuator {
	return &Valuator{cfg: cfg, source: source, listing: l, ledger: led}
}

// Value computes the portfolio value in target at timestamp now. An asset
// with a positive balance and no conversion path to target fails the whole
// query with NotSupported; zero-balance assets are skipped before the
// graph is even built.
func (v *Valuator) Value(now int64, target types.Asset, includeFee bool) (decimal.Decimal, error) {
	held := make([]types.Asset, 0)
	for _, a := range v.ledger.Assets() {
		entry, ok := v.ledger.Balance(a)
		if !ok || entry.Total.IsZero() {
			continue
		}
		held = append(held, a)
	}

	total := decimal.Zero
	for _, a := range held {
		if a == target {
			entry, _ := v.ledger.Balance(a)
			total = total.Add(entry.Total)
		}
	}

	remaining := make([]types.Asset, 0, len(held))
	for _, a := range held {
		if a != target {
			remaining = append(remaining, a)
		}
	}
	if len(remaining) == 0 {
		return total, nil
	}

	nodeID, g, err := v.buildGraph(now, includeFee)
	if err != nil {
		return decimal.Zero, err
	}

	targetID, targetKnown := nodeID[target]
	for _, a := range remaining {
		entry, _ := v.ledger.Balance(a)

		srcID, known := nodeID[a]
		if !known || !targetKnown {
			return decimal.Zero, errs.Newf(errs.NotSupported, "fetch_balance_in", "asset %s has no conversion path to %s", a, target)
		}

		shortest, ok := path.BellmanFordFrom(simple.Node(srcID), g)
		if !ok {
			return decimal.Zero, errs.Newf(errs.NotSupported, "fetch_balance_in", "conversion graph has a negative-weight cycle reachable from %s", a)
		}
		weight := shortest.WeightTo(targetID)
		if math.IsInf(weight, 1) {
			return decimal.Zero, errs.Newf(errs.NotSupported, "fetch_balance_in", "asset %s has no conversion path to %s", a, target)
		}

		rate := decimal.NewFromFloat(math.Exp(-weight))
		total = total.Add(entry.Total.Mul(rate))
	}

	return total, nil
}

// buildGraph builds the weighted directed graph over supported assets:
// edge Q->B weighted -ln(m*sell_price), edge B->Q weighted +ln(buy_price/m),
// where m = 1 - fee_rate_pct/100 if includeFee else 1. Symbols whose bar is
// unavailable at now, or whose price fields can't support a log, are
// skipped rather than added as a broken edge.
func (v *Valuator) buildGraph(now int64, includeFee bool) (map[types.Asset]int64, *simple.WeightedDirectedGraph, error) {
	assets := v.listing.SupportedAssets()
	g := simple.NewWeightedDirectedGraph(0, math.Inf(1))
	nodeID := make(map[types.Asset]int64, len(assets))
	for i, a := range assets {
		nodeID[a] = int64(i)
		g.AddNode(simple.Node(int64(i)))
	}

	m := 1.0
	if includeFee {
		mDec := decimal.NewFromInt(1).Sub(v.cfg.FeeRatePct.Div(decimal.NewFromInt(100)))
		f, _ := mDec.Float64()
		m = f
	}

	for _, symbol := range v.listing.SupportedSymbols() {
		bar, err := v.source.Bar(symbol, now)
		if err != nil {
			continue
		}
		quoteAsset, baseAsset := symbol.Split()
		qID, qOK := nodeID[quoteAsset]
		bID, bOK := nodeID[baseAsset]
		if !qOK || !bOK {
			continue
		}

		sellPrice, _ := bar.Field(v.cfg.SellPrice).Float64()
		buyPrice, _ := bar.Field(v.cfg.BuyPrice).Float64()

		if sellPrice > 0 && m > 0 {
			g.SetWeightedEdge(simple.WeightedEdge{F: simple.Node(qID), T: simple.Node(bID), W: -math.Log(m * sellPrice)})
		}
		if buyPrice > 0 && m > 0 {
			g.SetWeightedEdge(simple.WeightedEdge{F: simple.Node(bID), T: simple.Node(qID), W: math.Log(buyPrice / m)})
		}
	}

	return nodeID, g, nil
}

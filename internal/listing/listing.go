// Package listing implements the Listing Controller: at each tick it
// detects which symbols/assets the Quote Source currently supports and
// reconciles balance entries and open orders against that set using a
// diff-then-start/stop pass, run synchronously inside a single process()
// call rather than a goroutine-per-market loop.
package listing

import (
	"fmt"
	"log/slog"

	"backxchange/internal/book"
	"backxchange/internal/errs"
	"backxchange/internal/ledger"
	"backxchange/internal/quote"
	"backxchange/pkg/types"
)

// Controller reconciles the supported symbol/asset set on every tick.
type Controller struct {
	log *slog.Logger
	source quote.Source
	ledger *ledger.Ledger

	supportedSymbols map[types.Symbol]bool
	supportedAssets map[types.Asset]bool
}

// New builds a Controller over source, backed by ledger for balance-entry
// bookkeeping.
func New(log *slog.Logger, source quote.Source, l *ledger.Ledger) *Controller {
	return &Controller{
		log: log.With("component", "listing"),
		source: source,
		ledger: l,
		supportedSymbols: make(map[types.Symbol]bool),
		supportedAssets: make(map[types.Asset]bool),
	}
}

// SupportedSymbols reports the symbol set as of the last Reconcile.
func (c *Controller) SupportedSymbols() []types.Symbol {
	out := make([]types.Symbol, 0, len(c.supportedSymbols))
	for s := range c.supportedSymbols {
		out = append(out, s)
	}
	return out
}

// IsSymbolSupported reports whether symbol was supported as of the last
// Reconcile.
func (c *Controller) IsSymbolSupported(symbol types.Symbol) bool {
	return c.supportedSymbols[symbol]
}

// IsAssetSupported reports whether asset was supported as of the last
// Reconcile.
func (c *Controller) IsAssetSupported(asset types.Asset) bool {
	return c.supportedAssets[asset]
}

// SupportedAssets reports the asset set as of the last Reconcile.
func (c *Controller) SupportedAssets() []types.Asset {
	out := make([]types.Asset, 0, len(c.supportedAssets))
	for a := range c.supportedAssets {
		out = append(out, a)
	}
	return out
}

// Reconcile computes the symbol/asset set supported at now and applies the
// diff against the previous tick: newly listed assets get zero balance
// entries, delisted assets have every touching open order cancelled and
// refunded, then are force-withdrawn and removed. openBook is mutated in
// place for cancellations; closed is the destination for cancelled orders.
func (c *Controller) Reconcile(now int64, openBook, closed *book.OrderBook) error {
	newSymbols := make(map[types.Symbol]bool)
	newAssets := make(map[types.Asset]bool)

	for _, symbol := range c.source.Symbols() {
		if _, err := c.source.Bar(symbol, now); err != nil {
			continue
		}
		newSymbols[symbol] = true
		quoteAsset, baseAsset := symbol.Split()
		newAssets[quoteAsset] = true
		newAssets[baseAsset] = true
	}

	for asset := range newAssets {
		if !c.supportedAssets[asset] {
			c.ledger.CreateEntry(asset)
			c.log.Info("asset listed", "asset", asset, "timestamp", now)
		}
	}

	removedAssets := make([]types.Asset, 0)
	for asset := range c.supportedAssets {
		if !newAssets[asset] {
			removedAssets = append(removedAssets, asset)
		}
	}
	for _, asset := range removedAssets {
		if err := c.delistAsset(now, asset, openBook, closed); err != nil {
			return fmt.Errorf("reconcile: delist %s: %w", asset, err)
		}
		c.log.Info("asset delisted", "asset", asset, "timestamp", now)
	}

	c.supportedSymbols = newSymbols
	c.supportedAssets = newAssets
	return nil
}

func (c *Controller) delistAsset(now int64, asset types.Asset, openBook, closed *book.OrderBook) error {
	for _, id := range openBook.Snapshot() {
		o, ok := openBook.Get(id)
		if !ok {
			continue
		}
		quoteAsset, baseAsset := o.Symbol.Split()
		if quoteAsset != asset && baseAsset != asset {
			continue
		}
		if err := c.ledger.CancelAndRefund(o); err != nil {
			return err
		}
		openBook.Remove(id)
		closed.Insert(o)
	}

	entry, ok := c.ledger.Balance(asset)
	if !ok {
		return nil
	}
	if !entry.Used.IsZero() {
		return errs.Newf(errs.NotSupported, "delist", "asset %s still has reserved funds after cancellation", asset)
	}
	if !entry.Total.IsZero() {
		if _, err := c.ledger.Withdraw(now, asset, entry.Total); err != nil {
			return err
		}
	}
	return c.ledger.RemoveEntry(asset)
}

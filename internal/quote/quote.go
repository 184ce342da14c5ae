// Package quote defines the Quote Source seam: the core consumes OHLCV bars
// by (symbol, timestamp) without knowing where they came from. CSV parsing,
// HTTP fetching, and other ingestion paths are external collaborators, not
// part of this package.
package quote

import (
	"errors"

	"backxchange/pkg/types"
)

// ErrNotFound is returned by Source.Bar when no bar exists for the given
// (symbol, timestamp) pair. The core treats this as "symbol not supported at
// this timestamp", not as a failure.
var ErrNotFound = errors.New("quote: bar not found")

// Source answers OHLCV queries by symbol and timestamp. Implementations are
// the single seam between the matching core and any data format.
type Source interface {
	// Bar returns the OHLCV observation for symbol at timestamp t, or
	// ErrNotFound if the symbol is not supported at t.
	Bar(symbol types.Symbol, t int64) (types.Bar, error)

	// Symbols returns every symbol the source can ever answer for, across
	// all timestamps. The core intersects this with per-tick bar
	// availability to determine what is supported right now.
	Symbols() []types.Symbol

	// QuoteName and BaseName return the quote and base asset names encoded
	// in symbol, without requiring a round trip through Symbol.Split when a
	// source has its own canonical asset naming.
	QuoteName(symbol types.Symbol) types.Asset
	BaseName(symbol types.Symbol) types.Asset
}

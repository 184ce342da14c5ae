package quote

import "backxchange/pkg/types"

// MemorySource is an in-memory Quote Source fixture, used by tests and by
// cmd/backtest in place of CSV ingestion or HTTP fetching, both of which are
// out of scope.
type MemorySource struct {
	bars map[types.Symbol]map[int64]types.Bar
}

// NewMemorySource builds an empty fixture. Use Put to load bars.
func NewMemorySource() *MemorySource {
	return &MemorySource{bars: make(map[types.Symbol]map[int64]types.Bar)}
}

// Put loads a bar for symbol at timestamp t, making that symbol supported at
// t. Overwrites any bar previously stored for the same (symbol, t).
func (m *MemorySource) Put(symbol types.Symbol, t int64, bar types.Bar) {
	byTime, ok := m.bars[symbol]
	if !ok {
		byTime = make(map[int64]types.Bar)
		m.bars[symbol] = byTime
	}
	byTime[t] = bar
}

// Bar implements Source.
func (m *MemorySource) Bar(symbol types.Symbol, t int64) (types.Bar, error) {
	byTime, ok := m.bars[symbol]
	if !ok {
		return types.Bar{}, ErrNotFound
	}
	bar, ok := byTime[t]
	if !ok {
		return types.Bar{}, ErrNotFound
	}
	return bar, nil
}

// Symbols implements Source.
func (m *MemorySource) Symbols() []types.Symbol {
	symbols := make([]types.Symbol, 0, len(m.bars))
	for s := range m.bars {
		symbols = append(symbols, s)
	}
	return symbols
}

// QuoteName implements Source using the symbol's own "quote/base" encoding.
func (m *MemorySource) QuoteName(symbol types.Symbol) types.Asset {
	quote, _ := symbol.Split()
	return quote
}

// BaseName implements Source using the symbol's own "quote/base" encoding.
func (m *MemorySource) BaseName(symbol types.Symbol) types.Asset {
	_, base := symbol.Split()
	return base
}

// Package types defines the shared vocabulary used across every layer of
// the exchange: assets, symbols, order enums, OHLCV bars, and the rounding
// helpers applied at API boundaries.
//
// It has no dependencies on internal packages so it can be imported by the
// quote source, the order model, the ledger, and the facade alike.
package types

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Asset is a string identifier for a balance-bearing currency, e.g. "ETH".
type Asset = string

// Symbol is an ordered trading pair "quote/base", e.g. "XRP/ETH". A buy
// trades base for quote; a sell trades quote for base.
type Symbol string

// Split returns the quote and base asset names encoded in the symbol.
func (s Symbol) Split() (quote, base Asset) {
	parts := strings.SplitN(string(s), "/", 2)
	if len(parts) != 2 {
		return string(s), ""
	}
	return parts[0], parts[1]
}

// NewSymbol builds a "quote/base" symbol from its two asset names.
func NewSymbol(quote, base Asset) Symbol {
	return Symbol(quote + "/" + base)
}

// Side is the direction of an order or fill.
type Side string

const (
	Buy Side = "buy"
	Sell Side = "sell"
)

// OrderType enumerates the three order lifecycles the matching engine
// understands.
type OrderType string

const (
	Market OrderType = "market"
	Limit OrderType = "limit"
	StopLimit OrderType = "stop_limit"
)

// OrderStatus is a state in the order lifecycle machine.
type OrderStatus string

const (
	Submitted OrderStatus = "submitted"
	Accepted OrderStatus = "accepted"
	Open OrderStatus = "open"
	Filled OrderStatus = "filled"
	Cancelled OrderStatus = "cancelled"
)

// Terminal reports whether no further transitions are possible from this
// status.
func (s OrderStatus) Terminal() bool {
	return s == Filled || s == Cancelled
}

// PriceField selects which OHLCV field is used as a reference price for
// stop-limit triggers and for the slippage model's input price.
type PriceField string

const (
	FieldOpen PriceField = "open"
	FieldHigh PriceField = "high"
	FieldLow PriceField = "low"
	FieldClose PriceField = "close"
)

// Bar is a single OHLCV observation for a symbol at a tick timestamp.
type Bar struct {
	Open decimal.Decimal
	High decimal.Decimal
	Low decimal.Decimal
	Close decimal.Decimal
	Volume decimal.Decimal
}

// Field returns the OHLCV value named by f.
func (b Bar) Field(f PriceField) decimal.Decimal {
	switch f {
	case FieldOpen:
		return b.Open
	case FieldHigh:
		return b.High
	case FieldLow:
		return b.Low
	default:
		return b.Close
	}
}

// Tolerance is the absolute tolerance used for every decimal comparison in
// the exchange, guarding against floating-point-style drift in chained
// arithmetic.
var Tolerance = decimal.New(1, -9)

// EqualWithTolerance reports whether a and b differ by no more than
// Tolerance.
func EqualWithTolerance(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(Tolerance)
}

// GTEWithTolerance reports a >= b within Tolerance.
func GTEWithTolerance(a, b decimal.Decimal) bool {
	return a.Sub(b).GreaterThanOrEqual(Tolerance.Neg())
}

// LTEWithTolerance reports a <= b within Tolerance.
func LTEWithTolerance(a, b decimal.Decimal) bool {
	return b.Sub(a).GreaterThanOrEqual(Tolerance.Neg())
}

// Round8 rounds a quantity to the 8 fractional digits used for amount
// display at API boundaries.
func Round8(d decimal.Decimal) decimal.Decimal {
	return d.Round(8)
}

// Round2 rounds a quantity to the 2 fractional digits used for percentage
// display at API boundaries.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

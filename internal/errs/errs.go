// Package errs defines the exchange's error taxonomy: a typed, wrapped
// error with one of five kinds, each comparable via errors.Is against a
// package-level sentinel.
//
// It is a leaf package so that internal/ledger, internal/matching, and
// internal/exchange can all raise these kinds without an import cycle
// through the facade.
package errs

import (
	"errors"
	"fmt"
)

// Kind categorizes a strategy-visible or tick-time failure.
type Kind string

const (
	NotSupported Kind = "not_supported"
	InvalidOrder Kind = "invalid_order"
	OrderNotFound Kind = "order_not_found"
	InsufficientFunds Kind = "insufficient_funds"
	SlippageModelError Kind = "slippage_model_error"
)

// Sentinels, one per Kind, for errors.Is comparisons.
var (
	ErrNotSupported = errors.New("not supported")
	ErrInvalidOrder = errors.New("invalid order")
	ErrOrderNotFound = errors.New("order not found")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrSlippageModelError = errors.New("slippage model error")
)

func sentinelFor(kind Kind) error {
	switch kind {
	case NotSupported:
		return ErrNotSupported
	case InvalidOrder:
		return ErrInvalidOrder
	case OrderNotFound:
		return ErrOrderNotFound
	case InsufficientFunds:
		return ErrInsufficientFunds
	case SlippageModelError:
		return ErrSlippageModelError
	default:
		return errors.New(string(kind))
	}
}

// Error is the wrapped, typed error returned across every public operation.
type Error struct {
	Kind Kind
	Op string
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap exposes the wrapped cause for inspection.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel for e.Kind, so
// errors.Is(err, ErrInsufficientFunds) works regardless of whether e.Err
// itself chains back to that sentinel.
func (e *Error) Is(target error) bool {
	return target == sentinelFor(e.Kind)
}

// New builds an *Error of kind, attributing it to operation op, wrapping an
// optional underlying cause.
func New(kind Kind, op string, cause error) *Error {
	if cause == nil {
		cause = sentinelFor(kind)
	}
	return &Error{Kind: kind, Op: op, Err: cause}
}

// Newf is New with a formatted cause message.
func Newf(kind Kind, op, format string, args ...any) *Error {
	return New(kind, op, fmt.Errorf(format, args...))
}

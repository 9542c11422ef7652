package errs

import (
	"errors"
	"fmt"
)

// Error kinds shared by the analytics core and its collaborators.
var (
	ErrInvalidInput        = errors.New("invalid input")
	ErrInsufficientData    = errors.New("insufficient data")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	ErrNotFound            = errors.New("not found")
	ErrBusy                = errors.New("busy")
	ErrCancelled           = errors.New("cancelled")
)

// Invalid wraps ErrInvalidInput with a formatted reason.
func Invalid(format string, a ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, a...))
}

// NotFound wraps ErrNotFound with a formatted reason.
func NotFound(format string, a ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, a...))
}

// Upstream marks err as an upstream failure while keeping the cause.
func Upstream(source string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %w", ErrUpstreamUnavailable, source, err)
}

// SymbolFailure records a per-symbol error in a batch result.
type SymbolFailure struct {
	Symbol string `json:"symbol"`
	Kind   string `json:"kind"`
	Error  string `json:"error"`
}

// NewSymbolFailure classifies err for a batch failure record.
func NewSymbolFailure(symbol string, err error) SymbolFailure {
	return SymbolFailure{Symbol: symbol, Kind: Kind(err), Error: err.Error()}
}

// Kind returns a stable string for the error taxonomy.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrInsufficientData):
		return "insufficient_data"
	case errors.Is(err, ErrUpstreamUnavailable):
		return "upstream_unavailable"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrBusy):
		return "busy"
	case errors.Is(err, ErrCancelled):
		return "cancelled"
	default:
		return "internal"
	}
}

// Cancelled marks a context error as a cooperative cancellation.
func Cancelled(err error) error {
	if err == nil {
		return ErrCancelled
	}
	return fmt.Errorf("%w: %w", ErrCancelled, err)
}

// Classified reports whether err already carries one of the sentinel kinds.
func Classified(err error) bool {
	return Kind(err) != "internal" && err != nil
}

package model

import (
	"errors"
	"fmt"
	"time"
)

// ErrorKind classifies a fetch failure so the orchestrator can decide
// between retrying, advancing the fallback chain, or failing fast.
type ErrorKind int

const (
	ErrUnknown ErrorKind = iota
	ErrInvalidSymbol
	ErrInvalidDateRange
	ErrAPIKeyMissing
	ErrQuotaExceeded
	ErrRateLimited
	ErrNetwork
	ErrDecoding
	ErrDataQuality
	ErrNoData
	ErrPersistence
	ErrProviderUnavailable
)

func (k ErrorKind) String() string {
	switch k {
	case ErrInvalidSymbol:
		return "invalid_symbol"
	case ErrInvalidDateRange:
		return "invalid_date_range"
	case ErrAPIKeyMissing:
		return "api_key_missing"
	case ErrQuotaExceeded:
		return "quota_exceeded"
	case ErrRateLimited:
		return "rate_limit_exceeded"
	case ErrNetwork:
		return "network_error"
	case ErrDecoding:
		return "decoding_error"
	case ErrDataQuality:
		return "data_quality_error"
	case ErrNoData:
		return "no_data"
	case ErrPersistence:
		return "persistence_error"
	case ErrProviderUnavailable:
		return "provider_unavailable"
	default:
		return "unknown"
	}
}

// Error is a classified fetch error. Provider and Symbol are set where
// known so every failure can be logged with its origin.
type Error struct {
	Kind       ErrorKind
	Provider   string
	Symbol     string
	RetryAfter time.Duration // only for ErrRateLimited, 0 when the provider gave no hint
	Err        error
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Provider != "" {
		msg = e.Provider + ": " + msg
	}
	if e.Symbol != "" {
		msg += " (" + e.Symbol + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// NewError builds a classified error. cause may be nil.
func NewError(kind ErrorKind, provider, symbol string, cause error) *Error {
	return &Error{Kind: kind, Provider: provider, Symbol: symbol, Err: cause}
}

// NewRateLimitError carries the provider-suggested retry delay when one
// was parsed from the response, else zero.
func NewRateLimitError(provider, symbol string, retryAfter time.Duration) *Error {
	return &Error{Kind: ErrRateLimited, Provider: provider, Symbol: symbol, RetryAfter: retryAfter}
}

// KindOf extracts the ErrorKind from err, or ErrUnknown for foreign errors.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ErrUnknown
}

// Retryable reports whether the same provider may be retried after a
// backoff. Only transient failures qualify.
func Retryable(err error) bool {
	switch KindOf(err) {
	case ErrNetwork, ErrRateLimited:
		return true
	}
	return false
}

// RetryAfterHint returns the provider-suggested wait, or 0.
func RetryAfterHint(err error) time.Duration {
	var e *Error
	if errors.As(err, &e) {
		return e.RetryAfter
	}
	return 0
}

// ErrFetchInProgress signals that an identical (symbol, range) request is
// already in flight; callers retry or await the first request instead of
// triggering a second network fetch.
var ErrFetchInProgress = errors.New("fetch already in progress")

// ValidateRequest applies the pre-flight checks shared by all adapters.
// Violations fail before any network call or rate-limiter consumption.
func ValidateRequest(provider, symbol string, start, end time.Time) error {
	if symbol == "" {
		return NewError(ErrInvalidSymbol, provider, symbol, fmt.Errorf("empty symbol"))
	}
	if start.After(end) {
		return NewError(ErrInvalidDateRange, provider, symbol,
			fmt.Errorf("start %s after end %s", start.Format("2006-01-02"), end.Format("2006-01-02")))
	}
	return nil
}

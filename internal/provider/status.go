package provider

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"marketdata/internal/model"
)

// DefaultRetryAfter is used when a throttling provider sends no
// Retry-After header.
const DefaultRetryAfter = 60 * time.Second

// StatusError maps a non-2xx response to a classified error. retryAfter
// is the raw Retry-After header value, if any.
func StatusError(name, symbol string, status int, retryAfter string) *model.Error {
	switch {
	case status == http.StatusUnauthorized:
		return model.NewError(model.ErrAPIKeyMissing, name, symbol, fmt.Errorf("status %d", status))
	case status == http.StatusForbidden:
		return model.NewError(model.ErrQuotaExceeded, name, symbol, fmt.Errorf("status %d", status))
	case status == http.StatusNotFound || status == http.StatusUnprocessableEntity:
		return model.NewError(model.ErrInvalidSymbol, name, symbol, fmt.Errorf("status %d", status))
	case status == http.StatusTooManyRequests:
		return model.NewRateLimitError(name, symbol, ParseRetryAfter(retryAfter))
	default:
		return model.NewError(model.ErrNetwork, name, symbol, fmt.Errorf("status %d", status))
	}
}

// ParseRetryAfter interprets a Retry-After header as delay seconds,
// falling back to the default backoff.
func ParseRetryAfter(v string) time.Duration {
	if v == "" {
		return DefaultRetryAfter
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return DefaultRetryAfter
}

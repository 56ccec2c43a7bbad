package model

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestErrorMessageComposition(t *testing.T) {
	err := NewError(ErrInvalidSymbol, "yahoo", "NOPE", fmt.Errorf("delisted"))
	want := "yahoo: invalid_symbol (NOPE): delisted"
	if err.Error() != want {
		t.Errorf("got %q, want %q", err.Error(), want)
	}
}

func TestKindOf(t *testing.T) {
	err := NewError(ErrQuotaExceeded, "av", "IBM", nil)
	if KindOf(err) != ErrQuotaExceeded {
		t.Error("direct kind")
	}
	wrapped := fmt.Errorf("fetch failed: %w", err)
	if KindOf(wrapped) != ErrQuotaExceeded {
		t.Error("kind through wrapping")
	}
	if KindOf(errors.New("plain")) != ErrUnknown {
		t.Error("foreign errors are unknown")
	}
}

func TestRetryable(t *testing.T) {
	if !Retryable(NewError(ErrNetwork, "", "", nil)) {
		t.Error("network errors are transient")
	}
	if !Retryable(NewRateLimitError("", "", time.Second)) {
		t.Error("rate limits are transient")
	}
	for _, kind := range []ErrorKind{
		ErrInvalidSymbol, ErrInvalidDateRange, ErrAPIKeyMissing,
		ErrQuotaExceeded, ErrDecoding, ErrDataQuality, ErrNoData,
	} {
		if Retryable(NewError(kind, "", "", nil)) {
			t.Errorf("%s must not be retried", kind)
		}
	}
}

func TestRetryAfterHint(t *testing.T) {
	err := NewRateLimitError("av", "IBM", 42*time.Second)
	if RetryAfterHint(err) != 42*time.Second {
		t.Error("hint lost")
	}
	if RetryAfterHint(NewError(ErrNetwork, "", "", nil)) != 0 {
		t.Error("no hint expected")
	}
}

func TestValidateRequest(t *testing.T) {
	now := time.Now()
	if err := ValidateRequest("p", "AAPL", now.AddDate(0, 0, -1), now); err != nil {
		t.Errorf("valid request rejected: %v", err)
	}
	if KindOf(ValidateRequest("p", "", now, now)) != ErrInvalidSymbol {
		t.Error("empty symbol")
	}
	if KindOf(ValidateRequest("p", "AAPL", now, now.AddDate(0, 0, -1))) != ErrInvalidDateRange {
		t.Error("inverted range")
	}
}

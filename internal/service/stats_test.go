package service

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCircuitClosesOnFirstSuccess(t *testing.T) {
	tr := newStatsTracker()
	failure := errors.New("boom")
	for i := 0; i < breakerWindow; i++ {
		tr.record("yahoo", time.Millisecond, failure)
	}
	assert.True(t, tr.circuitOpen("yahoo"), "window full of failures should trip the breaker")

	tr.record("yahoo", time.Millisecond, nil)
	assert.False(t, tr.circuitOpen("yahoo"), "one success must close the circuit")
}

func TestCircuitNeedsMinimumAttempts(t *testing.T) {
	tr := newStatsTracker()
	failure := errors.New("boom")
	for i := 0; i < breakerMinAttempts-1; i++ {
		tr.record("yahoo", time.Millisecond, failure)
	}
	assert.False(t, tr.circuitOpen("yahoo"), "too few attempts to judge")
}

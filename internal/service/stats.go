package service

import (
	"sync"
	"time"

	"marketdata/internal/model"
)

// Circuit-breaking parameters: a provider is skipped while more than
// breakerFailureRate of its last >= breakerMinAttempts outcomes are
// failures. A recorded success closes the circuit again.
const (
	breakerMinAttempts = 5
	breakerWindow      = 20
	breakerFailureRate = 0.9
)

// statsTracker owns the per-provider rolling counters. All mutation goes
// through one mutex; the tracker is in-memory only and resets on launch.
type statsTracker struct {
	mu     sync.Mutex
	stats  map[string]*model.ProviderStats
	recent map[string][]bool // true = success, newest last, capped at breakerWindow
}

func newStatsTracker() *statsTracker {
	return &statsTracker{
		stats:  make(map[string]*model.ProviderStats),
		recent: make(map[string][]bool),
	}
}

func (t *statsTracker) record(name string, elapsed time.Duration, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.stats[name]
	if !ok {
		s = &model.ProviderStats{ProviderName: name}
		t.stats[name] = s
	}
	s.TotalRequests++
	s.TotalResponseTime += elapsed
	now := time.Now()
	if err == nil {
		s.SuccessCount++
		s.LastSuccessAt = now
	} else {
		s.FailureCount++
		s.LastFailureAt = now
	}

	outcomes := append(t.recent[name], err == nil)
	if len(outcomes) > breakerWindow {
		outcomes = outcomes[len(outcomes)-breakerWindow:]
	}
	t.recent[name] = outcomes
}

// circuitOpen reports whether the provider's recent failure rate trips
// the breaker. Any success as the newest outcome closes the circuit
// immediately, whatever the failure history before it.
func (t *statsTracker) circuitOpen(name string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	outcomes := t.recent[name]
	if len(outcomes) < breakerMinAttempts {
		return false
	}
	if outcomes[len(outcomes)-1] {
		return false
	}
	failures := 0
	for _, ok := range outcomes {
		if !ok {
			failures++
		}
	}
	return float64(failures)/float64(len(outcomes)) > breakerFailureRate
}

func (t *statsTracker) snapshot(name string) model.ProviderStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok := t.stats[name]; ok {
		return *s
	}
	return model.ProviderStats{ProviderName: name}
}

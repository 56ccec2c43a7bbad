package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Config caps request counts over four concurrent sliding windows.
// A zero cap disables that window.
type Config struct {
	PerSecond int
	PerMinute int
	PerHour   int
	PerDay    int
}

// Limiter tracks request timestamps for one provider and answers whether
// a call may go out now, and if not, when. Timestamps are pruned lazily
// on each check by discarding anything older than the widest window.
// Safe for concurrent use from multiple in-flight fetches.
type Limiter struct {
	cfg Config

	mu     sync.Mutex
	stamps []time.Time

	now func() time.Time // swapped in tests
}

func New(cfg Config) *Limiter {
	return &Limiter{cfg: cfg, now: time.Now}
}

type window struct {
	span time.Duration
	cap  int
}

func (l *Limiter) windows() [4]window {
	return [4]window{
		{time.Second, l.cfg.PerSecond},
		{time.Minute, l.cfg.PerMinute},
		{time.Hour, l.cfg.PerHour},
		{24 * time.Hour, l.cfg.PerDay},
	}
}

// prune drops timestamps older than the widest window. Callers hold mu.
func (l *Limiter) prune(now time.Time) {
	cutoff := now.Add(-24 * time.Hour)
	i := 0
	for ; i < len(l.stamps); i++ {
		if l.stamps[i].After(cutoff) {
			break
		}
	}
	if i > 0 {
		l.stamps = append(l.stamps[:0], l.stamps[i:]...)
	}
}

func (l *Limiter) countSince(cutoff time.Time) int {
	n := 0
	for i := len(l.stamps) - 1; i >= 0; i-- {
		if !l.stamps[i].After(cutoff) {
			break
		}
		n++
	}
	return n
}

// Allow reports whether a request may be made now: every configured
// window's count must be below its cap.
func (l *Limiter) Allow() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	l.prune(now)
	for _, w := range l.windows() {
		if w.cap <= 0 {
			continue
		}
		if l.countSince(now.Add(-w.span)) >= w.cap {
			return false
		}
	}
	return true
}

// Record appends one request timestamp unconditionally. Adapters consume
// slots through TryAcquire; Record exists for callers that account for a
// request made outside the acquire path.
func (l *Limiter) Record() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stamps = append(l.stamps, l.now())
}

// TryAcquire consumes a slot if every configured window has capacity.
// The check and the append happen under one lock, so concurrent callers
// can never jointly exceed a cap.
func (l *Limiter) TryAcquire() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	l.prune(now)
	for _, w := range l.windows() {
		if w.cap <= 0 {
			continue
		}
		if l.countSince(now.Add(-w.span)) >= w.cap {
			return false
		}
	}
	l.stamps = append(l.stamps, now)
	return true
}

// NextDelay returns how long until the most restrictive saturated window
// frees a slot. Zero means a request may be made immediately.
func (l *Limiter) NextDelay() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	l.prune(now)

	var wait time.Duration
	for _, w := range l.windows() {
		if w.cap <= 0 {
			continue
		}
		cutoff := now.Add(-w.span)
		if l.countSince(cutoff) < w.cap {
			continue
		}
		// The window frees a slot when its cap-th newest timestamp ages out.
		idx := len(l.stamps) - w.cap
		if idx < 0 {
			idx = 0
		}
		d := l.stamps[idx].Add(w.span).Sub(now)
		if d > wait {
			wait = d
		}
	}
	return wait
}

// Wait blocks until a slot is likely free, the context is canceled, or
// the required wait exceeds max (max <= 0 means wait indefinitely). Wait
// only paces callers; the slot itself is consumed atomically by
// TryAcquire when the request goes out, so a caller racing another may
// still be turned away there.
func (l *Limiter) Wait(ctx context.Context, max time.Duration) error {
	for {
		d := l.NextDelay()
		if d <= 0 {
			return nil
		}
		if max > 0 && d > max {
			return context.DeadlineExceeded
		}
		t := time.NewTimer(d)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
		if max > 0 {
			max -= d
		}
	}
}

package service

import "sync"

// inflight tracks request keys currently being fetched so a duplicate
// concurrent request for the same (symbol, range) is rejected instead of
// triggering a second network fetch.
type inflight struct {
	mu   sync.Mutex
	keys map[string]struct{}
}

func newInflight() *inflight {
	return &inflight{keys: make(map[string]struct{})}
}

// begin claims the key; false means an identical request is in progress.
func (f *inflight) begin(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, busy := f.keys[key]; busy {
		return false
	}
	f.keys[key] = struct{}{}
	return true
}

func (f *inflight) end(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.keys, key)
}

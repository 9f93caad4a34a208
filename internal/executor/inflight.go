package executor

import "sync"

// inflight enforces at most one decision cycle per symbol at a time within
// this process. A cycle acquires its symbol before evaluating and releases
// it after the order (if any) reaches a terminal state.
type inflight struct {
	mu   sync.Mutex
	busy map[string]struct{}
}

func newInflight() *inflight {
	return &inflight{busy: make(map[string]struct{})}
}

// tryAcquire reports whether the symbol was free and marks it busy. It never
// blocks: a tick that finds the previous cycle still running skips the
// symbol instead of queueing behind it.
func (f *inflight) tryAcquire(symbol string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, held := f.busy[symbol]; held {
		return false
	}
	f.busy[symbol] = struct{}{}
	return true
}

func (f *inflight) release(symbol string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.busy, symbol)
}

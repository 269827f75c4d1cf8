package service

import "sync"

// stampedeTracker counts misses in progress per cache key. A count above one
// means several callers missed the same key at once.
type stampedeTracker struct {
	mu           sync.Mutex
	activeMisses map[string]int
}

func newStampedeTracker() *stampedeTracker {
	return &stampedeTracker{activeMisses: make(map[string]int)}
}

// RecordMiss registers a miss for key and returns how many are now in progress.
// Pair every call with RecordHit once the fetch resolves.
func (st *stampedeTracker) RecordMiss(key string) int {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.activeMisses[key]++
	return st.activeMisses[key]
}

// RecordHit marks one miss for key as resolved.
func (st *stampedeTracker) RecordHit(key string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	switch n := st.activeMisses[key]; {
	case n > 1:
		st.activeMisses[key] = n - 1
	case n == 1:
		delete(st.activeMisses, key)
	}
}

// Active returns the misses in progress for key.
func (st *stampedeTracker) Active(key string) int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.activeMisses[key]
}

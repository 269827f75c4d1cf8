// Package degraded tracks whether the weather provider has rejected our
// credentials and drives background re-validation until it accepts them again.
package degraded

import (
	"sync"
)

// ReasonInvalidAPIKey is reported while the weather API rejects the configured key.
const ReasonInvalidAPIKey = "invalid_api_key"

var state struct {
	mu     sync.RWMutex
	active bool
	reason string
}

// Mark flags the service as degraded and wakes the recovery listener, if one is running.
// Safe to call from handlers; non-blocking.
func Mark(reason string) {
	state.mu.Lock()
	state.active = true
	state.reason = reason
	state.mu.Unlock()
	NotifyDegraded()
}

// Clear drops the degraded flag.
func Clear() {
	state.mu.Lock()
	state.active = false
	state.reason = ""
	state.mu.Unlock()
}

// Active reports whether the service is degraded and why.
func Active() (bool, string) {
	state.mu.RLock()
	defer state.mu.RUnlock()
	return state.active, state.reason
}

// Package lifecycle tracks process start time and the shutdown flag.
package lifecycle

import (
	"sync/atomic"
	"time"
)

var (
	shuttingDown atomic.Bool
	startedAt    atomic.Pointer[time.Time]
)

func init() {
	MarkStarted(time.Now())
}

// MarkStarted records the process start time used by Uptime. main calls it
// once the server is about to listen; init sets a fallback. The value is kept
// as-is so a monotonic reading from time.Now survives wall-clock steps.
func MarkStarted(t time.Time) {
	startedAt.Store(&t)
}

// StartTime returns the recorded start time.
func StartTime() time.Time {
	return *startedAt.Load()
}

// Uptime returns the time elapsed since MarkStarted.
func Uptime() time.Duration {
	return time.Since(StartTime())
}

// SetShuttingDown sets the shutdown flag. Call when SIGTERM/SIGINT received.
func SetShuttingDown(v bool) {
	shuttingDown.Store(v)
}

// IsShuttingDown returns true if the process is draining in-flight requests.
func IsShuttingDown() bool {
	return shuttingDown.Load()
}

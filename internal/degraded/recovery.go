package degraded

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

var (
	recoveryChan   chan struct{}
	recoveryChanMu sync.Mutex
)

// NotifyDegraded triggers recovery if a listener is running and recovery is not already in progress.
func NotifyDegraded() {
	recoveryChanMu.Lock()
	ch := recoveryChan
	recoveryChanMu.Unlock()
	if ch != nil {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// ValidateFunc re-checks the upstream credential. Returns nil once it is accepted.
type ValidateFunc func(ctx context.Context) error

// StartRecoveryListener starts a goroutine that runs RunRecovery each time the
// service is marked degraded. At most one recovery runs at a time. Stops with ctx.
func StartRecoveryListener(ctx context.Context, validate ValidateFunc, initial, max time.Duration, onExhausted func()) {
	ch := make(chan struct{}, 1)
	recoveryChanMu.Lock()
	recoveryChan = ch
	recoveryChanMu.Unlock()

	var running atomic.Bool
	go func() {
		defer func() {
			recoveryChanMu.Lock()
			if recoveryChan == ch {
				recoveryChan = nil
			}
			recoveryChanMu.Unlock()
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ch:
				if running.Swap(true) {
					continue
				}
				go func() {
					defer running.Store(false)
					RunRecovery(ctx, validate, initial, max, onExhausted)
				}()
			}
		}
	}()
}

// RunRecovery calls validate on a Fibonacci schedule (initial x 1, 2, 3, 5, 8 ...
// up to max). It clears the degraded flag on the first success. When the last
// attempt still fails, onExhausted is called (may be nil) and the flag stays set.
func RunRecovery(ctx context.Context, validate ValidateFunc, initial, max time.Duration, onExhausted func()) {
	if initial <= 0 || max < initial {
		return
	}
	const attemptTimeout = 10 * time.Second
	delays := fibDelays(initial, max)
	for i, d := range delays {
		timer := time.NewTimer(d)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		attemptCtx, cancel := context.WithTimeout(ctx, attemptTimeout)
		err := validate(attemptCtx)
		cancel()
		if err == nil {
			Clear()
			return
		}
		if i == len(delays)-1 && onExhausted != nil {
			onExhausted()
		}
	}
}

func fibDelays(initial, max time.Duration) []time.Duration {
	var out []time.Duration
	a, b := time.Duration(1), time.Duration(2)
	for {
		d := a * initial
		if d > max {
			break
		}
		out = append(out, d)
		a, b = b, a+b
	}
	return out
}

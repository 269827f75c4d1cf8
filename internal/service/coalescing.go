package service

import (
	"context"
	"sync"
	"time"
)

// inFlightRequest is a single upstream fetch that several callers may wait on.
// done is closed once result and err are set.
type inFlightRequest[T any] struct {
	done   chan struct{}
	result T
	err    error
}

// requestCoalescer collapses concurrent fetches for the same key into one call.
type requestCoalescer[T any] struct {
	mu       sync.Mutex
	inFlight map[string]*inFlightRequest[T]
	timeout  time.Duration
}

// newRequestCoalescer creates a coalescer whose callers wait at most timeout.
func newRequestCoalescer[T any](timeout time.Duration) *requestCoalescer[T] {
	return &requestCoalescer[T]{
		inFlight: make(map[string]*inFlightRequest[T]),
		timeout:  timeout,
	}
}

// GetOrDo joins the in-flight fetch for key, or starts one running fn. shared
// reports whether the caller joined an existing fetch. The fetch runs detached
// from the first caller's cancellation so later callers are not failed by it;
// request-scoped values (logger, correlation ID) are kept.
func (rc *requestCoalescer[T]) GetOrDo(ctx context.Context, key string, fn func(context.Context) (T, error)) (T, bool, error) {
	rc.mu.Lock()
	req, shared := rc.inFlight[key]
	if !shared {
		req = &inFlightRequest[T]{done: make(chan struct{})}
		rc.inFlight[key] = req
		fetchCtx := context.WithoutCancel(ctx)
		go func() {
			defer rc.cleanup(key, req)
			req.result, req.err = fn(fetchCtx)
			close(req.done)
		}()
	}
	rc.mu.Unlock()

	waitCtx, cancel := context.WithTimeout(ctx, rc.timeout)
	defer cancel()
	select {
	case <-req.done:
		return req.result, shared, req.err
	case <-waitCtx.Done():
		var zero T
		return zero, shared, waitCtx.Err()
	}
}

// cleanup removes req for key once it has completed.
func (rc *requestCoalescer[T]) cleanup(key string, req *inFlightRequest[T]) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if rc.inFlight[key] == req {
		delete(rc.inFlight, key)
	}
}

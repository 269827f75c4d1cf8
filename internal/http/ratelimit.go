package http

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/weather-advisory-service/internal/apperror"
	"github.com/kjstillabower/weather-advisory-service/internal/observability"
	"github.com/kjstillabower/weather-advisory-service/internal/traffic"
)

// ClientRateLimiter allows each client Max requests per Window, refilled
// continuously. Clients are keyed by the first X-Forwarded-For entry, else
// the remote address.
type ClientRateLimiter struct {
	limit  rate.Limit
	burst  int
	window time.Duration
	now    func() time.Time

	mu        sync.Mutex
	clients   map[string]*clientLimiter
	lastSweep time.Time
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewClientRateLimiter returns nil when max or window is not positive, which disables limiting.
func NewClientRateLimiter(max int, window time.Duration) *ClientRateLimiter {
	if max <= 0 || window <= 0 {
		return nil
	}
	return &ClientRateLimiter{
		limit:   rate.Limit(float64(max) / window.Seconds()),
		burst:   max,
		window:  window,
		now:     time.Now,
		clients: make(map[string]*clientLimiter),
	}
}

// Reserve takes one token for key. It returns zero when the request may proceed,
// otherwise the delay until a token is available.
func (l *ClientRateLimiter) Reserve(key string) time.Duration {
	now := l.now()

	l.mu.Lock()
	l.sweepLocked(now)
	c, ok := l.clients[key]
	if !ok {
		c = &clientLimiter{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.clients[key] = c
	}
	c.lastSeen = now
	l.mu.Unlock()

	res := c.limiter.ReserveN(now, 1)
	if !res.OK() {
		return l.window
	}
	delay := res.DelayFrom(now)
	if delay > 0 {
		res.CancelAt(now)
	}
	return delay
}

// sweepLocked drops clients idle for a full window; their buckets are full again.
func (l *ClientRateLimiter) sweepLocked(now time.Time) {
	if now.Sub(l.lastSweep) < l.window {
		return
	}
	for key, c := range l.clients {
		if now.Sub(c.lastSeen) >= l.window {
			delete(l.clients, key)
		}
	}
	l.lastSweep = now
}

func (l *ClientRateLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}

// clientKey returns the first X-Forwarded-For entry, else the host of RemoteAddr.
func clientKey(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// RateLimitMiddleware answers 429 with Retry-After once a client exhausts its
// allowance. Disabled when limiter is nil.
func RateLimitMiddleware(limiter *ClientRateLimiter, errs errorTranslator) mux.MiddlewareFunc {
	if limiter == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if delay := limiter.Reserve(clientKey(r)); delay > 0 {
				traffic.RecordDenied()
				observability.RateLimitDeniedTotal.Inc()
				errs.write(w, r, apperror.RateLimited(delay))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

package httpapi

import (
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"
)

const (
	// limiterIdleTTL is how long an IP's bucket survives without
	// traffic before the sweep reclaims it.
	limiterIdleTTL = 3 * time.Minute
	// limiterSweepEvery bounds how many lookups run between sweeps.
	limiterSweepEvery = 256
)

// ipEntry is one client bucket plus its idle bookkeeping.
type ipEntry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// ipLimiter hands out one token bucket per client IP. Idle buckets are
// reclaimed on an amortized sweep so the map stays bounded under IP
// churn, keyed off idle duration like the pool cleanup.
type ipLimiter struct {
	mu      sync.Mutex
	entries map[string]*ipEntry
	limit   rate.Limit
	burst   int
	lookups int
}

func newIPLimiter(perSecond float64, burst int) *ipLimiter {
	if burst < 1 {
		burst = 1
	}
	return &ipLimiter{
		entries: make(map[string]*ipEntry),
		limit:   rate.Limit(perSecond),
		burst:   burst,
	}
}

func (l *ipLimiter) get(ip string) *rate.Limiter {
	now := time.Now()
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lookups++
	if l.lookups >= limiterSweepEvery {
		l.lookups = 0
		l.sweepLocked(now)
	}
	e, ok := l.entries[ip]
	if !ok {
		e = &ipEntry{lim: rate.NewLimiter(l.limit, l.burst)}
		l.entries[ip] = e
	}
	e.lastSeen = now
	return e.lim
}

// sweep reclaims buckets idle longer than limiterIdleTTL and returns
// the number removed.
func (l *ipLimiter) sweep(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sweepLocked(now)
}

func (l *ipLimiter) sweepLocked(now time.Time) int {
	var removed int
	for ip, e := range l.entries {
		if now.Sub(e.lastSeen) > limiterIdleTTL {
			delete(l.entries, ip)
			removed++
		}
	}
	return removed
}

// middleware rejects requests over the per-IP budget with 429.
// A non-positive rate disables limiting.
func (l *ipLimiter) middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if l.limit <= 0 {
				return next(c)
			}
			if !l.get(c.RealIP()).Allow() {
				return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
			}
			return next(c)
		}
	}
}

package middleware

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/SaltProphet/SystemZero/services/monitor/internal/auth"
)

const (
	rateWindow  = time.Minute
	burstWindow = 5 * time.Second

	gcInterval = time.Minute
	gcIdle     = 5 * time.Minute
)

type clientWindow struct {
	stamps   []time.Time
	lastSeen time.Time
}

// RateLimiter applies a sliding-window limit per client: at most rpm
// requests in any 60-second window and at most burst in any 5-second window.
// Clients are keyed by API key when present, falling back to remote address.
type RateLimiter struct {
	mu      sync.Mutex
	rpm     int
	burst   int
	enabled bool
	clients map[string]*clientWindow
	now     func() time.Time
	lastGC  time.Time
}

// NewRateLimiter builds a limiter. Non-positive limits fall back to
// permissive defaults.
func NewRateLimiter(rpm, burst int, enabled bool) *RateLimiter {
	if rpm < 1 {
		rpm = 100
	}
	if burst < 1 {
		burst = 20
	}
	return &RateLimiter{
		rpm:     rpm,
		burst:   burst,
		enabled: enabled,
		clients: make(map[string]*clientWindow),
		now:     time.Now,
	}
}

// identity resolves who is asking: a hashed API key when one is presented,
// otherwise the remote host, otherwise "unknown".
func identity(r *http.Request) string {
	if key := apiKeyFrom(r); key != "" {
		return "key:" + auth.HashKey(key)[:16]
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil && host != "" {
		return "ip:" + host
	}
	if r.RemoteAddr != "" {
		return "ip:" + r.RemoteAddr
	}
	return "unknown"
}

// allow records one request attempt and reports whether it fits both
// windows, with the remaining minute budget and the window reset time.
func (l *RateLimiter) allow(key string) (ok bool, remaining int, reset time.Time) {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()
	l.gcLocked(now)

	c, found := l.clients[key]
	if !found {
		c = &clientWindow{}
		l.clients[key] = c
	}
	c.lastSeen = now

	// Drop stamps that left the minute window.
	cutoff := now.Add(-rateWindow)
	kept := c.stamps[:0]
	for _, ts := range c.stamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	c.stamps = kept

	if len(c.stamps) >= l.rpm {
		return false, 0, c.stamps[0].Add(rateWindow)
	}
	recent := 0
	burstCutoff := now.Add(-burstWindow)
	for i := len(c.stamps) - 1; i >= 0; i-- {
		if !c.stamps[i].After(burstCutoff) {
			break
		}
		recent++
	}
	if recent >= l.burst {
		return false, 0, now.Add(burstWindow)
	}

	c.stamps = append(c.stamps, now)
	reset = c.stamps[0].Add(rateWindow)
	return true, l.rpm - len(c.stamps), reset
}

func (l *RateLimiter) gcLocked(now time.Time) {
	if now.Sub(l.lastGC) < gcInterval {
		return
	}
	l.lastGC = now
	for k, c := range l.clients {
		if now.Sub(c.lastSeen) > gcIdle {
			delete(l.clients, k)
		}
	}
}

// Middleware enforces the limits, stamping X-RateLimit-* headers on every
// response and answering 429 with Retry-After when a window is exhausted.
func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.enabled {
			next.ServeHTTP(w, r)
			return
		}

		ok, remaining, reset := l.allow(identity(r))
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(l.rpm))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))
		if !ok {
			w.Header().Set("Retry-After", "60")
			WriteError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// SetClock overrides the limiter's time source. Test hook.
func (l *RateLimiter) SetClock(now func() time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
}

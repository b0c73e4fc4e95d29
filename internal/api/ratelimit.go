package api

import (
	"net"
	"net/http"
	"os"
	"strconv"
	"sync"

	"golang.org/x/time/rate"
)

// Ingest rate limiting, per source address. Tuned with RATE_RPS and
// RATE_BURST; RATE_RPS=0 disables the limiter.
type ipLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rps      rate.Limit
	burst    int
}

func newIPLimiterFromEnv() *ipLimiter {
	rps := 50.0
	if v := os.Getenv("RATE_RPS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 {
			rps = f
		}
	}
	burst := 100
	if v := os.Getenv("RATE_BURST"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			burst = n
		}
	}
	return &ipLimiter{limiters: map[string]*rate.Limiter{}, rps: rate.Limit(rps), burst: burst}
}

func (l *ipLimiter) allow(addr string) bool {
	if l.rps == 0 {
		return true
	}
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}
	l.mu.Lock()
	lim := l.limiters[host]
	if lim == nil {
		lim = rate.NewLimiter(l.rps, l.burst)
		l.limiters[host] = lim
	}
	l.mu.Unlock()
	return lim.Allow()
}

func (s *Server) rateLimited(next http.Handler) http.Handler {
	lim := newIPLimiterFromEnv()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !lim.allow(r.RemoteAddr) {
			writeProblem(w, http.StatusTooManyRequests, "Too Many Requests", "ingest rate limit exceeded", r.URL.Path)
			return
		}
		next.ServeHTTP(w, r)
	})
}

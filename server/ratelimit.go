package server

import (
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/julienschmidt/httprouter"
	"golang.org/x/time/rate"
)

const (
	limiterSweepInterval = 5 * time.Minute
	limiterIdleTimeout   = 10 * time.Minute
)

type clientBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// clientLimiter is a token bucket per client IP. A nil clientLimiter allows everything.
type clientLimiter struct {
	cfg       ConfigRateLimit
	lock      sync.Mutex
	clients   map[string]*clientBucket
	lastSweep time.Time
}

func newClientLimiter(cfg ConfigRateLimit) *clientLimiter {
	if cfg.RequestsPerSecond <= 0 {
		return nil
	}
	return &clientLimiter{
		cfg:       cfg,
		clients:   map[string]*clientBucket{},
		lastSweep: time.Now(),
	}
}

// allow takes a token for ip. If there is none, it returns the number of seconds to wait.
func (l *clientLimiter) allow(ip string, now time.Time) (ok bool, retryAfter int) {
	l.lock.Lock()
	if now.Sub(l.lastSweep) > limiterSweepInterval {
		for k, c := range l.clients {
			if now.Sub(c.lastSeen) > limiterIdleTimeout {
				delete(l.clients, k)
			}
		}
		l.lastSweep = now
	}
	c := l.clients[ip]
	if c == nil {
		c = &clientBucket{limiter: rate.NewLimiter(rate.Limit(l.cfg.RequestsPerSecond), l.cfg.Burst)}
		l.clients[ip] = c
	}
	c.lastSeen = now
	l.lock.Unlock()

	reservation := c.limiter.ReserveN(now, 1)
	if !reservation.OK() {
		return false, 1
	}
	if delay := reservation.DelayFrom(now); delay > 0 {
		reservation.CancelAt(now)
		return false, int(delay.Seconds()) + 1
	}
	return true, 0
}

func (l *clientLimiter) wrap(next httprouter.Handle) httprouter.Handle {
	if l == nil {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		if ok, retryAfter := l.allow(clientIP(r), time.Now()); !ok {
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			http.Error(w, "Too many requests", http.StatusTooManyRequests)
			return
		}
		next(w, r, ps)
	}
}

// clientIP is the remote address without its port. X-Forwarded-For is ignored, because it can be spoofed.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Package ratelimit keeps one token bucket per client key.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type entry struct {
	lim  *rate.Limiter
	last time.Time
}

// Limiter holds one bucket per key, all sharing the same rate and burst.
type Limiter struct {
	limit rate.Limit
	burst int
	now   func() time.Time

	mu sync.Mutex
	m  map[string]*entry
}

// New creates a limiter refilling r tokens per second up to burst. A
// non-positive rate disables limiting.
func New(r float64, burst int) *Limiter {
	if burst < 1 {
		burst = 1
	}
	return &Limiter{limit: rate.Limit(r), burst: burst, now: time.Now, m: make(map[string]*entry)}
}

// Allow consumes one token for key if available.
func (l *Limiter) Allow(key string) bool {
	if l.limit <= 0 {
		return true
	}
	now := l.now()
	l.mu.Lock()
	e, ok := l.m[key]
	if !ok {
		e = &entry{lim: rate.NewLimiter(l.limit, l.burst)}
		l.m[key] = e
	}
	e.last = now
	l.mu.Unlock()
	return e.lim.AllowN(now, 1)
}

// Prune drops buckets idle for longer than idle and returns how many were
// removed.
func (l *Limiter) Prune(idle time.Duration) int {
	cutoff := l.now().Add(-idle)
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for k, e := range l.m {
		if e.last.Before(cutoff) {
			delete(l.m, k)
			n++
		}
	}
	return n
}

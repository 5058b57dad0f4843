package app

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const limiterIdleTTL = 10 * time.Minute

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// limiterPool hands out one token bucket per key. Buckets idle for longer
// than idleTTL are dropped on the next sweep.
type limiterPool struct {
	mu        sync.Mutex
	m         map[string]*limiterEntry
	rps       float64
	burst     int
	idleTTL   time.Duration
	lastSweep time.Time
	now       func() time.Time
}

func newLimiterPool(rps float64, burst int) *limiterPool {
	if rps <= 0 {
		rps = 5
	}
	if burst <= 0 {
		burst = 10
	}
	return &limiterPool{
		m:       make(map[string]*limiterEntry),
		rps:     rps,
		burst:   burst,
		idleTTL: limiterIdleTTL,
		now:     time.Now,
	}
}

func (p *limiterPool) get(key string) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := p.now()
	p.sweep(now)
	if e, ok := p.m[key]; ok {
		e.lastSeen = now
		return e.limiter
	}
	l := rate.NewLimiter(rate.Limit(p.rps), p.burst)
	p.m[key] = &limiterEntry{limiter: l, lastSeen: now}
	return l
}

// sweep runs at most once per idleTTL. Callers hold mu.
func (p *limiterPool) sweep(now time.Time) {
	if now.Sub(p.lastSweep) < p.idleTTL {
		return
	}
	p.lastSweep = now
	for key, e := range p.m {
		if now.Sub(e.lastSeen) >= p.idleTTL {
			delete(p.m, key)
		}
	}
}

func (p *limiterPool) Allow(key string) bool {
	return p.get(key).Allow()
}

func (p *limiterPool) size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.m)
}

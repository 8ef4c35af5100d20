// Package ratelimit keeps one token bucket per caller key.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const idleTTL = 10 * time.Minute

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Keyed hands out a token bucket per key and forgets keys that go idle.
type Keyed struct {
	limit rate.Limit
	burst int

	mu        sync.Mutex
	entries   map[string]*entry
	lastPrune time.Time
}

// PerMinute allows n events per minute per key with a burst of n.
func PerMinute(n int) *Keyed {
	if n <= 0 {
		return nil
	}
	return New(rate.Every(time.Minute/time.Duration(n)), n)
}

func New(limit rate.Limit, burst int) *Keyed {
	return &Keyed{limit: limit, burst: burst, entries: make(map[string]*entry)}
}

// Allow reports whether key may proceed now. A nil Keyed allows everything.
func (k *Keyed) Allow(key string) bool {
	if k == nil {
		return true
	}
	now := time.Now()
	k.mu.Lock()
	defer k.mu.Unlock()

	if now.Sub(k.lastPrune) > idleTTL {
		for id, e := range k.entries {
			if now.Sub(e.lastSeen) > idleTTL {
				delete(k.entries, id)
			}
		}
		k.lastPrune = now
	}

	e, ok := k.entries[key]
	if !ok {
		e = &entry{limiter: rate.NewLimiter(k.limit, k.burst)}
		k.entries[key] = e
	}
	e.lastSeen = now
	return e.limiter.AllowN(now, 1)
}

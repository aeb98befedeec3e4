// Package ratelimit bounds how often a single actor can hit the LLM
// path: at most max requests within a sliding window.
package ratelimit

import (
	"sync"
	"time"
)

// Limiter tracks request timestamps per actor. Safe for concurrent
// use.
type Limiter struct {
	mu     sync.Mutex
	hits   map[string][]time.Time
	max    int
	window time.Duration
	now    func() time.Time
}

// New creates a Limiter allowing max requests per window.
func New(max int, window time.Duration) *Limiter {
	return &Limiter{
		hits:   make(map[string][]time.Time),
		max:    max,
		window: window,
		now:    time.Now,
	}
}

// Allow records a request for actor and reports whether it is within
// the limit. Denied requests are not recorded, so a throttled actor
// recovers as soon as old requests age out.
func (l *Limiter) Allow(actor string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	recent := l.prune(actor, now)
	if len(recent) >= l.max {
		return false
	}
	l.hits[actor] = append(recent, now)
	return true
}

// Remaining reports how many requests actor has left in the current
// window.
func (l *Limiter) Remaining(actor string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	left := l.max - len(l.prune(actor, l.now()))
	if left < 0 {
		return 0
	}
	return left
}

// prune drops entries older than the window and stores the survivors
// back. Caller holds the lock.
func (l *Limiter) prune(actor string, now time.Time) []time.Time {
	kept := l.hits[actor][:0]
	for _, t := range l.hits[actor] {
		if now.Sub(t) < l.window {
			kept = append(kept, t)
		}
	}
	if len(kept) == 0 {
		delete(l.hits, actor)
		return nil
	}
	l.hits[actor] = kept
	return kept
}

package routing

import (
	"sync"

	"golang.org/x/time/rate"
)

// Limiter throttles how often each agent can receive a new assignment.
// One token bucket per agent id, created on first sight. A zero rate
// disables limiting entirely.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*rate.Limiter
	r       rate.Limit
	b       int
}

// NewLimiter creates a per-agent limiter allowing perSecond assignments
// with the given burst.
func NewLimiter(perSecond float64, burst int) *Limiter {
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{
		buckets: make(map[string]*rate.Limiter),
		r:       rate.Limit(perSecond),
		b:       burst,
	}
}

func (l *Limiter) bucket(agentID string) *rate.Limiter {
	if lim, ok := l.buckets[agentID]; ok {
		return lim
	}
	lim := rate.NewLimiter(l.r, l.b)
	l.buckets[agentID] = lim
	return lim
}

// RateLimited reports whether the agent has no token available right now.
// It does not consume a token; Allow does that on actual assignment.
func (l *Limiter) RateLimited(agentID string) bool {
	if l.r <= 0 {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.bucket(agentID).Tokens() < 1
}

// Allow consumes one token for the agent. Called when an assignment is
// actually made.
func (l *Limiter) Allow(agentID string) bool {
	if l.r <= 0 {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.bucket(agentID).Allow()
}

// Forget drops the agent's bucket, releasing its state after disconnect.
func (l *Limiter) Forget(agentID string) {
	l.mu.Lock()
	delete(l.buckets, agentID)
	l.mu.Unlock()
}

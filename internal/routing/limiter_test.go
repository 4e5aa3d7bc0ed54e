package routing

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLimiterDisabledByZeroRate(t *testing.T) {
	l := NewLimiter(0, 0)
	for i := 0; i < 100; i++ {
		assert.False(t, l.RateLimited("agent-1"))
		assert.True(t, l.Allow("agent-1"))
	}
}

func TestLimiterExhaustsBurst(t *testing.T) {
	l := NewLimiter(0.001, 2)

	assert.False(t, l.RateLimited("agent-1"))
	assert.True(t, l.Allow("agent-1"))
	assert.True(t, l.Allow("agent-1"))

	// Burst spent; effectively no refill at this rate.
	assert.True(t, l.RateLimited("agent-1"))
	assert.False(t, l.Allow("agent-1"))
}

func TestLimiterIsPerAgent(t *testing.T) {
	l := NewLimiter(0.001, 1)

	assert.True(t, l.Allow("agent-1"))
	assert.True(t, l.RateLimited("agent-1"))
	assert.False(t, l.RateLimited("agent-2"))
}

func TestLimiterRateLimitedDoesNotConsume(t *testing.T) {
	l := NewLimiter(0.001, 1)

	for i := 0; i < 10; i++ {
		assert.False(t, l.RateLimited("agent-1"))
	}
	// The checks above must not have spent the single token.
	assert.True(t, l.Allow("agent-1"))
}

func TestLimiterForget(t *testing.T) {
	l := NewLimiter(0.001, 1)
	assert.True(t, l.Allow("agent-1"))
	assert.True(t, l.RateLimited("agent-1"))

	l.Forget("agent-1")
	assert.False(t, l.RateLimited("agent-1"))
}

package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiterWindow(t *testing.T) {
	rl := NewRateLimiter(2, 50*time.Millisecond)
	assert.True(t, rl.Allow("s1"))
	assert.True(t, rl.Allow("s1"))
	assert.False(t, rl.Allow("s1"))
	assert.True(t, rl.Allow("s2"), "limits are per session")

	assert.Eventually(t, func() bool { return rl.Allow("s1") }, time.Second, 10*time.Millisecond)

	rl.Forget("s1")
	assert.True(t, rl.Allow("s1"))
}

func TestRateLimiterDisabled(t *testing.T) {
	var nilLimiter *RateLimiter
	assert.True(t, nilLimiter.Allow("s1"))

	rl := NewRateLimiter(0, time.Second)
	for range 100 {
		assert.True(t, rl.Allow("s1"))
	}
}

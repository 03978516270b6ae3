package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLimiter_AllowsWithinLimit(t *testing.T) {
	l := NewLimiter(&Config{
		Enabled:       true,
		DefaultLimit:  3,
		DefaultWindow: time.Minute,
	})
	defer l.Stop()

	for i := 0; i < 3; i++ {
		allowed, _ := l.Allow("1.2.3.4", "/api/thing", "GET")
		assert.True(t, allowed, "request %d", i)
	}
	allowed, info := l.Allow("1.2.3.4", "/api/thing", "GET")
	assert.False(t, allowed)
	assert.Equal(t, 3, info.Limit)
	assert.Greater(t, info.RetryAfter, time.Duration(0))
}

func TestLimiter_ClientsAreIndependent(t *testing.T) {
	l := NewLimiter(&Config{Enabled: true, DefaultLimit: 1, DefaultWindow: time.Minute})
	defer l.Stop()

	allowed, _ := l.Allow("a", "/x", "GET")
	assert.True(t, allowed)
	allowed, _ = l.Allow("a", "/x", "GET")
	assert.False(t, allowed)

	allowed, _ = l.Allow("b", "/x", "GET")
	assert.True(t, allowed, "a's exhaustion must not affect b")
}

func TestLimiter_RuleOverridesDefault(t *testing.T) {
	l := NewLimiter(&Config{
		Enabled:       true,
		DefaultLimit:  100,
		DefaultWindow: time.Minute,
		Rules: []Rule{
			{PathPrefix: "/api/analyses", Method: "POST", Limit: 1, Window: time.Minute},
		},
	})
	defer l.Stop()

	allowed, _ := l.Allow("c", "/api/analyses", "POST")
	assert.True(t, allowed)
	allowed, _ = l.Allow("c", "/api/analyses", "POST")
	assert.False(t, allowed)

	// GET on the same path uses the default limit.
	allowed, _ = l.Allow("c", "/api/analyses", "GET")
	assert.True(t, allowed)
}

func TestLimiter_UnlimitedRule(t *testing.T) {
	l := NewLimiter(DefaultConfig())
	defer l.Stop()

	for i := 0; i < 500; i++ {
		allowed, _ := l.Allow("probe", "/health", "GET")
		assert.True(t, allowed)
	}
}

func TestLimiter_Disabled(t *testing.T) {
	l := NewLimiter(&Config{Enabled: false, DefaultLimit: 1, DefaultWindow: time.Minute})
	defer l.Stop()

	for i := 0; i < 10; i++ {
		allowed, _ := l.Allow("d", "/x", "GET")
		assert.True(t, allowed)
	}
}

func TestCleanupDropsIdleBuckets(t *testing.T) {
	l := NewLimiter(&Config{Enabled: true, DefaultLimit: 1, DefaultWindow: time.Minute})
	defer l.Stop()

	l.Allow("e", "/x", "GET")
	assert.Len(t, l.buckets, 1)

	l.cleanup(time.Now().Add(time.Second))
	assert.Empty(t, l.buckets)
}

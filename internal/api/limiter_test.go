package api

import (
	"testing"

	"carrental/internal/config"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiterDisabled(t *testing.T) {
	l := newRateLimiter(config.APIRateLimitConfig{})
	for i := 0; i < 100; i++ {
		assert.True(t, l.allow("k"))
	}
}

func TestRateLimiterPerKeyBurst(t *testing.T) {
	l := newRateLimiter(config.APIRateLimitConfig{RPS: 0.001, Burst: 3})
	for i := 0; i < 3; i++ {
		assert.True(t, l.allow("a"))
	}
	assert.False(t, l.allow("a"))
	assert.True(t, l.allow("b"))
	assert.Same(t, l.get("a"), l.get("a"))
}

func TestRateLimiterDefaultBurst(t *testing.T) {
	l := newRateLimiter(config.APIRateLimitConfig{RPS: 0.001})
	for i := 0; i < defaultBurst; i++ {
		assert.True(t, l.allow("a"))
	}
	assert.False(t, l.allow("a"))
}

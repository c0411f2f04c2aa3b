package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"carrental/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryAvailabilityCache(t *testing.T) {
	cache := NewMemoryAvailabilityCache(time.Minute)
	ctx := context.Background()
	cars := []models.CarSummary{{ID: 7, Brand: "Fiat"}}

	_, ok, err := cache.GetAvailableCars(ctx, slotStart, slotEnd)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, cache.SetAvailableCars(ctx, slotStart, slotEnd, cars, time.Minute))
	got, ok, err := cache.GetAvailableCars(ctx, slotStart.In(time.FixedZone("X", 3600)), slotEnd)
	require.NoError(t, err)
	assert.True(t, ok, "keys are normalized to UTC")
	assert.Equal(t, cars, got)

	require.NoError(t, cache.Invalidate(ctx))
	_, ok, _ = cache.GetAvailableCars(ctx, slotStart, slotEnd)
	assert.False(t, ok)
}

func TestMemoryAvailabilityCache_Expiry(t *testing.T) {
	cache := NewMemoryAvailabilityCache(20 * time.Millisecond)
	ctx := context.Background()

	require.NoError(t, cache.SetAvailableCars(ctx, slotStart, slotEnd, []models.CarSummary{{ID: 1}}, 0))
	assert.Eventually(t, func() bool {
		_, ok, _ := cache.GetAvailableCars(ctx, slotStart, slotEnd)
		return !ok
	}, time.Second, 10*time.Millisecond)
}

func TestMemoryRateLimit(t *testing.T) {
	cache := NewMemoryAvailabilityCache(time.Minute)
	ctx := context.Background()

	allowed, _ := cache.CheckRateLimit(ctx, "k", 2, 50*time.Millisecond)
	assert.True(t, allowed)
	allowed, _ = cache.CheckRateLimit(ctx, "k", 2, 50*time.Millisecond)
	assert.True(t, allowed)
	allowed, _ = cache.CheckRateLimit(ctx, "k", 2, 50*time.Millisecond)
	assert.False(t, allowed)

	other, _ := cache.CheckRateLimit(ctx, "other", 2, 50*time.Millisecond)
	assert.True(t, other)

	time.Sleep(60 * time.Millisecond)
	allowed, _ = cache.CheckRateLimit(ctx, "k", 2, 50*time.Millisecond)
	assert.True(t, allowed)
}

func TestMemoryRateLimit_BoundedKeys(t *testing.T) {
	cache := NewMemoryAvailabilityCache(time.Minute)
	now := time.Date(2030, 6, 1, 10, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return now }
	ctx := context.Background()

	allowed, _ := cache.CheckRateLimit(ctx, "first", 1, time.Hour)
	assert.True(t, allowed)
	allowed, _ = cache.CheckRateLimit(ctx, "first", 1, time.Hour)
	assert.False(t, allowed)

	for i := 0; i < rateLimitKeys+100; i++ {
		_, err := cache.CheckRateLimit(ctx, fmt.Sprintf("guest-%d", i), 1, time.Hour)
		require.NoError(t, err)
	}
	assert.Equal(t, rateLimitKeys, cache.rateLimits.Len())

	// the oldest key was evicted, so its window starts over
	allowed, _ = cache.CheckRateLimit(ctx, "first", 1, time.Hour)
	assert.True(t, allowed)
}

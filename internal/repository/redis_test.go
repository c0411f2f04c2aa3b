package repository

import (
	"context"
	"testing"
	"time"

	"carrental/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	slotStart = time.Date(2030, 6, 1, 10, 0, 0, 0, time.UTC)
	slotEnd   = slotStart.Add(24 * time.Hour)
)

func TestRedisAvailabilityCache(t *testing.T) {
	s, err := miniredis.Run()
	require.NoError(t, err)
	defer s.Close()

	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	defer client.Close()

	cache := NewRedisAvailabilityCache(client)
	ctx := context.Background()
	cars := []models.CarSummary{{ID: 1, Brand: "Skoda", LicencePlate: "AB-100", DayRate: 10000}}

	t.Run("Miss", func(t *testing.T) {
		got, ok, err := cache.GetAvailableCars(ctx, slotStart, slotEnd)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Nil(t, got)
	})

	t.Run("SetAndGet", func(t *testing.T) {
		require.NoError(t, cache.SetAvailableCars(ctx, slotStart, slotEnd, cars, time.Minute))

		got, ok, err := cache.GetAvailableCars(ctx, slotStart, slotEnd)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, cars, got)
	})

	t.Run("EmptyResultIsCached", func(t *testing.T) {
		later := slotEnd.Add(time.Hour)
		require.NoError(t, cache.SetAvailableCars(ctx, later, later.Add(time.Hour), nil, time.Minute))
		got, ok, err := cache.GetAvailableCars(ctx, later, later.Add(time.Hour))
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Empty(t, got)
	})

	t.Run("InvalidateBumpsGeneration", func(t *testing.T) {
		require.NoError(t, cache.Invalidate(ctx))

		_, ok, err := cache.GetAvailableCars(ctx, slotStart, slotEnd)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("TTL", func(t *testing.T) {
		require.NoError(t, cache.SetAvailableCars(ctx, slotStart, slotEnd, cars, time.Minute))
		s.FastForward(2 * time.Minute)
		_, ok, err := cache.GetAvailableCars(ctx, slotStart, slotEnd)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("RateLimit", func(t *testing.T) {
		key := "guest:a@example.com"
		for i := 0; i < 3; i++ {
			allowed, err := cache.CheckRateLimit(ctx, key, 3, time.Minute)
			require.NoError(t, err)
			assert.True(t, allowed)
		}
		allowed, err := cache.CheckRateLimit(ctx, key, 3, time.Minute)
		require.NoError(t, err)
		assert.False(t, allowed)

		s.FastForward(2 * time.Minute)
		allowed, err = cache.CheckRateLimit(ctx, key, 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, allowed)
	})

	t.Run("Ping", func(t *testing.T) {
		assert.NoError(t, Ping(ctx, client))
	})
}

func TestRedisAvailabilityCache_ServerDown(t *testing.T) {
	s, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: s.Addr(), MaxRetries: -1})
	defer client.Close()
	s.Close()

	cache := NewRedisAvailabilityCache(client)
	_, _, err = cache.GetAvailableCars(context.Background(), slotStart, slotEnd)
	assert.Error(t, err)
	assert.Error(t, cache.Invalidate(context.Background()))
}

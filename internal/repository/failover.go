package repository

import (
	"context"
	"sync/atomic"
	"time"

	"carrental/internal/domain"
	"carrental/internal/models"

	"github.com/rs/zerolog"
)

const recoveryInterval = time.Minute

// FailoverAvailabilityCache prefers the primary cache and switches to the fallback on error.
// The primary is retried once recoveryInterval has passed since the last failure.
type FailoverAvailabilityCache struct {
	primary   domain.AvailabilityCache
	fallback  domain.AvailabilityCache
	logger    *zerolog.Logger
	isDown    atomic.Bool
	lastCheck atomic.Int64
	// set when the primary missed an invalidation and may hold stale entries
	stale atomic.Bool
	now   func() time.Time
}

func NewFailoverAvailabilityCache(primary, fallback domain.AvailabilityCache, logger *zerolog.Logger) *FailoverAvailabilityCache {
	return &FailoverAvailabilityCache{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
		now:      time.Now,
	}
}

// usePrimary reports whether the next call should go to the primary.
func (r *FailoverAvailabilityCache) usePrimary() bool {
	if !r.isDown.Load() {
		return true
	}
	return r.now().Sub(time.Unix(0, r.lastCheck.Load())) > recoveryInterval
}

// observe records the outcome of a primary call.
func (r *FailoverAvailabilityCache) observe(err error) bool {
	if err == nil {
		if r.isDown.Swap(false) {
			r.logger.Info().Msg("Primary availability cache recovered")
		}
		return true
	}
	if !r.isDown.Swap(true) {
		r.logger.Error().Err(err).Msg("Primary availability cache failed, falling back to memory")
	}
	r.lastCheck.Store(r.now().UnixNano())
	return false
}

func (r *FailoverAvailabilityCache) flushIfStale(ctx context.Context) error {
	if !r.stale.Load() {
		return nil
	}
	if err := r.primary.Invalidate(ctx); err != nil {
		return err
	}
	r.stale.Store(false)
	return nil
}

func (r *FailoverAvailabilityCache) GetAvailableCars(ctx context.Context, start, end time.Time) ([]models.CarSummary, bool, error) {
	if r.usePrimary() && r.observe(r.flushIfStale(ctx)) {
		cars, ok, err := r.primary.GetAvailableCars(ctx, start, end)
		if r.observe(err) {
			return cars, ok, nil
		}
	}
	return r.fallback.GetAvailableCars(ctx, start, end)
}

func (r *FailoverAvailabilityCache) SetAvailableCars(ctx context.Context, start, end time.Time, cars []models.CarSummary, ttl time.Duration) error {
	if r.usePrimary() && r.observe(r.flushIfStale(ctx)) {
		if r.observe(r.primary.SetAvailableCars(ctx, start, end, cars, ttl)) {
			return nil
		}
	}
	return r.fallback.SetAvailableCars(ctx, start, end, cars, ttl)
}

// Invalidate always clears both sides so neither serves results from before the mutation.
func (r *FailoverAvailabilityCache) Invalidate(ctx context.Context) error {
	fallbackErr := r.fallback.Invalidate(ctx)
	if err := r.primary.Invalidate(ctx); err != nil {
		r.stale.Store(true)
		r.observe(err)
	}
	return fallbackErr
}

func (r *FailoverAvailabilityCache) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if r.usePrimary() {
		allowed, err := r.primary.CheckRateLimit(ctx, key, limit, window)
		if r.observe(err) {
			return allowed, nil
		}
	}
	return r.fallback.CheckRateLimit(ctx, key, limit, window)
}

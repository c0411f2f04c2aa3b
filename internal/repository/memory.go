package repository

import (
	"context"
	"sync"
	"time"

	"carrental/internal/models"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	memoryCacheSize = 512
	// rateLimitKeys bounds the tracked rate-limit keys; the least recently seen key is dropped first.
	rateLimitKeys = 4096
)

// MemoryAvailabilityCache is the in-process fallback. Entries share one TTL set at construction.
type MemoryAvailabilityCache struct {
	entries    *expirable.LRU[string, []models.CarSummary]
	rateLimits *lru.Cache[string, rateLimitEntry]
	mu         sync.Mutex
	now        func() time.Time
}

func NewMemoryAvailabilityCache(ttl time.Duration) *MemoryAvailabilityCache {
	limits, err := lru.New[string, rateLimitEntry](rateLimitKeys)
	if err != nil {
		panic(err)
	}
	return &MemoryAvailabilityCache{
		entries:    expirable.NewLRU[string, []models.CarSummary](memoryCacheSize, nil, ttl),
		rateLimits: limits,
		now:        time.Now,
	}
}

func memoryKey(start, end time.Time) string {
	return start.UTC().Format(timeKeyLayout) + "|" + end.UTC().Format(timeKeyLayout)
}

func (r *MemoryAvailabilityCache) GetAvailableCars(_ context.Context, start, end time.Time) ([]models.CarSummary, bool, error) {
	cars, ok := r.entries.Get(memoryKey(start, end))
	return cars, ok, nil
}

func (r *MemoryAvailabilityCache) SetAvailableCars(_ context.Context, start, end time.Time, cars []models.CarSummary, _ time.Duration) error {
	r.entries.Add(memoryKey(start, end), cars)
	return nil
}

func (r *MemoryAvailabilityCache) Invalidate(context.Context) error {
	r.entries.Purge()
	return nil
}

type rateLimitEntry struct {
	count     int
	expiresAt time.Time
}

func (r *MemoryAvailabilityCache) CheckRateLimit(_ context.Context, key string, limit int, window time.Duration) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	entry, ok := r.rateLimits.Get(key)
	if !ok || now.After(entry.expiresAt) {
		entry = rateLimitEntry{expiresAt: now.Add(window)}
	}
	entry.count++

	r.rateLimits.Add(key, entry)
	return entry.count <= limit, nil
}

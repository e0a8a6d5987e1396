package retrieval

import (
	"context"
	"encoding/json"
	"time"

	"github.com/carmarket/comparables-engine/internal/cache"
	"github.com/carmarket/comparables-engine/internal/observability"
	"github.com/carmarket/comparables-engine/internal/storage"
)

// CohortCache holds the make/model recall universes so repeat lookups for
// popular vehicles skip the store. Values round-trip through JSON, so every
// read hands out fresh copies.
type CohortCache struct {
	client cache.Client
	logger *observability.Logger
	ttl    time.Duration
}

// NewCohortCache creates a cohort cache. A nil client or non-positive TTL
// disables it.
func NewCohortCache(client cache.Client, logger *observability.Logger, ttl time.Duration) *CohortCache {
	return &CohortCache{client: client, logger: logger, ttl: ttl}
}

// Enabled reports whether lookups can ever hit.
func (c *CohortCache) Enabled() bool {
	return c != nil && c.client != nil && c.ttl > 0
}

type cachedCohort struct {
	Rows      []*storage.Listing `json:"rows"`
	CachedAt  time.Time          `json:"cached_at"`
	ExpiresAt time.Time          `json:"expires_at"`
}

// Get returns the cached universe for a folded make/model at a given
// candidate limit.
func (c *CohortCache) Get(ctx context.Context, make, model string, limit int) ([]*storage.Listing, bool) {
	if !c.Enabled() {
		return nil, false
	}

	key := cache.CohortKey(make, model, limit)
	data, err := c.client.Get(ctx, key)
	if err != nil {
		if err != cache.ErrCacheMiss {
			c.logger.Debug().Err(err).Str("key", key).Msg("Cohort cache get error")
		}
		return nil, false
	}

	var cached cachedCohort
	if err := json.Unmarshal(data, &cached); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("Failed to unmarshal cached cohort")
		return nil, false
	}
	if time.Now().After(cached.ExpiresAt) {
		return nil, false
	}

	c.logger.Debug().
		Str("key", key).
		Int("row_count", len(cached.Rows)).
		Float64("age_s", time.Since(cached.CachedAt).Seconds()).
		Msg("Cohort cache hit")
	return cached.Rows, true
}

// Set caches one universe.
func (c *CohortCache) Set(ctx context.Context, make, model string, limit int, rows []*storage.Listing) {
	if !c.Enabled() {
		return
	}

	key := cache.CohortKey(make, model, limit)
	cached := cachedCohort{
		Rows:      rows,
		CachedAt:  time.Now(),
		ExpiresAt: time.Now().Add(c.ttl),
	}

	data, err := json.Marshal(cached)
	if err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("Failed to marshal cohort")
		return
	}
	if err := c.client.Set(ctx, key, data, c.ttl); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("Failed to cache cohort")
		return
	}
	c.logger.Debug().Str("key", key).Int("row_count", len(rows)).Msg("Cached cohort")
}

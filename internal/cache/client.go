// Package cache provides the caching infrastructure behind the cohort
// universe cache.
package cache

import (
	"context"
	"errors"
	"strconv"
	"time"
)

// ErrCacheMiss indicates a cache miss.
var ErrCacheMiss = errors.New("cache miss")

// Client defines the cache interface.
type Client interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	DeleteByPrefix(ctx context.Context, prefix string) error
	Close() error
}

// Key joins components into a cache key.
func Key(parts ...string) string {
	key := ""
	for i, part := range parts {
		if i > 0 {
			key += ":"
		}
		key += part
	}
	return key
}

// CohortKey builds the key of one make/model recall universe. Callers pass
// the folded make and model so spelling variants share an entry.
func CohortKey(make, model string, limit int) string {
	return Key("cohort", make, model, strconv.Itoa(limit))
}

package dashboard

import (
	"context"
	"time"

	"invengine/internal/core/entity"
)

// Entry is what the cache stores per (tenant, scope, period): the
// computed metrics plus the bookkeeping the Service needs to decide
// whether a hit can be served as-is (spec §4.4 "Results are cached
// with an expiresAtUtc ... Stale entries are returned transparently
// only if marked non-stale; otherwise recomputed on demand").
type Entry struct {
	Metrics       entity.DashboardMetrics
	ComputedAtUTC time.Time
	ExpiresAtUTC  time.Time
	IsStale       bool
}

// Fresh reports whether this entry can be served without recomputation.
func (e Entry) Fresh(now time.Time) bool {
	return !e.IsStale && now.Before(e.ExpiresAtUTC)
}

// Cache is the storage boundary for cached dashboard entries. The
// Redis-backed adapter (internal/infrastructure/cache) implements
// this; tests use an in-process map.
type Cache interface {
	Get(ctx context.Context, key string) (*Entry, error)
	Set(ctx context.Context, key string, entry Entry, ttl time.Duration) error
	// MarkStale flags entries as stale without evicting them, so a
	// concurrent reader still gets a (stale, About-to-be-recomputed)
	// value rather than a cache-miss stampede.
	MarkStale(ctx context.Context, keys ...string) error
}

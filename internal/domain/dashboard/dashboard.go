// Package dashboard implements the read-model cache for dashboard
// metrics (spec §4.4): a compute function over the live ledger
// projection, cached per (tenant, scope, period) with TTL and an
// explicit staleness flag, invalidated by stock and reservation
// operations and optionally pre-warmed by a background refresher.
// Grounded on the ledger package's Service shape; the cache storage
// boundary is grounded on duclm31099-bookstore-backend's
// pkg/cache.Cache interface and its Redis adapter.
package dashboard

import (
	"context"
	"fmt"
	"time"

	"invengine/internal/core/entity"
	"invengine/internal/core/id"
	"invengine/internal/core/tenantctx"
	"invengine/pkg/logger"
)

// DefaultExpiringWindow is how far out an item's expiryDate counts as
// "expiring soon" for the expiring-variant counter.
const DefaultExpiringWindow = 7 * 24 * time.Hour

// DefaultTTL is how long a freshly computed entry is considered fresh
// before the next read recomputes it, absent an explicit invalidation.
const DefaultTTL = 5 * time.Minute

// Service computes and serves cached DashboardMetrics.
type Service struct {
	repo   Repository
	cache  Cache
	ttl    time.Duration
	window time.Duration
	now    func() time.Time
}

// NewService constructs a dashboard Service with default TTL and
// expiring-soon window.
func NewService(repo Repository, cache Cache) *Service {
	return &Service{repo: repo, cache: cache, ttl: DefaultTTL, window: DefaultExpiringWindow, now: time.Now}
}

func (s *Service) clock() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now()
}

func cacheKey(tenant id.TenantID, scope entity.DashboardScope, period entity.Period) string {
	return fmt.Sprintf("dashboard:%s:%s:%s", tenant.String(), scope.Key(), period.Key())
}

// Get returns the metrics for (tenant, scope, period), serving a fresh
// cache hit transparently and recomputing otherwise (spec §4.4
// "Population").
func (s *Service) Get(ctx context.Context, scope entity.DashboardScope, period entity.Period) (entity.DashboardMetrics, error) {
	tc, err := tenantctx.From(ctx)
	if err != nil {
		return entity.DashboardMetrics{}, err
	}
	if err := tc.Validate(); err != nil {
		return entity.DashboardMetrics{}, err
	}

	key := cacheKey(tc.TenantID, scope, period)
	now := s.clock()

	if s.cache != nil {
		entry, err := s.cache.Get(ctx, key)
		if err != nil {
			logger.Warn(ctx, "dashboard cache read failed, recomputing", "key", key, "error", err)
		} else if entry != nil && entry.Fresh(now) {
			return entry.Metrics, nil
		}
	}

	metrics, err := s.compute(ctx, tc.TenantID, scope, period, now)
	if err != nil {
		return entity.DashboardMetrics{}, fmt.Errorf("compute dashboard metrics: %w", err)
	}

	if s.cache != nil && period.Kind != entity.PeriodCustom {
		entry := Entry{Metrics: metrics, ComputedAtUTC: now, ExpiresAtUTC: now.Add(s.ttl), IsStale: false}
		if err := s.cache.Set(ctx, key, entry, s.ttl); err != nil {
			logger.Warn(ctx, "dashboard cache write failed", "key", key, "error", err)
		}
	}
	return metrics, nil
}

// Invalidate marks every named-period cache entry intersecting the
// given (tenant, warehouse) as stale (spec §4.4 "Invalidation"). The
// global scope is always included since a warehouse-scoped change also
// affects the tenant-wide rollup. Custom periods are never cached so
// they need no invalidation entry.
func (s *Service) Invalidate(ctx context.Context, tenant id.TenantID, warehouse *id.WarehouseID) error {
	if s.cache == nil {
		return nil
	}
	scopes := []entity.DashboardScope{entity.GlobalScope()}
	if warehouse != nil {
		scopes = append(scopes, entity.WarehouseScope(*warehouse))
	}
	periods := []entity.Period{entity.HourPeriod(), entity.DayPeriod(), entity.WeekPeriod(), entity.MonthPeriod()}

	keys := make([]string, 0, len(scopes)*len(periods))
	for _, scope := range scopes {
		for _, period := range periods {
			keys = append(keys, cacheKey(tenant, scope, period))
		}
	}
	if err := s.cache.MarkStale(ctx, keys...); err != nil {
		return fmt.Errorf("mark dashboard cache stale: %w", err)
	}
	return nil
}

func (s *Service) compute(ctx context.Context, tenant id.TenantID, scope entity.DashboardScope, period entity.Period, now time.Time) (entity.DashboardMetrics, error) {
	items, err := s.repo.ListItems(ctx, tenant, scope)
	if err != nil {
		return entity.DashboardMetrics{}, fmt.Errorf("list items: %w", err)
	}

	metrics := entity.DashboardMetrics{
		TenantID:      tenant,
		Scope:         scope,
		Period:        period,
		ComputedAtUTC: now,
	}

	byWarehouse := make(map[id.WarehouseID]*entity.WarehouseBreakdown)
	for _, item := range items {
		metrics.TotalAvailableStock = metrics.TotalAvailableStock.Add(item.Available())
		metrics.TotalReservedStock = metrics.TotalReservedStock.Add(item.ReservedStock)

		if item.IsLowStock() {
			metrics.LowStockVariantCount++
		}
		if item.IsOutOfStock() {
			metrics.OutOfStockVariantCount++
		}
		if item.ExpiryDate != nil {
			if item.ExpiryDate.Before(now) {
				metrics.ExpiredVariantCount++
			} else if item.ExpiryDate.Before(now.Add(s.window)) {
				metrics.ExpiringVariantCount++
			}
		}

		wb, ok := byWarehouse[item.WarehouseID]
		if !ok {
			wb = &entity.WarehouseBreakdown{WarehouseID: item.WarehouseID}
			byWarehouse[item.WarehouseID] = wb
		}
		wb.AvailableStock = wb.AvailableStock.Add(item.Available())
		wb.ReservedStock = wb.ReservedStock.Add(item.ReservedStock)
		if item.IsLowStock() {
			wb.LowStockVariantCount++
		}
		if item.IsOutOfStock() {
			wb.OutOfStockVariantCount++
		}
	}
	for _, wb := range byWarehouse {
		metrics.Warehouses = append(metrics.Warehouses, *wb)
	}

	start, end := period.Bounds(now)
	rates, err := s.repo.MovementRates(ctx, tenant, scope, start, end)
	if err != nil {
		return entity.DashboardMetrics{}, fmt.Errorf("movement rates: %w", err)
	}
	metrics.Rates = rates

	return metrics, nil
}

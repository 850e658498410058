package dashboard_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"invengine/internal/core/entity"
	"invengine/internal/core/id"
	"invengine/internal/core/tenantctx"
	"invengine/internal/core/types"
	"invengine/internal/domain/dashboard"
)

type memoryCache struct {
	mu      sync.Mutex
	entries map[string]dashboard.Entry
}

func newMemoryCache() *memoryCache {
	return &memoryCache{entries: make(map[string]dashboard.Entry)}
}

func (c *memoryCache) Get(_ context.Context, key string) (*dashboard.Entry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (c *memoryCache) Set(_ context.Context, key string, entry dashboard.Entry, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry
	return nil
}

func (c *memoryCache) MarkStale(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		if e, ok := c.entries[k]; ok {
			e.IsStale = true
			c.entries[k] = e
		}
	}
	return nil
}

var _ dashboard.Cache = (*memoryCache)(nil)

type fakeRepository struct {
	items        []entity.InventoryItem
	rates        entity.MovementRates
	computeCalls int
}

func (r *fakeRepository) ListItems(context.Context, id.TenantID, entity.DashboardScope) ([]entity.InventoryItem, error) {
	r.computeCalls++
	return r.items, nil
}

func (r *fakeRepository) MovementRates(context.Context, id.TenantID, entity.DashboardScope, time.Time, time.Time) (entity.MovementRates, error) {
	return r.rates, nil
}

var _ dashboard.Repository = (*fakeRepository)(nil)

func testContext(tenant id.TenantID) context.Context {
	return tenantctx.With(context.Background(), tenantctx.Context{TenantID: tenant, ActorID: id.NewActorID()})
}

func TestGetComputesOnMiss(t *testing.T) {
	tenant := id.NewTenantID()
	warehouse := id.NewWarehouseID()
	threshold := types.NewQuantityFromInt64(5)
	repo := &fakeRepository{
		items: []entity.InventoryItem{
			{TenantID: tenant, WarehouseID: warehouse, TotalStock: types.NewQuantityFromInt64(100), ReservedStock: types.NewQuantityFromInt64(10), LowStockThreshold: &threshold},
		},
	}
	cache := newMemoryCache()
	svc := dashboard.NewService(repo, cache)

	metrics, err := svc.Get(testContext(tenant), entity.GlobalScope(), entity.DayPeriod())
	require.NoError(t, err)
	assert.True(t, metrics.TotalAvailableStock.Equal(types.NewQuantityFromInt64(90)))
	assert.True(t, metrics.TotalReservedStock.Equal(types.NewQuantityFromInt64(10)))
	assert.Equal(t, 1, repo.computeCalls)
}

func TestGetServesFreshCacheHitWithoutRecompute(t *testing.T) {
	tenant := id.NewTenantID()
	repo := &fakeRepository{items: []entity.InventoryItem{{TenantID: tenant, TotalStock: types.NewQuantityFromInt64(10)}}}
	cache := newMemoryCache()
	svc := dashboard.NewService(repo, cache)
	ctx := testContext(tenant)

	_, err := svc.Get(ctx, entity.GlobalScope(), entity.DayPeriod())
	require.NoError(t, err)
	assert.Equal(t, 1, repo.computeCalls)

	_, err = svc.Get(ctx, entity.GlobalScope(), entity.DayPeriod())
	require.NoError(t, err)
	assert.Equal(t, 1, repo.computeCalls, "second read should be served from cache")
}

func TestInvalidateForcesRecompute(t *testing.T) {
	tenant := id.NewTenantID()
	warehouse := id.NewWarehouseID()
	repo := &fakeRepository{items: []entity.InventoryItem{{TenantID: tenant, WarehouseID: warehouse, TotalStock: types.NewQuantityFromInt64(10)}}}
	cache := newMemoryCache()
	svc := dashboard.NewService(repo, cache)
	ctx := testContext(tenant)

	_, err := svc.Get(ctx, entity.GlobalScope(), entity.DayPeriod())
	require.NoError(t, err)
	assert.Equal(t, 1, repo.computeCalls)

	require.NoError(t, svc.Invalidate(ctx, tenant, &warehouse))

	_, err = svc.Get(ctx, entity.GlobalScope(), entity.DayPeriod())
	require.NoError(t, err)
	assert.Equal(t, 2, repo.computeCalls, "invalidated entry should recompute on next read")
}

func TestOutOfStockAndExpiringCounters(t *testing.T) {
	tenant := id.NewTenantID()
	now := time.Now()
	soonExpiry := now.Add(2 * 24 * time.Hour)
	pastExpiry := now.Add(-time.Hour)
	repo := &fakeRepository{
		items: []entity.InventoryItem{
			{TenantID: tenant, TotalStock: types.Zero, ReservedStock: types.Zero},
			{TenantID: tenant, TotalStock: types.NewQuantityFromInt64(5), ExpiryDate: &soonExpiry},
			{TenantID: tenant, TotalStock: types.NewQuantityFromInt64(5), ExpiryDate: &pastExpiry},
		},
	}
	cache := newMemoryCache()
	svc := dashboard.NewService(repo, cache)

	metrics, err := svc.Get(testContext(tenant), entity.GlobalScope(), entity.DayPeriod())
	require.NoError(t, err)
	assert.Equal(t, 1, metrics.OutOfStockVariantCount)
	assert.Equal(t, 1, metrics.ExpiringVariantCount)
	assert.Equal(t, 1, metrics.ExpiredVariantCount)
}

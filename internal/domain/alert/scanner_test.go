package alert_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"invengine/internal/core/entity"
	"invengine/internal/core/id"
	"invengine/internal/core/types"
	"invengine/internal/domain/alert"
)

type fakeItemLister struct {
	byTenant map[id.TenantID][]entity.InventoryItem
}

func (f *fakeItemLister) ListItems(_ context.Context, tenant id.TenantID, _ entity.DashboardScope) ([]entity.InventoryItem, error) {
	return f.byTenant[tenant], nil
}

type fakeReservationLister struct {
	byTenant map[id.TenantID][]entity.Reservation
}

func (f *fakeReservationLister) ListActive(_ context.Context, tenant id.TenantID) ([]entity.Reservation, error) {
	return f.byTenant[tenant], nil
}

type fakeTenantLister struct {
	tenants []id.TenantID
}

func (f *fakeTenantLister) ListActiveTenants(context.Context) ([]id.TenantID, error) {
	return f.tenants, nil
}

func TestScannerPublishesRaisedAlertsAcrossTenants(t *testing.T) {
	tenantA := id.NewTenantID()
	tenantB := id.NewTenantID()

	items := &fakeItemLister{byTenant: map[id.TenantID][]entity.InventoryItem{
		tenantA: {{TenantID: tenantA, VariantID: id.NewVariantID(), WarehouseID: id.NewWarehouseID()}},
		tenantB: {{TenantID: tenantB, VariantID: id.NewVariantID(), WarehouseID: id.NewWarehouseID(), TotalStock: types.NewQuantityFromInt64(500)}},
	}}
	reservations := &fakeReservationLister{byTenant: map[id.TenantID][]entity.Reservation{}}
	tenants := &fakeTenantLister{tenants: []id.TenantID{tenantA, tenantB}}

	var mu sync.Mutex
	var published []string
	publishFn := func(_ context.Context, group, kind string, payload any) {
		mu.Lock()
		defer mu.Unlock()
		published = append(published, kind)
	}

	det := alert.NewDetector()
	scanner := alert.NewScanner(det, items, reservations, tenants, publishFn).WithInterval(50 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	scanner.Run(ctx)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, published, "expected at least one alert published for the out-of-stock tenantA item")
	assert.Contains(t, published, string(entity.AlertOutOfStock))
}

func TestScannerRaisesReservationExpiringAlerts(t *testing.T) {
	tenant := id.NewTenantID()
	items := &fakeItemLister{byTenant: map[id.TenantID][]entity.InventoryItem{}}
	reservations := &fakeReservationLister{byTenant: map[id.TenantID][]entity.Reservation{
		tenant: {{
			TenantID: tenant, VariantID: id.NewVariantID(), WarehouseID: id.NewWarehouseID(),
			ID: id.NewReservationID(), Status: entity.ReservationActive,
			ExpiresAtUTC: time.Now().Add(30 * time.Minute),
		}},
	}}
	tenants := &fakeTenantLister{tenants: []id.TenantID{tenant}}

	var mu sync.Mutex
	var published []string
	publishFn := func(_ context.Context, _, kind string, _ any) {
		mu.Lock()
		defer mu.Unlock()
		published = append(published, kind)
	}

	det := alert.NewDetector(alert.WithReservationWindow(2 * time.Hour))
	scanner := alert.NewScanner(det, items, reservations, tenants, publishFn).WithInterval(50 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	scanner.Run(ctx)

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, published, string(entity.AlertReservationExpiring))
}

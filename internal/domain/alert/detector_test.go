package alert_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"invengine/internal/core/entity"
	"invengine/internal/core/id"
	"invengine/internal/core/tenantctx"
	"invengine/internal/core/types"
	"invengine/internal/domain/alert"
)

func testContext(tenant id.TenantID) context.Context {
	return tenantctx.With(context.Background(), tenantctx.Context{TenantID: tenant, ActorID: id.NewActorID()})
}

func TestEvaluateItemOutOfStock(t *testing.T) {
	det := alert.NewDetector()
	tenant := id.NewTenantID()
	item := entity.InventoryItem{
		TenantID:      tenant,
		VariantID:     id.NewVariantID(),
		WarehouseID:   id.NewWarehouseID(),
		TotalStock:    types.Zero,
		ReservedStock: types.Zero,
	}

	alerts, err := det.EvaluateItem(testContext(tenant), item)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, entity.AlertOutOfStock, alerts[0].Kind)
	assert.Equal(t, entity.SeverityCritical, alerts[0].Severity)
}

func TestEvaluateItemLowStock(t *testing.T) {
	det := alert.NewDetector()
	tenant := id.NewTenantID()
	threshold := types.NewQuantityFromInt64(10)
	item := entity.InventoryItem{
		TenantID:          tenant,
		VariantID:         id.NewVariantID(),
		WarehouseID:       id.NewWarehouseID(),
		TotalStock:        types.NewQuantityFromInt64(8),
		ReservedStock:     types.Zero,
		LowStockThreshold: &threshold,
	}

	alerts, err := det.EvaluateItem(testContext(tenant), item)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, entity.AlertLowStock, alerts[0].Kind)
}

func TestEvaluateItemHealthyStockRaisesNothing(t *testing.T) {
	det := alert.NewDetector()
	tenant := id.NewTenantID()
	threshold := types.NewQuantityFromInt64(10)
	item := entity.InventoryItem{
		TenantID:          tenant,
		VariantID:         id.NewVariantID(),
		WarehouseID:       id.NewWarehouseID(),
		TotalStock:        types.NewQuantityFromInt64(500),
		ReservedStock:     types.Zero,
		LowStockThreshold: &threshold,
	}

	alerts, err := det.EvaluateItem(testContext(tenant), item)
	require.NoError(t, err)
	assert.Empty(t, alerts)
}

func TestEvaluateItemExpiredAndExpiringSoon(t *testing.T) {
	det := alert.NewDetector(alert.WithExpiringWindow(7 * 24 * time.Hour))
	tenant := id.NewTenantID()

	past := time.Now().Add(-time.Hour)
	expiredItem := entity.InventoryItem{
		TenantID: tenant, VariantID: id.NewVariantID(), WarehouseID: id.NewWarehouseID(),
		TotalStock: types.NewQuantityFromInt64(50), ExpiryDate: &past,
	}
	alerts, err := det.EvaluateItem(testContext(tenant), expiredItem)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, entity.AlertExpired, alerts[0].Kind)

	soon := time.Now().Add(2 * 24 * time.Hour)
	soonItem := entity.InventoryItem{
		TenantID: tenant, VariantID: id.NewVariantID(), WarehouseID: id.NewWarehouseID(),
		TotalStock: types.NewQuantityFromInt64(50), ExpiryDate: &soon,
	}
	alerts, err = det.EvaluateItem(testContext(tenant), soonItem)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, entity.AlertExpiringSoon, alerts[0].Kind)

	far := time.Now().Add(60 * 24 * time.Hour)
	farItem := entity.InventoryItem{
		TenantID: tenant, VariantID: id.NewVariantID(), WarehouseID: id.NewWarehouseID(),
		TotalStock: types.NewQuantityFromInt64(50), ExpiryDate: &far,
	}
	alerts, err = det.EvaluateItem(testContext(tenant), farItem)
	require.NoError(t, err)
	assert.Empty(t, alerts)
}

func TestEvaluateReservationExpiringWithinWindow(t *testing.T) {
	det := alert.NewDetector(alert.WithReservationWindow(2 * time.Hour))
	tenant := id.NewTenantID()
	res := entity.Reservation{
		TenantID:     tenant,
		VariantID:    id.NewVariantID(),
		WarehouseID:  id.NewWarehouseID(),
		ID:           id.NewReservationID(),
		Status:       entity.ReservationActive,
		ExpiresAtUTC: time.Now().Add(time.Hour),
	}

	got, ok, err := det.EvaluateReservation(testContext(tenant), res)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, entity.AlertReservationExpiring, got.Kind)
}

func TestEvaluateReservationFarFromExpiryRaisesNothing(t *testing.T) {
	det := alert.NewDetector(alert.WithReservationWindow(2 * time.Hour))
	tenant := id.NewTenantID()
	res := entity.Reservation{
		TenantID: tenant, VariantID: id.NewVariantID(), WarehouseID: id.NewWarehouseID(),
		ID: id.NewReservationID(), Status: entity.ReservationActive,
		ExpiresAtUTC: time.Now().Add(48 * time.Hour),
	}

	_, ok, err := det.EvaluateReservation(testContext(tenant), res)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEvaluateReservationTerminalStatusSkipped(t *testing.T) {
	det := alert.NewDetector()
	tenant := id.NewTenantID()
	res := entity.Reservation{
		TenantID: tenant, VariantID: id.NewVariantID(), WarehouseID: id.NewWarehouseID(),
		ID: id.NewReservationID(), Status: entity.ReservationExpired,
		ExpiresAtUTC: time.Now().Add(-time.Hour),
	}

	_, ok, err := det.EvaluateReservation(testContext(tenant), res)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEvaluateAdjustmentUnusualMagnitude(t *testing.T) {
	det := alert.NewDetector(alert.WithUnusualMultiplier(5.0))
	tenant := id.NewTenantID()
	movement := entity.StockMovement{
		TenantID: tenant, VariantID: id.NewVariantID(), WarehouseID: id.NewWarehouseID(),
		Kind: entity.MovementAdjustment, Quantity: types.NewQuantityFromInt64(-500),
	}
	avg := types.NewQuantityFromInt64(10)

	got, ok, err := det.EvaluateAdjustment(testContext(tenant), movement, avg)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, entity.AlertUnusualAdjustment, got.Kind)
}

func TestEvaluateAdjustmentWithinNormalRangeRaisesNothing(t *testing.T) {
	det := alert.NewDetector(alert.WithUnusualMultiplier(5.0))
	tenant := id.NewTenantID()
	movement := entity.StockMovement{
		TenantID: tenant, VariantID: id.NewVariantID(), WarehouseID: id.NewWarehouseID(),
		Kind: entity.MovementAdjustment, Quantity: types.NewQuantityFromInt64(-12),
	}
	avg := types.NewQuantityFromInt64(10)

	_, ok, err := det.EvaluateAdjustment(testContext(tenant), movement, avg)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEvaluateAdjustmentZeroBaselineNeverFires(t *testing.T) {
	det := alert.NewDetector()
	tenant := id.NewTenantID()
	movement := entity.StockMovement{
		TenantID: tenant, VariantID: id.NewVariantID(), WarehouseID: id.NewWarehouseID(),
		Kind: entity.MovementAdjustment, Quantity: types.NewQuantityFromInt64(-500),
	}

	_, ok, err := det.EvaluateAdjustment(testContext(tenant), movement, types.Zero)
	require.NoError(t, err)
	assert.False(t, ok, "with no baseline history there is nothing to compare against")
}

package ledger_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"invengine/internal/core/apperror"
	"invengine/internal/core/entity"
	"invengine/internal/core/id"
	"invengine/internal/core/lock"
	"invengine/internal/core/tenantctx"
	"invengine/internal/core/types"
	"invengine/internal/domain/ledger"
)

func newTestContext() (context.Context, id.TenantID, id.VariantID, id.WarehouseID) {
	tenant := id.NewTenantID()
	variant := id.NewVariantID()
	warehouse := id.NewWarehouseID()
	ctx := tenantctx.With(context.Background(), tenantctx.Context{
		TenantID: tenant,
		ActorID:  id.NewActorID(),
	})
	return ctx, tenant, variant, warehouse
}

func newTestService() *ledger.Service {
	return ledger.NewService(newMemoryRepository(), lock.NewPool(), noopEvents{})
}

func TestOpeningPurchaseSaleAdjustment(t *testing.T) {
	svc := newTestService()
	ctx, _, variant, warehouse := newTestContext()

	res, err := svc.OpeningBalance(ctx, ledger.Input{VariantID: variant, WarehouseID: warehouse, Quantity: types.NewQuantityFromInt64(1000)})
	require.NoError(t, err)
	assert.True(t, res.Item.TotalStock.Equal(types.NewQuantityFromInt64(1000)))
	assert.True(t, res.Movements[0].RunningBalance.Equal(types.NewQuantityFromInt64(1000)))

	res, err = svc.Purchase(ctx, ledger.Input{VariantID: variant, WarehouseID: warehouse, Quantity: types.NewQuantityFromInt64(500), ReferenceNumber: "PO-12345"})
	require.NoError(t, err)
	assert.True(t, res.Item.TotalStock.Equal(types.NewQuantityFromInt64(1500)))
	assert.True(t, res.Movements[0].RunningBalance.Equal(types.NewQuantityFromInt64(1500)))

	res, err = svc.Sale(ctx, ledger.Input{VariantID: variant, WarehouseID: warehouse, Quantity: types.NewQuantityFromInt64(200), ReferenceNumber: "SO-67890"})
	require.NoError(t, err)
	assert.True(t, res.Item.TotalStock.Equal(types.NewQuantityFromInt64(1300)))
	assert.True(t, res.Movements[0].RunningBalance.Equal(types.NewQuantityFromInt64(1300)))

	res, err = svc.Adjustment(ctx, ledger.Input{VariantID: variant, WarehouseID: warehouse, Quantity: types.NewQuantityFromInt64(-50), Reason: "damaged"})
	require.NoError(t, err)
	assert.True(t, res.Item.TotalStock.Equal(types.NewQuantityFromInt64(1250)))
	assert.True(t, res.Item.Available().Equal(types.NewQuantityFromInt64(1250)))
	assert.True(t, res.Movements[0].RunningBalance.Equal(types.NewQuantityFromInt64(1250)))
}

func TestTransferBetweenWarehouses(t *testing.T) {
	svc := newTestService()
	ctx, tenant, variant, warehouseA := newTestContext()
	warehouseB := id.NewWarehouseID()

	_, err := svc.OpeningBalance(ctx, ledger.Input{VariantID: variant, WarehouseID: warehouseA, Quantity: types.NewQuantityFromInt64(500)})
	require.NoError(t, err)

	res, err := svc.Transfer(ctx, ledger.TransferInput{
		VariantID:         variant,
		SourceWarehouseID: warehouseA,
		DestWarehouseID:   warehouseB,
		Quantity:          types.NewQuantityFromInt64(100),
		ReferenceNumber:   "TRF-001",
	})
	require.NoError(t, err)
	assert.True(t, res.Item.TotalStock.Equal(types.NewQuantityFromInt64(100)))
	assert.Equal(t, "TRF-001", res.Movements[0].ReferenceNumber)
	assert.Equal(t, "TRF-001", res.Movements[1].ReferenceNumber)
	assert.Equal(t, tenant, res.Item.TenantID)
}

func TestReservationLifecycleIsOutOfLedgerScope(t *testing.T) {
	// Reservation flows are exercised in internal/domain/reservation;
	// the ledger package only asserts that an opening balance leaves
	// reservedStock at zero.
	svc := newTestService()
	ctx, _, variant, warehouse := newTestContext()

	res, err := svc.OpeningBalance(ctx, ledger.Input{VariantID: variant, WarehouseID: warehouse, Quantity: types.NewQuantityFromInt64(1000)})
	require.NoError(t, err)
	assert.True(t, res.Item.ReservedStock.IsZero())
}

func TestInsufficientStockOnSale(t *testing.T) {
	svc := newTestService()
	ctx, _, variant, warehouse := newTestContext()

	_, err := svc.OpeningBalance(ctx, ledger.Input{VariantID: variant, WarehouseID: warehouse, Quantity: types.NewQuantityFromInt64(10)})
	require.NoError(t, err)

	_, err = svc.Sale(ctx, ledger.Input{VariantID: variant, WarehouseID: warehouse, Quantity: types.NewQuantityFromInt64(50)})
	require.Error(t, err)
	assert.Equal(t, apperror.CodeInsufficientStock, mustAppErrorCode(err))
}

func TestDuplicateOpeningBalanceFails(t *testing.T) {
	svc := newTestService()
	ctx, _, variant, warehouse := newTestContext()

	_, err := svc.OpeningBalance(ctx, ledger.Input{VariantID: variant, WarehouseID: warehouse, Quantity: types.NewQuantityFromInt64(100)})
	require.NoError(t, err)

	_, err = svc.OpeningBalance(ctx, ledger.Input{VariantID: variant, WarehouseID: warehouse, Quantity: types.NewQuantityFromInt64(100)})
	require.Error(t, err)
	assert.Equal(t, apperror.CodeOpeningBalanceExists, mustAppErrorCode(err))
}

func TestAdjustmentOfZeroFails(t *testing.T) {
	svc := newTestService()
	ctx, _, variant, warehouse := newTestContext()

	_, err := svc.OpeningBalance(ctx, ledger.Input{VariantID: variant, WarehouseID: warehouse, Quantity: types.NewQuantityFromInt64(100)})
	require.NoError(t, err)

	_, err = svc.Adjustment(ctx, ledger.Input{VariantID: variant, WarehouseID: warehouse, Quantity: types.Zero})
	require.Error(t, err)
	assert.Equal(t, apperror.CodeInvalidQuantity, mustAppErrorCode(err))
}

func TestSaleOfExactlyAvailableSucceeds(t *testing.T) {
	svc := newTestService()
	ctx, _, variant, warehouse := newTestContext()

	_, err := svc.OpeningBalance(ctx, ledger.Input{VariantID: variant, WarehouseID: warehouse, Quantity: types.NewQuantityFromInt64(10)})
	require.NoError(t, err)

	res, err := svc.Sale(ctx, ledger.Input{VariantID: variant, WarehouseID: warehouse, Quantity: types.NewQuantityFromInt64(10)})
	require.NoError(t, err)
	assert.True(t, res.Item.TotalStock.IsZero())
}

func TestRefundExceedingOriginalSaleFails(t *testing.T) {
	svc := newTestService()
	ctx, _, variant, warehouse := newTestContext()

	_, err := svc.OpeningBalance(ctx, ledger.Input{VariantID: variant, WarehouseID: warehouse, Quantity: types.NewQuantityFromInt64(100)})
	require.NoError(t, err)

	_, err = svc.Sale(ctx, ledger.Input{VariantID: variant, WarehouseID: warehouse, Quantity: types.NewQuantityFromInt64(20), ReferenceNumber: "SO-1"})
	require.NoError(t, err)

	_, err = svc.Refund(ctx, ledger.Input{VariantID: variant, WarehouseID: warehouse, Quantity: types.NewQuantityFromInt64(15)}, "SO-1")
	require.NoError(t, err)

	_, err = svc.Refund(ctx, ledger.Input{VariantID: variant, WarehouseID: warehouse, Quantity: types.NewQuantityFromInt64(10)}, "SO-1")
	require.Error(t, err)
	assert.Equal(t, apperror.CodeRefundExceedsSale, mustAppErrorCode(err))
}

func TestTenantIsolation(t *testing.T) {
	repo := newMemoryRepository()
	svc := ledger.NewService(repo, lock.NewPool(), noopEvents{})

	variant := id.NewVariantID()
	warehouseA := id.NewWarehouseID()
	warehouseB := id.NewWarehouseID()

	ctx1 := tenantctx.With(context.Background(), tenantctx.Context{TenantID: id.NewTenantID(), ActorID: id.NewActorID()})
	ctx2 := tenantctx.With(context.Background(), tenantctx.Context{TenantID: id.NewTenantID(), ActorID: id.NewActorID()})

	res1, err := svc.OpeningBalance(ctx1, ledger.Input{VariantID: variant, WarehouseID: warehouseA, Quantity: types.NewQuantityFromInt64(100)})
	require.NoError(t, err)
	res2, err := svc.OpeningBalance(ctx2, ledger.Input{VariantID: variant, WarehouseID: warehouseB, Quantity: types.NewQuantityFromInt64(100)})
	require.NoError(t, err)

	assert.NotEqual(t, res1.Item.TenantID.String(), res2.Item.TenantID.String())
}

type fakeAlertEvaluator struct {
	triggered bool
	alert     entity.Alert
}

func (f fakeAlertEvaluator) EvaluateAdjustment(_ context.Context, _ entity.StockMovement, _ types.Quantity) (entity.Alert, bool, error) {
	return f.alert, f.triggered, nil
}

type fakeAlertSink struct {
	raised []entity.Alert
}

func (f *fakeAlertSink) AlertRaised(_ context.Context, a entity.Alert) {
	f.raised = append(f.raised, a)
}

func TestAdjustmentRaisesInlineAlertWhenConfigured(t *testing.T) {
	repo := newMemoryRepository()
	sink := &fakeAlertSink{}
	evaluator := fakeAlertEvaluator{triggered: true, alert: entity.Alert{Kind: entity.AlertUnusualAdjustment}}
	svc := ledger.NewService(repo, lock.NewPool(), noopEvents{}, ledger.WithAdjustmentAlerts(evaluator, sink))

	ctx, _, variant, warehouse := newTestContext()
	_, err := svc.OpeningBalance(ctx, ledger.Input{VariantID: variant, WarehouseID: warehouse, Quantity: types.NewQuantityFromInt64(1000)})
	require.NoError(t, err)

	_, err = svc.Adjustment(ctx, ledger.Input{VariantID: variant, WarehouseID: warehouse, Quantity: types.NewQuantityFromInt64(-500), Reason: "damaged"})
	require.NoError(t, err)

	require.Len(t, sink.raised, 1)
	assert.Equal(t, entity.AlertUnusualAdjustment, sink.raised[0].Kind)
}

func TestAdjustmentSkipsAlertWhenNotConfigured(t *testing.T) {
	svc := newTestService()
	ctx, _, variant, warehouse := newTestContext()

	_, err := svc.OpeningBalance(ctx, ledger.Input{VariantID: variant, WarehouseID: warehouse, Quantity: types.NewQuantityFromInt64(100)})
	require.NoError(t, err)

	_, err = svc.Adjustment(ctx, ledger.Input{VariantID: variant, WarehouseID: warehouse, Quantity: types.NewQuantityFromInt64(-10), Reason: "damaged"})
	require.NoError(t, err)
}

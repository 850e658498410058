package ledger_test

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"

	"invengine/internal/core/apperror"
	"invengine/internal/core/entity"
	"invengine/internal/core/id"
	"invengine/internal/core/types"
	"invengine/internal/domain/ledger"
)

// memoryRepository is an in-process ledger.Repository used by the
// package's tests, grounded on the teacher's mockQuerier pattern
// (pkg/numerator/service_test.go): a mutex-guarded map standing in for
// the Postgres-backed adapter.
type memoryRepository struct {
	mu        sync.Mutex
	items     map[string]*entity.InventoryItem
	movements map[id.InventoryItemID][]entity.StockMovement
}

func newMemoryRepository() *memoryRepository {
	return &memoryRepository{
		items:     make(map[string]*entity.InventoryItem),
		movements: make(map[id.InventoryItemID][]entity.StockMovement),
	}
}

func key(tenant id.TenantID, variant id.VariantID, warehouse id.WarehouseID) string {
	return tenant.String() + ":" + variant.String() + ":" + warehouse.String()
}

func (r *memoryRepository) GetOrInitItem(_ context.Context, tenant id.TenantID, variant id.VariantID, warehouse id.WarehouseID) (entity.InventoryItem, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	k := key(tenant, variant, warehouse)
	if item, ok := r.items[k]; ok {
		return *item, true, nil
	}
	return entity.InventoryItem{
		ID:          id.NewInventoryItemID(),
		TenantID:    tenant,
		VariantID:   variant,
		WarehouseID: warehouse,
	}, false, nil
}

func (r *memoryRepository) HasAnyMovement(_ context.Context, itemID id.InventoryItemID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.movements[itemID]) > 0, nil
}

func (r *memoryRepository) SaleAndRefundTotals(_ context.Context, tenant id.TenantID, variant id.VariantID, warehouse id.WarehouseID, originalSaleReference string) (types.Quantity, types.Quantity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	k := key(tenant, variant, warehouse)
	item, ok := r.items[k]
	if !ok {
		return types.Zero, types.Zero, nil
	}

	saleQty, refundedQty := types.Zero, types.Zero
	for _, m := range r.movements[item.ID] {
		if m.ReferenceNumber == originalSaleReference && m.Kind == entity.MovementSale {
			saleQty = saleQty.Add(m.Quantity.Abs())
		}
		if m.Kind == entity.MovementRefund && m.Metadata["originalSaleReference"] == originalSaleReference {
			refundedQty = refundedQty.Add(m.Quantity.Abs())
		}
	}
	return saleQty, refundedQty, nil
}

func (r *memoryRepository) RecentAdjustmentMagnitude(_ context.Context, tenant id.TenantID, variant id.VariantID, warehouse id.WarehouseID) (types.Quantity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	k := key(tenant, variant, warehouse)
	item, ok := r.items[k]
	if !ok {
		return types.Zero, nil
	}

	var recent []entity.StockMovement
	for _, m := range r.movements[item.ID] {
		if m.Kind == entity.MovementAdjustment || m.Kind == entity.MovementWriteOff {
			recent = append(recent, m)
		}
	}
	if len(recent) == 0 {
		return types.Zero, nil
	}
	if len(recent) > 10 {
		recent = recent[len(recent)-10:]
	}
	sum := types.Zero
	for _, m := range recent {
		sum = sum.Add(m.Quantity.Abs())
	}
	avg := sum.Decimal().Div(decimal.NewFromInt(int64(len(recent))))
	return types.NewQuantity(avg), nil
}

func (r *memoryRepository) CommitMovements(_ context.Context, item *entity.InventoryItem, movements []entity.StockMovement) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	k := key(item.TenantID, item.VariantID, item.WarehouseID)
	stored := *item
	r.items[k] = &stored
	r.movements[item.ID] = append(r.movements[item.ID], movements...)
	return nil
}

func (r *memoryRepository) CommitTransfer(_ context.Context, source *entity.InventoryItem, out entity.StockMovement, dest *entity.InventoryItem, in entity.StockMovement) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	srcStored := *source
	r.items[key(source.TenantID, source.VariantID, source.WarehouseID)] = &srcStored
	r.movements[source.ID] = append(r.movements[source.ID], out)

	dstStored := *dest
	r.items[key(dest.TenantID, dest.VariantID, dest.WarehouseID)] = &dstStored
	r.movements[dest.ID] = append(r.movements[dest.ID], in)
	return nil
}

func (r *memoryRepository) ListMovements(_ context.Context, itemID id.InventoryItemID) ([]entity.StockMovement, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]entity.StockMovement, len(r.movements[itemID]))
	copy(out, r.movements[itemID])
	return out, nil
}

var _ ledger.Repository = (*memoryRepository)(nil)

type noopEvents struct{}

func (noopEvents) StockLevelChanged(context.Context, entity.InventoryItem, entity.StockMovement) {}

func mustAppErrorCode(err error) string {
	if appErr, ok := apperror.AsAppError(err); ok {
		return appErr.Code
	}
	return ""
}

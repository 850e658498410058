package ledger

import (
	"context"

	"invengine/internal/core/entity"
	"invengine/internal/core/id"
	"invengine/internal/core/types"
)

// Repository is the storage boundary for the movement ledger and
// inventory projection. Every method is tenant-scoped by its first
// argument; no method accepts an unscoped query (Design Note §9 "the
// core layer never issues an unscoped query").
type Repository interface {
	// GetOrInitItem loads the InventoryItem for (tenant, variant,
	// warehouse), or returns a zero-value item with existed=false if none
	// exists yet (used by OpeningBalance and Transfer auto-creation).
	GetOrInitItem(ctx context.Context, tenant id.TenantID, variant id.VariantID, warehouse id.WarehouseID) (item entity.InventoryItem, existed bool, err error)

	// HasAnyMovement reports whether any movement has ever been recorded
	// for this item, regardless of kind (spec §4.1 "Opening Balance is
	// the only movement allowed while ... no prior movements exist").
	HasAnyMovement(ctx context.Context, itemID id.InventoryItemID) (bool, error)

	// SaleAndRefundTotals returns the cumulative Sale quantity recorded
	// under referenceNumber and the cumulative Refund quantity already
	// recorded against originalSaleReference, for REFUND_EXCEEDS_SALE
	// enforcement (spec §9 open question (a)).
	SaleAndRefundTotals(ctx context.Context, tenant id.TenantID, variant id.VariantID, warehouse id.WarehouseID, originalSaleReference string) (saleQty, refundedQty types.Quantity, err error)

	// RecentAdjustmentMagnitude returns the average absolute quantity of
	// an item's recent Adjustment/WriteOff movements, the baseline
	// Adjustment's UnusualAdjustment alert (spec §4.5) compares a new
	// adjustment's magnitude against. Returns zero when there is no
	// history yet.
	RecentAdjustmentMagnitude(ctx context.Context, tenant id.TenantID, variant id.VariantID, warehouse id.WarehouseID) (types.Quantity, error)

	// CommitMovements persists the item's new projection values and
	// appends movements in a single transaction.
	CommitMovements(ctx context.Context, item *entity.InventoryItem, movements []entity.StockMovement) error

	// CommitTransfer persists both legs of a transfer atomically: either
	// both items and both movements are durable, or neither is.
	CommitTransfer(ctx context.Context, source *entity.InventoryItem, out entity.StockMovement, dest *entity.InventoryItem, in entity.StockMovement) error

	// ListMovements returns an item's movements ordered by
	// (timestampUtc, insertionOrder) ascending (spec §4.1 "Tie-breaks").
	ListMovements(ctx context.Context, itemID id.InventoryItemID) ([]entity.StockMovement, error)
}

package entity

import (
	"time"

	"invengine/internal/core/id"
	"invengine/internal/core/types"
)

// InventoryItem is the aggregate root for one (tenant, variant,
// warehouse) triple (spec §3). totalStock/reservedStock are a
// maintained projection over the movement ledger; the ledger itself is
// the source of truth (spec §4.1 contract).
type InventoryItem struct {
	ID          id.InventoryItemID `db:"id" json:"id"`
	TenantID    id.TenantID        `db:"tenant_id" json:"tenantId"`
	VariantID   id.VariantID       `db:"variant_id" json:"variantId"`
	WarehouseID id.WarehouseID     `db:"warehouse_id" json:"warehouseId"`

	TotalStock         types.Quantity `db:"total_stock" json:"totalStock"`
	ReservedStock      types.Quantity `db:"reserved_stock" json:"reservedStock"`
	AllowNegativeStock bool           `db:"allow_negative_stock" json:"allowNegativeStock"`
	ExpiryDate         *time.Time     `db:"expiry_date" json:"expiryDate,omitempty"`

	LowStockThreshold *types.Quantity `db:"low_stock_threshold" json:"lowStockThreshold,omitempty"`

	UpdatedAtUTC time.Time `db:"updated_at_utc" json:"updatedAtUtc"`

	SoftDeleteMarker
}

// Available returns totalStock - reservedStock (spec GLOSSARY).
func (i InventoryItem) Available() types.Quantity {
	return i.TotalStock.Sub(i.ReservedStock)
}

// CanReduceBy reports whether reducing available stock by q is allowed:
// always true when negative stock is permitted, otherwise only when
// available stock covers q. The projection alone can't answer whether an
// opening balance may still be recorded here (a zero-quantity opening
// balance leaves totalStock at zero); callers must additionally check
// the ledger for any existing movement before invoking OpeningBalance
// (spec §4.1 "Opening Balance is the only movement allowed while
// totalStock is zero and no prior movements exist").
func (i InventoryItem) CanReduceBy(q types.Quantity) bool {
	if i.AllowNegativeStock {
		return true
	}
	return i.Available().GreaterThanOrEqual(q)
}

// IsLowStock reports whether available stock is at or below the
// configured threshold (spec §4.4 "Low-stock rule"). A nil threshold
// means only OutOfStock is reported for this item.
func (i InventoryItem) IsLowStock() bool {
	if i.LowStockThreshold == nil {
		return false
	}
	return i.Available().LessThanOrEqual(*i.LowStockThreshold)
}

func (i InventoryItem) IsOutOfStock() bool {
	return !i.Available().IsPositive()
}

package entity

import (
	"time"

	"invengine/internal/core/id"
	"invengine/internal/core/types"
)

// MovementKind enumerates the stock-ledger movement types (spec §3).
type MovementKind string

const (
	MovementOpeningBalance MovementKind = "opening_balance"
	MovementPurchase       MovementKind = "purchase"
	MovementSale           MovementKind = "sale"
	MovementRefund         MovementKind = "refund"
	MovementAdjustment     MovementKind = "adjustment"
	MovementWriteOff       MovementKind = "write_off"
	MovementTransferOut    MovementKind = "transfer_out"
	MovementTransferIn     MovementKind = "transfer_in"
)

// Inbound reports whether a kind increases totalStock by default. Sign
// is still carried explicitly on Quantity; this is used for validation
// and reporting, never to infer the sign.
func (k MovementKind) Inbound() bool {
	switch k {
	case MovementOpeningBalance, MovementPurchase, MovementRefund, MovementTransferIn:
		return true
	default:
		return false
	}
}

// StockMovement is an append-only ledger line (spec §3 "StockMovement").
// Movements are never mutated or deleted once persisted.
type StockMovement struct {
	ID              id.MovementID       `db:"id" json:"id"`
	InventoryItemID id.InventoryItemID  `db:"inventory_item_id" json:"inventoryItemId"`
	TenantID        id.TenantID         `db:"tenant_id" json:"tenantId"`
	VariantID       id.VariantID        `db:"variant_id" json:"variantId"`
	WarehouseID     id.WarehouseID      `db:"warehouse_id" json:"warehouseId"`

	Kind     MovementKind   `db:"kind" json:"kind"`
	Quantity types.Quantity `db:"quantity" json:"quantity"` // signed

	// RunningBalance equals the projection's totalStock immediately
	// after this movement (spec §4.1 contract).
	RunningBalance types.Quantity `db:"running_balance" json:"runningBalance"`

	ActorID      id.ActorID `db:"actor_id" json:"actorId"`
	TimestampUTC time.Time  `db:"timestamp_utc" json:"timestampUtc"`
	// InsertionOrder breaks ties when two movements share a timestamp
	// within one transaction (spec §4.1 "Tie-breaks & edge cases").
	InsertionOrder int64 `db:"insertion_order" json:"insertionOrder"`

	Reason          string   `db:"reason" json:"reason,omitempty"`
	ReferenceNumber string   `db:"reference_number" json:"referenceNumber,omitempty"`
	Metadata        Metadata `db:"metadata" json:"metadata,omitempty"`

	CorrelationID string `db:"correlation_id" json:"correlationId,omitempty"`
}

// TransferMetadata builds the metadata map carried by TransferOut/
// TransferIn movements (spec §3 "Transfers carry (sourceWarehouse,
// destinationWarehouse) in metadata"). A typed constructor instead of a
// bare map literal, per Design Note §9 ("do not expose [metadata] as a
// generic reference; provide typed constructors for the transfer/sale/
// refund shapes").
func TransferMetadata(source, destination id.WarehouseID) Metadata {
	return Metadata{
		"sourceWarehouseId":      source.String(),
		"destinationWarehouseId": destination.String(),
	}
}

// RefundMetadata builds the metadata map for a Refund movement,
// linking it back to the original sale reference.
func RefundMetadata(originalSaleReference string) Metadata {
	return Metadata{
		"originalSaleReference": originalSaleReference,
	}
}

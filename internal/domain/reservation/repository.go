package reservation

import (
	"context"
	"time"

	"invengine/internal/core/entity"
	"invengine/internal/core/id"
)

// Repository is the storage boundary for reservations and the
// reservedStock projection they hold against an InventoryItem.
type Repository interface {
	// GetItem loads the InventoryItem a reservation would be created
	// against. Returns apperror NotFound (via the caller's mapping) when
	// no item exists, since a reservation can never auto-create one.
	GetItem(ctx context.Context, tenant id.TenantID, variant id.VariantID, warehouse id.WarehouseID) (entity.InventoryItem, bool, error)

	// GetReservation loads a reservation by ID, tenant-scoped.
	GetReservation(ctx context.Context, tenant id.TenantID, reservationID id.ReservationID) (entity.Reservation, bool, error)

	// CreateReservation persists a new reservation and the item's updated
	// reservedStock in one transaction.
	CreateReservation(ctx context.Context, item *entity.InventoryItem, reservation *entity.Reservation) error

	// UpdateReservation persists a mutated reservation and the item's
	// updated reservedStock in one transaction.
	UpdateReservation(ctx context.Context, item *entity.InventoryItem, reservation *entity.Reservation) error

	// ListExpiring returns non-terminal reservations whose expiresAtUtc is
	// at or before cutoff, ordered oldest-first, bounded to limit rows.
	// Used by the expiry sweeper.
	ListExpiring(ctx context.Context, cutoff time.Time, limit int) ([]entity.Reservation, error)
}

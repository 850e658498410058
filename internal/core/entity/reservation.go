package entity

import (
	"time"

	"invengine/internal/core/apperror"
	"invengine/internal/core/id"
	"invengine/internal/core/types"
)

// ReservationStatus is the reservation lifecycle state (spec §4.2).
type ReservationStatus string

const (
	ReservationActive             ReservationStatus = "active"
	ReservationPartiallyFulfilled ReservationStatus = "partially_fulfilled"
	ReservationFulfilled          ReservationStatus = "fulfilled"
	ReservationCancelled          ReservationStatus = "cancelled"
	ReservationExpired            ReservationStatus = "expired"
)

// IsTerminal reports whether the status accepts no further transitions.
func (s ReservationStatus) IsTerminal() bool {
	switch s {
	case ReservationFulfilled, ReservationCancelled, ReservationExpired:
		return true
	default:
		return false
	}
}

// Reservation is a non-terminal claim against available stock (spec §3,
// §4.2). Reservations never mutate the ledger directly; they adjust an
// InventoryItem's reservedStock only.
type Reservation struct {
	ID          id.ReservationID `db:"id" json:"id"`
	TenantID    id.TenantID      `db:"tenant_id" json:"tenantId"`
	VariantID   id.VariantID     `db:"variant_id" json:"variantId"`
	WarehouseID id.WarehouseID   `db:"warehouse_id" json:"warehouseId"`

	OriginalQuantity  types.Quantity    `db:"original_quantity" json:"originalQuantity"`
	CurrentQuantity   types.Quantity    `db:"current_quantity" json:"currentQuantity"`
	FulfilledQuantity types.Quantity    `db:"fulfilled_quantity" json:"fulfilledQuantity"`
	Status            ReservationStatus `db:"status" json:"status"`

	ExpiresAtUTC    time.Time `db:"expires_at_utc" json:"expiresAtUtc"`
	ReferenceNumber string    `db:"reference_number" json:"referenceNumber"`
	Notes           string    `db:"notes" json:"notes,omitempty"`

	CreatorID    id.ActorID `db:"creator_id" json:"creatorId"`
	CreatedAt    time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updatedAt"`
	CancelReason string     `db:"cancel_reason" json:"cancelReason,omitempty"`
}

// RemainingReserved is the portion of this reservation still holding
// stock: currentQuantity - fulfilledQuantity. Summed across all
// non-terminal reservations for an item, this equals the item's
// reservedStock (spec §8 invariant 2).
func (r Reservation) RemainingReserved() types.Quantity {
	return r.CurrentQuantity.Sub(r.FulfilledQuantity)
}

// ValidateReferenceNumber enforces spec §3's non-empty, <=100 char rule.
func ValidateReferenceNumber(ref string) error {
	if ref == "" {
		return apperror.NewValidation("reference number is required")
	}
	if len(ref) > 100 {
		return apperror.NewValidation("reference number must be 100 characters or fewer")
	}
	return nil
}

// ModifyQuantity applies spec §4.2 ModifyQuantity preconditions and
// mutates CurrentQuantity in place. Callers are responsible for
// adjusting the owning InventoryItem's reservedStock by the returned
// delta under the item's lock.
func (r *Reservation) ModifyQuantity(newQuantity types.Quantity) (delta types.Quantity, err error) {
	if r.Status.IsTerminal() {
		return types.Zero, apperror.NewBusinessRule(apperror.CodeBusinessRule, "reservation is in a terminal state")
	}
	if !newQuantity.IsPositive() {
		return types.Zero, apperror.NewInvalidQuantity("reservation quantity must be positive")
	}
	if newQuantity.LessThan(r.FulfilledQuantity) {
		return types.Zero, apperror.NewInvalidQuantity("reservation quantity cannot be less than fulfilled quantity")
	}
	delta = newQuantity.Sub(r.CurrentQuantity)
	r.CurrentQuantity = newQuantity
	return delta, nil
}

// ExtendExpiry applies spec §4.2 ExtendExpiry preconditions.
func (r *Reservation) ExtendExpiry(newExpiry, now time.Time) error {
	if r.Status.IsTerminal() {
		return apperror.NewBusinessRule(apperror.CodeBusinessRule, "reservation is in a terminal state")
	}
	if !newExpiry.After(now) {
		return apperror.NewValidation("new expiry must be in the future")
	}
	if !newExpiry.After(r.ExpiresAtUTC) {
		return apperror.NewValidation("new expiry must extend the current expiry")
	}
	r.ExpiresAtUTC = newExpiry
	return nil
}

// Fulfill applies spec §4.2 Fulfill preconditions, incrementing
// FulfilledQuantity and transitioning status. Returns the quantity
// released from reservedStock (the fulfilled slice).
func (r *Reservation) Fulfill(q types.Quantity, now time.Time) (released types.Quantity, err error) {
	if r.Status != ReservationActive && r.Status != ReservationPartiallyFulfilled {
		return types.Zero, apperror.NewBusinessRule(apperror.CodeBusinessRule, "reservation must be active or partially fulfilled to fulfill")
	}
	remaining := r.RemainingReserved()
	if !q.IsPositive() || q.GreaterThan(remaining) {
		return types.Zero, apperror.NewInvalidQuantity("fulfill quantity must be positive and not exceed remaining reserved quantity")
	}
	r.FulfilledQuantity = r.FulfilledQuantity.Add(q)
	r.UpdatedAt = now
	if r.FulfilledQuantity.Equal(r.CurrentQuantity) {
		r.Status = ReservationFulfilled
	} else {
		r.Status = ReservationPartiallyFulfilled
	}
	return q, nil
}

// Cancel applies spec §4.2 Cancel preconditions, returning the quantity
// released from reservedStock.
func (r *Reservation) Cancel(reason string, now time.Time) (released types.Quantity, err error) {
	if r.Status.IsTerminal() {
		return types.Zero, apperror.NewBusinessRule(apperror.CodeBusinessRule, "reservation is already in a terminal state")
	}
	released = r.RemainingReserved()
	r.Status = ReservationCancelled
	r.CancelReason = reason
	r.UpdatedAt = now
	return released, nil
}

// Expire applies spec §4.3: only valid once now >= expiresAtUtc, and
// only from a non-terminal state. Returns the quantity released.
func (r *Reservation) Expire(now time.Time) (released types.Quantity, err error) {
	if r.Status.IsTerminal() {
		return types.Zero, apperror.NewBusinessRule(apperror.CodeBusinessRule, "reservation is already in a terminal state")
	}
	if now.Before(r.ExpiresAtUTC) {
		return types.Zero, apperror.NewBusinessRule(apperror.CodeBusinessRule, "reservation has not yet reached its expiry")
	}
	released = r.RemainingReserved()
	r.Status = ReservationExpired
	r.UpdatedAt = now
	return released, nil
}

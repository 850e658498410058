// Package reservation implements the reservation manager and its state
// machine (spec §4.2): Create, ModifyQuantity, ExtendExpiry, Fulfill,
// Cancel and Expire, each serialized under the owning InventoryItem's
// lock and adjusting reservedStock without ever touching the ledger.
// Grounded on the ledger package's Service shape, itself grounded on
// the teacher's registers/stock service.
package reservation

import (
	"context"
	"fmt"
	"time"

	"invengine/internal/core/apperror"
	"invengine/internal/core/entity"
	"invengine/internal/core/id"
	"invengine/internal/core/lock"
	"invengine/internal/core/tenantctx"
	"invengine/internal/core/types"
	"invengine/pkg/logger"
)

// EventSink receives notification-worthy reservation events, following
// the ledger package's "enqueue inside the lock, publish after release"
// discipline (spec §4.5).
type EventSink interface {
	ReservationChanged(ctx context.Context, reservation entity.Reservation, item entity.InventoryItem)
}

// CreateInput is the argument shape for Create.
type CreateInput struct {
	VariantID       id.VariantID
	WarehouseID     id.WarehouseID
	Quantity        types.Quantity
	ExpiresAtUTC    time.Time
	ReferenceNumber string
	Notes           string
}

// Service implements the reservation manager over a Repository.
type Service struct {
	repo   Repository
	locks  *lock.Pool
	events EventSink
	now    func() time.Time
}

// NewService constructs a reservation Service.
func NewService(repo Repository, locks *lock.Pool, events EventSink) *Service {
	return &Service{repo: repo, locks: locks, events: events, now: time.Now}
}

func (s *Service) clock() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now()
}

func itemKey(tenant id.TenantID, variant id.VariantID, warehouse id.WarehouseID) lock.Key {
	return lock.Key(tenant.String() + ":" + variant.String() + ":" + warehouse.String())
}

// Create reserves quantity against an existing InventoryItem (spec §4.2
// "Create"). Fails with INSUFFICIENT_STOCK when available stock is
// short.
func (s *Service) Create(ctx context.Context, in CreateInput) (entity.Reservation, error) {
	tc, err := tenantctx.From(ctx)
	if err != nil {
		return entity.Reservation{}, err
	}
	if err := tc.Validate(); err != nil {
		return entity.Reservation{}, err
	}
	if !in.Quantity.IsPositive() {
		return entity.Reservation{}, apperror.NewInvalidQuantity("reservation quantity must be positive")
	}
	now := s.clock()
	if !in.ExpiresAtUTC.After(now) {
		return entity.Reservation{}, apperror.NewValidation("expiresAtUtc must be in the future")
	}
	if err := entity.ValidateReferenceNumber(in.ReferenceNumber); err != nil {
		return entity.Reservation{}, err
	}

	release := s.locks.Acquire(itemKey(tc.TenantID, in.VariantID, in.WarehouseID))
	defer release()

	item, existed, err := s.repo.GetItem(ctx, tc.TenantID, in.VariantID, in.WarehouseID)
	if err != nil {
		return entity.Reservation{}, err
	}
	if !existed {
		return entity.Reservation{}, apperror.NewNotFound("inventory item", in.VariantID.String())
	}
	// AllowNegativeStock qualifies stock-reducing ledger movements only
	// (spec §3 InventoryItem invariants); a reservation's claim against
	// available stock is never allowed to go negative regardless of it.
	if item.Available().LessThan(in.Quantity) {
		return entity.Reservation{}, apperror.NewInsufficientStock(in.VariantID.String(), in.Quantity.String(), item.Available().String())
	}

	res := entity.Reservation{
		ID:               id.NewReservationID(),
		TenantID:         tc.TenantID,
		VariantID:        in.VariantID,
		WarehouseID:      in.WarehouseID,
		OriginalQuantity: in.Quantity,
		CurrentQuantity:  in.Quantity,
		Status:           entity.ReservationActive,
		ExpiresAtUTC:     in.ExpiresAtUTC,
		ReferenceNumber:  in.ReferenceNumber,
		Notes:            in.Notes,
		CreatorID:        tc.ActorID,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	item.ReservedStock = item.ReservedStock.Add(in.Quantity)
	item.UpdatedAtUTC = now

	if err := s.repo.CreateReservation(ctx, &item, &res); err != nil {
		return entity.Reservation{}, fmt.Errorf("create reservation: %w", err)
	}
	s.notify(ctx, res, item)
	return res, nil
}

// ModifyQuantity changes a reservation's currentQuantity (spec §4.2
// "ModifyQuantity"). An increase requires enough additional availability;
// a decrease always succeeds and releases the difference.
func (s *Service) ModifyQuantity(ctx context.Context, reservationID id.ReservationID, newQuantity types.Quantity) (entity.Reservation, error) {
	return s.mutate(ctx, reservationID, func(item *entity.InventoryItem, res *entity.Reservation) error {
		delta, err := res.ModifyQuantity(newQuantity)
		if err != nil {
			return err
		}
		if delta.IsPositive() && item.Available().LessThan(delta) {
			return apperror.NewInsufficientStock(res.VariantID.String(), delta.String(), item.Available().String())
		}
		item.ReservedStock = item.ReservedStock.Add(delta)
		return nil
	})
}

// ExtendExpiry pushes a reservation's expiry forward (spec §4.2
// "ExtendExpiry").
func (s *Service) ExtendExpiry(ctx context.Context, reservationID id.ReservationID, newExpiry time.Time) (entity.Reservation, error) {
	return s.mutate(ctx, reservationID, func(item *entity.InventoryItem, res *entity.Reservation) error {
		return res.ExtendExpiry(newExpiry, s.clock())
	})
}

// Fulfill marks q of a reservation's remaining slice as fulfilled and
// releases it from reservedStock (spec §4.2 "Fulfill"). The caller is
// responsible for recording the matching Sale movement separately.
func (s *Service) Fulfill(ctx context.Context, reservationID id.ReservationID, q types.Quantity) (entity.Reservation, error) {
	return s.mutate(ctx, reservationID, func(item *entity.InventoryItem, res *entity.Reservation) error {
		released, err := res.Fulfill(q, s.clock())
		if err != nil {
			return err
		}
		item.ReservedStock = item.ReservedStock.Sub(released)
		return nil
	})
}

// Cancel releases a reservation's remaining reserved quantity (spec
// §4.2 "Cancel").
func (s *Service) Cancel(ctx context.Context, reservationID id.ReservationID, reason string) (entity.Reservation, error) {
	return s.mutate(ctx, reservationID, func(item *entity.InventoryItem, res *entity.Reservation) error {
		released, err := res.Cancel(reason, s.clock())
		if err != nil {
			return err
		}
		item.ReservedStock = item.ReservedStock.Sub(released)
		return nil
	})
}

// Expire transitions a reservation past its expiry (spec §4.2
// "Expire"), invoked by the expiry sweeper rather than by callers
// directly.
func (s *Service) Expire(ctx context.Context, reservationID id.ReservationID) (entity.Reservation, error) {
	return s.mutate(ctx, reservationID, func(item *entity.InventoryItem, res *entity.Reservation) error {
		released, err := res.Expire(s.clock())
		if err != nil {
			return err
		}
		item.ReservedStock = item.ReservedStock.Sub(released)
		return nil
	})
}

func (s *Service) mutate(ctx context.Context, reservationID id.ReservationID, apply func(*entity.InventoryItem, *entity.Reservation) error) (entity.Reservation, error) {
	tc, err := tenantctx.From(ctx)
	if err != nil {
		return entity.Reservation{}, err
	}
	if err := tc.Validate(); err != nil {
		return entity.Reservation{}, err
	}

	// A first, unlocked read only identifies which item's lock to
	// acquire (reservations never change variant/warehouse once
	// created). The reservation itself is re-fetched below, under the
	// lock, so two concurrent mutators of the same reservationId never
	// both observe the same pre-transition status/quantity.
	keyLookup, existed, err := s.repo.GetReservation(ctx, tc.TenantID, reservationID)
	if err != nil {
		return entity.Reservation{}, err
	}
	if !existed {
		return entity.Reservation{}, apperror.NewNotFound("reservation", reservationID.String())
	}

	release := s.locks.Acquire(itemKey(tc.TenantID, keyLookup.VariantID, keyLookup.WarehouseID))
	defer release()

	res, existed, err := s.repo.GetReservation(ctx, tc.TenantID, reservationID)
	if err != nil {
		return entity.Reservation{}, err
	}
	if !existed {
		return entity.Reservation{}, apperror.NewNotFound("reservation", reservationID.String())
	}

	item, existed, err := s.repo.GetItem(ctx, tc.TenantID, res.VariantID, res.WarehouseID)
	if err != nil {
		return entity.Reservation{}, err
	}
	if !existed {
		return entity.Reservation{}, apperror.NewNotFound("inventory item", res.VariantID.String())
	}

	if err := apply(&item, &res); err != nil {
		return entity.Reservation{}, err
	}
	item.UpdatedAtUTC = s.clock()

	if err := s.repo.UpdateReservation(ctx, &item, &res); err != nil {
		return entity.Reservation{}, fmt.Errorf("update reservation: %w", err)
	}
	s.notify(ctx, res, item)

	logger.Info(ctx, "reservation updated",
		"reservation_id", res.ID.String(),
		"status", string(res.Status),
	)
	return res, nil
}

func (s *Service) notify(ctx context.Context, res entity.Reservation, item entity.InventoryItem) {
	if s.events == nil {
		return
	}
	s.events.ReservationChanged(ctx, res, item)
}

// Package engine exposes the command entry points of the inventory
// engine (spec §4): the ledger's seven stock-mutating operations and
// five of the reservation manager's lifecycle operations (Expire is
// driven by the sweeper, not exposed here), each wrapped
// with idempotent-replay-on-correlationId semantics (spec §7, §8
// "commanding the same operation twice with the same correlationId
// yields identical results and side effects exactly once"). Grounded
// on the teacher's infrastructure/http/v1/middleware/idempotency.go +
// storage/postgres/idempotency.go pairing, adapted from an HTTP
// request-id key to a direct command-layer wrapper (this module has
// no transport of its own; spec.md's Non-goals exclude HTTP).
package engine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"invengine/internal/core/apperror"
	"invengine/internal/core/entity"
	"invengine/internal/core/id"
	"invengine/internal/core/tenantctx"
	"invengine/internal/core/types"
	"invengine/internal/domain/ledger"
	"invengine/internal/domain/reservation"
	"invengine/pkg/logger"
)

// IdempotencyStore is the narrow persistence surface Engine needs,
// satisfied by postgres.IdempotencyStore.
type IdempotencyStore interface {
	AcquireKey(ctx context.Context, tenantID, correlationID, actorID, operation, requestHash string) (*Replay, error)
	CompleteKey(ctx context.Context, tenantID, correlationID string, result any) error
	FailKey(ctx context.Context, tenantID, correlationID, errorCode string) error
}

// Replay is the cached outcome of a previously completed command,
// mirroring postgres.IdempotencyReplay so this package doesn't import
// the postgres adapter directly.
type Replay struct {
	Succeeded bool
	ErrorCode string
	Result    []byte
}

// Engine wires the ledger and reservation domain services behind a
// single idempotent command surface.
type Engine struct {
	ledger       *ledger.Service
	reservations *reservation.Service
	idempotency  IdempotencyStore
}

// New constructs an Engine. idempotency may be nil, in which case
// every command executes without replay protection (suitable for
// tests and for callers that never supply a correlationId).
func New(ledgerSvc *ledger.Service, reservationSvc *reservation.Service, idempotency IdempotencyStore) *Engine {
	return &Engine{ledger: ledgerSvc, reservations: reservationSvc, idempotency: idempotency}
}

// execute runs fn under idempotent-replay protection keyed by the
// context's (tenantId, correlationId). Per tenantctx's contract, an
// empty CorrelationID means the caller didn't request idempotency, so
// execute runs fn directly with no bookkeeping.
func execute[T any](ctx context.Context, e *Engine, operation string, in any, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	tc, err := tenantctx.From(ctx)
	if err != nil {
		return zero, err
	}
	if e.idempotency == nil || tc.CorrelationID == "" {
		return fn(ctx)
	}

	hash := requestHash(in)
	replay, err := e.idempotency.AcquireKey(ctx, tc.TenantID.String(), tc.CorrelationID, tc.ActorID.String(), operation, hash)
	if err != nil {
		return zero, err
	}
	if replay != nil {
		if replay.Succeeded {
			var result T
			if len(replay.Result) > 0 {
				if err := json.Unmarshal(replay.Result, &result); err != nil {
					return zero, fmt.Errorf("unmarshal replayed result for %s: %w", operation, err)
				}
			}
			return result, nil
		}
		return zero, apperror.NewBusinessRule(replay.ErrorCode, "replayed failure from a prior attempt with this correlationId")
	}

	result, err := fn(ctx)
	if err != nil {
		code := "INTERNAL"
		if appErr, ok := apperror.AsAppError(err); ok {
			code = appErr.Code
		}
		if failErr := e.idempotency.FailKey(ctx, tc.TenantID.String(), tc.CorrelationID, code); failErr != nil {
			logger.Warn(ctx, "failed to record idempotency failure", "operation", operation, "error", failErr)
		}
		return zero, err
	}
	if completeErr := e.idempotency.CompleteKey(ctx, tc.TenantID.String(), tc.CorrelationID, result); completeErr != nil {
		logger.Warn(ctx, "failed to record idempotency success", "operation", operation, "error", completeErr)
	}
	return result, nil
}

func requestHash(in any) string {
	raw, err := json.Marshal(in)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// OpenBalance records the initial stock count for an item (spec §4.1).
func (e *Engine) OpenBalance(ctx context.Context, in ledger.Input) (ledger.Result, error) {
	return execute(ctx, e, "OpenBalance", in, func(ctx context.Context) (ledger.Result, error) {
		return e.ledger.OpeningBalance(ctx, in)
	})
}

// Purchase records inbound stock from a supplier.
func (e *Engine) Purchase(ctx context.Context, in ledger.Input) (ledger.Result, error) {
	return execute(ctx, e, "Purchase", in, func(ctx context.Context) (ledger.Result, error) {
		return e.ledger.Purchase(ctx, in)
	})
}

// Sale records outbound stock sold to a customer.
func (e *Engine) Sale(ctx context.Context, in ledger.Input) (ledger.Result, error) {
	return execute(ctx, e, "Sale", in, func(ctx context.Context) (ledger.Result, error) {
		return e.ledger.Sale(ctx, in)
	})
}

// Refund records stock returned against an original sale reference.
func (e *Engine) Refund(ctx context.Context, in ledger.Input, originalSaleReference string) (ledger.Result, error) {
	type refundKey struct {
		ledger.Input
		OriginalSaleReference string
	}
	return execute(ctx, e, "Refund", refundKey{Input: in, OriginalSaleReference: originalSaleReference}, func(ctx context.Context) (ledger.Result, error) {
		return e.ledger.Refund(ctx, in, originalSaleReference)
	})
}

// Adjust records a correction to the projected stock level.
func (e *Engine) Adjust(ctx context.Context, in ledger.Input) (ledger.Result, error) {
	return execute(ctx, e, "Adjust", in, func(ctx context.Context) (ledger.Result, error) {
		return e.ledger.Adjustment(ctx, in)
	})
}

// WriteOff records stock removed as loss, damage, or theft.
func (e *Engine) WriteOff(ctx context.Context, in ledger.Input) (ledger.Result, error) {
	return execute(ctx, e, "WriteOff", in, func(ctx context.Context) (ledger.Result, error) {
		return e.ledger.WriteOff(ctx, in)
	})
}

// Transfer moves stock between two warehouses as one atomic command.
func (e *Engine) Transfer(ctx context.Context, in ledger.TransferInput) (ledger.Result, error) {
	return execute(ctx, e, "Transfer", in, func(ctx context.Context) (ledger.Result, error) {
		return e.ledger.Transfer(ctx, in)
	})
}

// CreateReservation claims available stock against a future order
// (spec §4.2).
func (e *Engine) CreateReservation(ctx context.Context, in reservation.CreateInput) (entity.Reservation, error) {
	return execute(ctx, e, "CreateReservation", in, func(ctx context.Context) (entity.Reservation, error) {
		return e.reservations.Create(ctx, in)
	})
}

// ModifyReservation changes a reservation's claimed quantity.
func (e *Engine) ModifyReservation(ctx context.Context, reservationID id.ReservationID, newQuantity types.Quantity) (entity.Reservation, error) {
	type modifyKey struct {
		ReservationID id.ReservationID
		NewQuantity   types.Quantity
	}
	return execute(ctx, e, "ModifyReservation", modifyKey{reservationID, newQuantity}, func(ctx context.Context) (entity.Reservation, error) {
		return e.reservations.ModifyQuantity(ctx, reservationID, newQuantity)
	})
}

// ExtendExpiry pushes out a reservation's expiry deadline.
func (e *Engine) ExtendExpiry(ctx context.Context, reservationID id.ReservationID, newExpiry time.Time) (entity.Reservation, error) {
	type extendKey struct {
		ReservationID id.ReservationID
		NewExpiry     time.Time
	}
	return execute(ctx, e, "ExtendExpiry", extendKey{reservationID, newExpiry}, func(ctx context.Context) (entity.Reservation, error) {
		return e.reservations.ExtendExpiry(ctx, reservationID, newExpiry)
	})
}

// FulfillReservation marks part or all of a reservation fulfilled and
// releases that slice from reservedStock. It records no Sale movement;
// the matching Sale is a separate command.
func (e *Engine) FulfillReservation(ctx context.Context, reservationID id.ReservationID, q types.Quantity) (entity.Reservation, error) {
	type fulfillKey struct {
		ReservationID id.ReservationID
		Quantity      types.Quantity
	}
	return execute(ctx, e, "FulfillReservation", fulfillKey{reservationID, q}, func(ctx context.Context) (entity.Reservation, error) {
		return e.reservations.Fulfill(ctx, reservationID, q)
	})
}

// CancelReservation releases a reservation's remaining claim.
func (e *Engine) CancelReservation(ctx context.Context, reservationID id.ReservationID, reason string) (entity.Reservation, error) {
	type cancelKey struct {
		ReservationID id.ReservationID
		Reason        string
	}
	return execute(ctx, e, "CancelReservation", cancelKey{reservationID, reason}, func(ctx context.Context) (entity.Reservation, error) {
		return e.reservations.Cancel(ctx, reservationID, reason)
	})
}

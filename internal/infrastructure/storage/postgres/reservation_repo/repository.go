// Package reservation_repo provides the PostgreSQL adapter for the
// reservation manager (spec §4.2, §6). Grounded on the ledger_repo
// sibling package's squirrel+scany+TxManager pattern, itself grounded
// on the teacher's register_repo/stock.go.
package reservation_repo

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"invengine/internal/core/entity"
	"invengine/internal/core/id"
	"invengine/internal/domain/alert"
	"invengine/internal/domain/reservation"
	"invengine/internal/infrastructure/storage/postgres"
)

const (
	inventoryItemsTable = "inventory_items"
	reservationsTable   = "reservations"
)

var itemColumns = postgres.ExtractDBColumns[entity.InventoryItem]()
var reservationColumns = postgres.ExtractDBColumns[entity.Reservation]()

// Repository implements reservation.Repository against PostgreSQL.
type Repository struct {
	txManager *postgres.TxManager
	outbox    *postgres.OutboxPublisher
	builder   squirrel.StatementBuilderType
}

// New constructs a Repository. Every state transition also writes a
// durable outbox record in the same transaction, mirroring
// ledger_repo's "committed-then-emitted" guarantee.
func New(txManager *postgres.TxManager) *Repository {
	return &Repository{
		txManager: txManager,
		outbox:    postgres.NewOutboxPublisher(txManager),
		builder:   squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// GetItem loads the InventoryItem a reservation would be created
// against. A reservation never auto-creates an item.
func (r *Repository) GetItem(ctx context.Context, tenant id.TenantID, variant id.VariantID, warehouse id.WarehouseID) (entity.InventoryItem, bool, error) {
	q := r.builder.Select(itemColumns...).From(inventoryItemsTable).
		Where(squirrel.Eq{"tenant_id": tenant, "variant_id": variant, "warehouse_id": warehouse}).
		Limit(1)

	sql, args, err := q.ToSql()
	if err != nil {
		return entity.InventoryItem{}, false, fmt.Errorf("build select item: %w", err)
	}

	var item entity.InventoryItem
	querier := r.txManager.GetQuerier(ctx)
	if err := pgxscan.Get(ctx, querier, &item, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return entity.InventoryItem{}, false, nil
		}
		return entity.InventoryItem{}, false, fmt.Errorf("get item: %w", err)
	}
	return item, true, nil
}

// GetReservation loads a reservation by ID, tenant-scoped.
func (r *Repository) GetReservation(ctx context.Context, tenant id.TenantID, reservationID id.ReservationID) (entity.Reservation, bool, error) {
	q := r.builder.Select(reservationColumns...).From(reservationsTable).
		Where(squirrel.Eq{"tenant_id": tenant, "id": reservationID}).Limit(1)

	sql, args, err := q.ToSql()
	if err != nil {
		return entity.Reservation{}, false, fmt.Errorf("build select reservation: %w", err)
	}

	var res entity.Reservation
	querier := r.txManager.GetQuerier(ctx)
	if err := pgxscan.Get(ctx, querier, &res, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return entity.Reservation{}, false, nil
		}
		return entity.Reservation{}, false, fmt.Errorf("get reservation: %w", err)
	}
	return res, true, nil
}

// CreateReservation persists a new reservation and the item's updated
// reservedStock in one transaction.
func (r *Repository) CreateReservation(ctx context.Context, item *entity.InventoryItem, res *entity.Reservation) error {
	return r.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := r.updateReservedStock(ctx, item); err != nil {
			return err
		}
		if res.ID.IsZero() {
			res.ID = id.NewReservationID()
		}
		if err := r.insertReservation(ctx, res); err != nil {
			return err
		}
		return r.recordOutbox(ctx, *res, "ReservationCreated")
	})
}

// UpdateReservation persists a mutated reservation and the item's
// updated reservedStock in one transaction.
func (r *Repository) UpdateReservation(ctx context.Context, item *entity.InventoryItem, res *entity.Reservation) error {
	return r.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := r.updateReservedStock(ctx, item); err != nil {
			return err
		}
		if err := r.updateReservation(ctx, res); err != nil {
			return err
		}
		return r.recordOutbox(ctx, *res, reservationEventType(res.Status))
	})
}

// reservationEventType maps a reservation's new status to the
// StockMovement-sibling event name spec §6 lists for the notification
// fan-out (ReservationModified/Fulfilled/Cancelled/Expired).
func reservationEventType(status entity.ReservationStatus) string {
	switch status {
	case entity.ReservationFulfilled:
		return "ReservationFulfilled"
	case entity.ReservationCancelled:
		return "ReservationCancelled"
	case entity.ReservationExpired:
		return "ReservationExpired"
	default:
		return "ReservationModified"
	}
}

func (r *Repository) recordOutbox(ctx context.Context, res entity.Reservation, eventType string) error {
	return r.outbox.Publish(ctx, postgres.DomainEvent{
		AggregateType: "Reservation",
		AggregateID:   res.ID.String(),
		EventType:     eventType,
		Payload:       res,
	})
}

// ListExpiring returns non-terminal reservations whose expiresAtUtc is
// at or before cutoff, ordered oldest-first, bounded to limit rows.
func (r *Repository) ListExpiring(ctx context.Context, cutoff time.Time, limit int) ([]entity.Reservation, error) {
	q := r.builder.Select(reservationColumns...).From(reservationsTable).
		Where(squirrelNonTerminal()).
		Where(squirrel.LtOrEq{"expires_at_utc": cutoff}).
		OrderBy("expires_at_utc ASC").
		Limit(uint64(limit))

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select expiring: %w", err)
	}

	var reservations []entity.Reservation
	querier := r.txManager.GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &reservations, sql, args...); err != nil {
		return nil, fmt.Errorf("select expiring reservations: %w", err)
	}
	return reservations, nil
}

// ListActive returns every non-terminal reservation for tenant,
// satisfying alert.ReservationLister so the alert scanner can evaluate
// ReservationExpiring without its own repository type.
func (r *Repository) ListActive(ctx context.Context, tenant id.TenantID) ([]entity.Reservation, error) {
	q := r.builder.Select(reservationColumns...).From(reservationsTable).
		Where(squirrel.Eq{"tenant_id": tenant}).
		Where(squirrelNonTerminal()).
		OrderBy("expires_at_utc ASC")

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select active reservations: %w", err)
	}

	var reservations []entity.Reservation
	querier := r.txManager.GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &reservations, sql, args...); err != nil {
		return nil, fmt.Errorf("select active reservations: %w", err)
	}
	return reservations, nil
}

func squirrelNonTerminal() squirrel.Sqlizer {
	return squirrel.Eq{"status": []entity.ReservationStatus{
		entity.ReservationActive,
		entity.ReservationPartiallyFulfilled,
	}}
}

func (r *Repository) updateReservedStock(ctx context.Context, item *entity.InventoryItem) error {
	q := r.builder.Update(inventoryItemsTable).
		Set("reserved_stock", item.ReservedStock).
		Set("updated_at_utc", item.UpdatedAtUTC).
		Where(squirrel.Eq{"id": item.ID})

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update reserved stock: %w", err)
	}

	querier := r.txManager.GetQuerier(ctx)
	if _, err := querier.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("update reserved stock: %w", err)
	}
	return nil
}

func (r *Repository) insertReservation(ctx context.Context, res *entity.Reservation) error {
	values := postgres.StructToMap(*res)
	q := r.builder.Insert(reservationsTable).SetMap(values)

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert reservation: %w", err)
	}

	querier := r.txManager.GetQuerier(ctx)
	if _, err := querier.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert reservation: %w", err)
	}
	return nil
}

func (r *Repository) updateReservation(ctx context.Context, res *entity.Reservation) error {
	q := r.builder.Update(reservationsTable).
		Set("current_quantity", res.CurrentQuantity).
		Set("fulfilled_quantity", res.FulfilledQuantity).
		Set("status", res.Status).
		Set("expires_at_utc", res.ExpiresAtUTC).
		Set("updated_at", res.UpdatedAt).
		Set("cancel_reason", res.CancelReason).
		Where(squirrel.Eq{"id": res.ID, "tenant_id": res.TenantID})

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update reservation: %w", err)
	}

	querier := r.txManager.GetQuerier(ctx)
	if _, err := querier.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("update reservation: %w", err)
	}
	return nil
}

var (
	_ reservation.Repository  = (*Repository)(nil)
	_ alert.ReservationLister = (*Repository)(nil)
)

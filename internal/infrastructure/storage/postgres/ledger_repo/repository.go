// Package ledger_repo provides the PostgreSQL adapter for the movement
// ledger and inventory projection (spec §4.1, §6). Grounded on the
// teacher's register_repo/stock.go: squirrel for SQL building, scany
// for scanning into entity structs, and TxManager pulled from context
// so the repository works identically inside and outside a caller's
// transaction.
package ledger_repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"

	"invengine/internal/core/entity"
	"invengine/internal/core/id"
	"invengine/internal/core/types"
	"invengine/internal/domain/ledger"
	"invengine/internal/infrastructure/storage/postgres"
)

const (
	inventoryItemsTable = "inventory_items"
	stockMovementsTable = "stock_movements"
)

var itemColumns = postgres.ExtractDBColumns[entity.InventoryItem]()
var movementColumns = postgres.ExtractDBColumns[entity.StockMovement]()

// Repository implements ledger.Repository against PostgreSQL.
type Repository struct {
	txManager *postgres.TxManager
	outbox    *postgres.OutboxPublisher
	builder   squirrel.StatementBuilderType
}

// New constructs a Repository. Every commit also writes a durable
// outbox record in the same transaction (SPEC_FULL.md §5 "Outbox-style
// durable event record"), so a crash between commit and in-process
// publish never silently drops a StockLevelChanged event.
func New(txManager *postgres.TxManager) *Repository {
	return &Repository{
		txManager: txManager,
		outbox:    postgres.NewOutboxPublisher(txManager),
		builder:   squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// GetOrInitItem loads the item for (tenant, variant, warehouse), or
// returns a zero-value item with existed=false if none exists yet.
func (r *Repository) GetOrInitItem(ctx context.Context, tenant id.TenantID, variant id.VariantID, warehouse id.WarehouseID) (entity.InventoryItem, bool, error) {
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
			return entity.InventoryItem{
				TenantID:    tenant,
				VariantID:   variant,
				WarehouseID: warehouse,
				TotalStock:  types.Zero,
			}, false, nil
		}
		return entity.InventoryItem{}, false, fmt.Errorf("get item: %w", err)
	}
	return item, true, nil
}

// HasAnyMovement reports whether any movement has ever been recorded
// for this item.
func (r *Repository) HasAnyMovement(ctx context.Context, itemID id.InventoryItemID) (bool, error) {
	q := r.builder.Select("1").From(stockMovementsTable).
		Where(squirrel.Eq{"inventory_item_id": itemID}).Limit(1)

	sql, args, err := q.ToSql()
	if err != nil {
		return false, fmt.Errorf("build exists query: %w", err)
	}

	var exists int
	querier := r.txManager.GetQuerier(ctx)
	err = querier.QueryRow(ctx, sql, args...).Scan(&exists)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check movement existence: %w", err)
	}
	return true, nil
}

// SaleAndRefundTotals returns the cumulative Sale quantity recorded
// under referenceNumber and the cumulative Refund quantity already
// recorded against originalSaleReference.
func (r *Repository) SaleAndRefundTotals(ctx context.Context, tenant id.TenantID, variant id.VariantID, warehouse id.WarehouseID, originalSaleReference string) (types.Quantity, types.Quantity, error) {
	querier := r.txManager.GetQuerier(ctx)

	saleSQL := `
		SELECT COALESCE(SUM(ABS(quantity)), 0)
		FROM stock_movements
		WHERE tenant_id = $1 AND variant_id = $2 AND warehouse_id = $3
		  AND reference_number = $4 AND kind = 'sale'
	`
	var saleQty types.Quantity
	if err := querier.QueryRow(ctx, saleSQL, tenant, variant, warehouse, originalSaleReference).Scan(&saleQty); err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return types.Zero, types.Zero, fmt.Errorf("sum sale quantity: %w", err)
	}

	refundSQL := `
		SELECT COALESCE(SUM(ABS(quantity)), 0)
		FROM stock_movements
		WHERE tenant_id = $1 AND variant_id = $2 AND warehouse_id = $3
		  AND kind = 'refund' AND metadata->>'originalSaleReference' = $4
	`
	var refundedQty types.Quantity
	if err := querier.QueryRow(ctx, refundSQL, tenant, variant, warehouse, originalSaleReference).Scan(&refundedQty); err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return types.Zero, types.Zero, fmt.Errorf("sum refund quantity: %w", err)
	}

	return saleQty, refundedQty, nil
}

// recentAdjustmentWindow bounds how many prior Adjustment/WriteOff
// movements contribute to the UnusualAdjustment baseline.
const recentAdjustmentWindow = 10

// RecentAdjustmentMagnitude averages the absolute quantity of an
// item's last recentAdjustmentWindow Adjustment/WriteOff movements.
func (r *Repository) RecentAdjustmentMagnitude(ctx context.Context, tenant id.TenantID, variant id.VariantID, warehouse id.WarehouseID) (types.Quantity, error) {
	sql := `
		SELECT COALESCE(AVG(ABS(quantity)), 0)
		FROM (
			SELECT quantity
			FROM stock_movements
			WHERE tenant_id = $1 AND variant_id = $2 AND warehouse_id = $3
			  AND kind IN ('adjustment', 'write_off')
			ORDER BY timestamp_utc DESC
			LIMIT $4
		) recent
	`
	var avg types.Quantity
	querier := r.txManager.GetQuerier(ctx)
	if err := querier.QueryRow(ctx, sql, tenant, variant, warehouse, recentAdjustmentWindow).Scan(&avg); err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return types.Zero, fmt.Errorf("average recent adjustment magnitude: %w", err)
	}
	return avg, nil
}

// CommitMovements persists the item's new projection values and
// appends movements in a single transaction.
func (r *Repository) CommitMovements(ctx context.Context, item *entity.InventoryItem, movements []entity.StockMovement) error {
	return r.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := r.upsertItem(ctx, item); err != nil {
			return err
		}
		if err := r.insertMovements(ctx, movements); err != nil {
			return err
		}
		return r.recordOutbox(ctx, *item, movements)
	})
}

// CommitTransfer persists both legs of a transfer atomically.
func (r *Repository) CommitTransfer(ctx context.Context, source *entity.InventoryItem, out entity.StockMovement, dest *entity.InventoryItem, in entity.StockMovement) error {
	return r.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := r.upsertItem(ctx, source); err != nil {
			return fmt.Errorf("upsert source item: %w", err)
		}
		if err := r.upsertItem(ctx, dest); err != nil {
			return fmt.Errorf("upsert destination item: %w", err)
		}
		movements := []entity.StockMovement{out, in}
		if err := r.insertMovements(ctx, movements); err != nil {
			return err
		}
		if err := r.recordOutbox(ctx, *source, []entity.StockMovement{out}); err != nil {
			return err
		}
		return r.recordOutbox(ctx, *dest, []entity.StockMovement{in})
	})
}

// recordOutbox persists one StockLevelChanged event per movement,
// durable in the same transaction as the projection/ledger write.
func (r *Repository) recordOutbox(ctx context.Context, item entity.InventoryItem, movements []entity.StockMovement) error {
	for _, m := range movements {
		if err := r.outbox.Publish(ctx, postgres.DomainEvent{
			AggregateType: "InventoryItem",
			AggregateID:   item.ID.String(),
			EventType:     "StockLevelChanged",
			Payload: map[string]any{
				"item":     item,
				"movement": m,
			},
		}); err != nil {
			return fmt.Errorf("record outbox event: %w", err)
		}
	}
	return nil
}

// ListMovements returns an item's movements ordered by
// (timestampUtc, insertionOrder) ascending.
func (r *Repository) ListMovements(ctx context.Context, itemID id.InventoryItemID) ([]entity.StockMovement, error) {
	q := r.builder.Select(movementColumns...).From(stockMovementsTable).
		Where(squirrel.Eq{"inventory_item_id": itemID}).
		OrderBy("timestamp_utc ASC", "insertion_order ASC")

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select movements: %w", err)
	}

	var movements []entity.StockMovement
	querier := r.txManager.GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &movements, sql, args...); err != nil {
		return nil, fmt.Errorf("select movements: %w", err)
	}
	return movements, nil
}

func (r *Repository) upsertItem(ctx context.Context, item *entity.InventoryItem) error {
	if item.ID.IsZero() {
		item.ID = id.NewInventoryItemID()
	}

	values := postgres.StructToMap(*item)
	insert := r.builder.Insert(inventoryItemsTable).SetMap(values).
		Suffix(`ON CONFLICT (tenant_id, variant_id, warehouse_id) DO UPDATE SET
			total_stock = EXCLUDED.total_stock,
			reserved_stock = EXCLUDED.reserved_stock,
			allow_negative_stock = EXCLUDED.allow_negative_stock,
			expiry_date = EXCLUDED.expiry_date,
			low_stock_threshold = EXCLUDED.low_stock_threshold,
			updated_at_utc = EXCLUDED.updated_at_utc
		RETURNING id`)

	sql, args, err := insert.ToSql()
	if err != nil {
		return fmt.Errorf("build upsert item: %w", err)
	}

	querier := r.txManager.GetQuerier(ctx)
	if err := querier.QueryRow(ctx, sql, args...).Scan(&item.ID); err != nil {
		return fmt.Errorf("upsert item: %w", err)
	}
	return nil
}

func (r *Repository) insertMovements(ctx context.Context, movements []entity.StockMovement) error {
	if len(movements) == 0 {
		return nil
	}

	insert := r.builder.Insert(stockMovementsTable).Columns(movementColumns...)
	for _, m := range movements {
		if m.ID.IsZero() {
			m.ID = id.NewMovementID()
		}
		row := postgres.StructToMap(m)
		values := make([]any, len(movementColumns))
		for i, col := range movementColumns {
			values[i] = row[col]
		}
		insert = insert.Values(values...)
	}

	sql, args, err := insert.ToSql()
	if err != nil {
		return fmt.Errorf("build insert movements: %w", err)
	}

	querier := r.txManager.GetQuerier(ctx)
	if _, err := querier.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert movements: %w", err)
	}
	return nil
}

var _ ledger.Repository = (*Repository)(nil)

// Package dashboard_repo provides the PostgreSQL read side for the
// dashboard metrics cache (spec §4.4) and doubles as the TenantLister/
// ItemLister every cron-scheduled background job (dashboard refresher,
// alert scanner, reservation sweeper) needs to enumerate tenants and
// items. Grounded on the ledger_repo sibling package's pattern.
package dashboard_repo

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"invengine/internal/core/entity"
	"invengine/internal/core/id"
	"invengine/internal/domain/alert"
	"invengine/internal/domain/dashboard"
	"invengine/internal/infrastructure/storage/postgres"
)

const (
	inventoryItemsTable = "inventory_items"
	stockMovementsTable = "stock_movements"
)

var itemColumns = postgres.ExtractDBColumns[entity.InventoryItem]()

// Repository implements dashboard.Repository, dashboard.TenantLister,
// and alert.ItemLister/alert.TenantLister against PostgreSQL.
type Repository struct {
	txManager *postgres.TxManager
	builder   squirrel.StatementBuilderType
}

// New constructs a Repository.
func New(txManager *postgres.TxManager) *Repository {
	return &Repository{
		txManager: txManager,
		builder:   squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// ListItems returns every non-deleted InventoryItem for the tenant,
// narrowed to scope's warehouse when scope is not global.
func (r *Repository) ListItems(ctx context.Context, tenant id.TenantID, scope entity.DashboardScope) ([]entity.InventoryItem, error) {
	q := r.builder.Select(itemColumns...).From(inventoryItemsTable).
		Where(squirrel.Eq{"tenant_id": tenant, "deleted": false})

	if !scope.IsGlobal() {
		q = q.Where(squirrel.Eq{"warehouse_id": *scope.WarehouseID})
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select items: %w", err)
	}

	var items []entity.InventoryItem
	querier := r.txManager.GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &items, sql, args...); err != nil {
		return nil, fmt.Errorf("select items: %w", err)
	}
	return items, nil
}

// MovementRates sums inbound/outbound movement quantity over
// [start, end) for the tenant, narrowed by scope.
func (r *Repository) MovementRates(ctx context.Context, tenant id.TenantID, scope entity.DashboardScope, start, end time.Time) (entity.MovementRates, error) {
	sql := `
		SELECT
			COALESCE(SUM(CASE WHEN quantity > 0 THEN quantity ELSE 0 END), 0) AS inbound_total,
			COALESCE(SUM(CASE WHEN quantity < 0 THEN ABS(quantity) ELSE 0 END), 0) AS outbound_total
		FROM stock_movements
		WHERE tenant_id = $1 AND timestamp_utc >= $2 AND timestamp_utc < $3
	`
	args := []any{tenant, start, end}
	if !scope.IsGlobal() {
		sql += " AND warehouse_id = $4"
		args = append(args, *scope.WarehouseID)
	}

	var rates entity.MovementRates
	querier := r.txManager.GetQuerier(ctx)
	if err := querier.QueryRow(ctx, sql, args...).Scan(&rates.InboundTotal, &rates.OutboundTotal); err != nil {
		return entity.MovementRates{}, fmt.Errorf("sum movement rates: %w", err)
	}
	return rates, nil
}

// ListActiveTenants enumerates distinct tenants with at least one
// non-deleted inventory item, the set every cron-scheduled background
// job iterates over.
func (r *Repository) ListActiveTenants(ctx context.Context) ([]id.TenantID, error) {
	q := r.builder.Select("DISTINCT tenant_id").From(inventoryItemsTable).
		Where(squirrel.Eq{"deleted": false})

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select tenants: %w", err)
	}

	var tenants []id.TenantID
	querier := r.txManager.GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &tenants, sql, args...); err != nil {
		return nil, fmt.Errorf("select active tenants: %w", err)
	}
	return tenants, nil
}

var (
	_ dashboard.Repository   = (*Repository)(nil)
	_ dashboard.TenantLister = (*Repository)(nil)
	_ alert.ItemLister       = (*Repository)(nil)
	_ alert.TenantLister     = (*Repository)(nil)
)

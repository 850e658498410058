package dashboard

import (
	"context"
	"time"

	"invengine/internal/core/entity"
	"invengine/internal/core/id"
)

// Repository is the read side the dashboard metrics compute function
// needs from the ledger and reservation projections.
type Repository interface {
	// ListItems returns every non-deleted InventoryItem for the tenant,
	// narrowed to scope's warehouse when scope is not global.
	ListItems(ctx context.Context, tenant id.TenantID, scope entity.DashboardScope) ([]entity.InventoryItem, error)

	// MovementRates sums inbound/outbound movement quantity over
	// [start, end) for the tenant, narrowed by scope.
	MovementRates(ctx context.Context, tenant id.TenantID, scope entity.DashboardScope, start, end time.Time) (entity.MovementRates, error)
}

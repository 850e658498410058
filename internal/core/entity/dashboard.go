package entity

import (
	"time"

	"invengine/internal/core/id"
	"invengine/internal/core/types"
)

// DashboardScope narrows a metrics snapshot to the whole tenant or a
// single warehouse (spec §4.4 "Scope ∈ {global, byWarehouse(id)}").
type DashboardScope struct {
	WarehouseID *id.WarehouseID
}

// GlobalScope returns the tenant-wide scope.
func GlobalScope() DashboardScope { return DashboardScope{} }

// WarehouseScope narrows metrics to a single warehouse.
func WarehouseScope(warehouseID id.WarehouseID) DashboardScope {
	return DashboardScope{WarehouseID: &warehouseID}
}

// IsGlobal reports whether this scope is tenant-wide.
func (s DashboardScope) IsGlobal() bool { return s.WarehouseID == nil }

// Key returns a stable string for cache keys and map lookups.
func (s DashboardScope) Key() string {
	if s.WarehouseID == nil {
		return "global"
	}
	return "warehouse:" + s.WarehouseID.String()
}

// PeriodKind enumerates the rolling windows a DashboardMetrics snapshot
// can be computed over (spec §4.4 "period ∈ {hour, day, week, month,
// custom(start,end)}").
type PeriodKind string

const (
	PeriodHour   PeriodKind = "hour"
	PeriodDay    PeriodKind = "day"
	PeriodWeek   PeriodKind = "week"
	PeriodMonth  PeriodKind = "month"
	PeriodCustom PeriodKind = "custom"
)

// Period is a concrete window: one of the named rolling periods, or an
// explicit (start, end) custom range.
type Period struct {
	Kind  PeriodKind
	Start time.Time
	End   time.Time
}

func HourPeriod() Period  { return Period{Kind: PeriodHour} }
func DayPeriod() Period   { return Period{Kind: PeriodDay} }
func WeekPeriod() Period  { return Period{Kind: PeriodWeek} }
func MonthPeriod() Period { return Period{Kind: PeriodMonth} }

// CustomPeriod builds an explicit, non-cacheable [start, end) window.
func CustomPeriod(start, end time.Time) Period {
	return Period{Kind: PeriodCustom, Start: start, End: end}
}

// Key returns a stable string for cache keys. Custom periods are keyed
// by their exact bounds, which in practice means they are never reused
// across requests and therefore never served from cache hits.
func (p Period) Key() string {
	if p.Kind != PeriodCustom {
		return string(p.Kind)
	}
	return "custom:" + p.Start.UTC().Format(time.RFC3339) + ":" + p.End.UTC().Format(time.RFC3339)
}

// Bounds resolves a named period to concrete [start, end) instants
// anchored at now. Custom periods return their own bounds unchanged.
func (p Period) Bounds(now time.Time) (start, end time.Time) {
	switch p.Kind {
	case PeriodHour:
		return now.Add(-time.Hour), now
	case PeriodDay:
		return now.Add(-24 * time.Hour), now
	case PeriodWeek:
		return now.Add(-7 * 24 * time.Hour), now
	case PeriodMonth:
		return now.Add(-30 * 24 * time.Hour), now
	default:
		return p.Start, p.End
	}
}

// MovementRates summarizes inbound/outbound quantity totals over a
// period (spec §4.4 "StockMovementRates").
type MovementRates struct {
	InboundTotal  types.Quantity `json:"inboundTotal"`
	OutboundTotal types.Quantity `json:"outboundTotal"`
}

// WarehouseBreakdown is one warehouse's contribution to a dashboard
// snapshot (spec §4.4 "a per-warehouse breakdown").
type WarehouseBreakdown struct {
	WarehouseID            id.WarehouseID `json:"warehouseId"`
	AvailableStock         types.Quantity `json:"availableStock"`
	ReservedStock          types.Quantity `json:"reservedStock"`
	LowStockVariantCount   int            `json:"lowStockVariantCount"`
	OutOfStockVariantCount int            `json:"outOfStockVariantCount"`
}

// DashboardMetrics is the computed read-model payload cached per
// (tenant, scope, period) (spec §4.4 "Metrics fields").
type DashboardMetrics struct {
	TenantID id.TenantID    `json:"tenantId"`
	Scope    DashboardScope `json:"-"`
	Period   Period         `json:"-"`

	TotalStockValue        *types.Quantity `json:"totalStockValue,omitempty"`
	TotalAvailableStock    types.Quantity  `json:"totalAvailableStock"`
	TotalReservedStock     types.Quantity  `json:"totalReservedStock"`
	LowStockVariantCount   int             `json:"lowStockVariantCount"`
	OutOfStockVariantCount int             `json:"outOfStockVariantCount"`
	ExpiredVariantCount    int             `json:"expiredVariantCount"`
	ExpiringVariantCount   int             `json:"expiringVariantCount"`

	Warehouses []WarehouseBreakdown `json:"warehouses"`
	Rates      MovementRates        `json:"rates"`

	ComputedAtUTC time.Time `json:"computedAtUtc"`
}

package entity

import (
	"time"

	"invengine/internal/core/id"
)

// AlertKind enumerates the conditions the alert detector raises (spec §4.5).
type AlertKind string

const (
	AlertLowStock           AlertKind = "low_stock"
	AlertOutOfStock         AlertKind = "out_of_stock"
	AlertExpiringSoon       AlertKind = "expiring_soon"
	AlertExpired            AlertKind = "expired"
	AlertReservationExpiring AlertKind = "reservation_expiring"
	AlertUnusualAdjustment  AlertKind = "unusual_adjustment"
)

// AlertSeverity is a coarse ranking consumed by the notification
// fan-out and dashboard widgets (spec §4.5).
type AlertSeverity string

const (
	SeverityInfo     AlertSeverity = "info"
	SeverityWarning  AlertSeverity = "warning"
	SeverityCritical AlertSeverity = "critical"
)

// Alert is a derived record: never the source of truth, always
// recomputable from the current projection and ledger state (spec §4.5
// "Alerts are derived, not stored as a ledger of their own").
type Alert struct {
	ID       id.AlertID    `db:"id" json:"id"`
	TenantID id.TenantID   `db:"tenant_id" json:"tenantId"`
	Kind     AlertKind     `db:"kind" json:"kind"`
	Severity AlertSeverity `db:"severity" json:"severity"`

	VariantID   *id.VariantID   `db:"variant_id" json:"variantId,omitempty"`
	WarehouseID *id.WarehouseID `db:"warehouse_id" json:"warehouseId,omitempty"`

	Message string   `db:"message" json:"message"`
	Details Metadata `db:"details" json:"details,omitempty"`

	RaisedAtUTC    time.Time  `db:"raised_at_utc" json:"raisedAtUtc"`
	Acknowledged   bool       `db:"acknowledged" json:"acknowledged"`
	AcknowledgedBy id.ActorID `db:"acknowledged_by" json:"acknowledgedBy,omitempty"`
	AcknowledgedAt *time.Time `db:"acknowledged_at" json:"acknowledgedAt,omitempty"`
}

// Acknowledge records who silenced an alert and when. Acknowledging an
// alert does not remove the underlying condition: the next detection
// pass re-raises it if the condition still holds (spec §4.5).
func (a *Alert) Acknowledge(by id.ActorID, at time.Time) {
	a.Acknowledged = true
	a.AcknowledgedBy = by
	a.AcknowledgedAt = &at
}

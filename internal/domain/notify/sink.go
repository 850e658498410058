package notify

import (
	"context"
	"sync"
	"time"

	"invengine/internal/core/entity"
	"invengine/internal/core/id"
	"invengine/internal/domain/alert"
	"invengine/pkg/logger"
)

// StockLevelChangedPayload is the event payload shape for the primary
// stock event (spec §6 "StockLevelChanged").
type StockLevelChangedPayload struct {
	TenantID         id.TenantID        `json:"tenantId"`
	VariantID        id.VariantID       `json:"variantId"`
	WarehouseID      id.WarehouseID     `json:"warehouseId"`
	TotalStock       string             `json:"totalStock"`
	ReservedStock    string             `json:"reservedStock"`
	AvailableStock   string             `json:"availableStock"`
	LastMovementKind entity.MovementKind `json:"lastMovementKind"`
	Timestamp        time.Time          `json:"timestamp"`
}

// ReservationChangedPayload is the shared shape for
// ReservationCreated/Modified/Fulfilled/Cancelled/Expired (spec §6).
type ReservationChangedPayload struct {
	TenantID          id.TenantID              `json:"tenantId"`
	ReservationID     id.ReservationID         `json:"reservationId"`
	VariantID         id.VariantID             `json:"variantId"`
	WarehouseID       id.WarehouseID           `json:"warehouseId"`
	CurrentQuantity   string                   `json:"currentQuantity"`
	FulfilledQuantity string                   `json:"fulfilledQuantity"`
	Status            entity.ReservationStatus `json:"status"`
	Timestamp         time.Time                `json:"timestamp"`
}

// Invalidator is the dashboard cache's invalidation hook. Kept as a
// narrow interface here so notify does not import the dashboard
// package's full Service surface.
type Invalidator interface {
	Invalidate(ctx context.Context, tenant id.TenantID, warehouse *id.WarehouseID) error
}

// EventSink bridges the ledger and reservation domain services to the
// Broker: it satisfies both ledger.EventSink and reservation.EventSink
// by structural typing, translating their calls into published Events
// plus a coalesced dashboard invalidation. It also satisfies
// ledger.AlertSink, and runs the item/reservation alert rules inline
// on every StockLevelChanged/ReservationChanged so that threshold
// alerts are co-emitted with the primary event (spec §4.5 "after any
// successful stock or reservation operation ... plus derived alert
// events if the post-state crosses a threshold"), not only surfaced
// later by alert.Scanner's periodic sweep.
type EventSink struct {
	broker      *Broker
	invalidator Invalidator
	coalescer   *dashboardCoalescer
	detector    *alert.Detector
}

// NewEventSink constructs an EventSink publishing through broker and
// invalidating the dashboard cache via invalidator, coalescing
// dashboard-update publishes within window (recommended 1s per spec
// §4.5). detector may be nil, in which case inline alert derivation is
// skipped and alerts are only discovered by the periodic scanner.
func NewEventSink(broker *Broker, invalidator Invalidator, window time.Duration, detector *alert.Detector) *EventSink {
	return &EventSink{
		broker:      broker,
		invalidator: invalidator,
		coalescer:   newDashboardCoalescer(broker, window),
		detector:    detector,
	}
}

// StockLevelChanged implements ledger.EventSink.
func (s *EventSink) StockLevelChanged(ctx context.Context, item entity.InventoryItem, lastMovement entity.StockMovement) {
	payload := StockLevelChangedPayload{
		TenantID:         item.TenantID,
		VariantID:        item.VariantID,
		WarehouseID:      item.WarehouseID,
		TotalStock:       item.TotalStock.String(),
		ReservedStock:    item.ReservedStock.String(),
		AvailableStock:   item.Available().String(),
		LastMovementKind: lastMovement.Kind,
		Timestamp:        lastMovement.TimestampUTC,
	}
	now := lastMovement.TimestampUTC

	s.broker.Publish(ctx, Event{
		Group:         WarehouseGroup(item.TenantID, item.WarehouseID),
		Kind:          "StockLevelChanged",
		Payload:       payload,
		OccurredAtUTC: now,
	})
	s.broker.Publish(ctx, Event{
		Group:         VariantGroup(item.TenantID, item.VariantID),
		Kind:          "StockLevelChanged",
		Payload:       payload,
		OccurredAtUTC: now,
	})

	s.invalidateAndCoalesce(ctx, item.TenantID, item.WarehouseID)
	s.evaluateItemAlerts(ctx, item)
}

// ReservationChanged implements reservation.EventSink.
func (s *EventSink) ReservationChanged(ctx context.Context, res entity.Reservation, item entity.InventoryItem) {
	payload := ReservationChangedPayload{
		TenantID:          res.TenantID,
		ReservationID:     res.ID,
		VariantID:         res.VariantID,
		WarehouseID:       res.WarehouseID,
		CurrentQuantity:   res.CurrentQuantity.String(),
		FulfilledQuantity: res.FulfilledQuantity.String(),
		Status:            res.Status,
		Timestamp:         res.UpdatedAt,
	}
	eventKind := reservationEventKind(res.Status)

	s.broker.Publish(ctx, Event{
		Group:         WarehouseGroup(res.TenantID, res.WarehouseID),
		Kind:          eventKind,
		Payload:       payload,
		OccurredAtUTC: res.UpdatedAt,
	})
	s.broker.Publish(ctx, Event{
		Group:         VariantGroup(res.TenantID, res.VariantID),
		Kind:          eventKind,
		Payload:       payload,
		OccurredAtUTC: res.UpdatedAt,
	})

	s.invalidateAndCoalesce(ctx, res.TenantID, res.WarehouseID)
	s.evaluateReservationAlert(ctx, res)
}

// AlertRaised implements ledger.AlertSink, publishing an alert raised
// inline by a committing operation (currently Adjustment's
// UnusualAdjustment check) the same way a threshold-crossing alert
// found here is published.
func (s *EventSink) AlertRaised(ctx context.Context, a entity.Alert) {
	s.publishAlert(ctx, a.TenantID, a)
}

func (s *EventSink) evaluateItemAlerts(ctx context.Context, item entity.InventoryItem) {
	if s.detector == nil {
		return
	}
	alerts, err := s.detector.EvaluateItem(ctx, item)
	if err != nil {
		logger.Warn(ctx, "inline item alert evaluation failed", "item_id", item.ID.String(), "error", err)
		return
	}
	for _, a := range alerts {
		s.publishAlert(ctx, item.TenantID, a)
	}
}

func (s *EventSink) evaluateReservationAlert(ctx context.Context, res entity.Reservation) {
	if s.detector == nil {
		return
	}
	a, triggered, err := s.detector.EvaluateReservation(ctx, res)
	if err != nil {
		logger.Warn(ctx, "inline reservation alert evaluation failed", "reservation_id", res.ID.String(), "error", err)
		return
	}
	if !triggered {
		return
	}
	s.publishAlert(ctx, res.TenantID, a)
}

func (s *EventSink) publishAlert(ctx context.Context, tenant id.TenantID, a entity.Alert) {
	s.broker.Publish(ctx, Event{
		Group:         AlertGroup(tenant, string(a.Kind)),
		Kind:          string(a.Kind),
		Payload:       a,
		OccurredAtUTC: a.RaisedAtUTC,
	})
}

func reservationEventKind(status entity.ReservationStatus) string {
	switch status {
	case entity.ReservationActive:
		return "ReservationCreated"
	case entity.ReservationPartiallyFulfilled, entity.ReservationFulfilled:
		return "ReservationFulfilled"
	case entity.ReservationCancelled:
		return "ReservationCancelled"
	case entity.ReservationExpired:
		return "ReservationExpired"
	default:
		return "ReservationModified"
	}
}

func (s *EventSink) invalidateAndCoalesce(ctx context.Context, tenant id.TenantID, warehouse id.WarehouseID) {
	if s.invalidator != nil {
		if err := s.invalidator.Invalidate(ctx, tenant, &warehouse); err != nil {
			logger.Warn(ctx, "dashboard invalidation failed", "tenant_id", tenant.String(), "error", err)
		}
	}
	s.coalescer.touch(ctx, tenant)
}

// dashboardCoalescer publishes at most one DashboardMetricsUpdated
// event per tenant per window, per spec §4.5 "Dashboard metric updates
// are emitted coalesced: at most once per (tenant, scope) per
// coalescing window".
type dashboardCoalescer struct {
	broker *Broker
	window time.Duration

	mu      sync.Mutex
	pending map[id.TenantID]*time.Timer
}

func newDashboardCoalescer(broker *Broker, window time.Duration) *dashboardCoalescer {
	if window <= 0 {
		window = time.Second
	}
	return &dashboardCoalescer{broker: broker, window: window, pending: make(map[id.TenantID]*time.Timer)}
}

func (c *dashboardCoalescer) touch(ctx context.Context, tenant id.TenantID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, scheduled := c.pending[tenant]; scheduled {
		return
	}
	c.pending[tenant] = time.AfterFunc(c.window, func() {
		c.mu.Lock()
		delete(c.pending, tenant)
		c.mu.Unlock()
		c.broker.Publish(ctx, Event{
			Group:         DashboardGroup(tenant),
			Kind:          "DashboardMetricsUpdated",
			Payload:       tenant,
			OccurredAtUTC: time.Now(),
		})
	})
}

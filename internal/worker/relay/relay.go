// Package relay drains the transactional outbox (spec §5's
// "committed-then-emitted" durability guarantee) into the in-process
// notification broker. It exists alongside the ledger/reservation
// services' direct, same-process publish to notify.EventSink: that
// path is immediate but lossy across a crash between commit and
// publish; this path re-delivers anything the direct path missed,
// at the cost of at-least-once (never at-most-once) delivery.
// Grounded on the teacher's postgres.OutboxRelay, run here on the
// same cron cadence as the other background jobs.
package relay

import (
	"context"
	"encoding/json"
	"time"

	"github.com/robfig/cron/v3"

	"invengine/internal/domain/notify"
	"invengine/internal/infrastructure/storage/postgres"
	"invengine/pkg/logger"
)

const (
	defaultInterval  = 10 * time.Second
	defaultBatchSize = 100
)

// BrokerHandler implements postgres.OutboxHandler, republishing each
// outbox message onto the notify.Broker groups its payload identifies.
type BrokerHandler struct {
	broker *notify.Broker
}

// NewBrokerHandler constructs a BrokerHandler.
func NewBrokerHandler(broker *notify.Broker) *BrokerHandler {
	return &BrokerHandler{broker: broker}
}

// Handle decodes msg.Payload's tenant/warehouse/variant identity and
// republishes to every group spec §4.5 says should hear about it.
func (h *BrokerHandler) Handle(ctx context.Context, msg *postgres.OutboxMessage) error {
	var facts struct {
		TenantID    string `json:"tenantId"`
		WarehouseID string `json:"warehouseId"`
		VariantID   string `json:"variantId"`
		Item        *struct {
			TenantID    string `json:"tenantId"`
			WarehouseID string `json:"warehouseId"`
			VariantID   string `json:"variantId"`
		} `json:"item"`
	}
	if err := json.Unmarshal(msg.Payload, &facts); err != nil {
		logger.Error(ctx, "relay: undecodable outbox payload, dropping", "event_type", msg.EventType, "error", err)
		return nil
	}
	if facts.Item != nil {
		facts.TenantID, facts.WarehouseID, facts.VariantID = facts.Item.TenantID, facts.Item.WarehouseID, facts.Item.VariantID
	}

	var payload any
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return nil
	}
	evt := notify.Event{Kind: msg.EventType, Payload: payload, OccurredAtUTC: time.Now().UTC()}

	if facts.TenantID == "" {
		return nil
	}
	if facts.WarehouseID != "" {
		evt.Group = "tenant:" + facts.TenantID + ":warehouse:" + facts.WarehouseID
		h.broker.Publish(ctx, evt)
	}
	if facts.VariantID != "" {
		evt.Group = "tenant:" + facts.TenantID + ":variant:" + facts.VariantID
		h.broker.Publish(ctx, evt)
	}
	return nil
}

// Relay periodically drains pending outbox messages into the broker.
type Relay struct {
	inner    *postgres.OutboxRelay
	interval time.Duration
}

// New constructs a Relay that drains the outbox through relay.
func New(relay *postgres.OutboxRelay) *Relay {
	return &Relay{inner: relay, interval: defaultInterval}
}

// WithInterval overrides the default drain cadence.
func (r *Relay) WithInterval(d time.Duration) *Relay {
	r.interval = d
	return r
}

// Run blocks, draining the outbox on a cron schedule until ctx is
// cancelled.
func (r *Relay) Run(ctx context.Context) {
	c := cron.New()
	_, err := c.AddFunc("@every "+r.interval.String(), func() { r.drainOnce(ctx) })
	if err != nil {
		logger.Error(ctx, "outbox relay: invalid schedule, falling back to ticker", "error", err)
		r.runWithTicker(ctx)
		return
	}
	c.Start()
	defer c.Stop()
	<-ctx.Done()
}

func (r *Relay) runWithTicker(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.drainOnce(ctx)
		}
	}
}

func (r *Relay) drainOnce(ctx context.Context) {
	n, err := r.inner.ProcessBatch(ctx)
	if err != nil {
		logger.Error(ctx, "outbox relay: drain failed", "error", err)
		return
	}
	if n > 0 {
		logger.Info(ctx, "outbox relay: drained messages", "count", n)
	}
}

// Package notify implements the real-time notification fan-out (spec
// §4.5): subscription groups keyed by warehouse, variant, alert kind,
// and dashboard; an internal channel decoupling the committing
// operation from delivery; and a small dispatcher pool draining it.
// Grounded on the teacher's infrastructure/cache SchemaCache
// invalidation-listener dispatch (handleNotification's panic-recovered
// fan-out to registered listeners), generalized from a single
// Postgres LISTEN/NOTIFY channel to arbitrary named subscription
// groups and from synchronous same-goroutine dispatch to a pooled,
// channel-buffered one so Publish never blocks the caller.
package notify

import (
	"context"
	"sync"
	"time"

	"invengine/internal/core/id"
	"invengine/pkg/logger"
)

// Event is one notification delivered to a group's subscribers.
type Event struct {
	Group         string
	Kind          string
	Payload       any
	OccurredAtUTC time.Time
}

// WarehouseGroup keys the "stock changes in a warehouse" subscription
// (spec §4.5).
func WarehouseGroup(tenant id.TenantID, warehouse id.WarehouseID) string {
	return "tenant:" + tenant.String() + ":warehouse:" + warehouse.String()
}

// VariantGroup keys the "stock changes for a variant across
// warehouses" subscription.
func VariantGroup(tenant id.TenantID, variant id.VariantID) string {
	return "tenant:" + tenant.String() + ":variant:" + variant.String()
}

// AlertGroup keys the "alert stream for a kind" subscription.
func AlertGroup(tenant id.TenantID, kind string) string {
	return "tenant:" + tenant.String() + ":alerts:" + kind
}

// DashboardGroup keys the "aggregated metric updates" subscription.
func DashboardGroup(tenant id.TenantID) string {
	return "tenant:" + tenant.String() + ":dashboard"
}

// Subscription is a live handle a caller reads Events from.
type Subscription struct {
	id     int64
	group  string
	ch     chan Event
	broker *Broker
}

// Events returns the channel Events for this subscription's group
// arrive on. Delivery is best-effort: a slow reader can miss events
// (spec §4.5 "Delivery ... on reconnect a subscriber may re-request a
// snapshot").
func (s *Subscription) Events() <-chan Event { return s.ch }

// Close unsubscribes and releases the channel.
func (s *Subscription) Close() {
	s.broker.unsubscribe(s)
}

const (
	defaultQueueDepth  = 256
	defaultDispatchers = 4
	defaultSubBuffer   = 32
)

// Broker fans events out to subscribers by group, never blocking the
// publisher (spec §5 "events are enqueued inside the lock and
// published after release").
type Broker struct {
	ingest chan Event

	mu     sync.RWMutex
	nextID int64
	subs   map[string]map[int64]*Subscription

	workers int
	wg      sync.WaitGroup
}

// NewBroker constructs a Broker with the default queue depth and
// dispatcher pool size.
func NewBroker() *Broker {
	return &Broker{
		ingest:  make(chan Event, defaultQueueDepth),
		subs:    make(map[string]map[int64]*Subscription),
		workers: defaultDispatchers,
	}
}

// Run starts the dispatcher pool and blocks until ctx is cancelled.
func (b *Broker) Run(ctx context.Context) {
	b.wg.Add(b.workers)
	for i := 0; i < b.workers; i++ {
		go func() {
			defer b.wg.Done()
			b.dispatchLoop(ctx)
		}()
	}
	<-ctx.Done()
	b.wg.Wait()
}

func (b *Broker) dispatchLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt := <-b.ingest:
			b.deliver(ctx, evt)
		}
	}
}

func (b *Broker) deliver(ctx context.Context, evt Event) {
	b.mu.RLock()
	subs := b.subs[evt.Group]
	targets := make([]*Subscription, 0, len(subs))
	for _, sub := range subs {
		targets = append(targets, sub)
	}
	b.mu.RUnlock()

	for _, sub := range targets {
		func() {
			defer func() {
				if r := recover(); r != nil {
					logger.Error(ctx, "notify subscriber panicked", "group", evt.Group, "panic", r)
				}
			}()
			select {
			case sub.ch <- evt:
			default:
				logger.Warn(ctx, "notify subscriber queue full, dropping event", "group", evt.Group)
			}
		}()
	}
}

// Publish enqueues an event for delivery. It never blocks the caller
// beyond a full ingest queue, in which case the event is dropped and
// logged rather than backing up the committing operation.
func (b *Broker) Publish(ctx context.Context, evt Event) {
	select {
	case b.ingest <- evt:
	default:
		logger.Warn(ctx, "notify ingest queue full, dropping event", "group", evt.Group, "kind", evt.Kind)
	}
}

// Subscribe registers a new subscription to group.
func (b *Broker) Subscribe(group string) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	sub := &Subscription{id: b.nextID, group: group, ch: make(chan Event, defaultSubBuffer), broker: b}
	if b.subs[group] == nil {
		b.subs[group] = make(map[int64]*Subscription)
	}
	b.subs[group][sub.id] = sub
	return sub
}

func (b *Broker) unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	group := b.subs[sub.group]
	if group == nil {
		return
	}
	delete(group, sub.id)
	if len(group) == 0 {
		delete(b.subs, sub.group)
	}
}

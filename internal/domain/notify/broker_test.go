package notify_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"invengine/internal/core/id"
	"invengine/internal/domain/notify"
)

func runBroker(t *testing.T) (*notify.Broker, context.Context) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	broker := notify.NewBroker()
	go broker.Run(ctx)
	return broker, ctx
}

func TestSubscribePublishDeliversToMatchingGroup(t *testing.T) {
	broker, ctx := runBroker(t)
	tenant := id.NewTenantID()
	warehouse := id.NewWarehouseID()
	group := notify.WarehouseGroup(tenant, warehouse)

	sub := broker.Subscribe(group)
	defer sub.Close()

	broker.Publish(ctx, notify.Event{Group: group, Kind: "StockLevelChanged", Payload: "payload"})

	select {
	case evt := <-sub.Events():
		assert.Equal(t, "StockLevelChanged", evt.Kind)
		assert.Equal(t, group, evt.Group)
	case <-time.After(time.Second):
		t.Fatal("expected event was not delivered")
	}
}

func TestPublishDoesNotLeakAcrossGroups(t *testing.T) {
	broker, ctx := runBroker(t)
	tenant := id.NewTenantID()
	groupA := notify.WarehouseGroup(tenant, id.NewWarehouseID())
	groupB := notify.WarehouseGroup(tenant, id.NewWarehouseID())

	subA := broker.Subscribe(groupA)
	subB := broker.Subscribe(groupB)
	defer subA.Close()
	defer subB.Close()

	broker.Publish(ctx, notify.Event{Group: groupA, Kind: "StockLevelChanged"})

	select {
	case evt := <-subA.Events():
		assert.Equal(t, groupA, evt.Group)
	case <-time.After(time.Second):
		t.Fatal("expected event was not delivered to subA")
	}

	select {
	case evt := <-subB.Events():
		t.Fatalf("subB should not have received an event for groupA, got %+v", evt)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestCloseUnsubscribesCleanly(t *testing.T) {
	broker, ctx := runBroker(t)
	tenant := id.NewTenantID()
	group := notify.VariantGroup(tenant, id.NewVariantID())

	sub := broker.Subscribe(group)
	sub.Close()

	// Publishing after Close must not panic or deadlock, and the closed
	// subscription's channel must not receive anything further.
	broker.Publish(ctx, notify.Event{Group: group, Kind: "StockLevelChanged"})

	select {
	case evt, ok := <-sub.Events():
		if ok {
			t.Fatalf("closed subscription should not receive events, got %+v", evt)
		}
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSlowSubscriberDropsEventsInsteadOfBlockingPublisher(t *testing.T) {
	broker, ctx := runBroker(t)
	tenant := id.NewTenantID()
	group := notify.AlertGroup(tenant, "LowStock")

	sub := broker.Subscribe(group)
	defer sub.Close()

	// Flood well past both the subscriber buffer and the ingest queue
	// without ever draining sub.Events(); none of these Publish calls
	// may block the caller.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 2000; i++ {
			broker.Publish(ctx, notify.Event{Group: group, Kind: "LowStock"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked under a saturated slow subscriber")
	}
}

func TestEventsFromUnrelatedGroupNeverArrive(t *testing.T) {
	broker, ctx := runBroker(t)
	tenant := id.NewTenantID()
	sub := broker.Subscribe(notify.DashboardGroup(tenant))
	defer sub.Close()

	broker.Publish(ctx, notify.Event{Group: notify.AlertGroup(tenant, "Expiring"), Kind: "Expiring"})

	select {
	case evt := <-sub.Events():
		t.Fatalf("dashboard subscriber should not see alert events, got %+v", evt)
	case <-time.After(150 * time.Millisecond):
	}
}

package sweeper_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"invengine/internal/core/apperror"
	"invengine/internal/core/entity"
	"invengine/internal/core/id"
	"invengine/internal/worker/sweeper"
)

type fakeLister struct {
	mu           sync.Mutex
	reservations []entity.Reservation
}

func (f *fakeLister) ListExpiring(_ context.Context, cutoff time.Time, limit int) ([]entity.Reservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []entity.Reservation
	for _, r := range f.reservations {
		if r.Status.IsTerminal() || r.ExpiresAtUTC.After(cutoff) {
			continue
		}
		out = append(out, r)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

type fakeExpirer struct {
	mu          sync.Mutex
	expiredIDs  map[id.ReservationID]bool
	expireCalls int32
}

func newFakeExpirer() *fakeExpirer {
	return &fakeExpirer{expiredIDs: make(map[id.ReservationID]bool)}
}

func (f *fakeExpirer) Expire(_ context.Context, reservationID id.ReservationID) (entity.Reservation, error) {
	atomic.AddInt32(&f.expireCalls, 1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.expiredIDs[reservationID] {
		return entity.Reservation{}, apperror.NewBusinessRule(apperror.CodeBusinessRule, "already terminal")
	}
	f.expiredIDs[reservationID] = true
	return entity.Reservation{ID: reservationID, Status: entity.ReservationExpired}, nil
}

func TestWakeUpTriggersImmediateSweep(t *testing.T) {
	now := time.Now()
	res := entity.Reservation{
		ID:           id.NewReservationID(),
		TenantID:     id.NewTenantID(),
		Status:       entity.ReservationActive,
		ExpiresAtUTC: now.Add(-time.Second),
	}
	lister := &fakeLister{reservations: []entity.Reservation{res}}
	expirer := newFakeExpirer()

	sw := sweeper.New(lister, expirer, sweeper.WithInterval(time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		sw.Run(ctx)
		close(done)
	}()

	sw.WakeUp(now)

	require.Eventually(t, func() bool {
		expirer.mu.Lock()
		defer expirer.mu.Unlock()
		return expirer.expiredIDs[res.ID]
	}, time.Second, 5*time.Millisecond)

	cancel()
	<-done
}

func TestWakeUpIsCoalesced(t *testing.T) {
	lister := &fakeLister{}
	expirer := newFakeExpirer()
	sw := sweeper.New(lister, expirer, sweeper.WithInterval(time.Hour))

	sw.WakeUp(time.Now())
	sw.WakeUp(time.Now())
	sw.WakeUp(time.Now())
	// Coalescing is a property of the internal buffered channel; the only
	// externally observable guarantee is that calling WakeUp repeatedly
	// without a consumer never blocks.
	assert.NotPanics(t, func() { sw.WakeUp(time.Now()) })
}

func TestSweepSkipsAlreadyTerminalReservations(t *testing.T) {
	now := time.Now()
	activeRes := entity.Reservation{
		ID:           id.NewReservationID(),
		TenantID:     id.NewTenantID(),
		Status:       entity.ReservationActive,
		ExpiresAtUTC: now.Add(-time.Minute),
	}
	terminalRes := entity.Reservation{
		ID:           id.NewReservationID(),
		TenantID:     id.NewTenantID(),
		Status:       entity.ReservationCancelled,
		ExpiresAtUTC: now.Add(-time.Minute),
	}
	lister := &fakeLister{reservations: []entity.Reservation{activeRes, terminalRes}}
	expirer := newFakeExpirer()
	sw := sweeper.New(lister, expirer, sweeper.WithInterval(time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	go sw.Run(ctx)
	defer cancel()

	sw.WakeUp(now)

	require.Eventually(t, func() bool {
		expirer.mu.Lock()
		defer expirer.mu.Unlock()
		return expirer.expiredIDs[activeRes.ID]
	}, time.Second, 5*time.Millisecond)

	expirer.mu.Lock()
	_, terminalWasExpired := expirer.expiredIDs[terminalRes.ID]
	expirer.mu.Unlock()
	assert.False(t, terminalWasExpired)
}

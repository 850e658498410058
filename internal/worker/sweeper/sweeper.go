// Package sweeper implements the reservation expiry sweeper (spec
// §4.3): a periodic worker that scans non-terminal reservations past
// their expiresAtUtc and transitions each to Expired under its owning
// item's lock. Grounded on the teacher's cmd/worker MultiTenantWorker
// ticker loop (cmd/worker/main.go), generalized from per-tenant polling
// to a single cross-tenant scan, and scheduled with robfig/cron/v3
// rather than a bare time.Ticker. The ad hoc WakeUp nudge is served by
// Run's own select loop, not by the cron schedule.
package sweeper

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"invengine/internal/core/entity"
	"invengine/internal/core/id"
	"invengine/internal/core/tenantctx"
	"invengine/internal/domain/reservation"
	"invengine/pkg/logger"
)

const (
	defaultInterval  = 30 * time.Second
	defaultBatchSize = 500
)

// Lister is the read side the sweeper needs from
// reservation.Repository: the set of reservations due for expiry.
type Lister interface {
	ListExpiring(ctx context.Context, cutoff time.Time, limit int) ([]entity.Reservation, error)
}

// Expirer is the write side the sweeper drives: transitioning one
// reservation to Expired. reservation.Service satisfies this.
type Expirer interface {
	Expire(ctx context.Context, reservationID id.ReservationID) (entity.Reservation, error)
}

// Sweeper runs the periodic expiry scan.
type Sweeper struct {
	lister    Lister
	expirer   Expirer
	interval  time.Duration
	batchSize int
	clock     func() time.Time

	cron   *cron.Cron
	wakeUp chan struct{}

	mu      sync.Mutex
	running bool
}

// Option configures a Sweeper.
type Option func(*Sweeper)

// WithInterval overrides the default 30s scan interval.
func WithInterval(d time.Duration) Option {
	return func(s *Sweeper) { s.interval = d }
}

// WithBatchSize overrides the default 500-row bound per tick.
func WithBatchSize(n int) Option {
	return func(s *Sweeper) { s.batchSize = n }
}

// New constructs a Sweeper. It does not start scanning until Run is called.
func New(lister Lister, expirer Expirer, opts ...Option) *Sweeper {
	s := &Sweeper{
		lister:    lister,
		expirer:   expirer,
		interval:  defaultInterval,
		batchSize: defaultBatchSize,
		clock:     time.Now,
		wakeUp:    make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// WakeUp nudges the sweeper to run a sweep promptly, coalesced: if a
// wake-up is already pending, this call is a no-op (spec §4.3
// "accepts a WakeUp(before=T) nudge (coalesced)"). before is accepted
// for callers that want to log intent but does not affect which
// reservations are swept; the sweep itself always uses now().
func (s *Sweeper) WakeUp(before time.Time) {
	select {
	case s.wakeUp <- struct{}{}:
	default:
	}
}

// Run blocks, scanning on a fixed interval and whenever WakeUp fires,
// until ctx is cancelled. Safe to call from exactly one goroutine.
func (s *Sweeper) Run(ctx context.Context) {
	s.mu.Lock()
	s.running = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	c := cron.New()
	scheduleSpec := "@every " + s.interval.String()
	entryID, err := c.AddFunc(scheduleSpec, func() { s.sweepOnce(ctx) })
	if err != nil {
		logger.Error(ctx, "sweeper failed to schedule, falling back to direct ticker", "error", err)
		s.runWithTicker(ctx)
		return
	}
	s.cron = c
	c.Start()
	defer func() {
		c.Remove(entryID)
		<-c.Stop().Done()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.wakeUp:
			s.sweepOnce(ctx)
		}
	}
}

func (s *Sweeper) runWithTicker(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepOnce(ctx)
		case <-s.wakeUp:
			s.sweepOnce(ctx)
		}
	}
}

// sweepOnce processes at most one bounded batch. It is idempotent:
// reservations another sweeper already transitioned are simply absent
// from the next ListExpiring call, so a race between two sweepers on
// the same row converges on whichever one's Expire call observes the
// still-non-terminal state first; the loser's Expire returns a
// business-rule error that is logged and skipped.
func (s *Sweeper) sweepOnce(ctx context.Context) {
	now := s.clock()
	due, err := s.lister.ListExpiring(ctx, now, s.batchSize)
	if err != nil {
		logger.Error(ctx, "sweeper failed to list expiring reservations", "error", err)
		return
	}
	if len(due) == 0 {
		return
	}

	expired := 0
	for _, res := range due {
		select {
		case <-ctx.Done():
			return
		default:
		}

		tenantCtx := tenantctx.With(ctx, tenantctx.Context{
			TenantID: res.TenantID,
			ActorID:  id.SystemActorID(),
		})
		if _, err := s.expirer.Expire(tenantCtx, res.ID); err != nil {
			logger.Debug(tenantCtx, "sweeper skipped reservation",
				"reservation_id", res.ID.String(), "error", err)
			continue
		}
		expired++
	}
	if expired > 0 {
		logger.Info(ctx, "sweeper expired reservations", "count", expired, "scanned", len(due))
	}
}

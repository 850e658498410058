package alert

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"invengine/internal/core/entity"
	"invengine/internal/core/id"
	"invengine/internal/core/tenantctx"
	"invengine/pkg/logger"
)

// defaultScanInterval matches the dashboard refresher's cadence. The
// scan is a catch-up pass: notify.EventSink already evaluates item and
// reservation alerts inline after each write when it has a detector,
// and ledger.Service raises UnusualAdjustment inline after an
// Adjustment commits.
const defaultScanInterval = time.Minute

// ItemLister lists every InventoryItem for a tenant, reused from the
// dashboard package's Repository shape so a single Postgres adapter
// can serve both.
type ItemLister interface {
	ListItems(ctx context.Context, tenant id.TenantID, scope entity.DashboardScope) ([]entity.InventoryItem, error)
}

// ReservationLister lists a tenant's non-terminal reservations.
type ReservationLister interface {
	ListActive(ctx context.Context, tenant id.TenantID) ([]entity.Reservation, error)
}

// TenantLister enumerates tenants with at least one inventory item,
// shared with the dashboard refresher.
type TenantLister interface {
	ListActiveTenants(ctx context.Context) ([]id.TenantID, error)
}

// Scanner periodically runs a Detector over every tenant's items and
// active reservations, publishing raised alerts. Grounded on the
// dashboard package's Refresher (itself grounded on the teacher's
// cron-scheduled background jobs).
type Scanner struct {
	detector    *Detector
	items       ItemLister
	reservations ReservationLister
	tenants     TenantLister
	publish     func(ctx context.Context, group string, kind string, payload any)
	interval    time.Duration
}

// NewScanner constructs a Scanner. publishFn adapts an alert to the
// caller's notification transport (typically notify.Broker.Publish
// against notify.AlertGroup(tenant, kind)).
func NewScanner(det *Detector, items ItemLister, reservations ReservationLister, tenants TenantLister, publishFn func(ctx context.Context, group, kind string, payload any)) *Scanner {
	return &Scanner{
		detector:     det,
		items:        items,
		reservations: reservations,
		tenants:      tenants,
		publish:      publishFn,
		interval:     defaultScanInterval,
	}
}

// WithInterval overrides the default scan cadence.
func (s *Scanner) WithInterval(d time.Duration) *Scanner {
	s.interval = d
	return s
}

// Run blocks, scanning every tenant on each tick until ctx is
// cancelled.
func (s *Scanner) Run(ctx context.Context) {
	c := cron.New()
	_, err := c.AddFunc("@every "+s.interval.String(), func() { s.scanOnce(ctx) })
	if err != nil {
		logger.Error(ctx, "alert scanner: invalid schedule, falling back to ticker", "error", err)
		s.runWithTicker(ctx)
		return
	}
	c.Start()
	defer c.Stop()
	<-ctx.Done()
}

func (s *Scanner) runWithTicker(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.scanOnce(ctx)
		}
	}
}

func (s *Scanner) scanOnce(ctx context.Context) {
	tenants, err := s.tenants.ListActiveTenants(ctx)
	if err != nil {
		logger.Error(ctx, "alert scanner: list tenants failed", "error", err)
		return
	}

	raised := 0
	for _, tenant := range tenants {
		tctx := tenantctx.With(ctx, tenantctx.Context{TenantID: tenant, ActorID: id.SystemActorID()})

		items, err := s.items.ListItems(tctx, tenant, entity.GlobalScope())
		if err != nil {
			logger.Error(tctx, "alert scanner: list items failed", "tenant_id", tenant.String(), "error", err)
			continue
		}
		for _, item := range items {
			alerts, err := s.detector.EvaluateItem(tctx, item)
			if err != nil {
				logger.Error(tctx, "alert scanner: evaluate item failed", "error", err)
				continue
			}
			for _, a := range alerts {
				s.emit(tctx, tenant, a)
				raised++
			}
		}

		res, err := s.reservations.ListActive(tctx, tenant)
		if err != nil {
			logger.Error(tctx, "alert scanner: list reservations failed", "tenant_id", tenant.String(), "error", err)
			continue
		}
		for _, r := range res {
			a, ok, err := s.detector.EvaluateReservation(tctx, r)
			if err != nil {
				logger.Error(tctx, "alert scanner: evaluate reservation failed", "error", err)
				continue
			}
			if ok {
				s.emit(tctx, tenant, a)
				raised++
			}
		}
	}
	logger.Info(ctx, "alert scan complete", "tenants", len(tenants), "alerts_raised", raised)
}

func (s *Scanner) emit(ctx context.Context, tenant id.TenantID, a entity.Alert) {
	if s.publish == nil {
		return
	}
	s.publish(ctx, alertGroup(tenant, string(a.Kind)), string(a.Kind), a)
}

func alertGroup(tenant id.TenantID, kind string) string {
	return "tenant:" + tenant.String() + ":alerts:" + kind
}

package alert

import (
	"context"
	"fmt"
	"time"

	"invengine/internal/core/entity"
	"invengine/internal/core/id"
	"invengine/internal/core/tenantctx"
	"invengine/internal/core/types"
)

// DefaultExpiringWindow is how far ahead of an item's expiry date the
// Expiring rule starts firing (spec §4.5 default).
const DefaultExpiringWindow = 7 * 24 * time.Hour

// DefaultReservationWindow is how far ahead of a reservation's expiry
// the ReservationExpiring rule starts firing.
const DefaultReservationWindow = 2 * time.Hour

// DefaultUnusualMultiplier is how many times the recent average
// adjustment magnitude a single adjustment must exceed to be flagged.
const DefaultUnusualMultiplier = 5.0

// Detector evaluates compiled rules against inventory items,
// reservations, and adjustments, producing (unpersisted) entity.Alert
// records. Detector does not own acknowledgement state or storage:
// callers persist/dedupe as they see fit, matching spec §4.5 "derived,
// not stored as a ledger of their own".
type Detector struct {
	itemRules        []compiledRule
	reservationRule  compiledRule
	adjustmentRule   compiledRule

	expiringWindow     time.Duration
	reservationWindow  time.Duration
	unusualMultiplier  float64
	now                func() time.Time
}

// Option customizes a Detector at construction.
type Option func(*Detector)

// WithExpiringWindow overrides DefaultExpiringWindow.
func WithExpiringWindow(d time.Duration) Option {
	return func(det *Detector) { det.expiringWindow = d }
}

// WithReservationWindow overrides DefaultReservationWindow.
func WithReservationWindow(d time.Duration) Option {
	return func(det *Detector) { det.reservationWindow = d }
}

// WithUnusualMultiplier overrides DefaultUnusualMultiplier.
func WithUnusualMultiplier(m float64) Option {
	return func(det *Detector) { det.unusualMultiplier = m }
}

// WithItemRules replaces the default LowStock/OutOfStock/Expiring/
// Expired rule set with tenant-configured ones.
func WithItemRules(rules []Rule) Option {
	return func(det *Detector) {
		env, err := itemEnv()
		if err != nil {
			return
		}
		det.itemRules = det.itemRules[:0]
		for _, r := range rules {
			if cr, err := compile(env, r); err == nil {
				det.itemRules = append(det.itemRules, cr)
			}
		}
	}
}

// NewDetector compiles the default rule set. Compilation errors in the
// built-in expressions are a programming error, not a runtime
// condition, so NewDetector panics rather than returning an error a
// caller could silently ignore.
func NewDetector(opts ...Option) *Detector {
	iEnv, err := itemEnv()
	if err != nil {
		panic(fmt.Errorf("alert: build item env: %w", err))
	}
	rEnv, err := reservationEnv()
	if err != nil {
		panic(fmt.Errorf("alert: build reservation env: %w", err))
	}
	aEnv, err := adjustmentEnv()
	if err != nil {
		panic(fmt.Errorf("alert: build adjustment env: %w", err))
	}

	itemRules := make([]compiledRule, 0, len(DefaultRules()))
	for _, r := range DefaultRules() {
		cr, err := compile(iEnv, r)
		if err != nil {
			panic(fmt.Errorf("alert: %w", err))
		}
		itemRules = append(itemRules, cr)
	}
	reservationRule, err := compile(rEnv, DefaultReservationRule())
	if err != nil {
		panic(fmt.Errorf("alert: %w", err))
	}
	adjustmentRule, err := compile(aEnv, DefaultUnusualAdjustmentRule())
	if err != nil {
		panic(fmt.Errorf("alert: %w", err))
	}

	det := &Detector{
		itemRules:         itemRules,
		reservationRule:   reservationRule,
		adjustmentRule:    adjustmentRule,
		expiringWindow:    DefaultExpiringWindow,
		reservationWindow: DefaultReservationWindow,
		unusualMultiplier: DefaultUnusualMultiplier,
		now:               time.Now,
	}
	for _, opt := range opts {
		opt(det)
	}
	return det
}

func (d *Detector) clock() time.Time { return d.now() }

// EvaluateItem runs the LowStock/OutOfStock/Expiring/Expired rules
// against one item's current projection and returns every alert whose
// condition currently holds.
func (d *Detector) EvaluateItem(ctx context.Context, item entity.InventoryItem) ([]entity.Alert, error) {
	tc, err := tenantctx.From(ctx)
	if err != nil {
		return nil, err
	}
	now := d.clock()

	hasExpiry := item.ExpiryDate != nil
	isExpired := hasExpiry && item.ExpiryDate.Before(now)
	daysUntilExpiry := 0.0
	if hasExpiry && !isExpired {
		daysUntilExpiry = item.ExpiryDate.Sub(now).Hours() / 24.0
	}
	hasThreshold := item.LowStockThreshold != nil
	threshold := 0.0
	if hasThreshold {
		threshold, _ = item.LowStockThreshold.Decimal().Float64()
	}
	available, _ := item.Available().Decimal().Float64()
	total, _ := item.TotalStock.Decimal().Float64()
	reserved, _ := item.ReservedStock.Decimal().Float64()

	facts := map[string]any{
		"available":            available,
		"totalStock":           total,
		"reservedStock":        reserved,
		"hasLowStockThreshold": hasThreshold,
		"lowStockThreshold":    threshold,
		"hasExpiry":            hasExpiry,
		"isExpired":            isExpired,
		"daysUntilExpiry":      daysUntilExpiry,
		"expiringWindowDays":   d.expiringWindow.Hours() / 24.0,
	}

	var alerts []entity.Alert
	for _, rule := range d.itemRules {
		triggered, err := evalBool(rule.program, facts)
		if err != nil {
			return nil, fmt.Errorf("evaluate rule %s: %w", rule.Kind, err)
		}
		if !triggered {
			continue
		}
		variantID := item.VariantID
		warehouseID := item.WarehouseID
		alerts = append(alerts, entity.Alert{
			ID:          id.NewAlertID(),
			TenantID:    tc.TenantID,
			Kind:        rule.Kind,
			Severity:    rule.Severity,
			VariantID:   &variantID,
			WarehouseID: &warehouseID,
			Message:     itemAlertMessage(rule.Kind, item),
			RaisedAtUTC: now,
		})
	}
	return alerts, nil
}

// EvaluateReservation runs ReservationExpiring against one reservation.
// It returns a zero-value alert and ok=false when the rule doesn't
// fire, so callers can skip terminal or far-future reservations
// without allocating.
func (d *Detector) EvaluateReservation(ctx context.Context, res entity.Reservation) (entity.Alert, bool, error) {
	if res.Status.IsTerminal() {
		return entity.Alert{}, false, nil
	}
	now := d.clock()
	hoursUntilExpiry := res.ExpiresAtUTC.Sub(now).Hours()

	facts := map[string]any{
		"hoursUntilExpiry":       hoursUntilExpiry,
		"reservationWindowHours": d.reservationWindow.Hours(),
	}
	triggered, err := evalBool(d.reservationRule.program, facts)
	if err != nil {
		return entity.Alert{}, false, fmt.Errorf("evaluate reservation rule: %w", err)
	}
	if !triggered {
		return entity.Alert{}, false, nil
	}

	variantID := res.VariantID
	warehouseID := res.WarehouseID
	return entity.Alert{
		ID:          id.NewAlertID(),
		TenantID:    res.TenantID,
		Kind:        d.reservationRule.Kind,
		Severity:    d.reservationRule.Severity,
		VariantID:   &variantID,
		WarehouseID: &warehouseID,
		Message:     fmt.Sprintf("reservation %s expires in %.1f hours", res.ID.String(), hoursUntilExpiry),
		RaisedAtUTC: now,
	}, true, nil
}

// EvaluateAdjustment runs UnusualAdjustment against one Adjustment
// movement, comparing its magnitude to the item's recent average
// adjustment magnitude (caller-supplied, typically a trailing-window
// average over prior Adjustment/WriteOff movements for the same item).
func (d *Detector) EvaluateAdjustment(ctx context.Context, movement entity.StockMovement, recentAverageMagnitude types.Quantity) (entity.Alert, bool, error) {
	magnitude, _ := movement.Quantity.Abs().Decimal().Float64()
	avg, _ := recentAverageMagnitude.Decimal().Float64()

	facts := map[string]any{
		"adjustmentMagnitude":    magnitude,
		"recentAverageMagnitude": avg,
		"unusualMultiplier":      d.unusualMultiplier,
	}
	triggered, err := evalBool(d.adjustmentRule.program, facts)
	if err != nil {
		return entity.Alert{}, false, fmt.Errorf("evaluate adjustment rule: %w", err)
	}
	if !triggered {
		return entity.Alert{}, false, nil
	}

	variantID := movement.VariantID
	warehouseID := movement.WarehouseID
	return entity.Alert{
		ID:          id.NewAlertID(),
		TenantID:    movement.TenantID,
		Kind:        d.adjustmentRule.Kind,
		Severity:    d.adjustmentRule.Severity,
		VariantID:   &variantID,
		WarehouseID: &warehouseID,
		Message:     fmt.Sprintf("adjustment of %s is %.1fx the recent average", movement.Quantity.String(), magnitude/avg),
		RaisedAtUTC: d.clock(),
	}, true, nil
}

func itemAlertMessage(kind entity.AlertKind, item entity.InventoryItem) string {
	switch kind {
	case entity.AlertOutOfStock:
		return fmt.Sprintf("variant %s at warehouse %s is out of stock", item.VariantID.String(), item.WarehouseID.String())
	case entity.AlertLowStock:
		return fmt.Sprintf("variant %s at warehouse %s is low on stock (%s available)", item.VariantID.String(), item.WarehouseID.String(), item.Available().String())
	case entity.AlertExpired:
		return fmt.Sprintf("variant %s at warehouse %s has expired stock", item.VariantID.String(), item.WarehouseID.String())
	case entity.AlertExpiringSoon:
		return fmt.Sprintf("variant %s at warehouse %s has stock expiring soon", item.VariantID.String(), item.WarehouseID.String())
	default:
		return string(kind)
	}
}

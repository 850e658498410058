// Package alert implements alert detection (spec §4.5 "Alerts are
// derived, not stored as a ledger of their own"): LowStock, OutOfStock,
// Expiring, Expired, ReservationExpiring and UnusualAdjustment,
// evaluated against the current projection/movement facts by compiled
// CEL expressions rather than hard-coded Go comparisons, so operators
// can tune thresholds per tenant without a redeploy. Grounded on the
// teacher's domain/filter package (a declarative comparison-item model
// the teacher never wired to an evaluator) generalized from ad hoc
// field/operator/value triples to compiled google/cel-go programs.
package alert

import (
	"fmt"

	"github.com/google/cel-go/cel"

	"invengine/internal/core/entity"
)

// Rule is one named, independently-configurable alert condition.
type Rule struct {
	Kind       entity.AlertKind
	Severity   entity.AlertSeverity
	Expression string
}

// DefaultRules are the built-in thresholds matching spec §4.5's named
// conditions. Tenants that don't configure their own rules get these.
func DefaultRules() []Rule {
	return []Rule{
		{
			Kind:       entity.AlertOutOfStock,
			Severity:   entity.SeverityCritical,
			Expression: `available <= 0.0`,
		},
		{
			Kind:       entity.AlertLowStock,
			Severity:   entity.SeverityWarning,
			Expression: `hasLowStockThreshold && available > 0.0 && available <= lowStockThreshold`,
		},
		{
			Kind:       entity.AlertExpired,
			Severity:   entity.SeverityCritical,
			Expression: `hasExpiry && isExpired`,
		},
		{
			Kind:       entity.AlertExpiringSoon,
			Severity:   entity.SeverityWarning,
			Expression: `hasExpiry && !isExpired && daysUntilExpiry <= expiringWindowDays`,
		},
	}
}

// DefaultReservationRule flags a reservation nearing its expiry (spec
// §4.5 "ReservationExpiring").
func DefaultReservationRule() Rule {
	return Rule{
		Kind:       entity.AlertReservationExpiring,
		Severity:   entity.SeverityWarning,
		Expression: `hoursUntilExpiry > 0.0 && hoursUntilExpiry <= reservationWindowHours`,
	}
}

// DefaultUnusualAdjustmentRule flags an adjustment far larger than the
// item's recent average magnitude (spec §4.5 "UnusualAdjustment").
func DefaultUnusualAdjustmentRule() Rule {
	return Rule{
		Kind:       entity.AlertUnusualAdjustment,
		Severity:   entity.SeverityWarning,
		Expression: `recentAverageMagnitude > 0.0 && adjustmentMagnitude > recentAverageMagnitude * unusualMultiplier`,
	}
}

// itemEnv declares the facts available to item-scoped rules (LowStock,
// OutOfStock, Expiring, Expired).
func itemEnv() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("available", cel.DoubleType),
		cel.Variable("totalStock", cel.DoubleType),
		cel.Variable("reservedStock", cel.DoubleType),
		cel.Variable("hasLowStockThreshold", cel.BoolType),
		cel.Variable("lowStockThreshold", cel.DoubleType),
		cel.Variable("hasExpiry", cel.BoolType),
		cel.Variable("isExpired", cel.BoolType),
		cel.Variable("daysUntilExpiry", cel.DoubleType),
		cel.Variable("expiringWindowDays", cel.DoubleType),
	)
}

// reservationEnv declares the facts available to ReservationExpiring.
func reservationEnv() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("hoursUntilExpiry", cel.DoubleType),
		cel.Variable("reservationWindowHours", cel.DoubleType),
	)
}

// adjustmentEnv declares the facts available to UnusualAdjustment.
func adjustmentEnv() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("adjustmentMagnitude", cel.DoubleType),
		cel.Variable("recentAverageMagnitude", cel.DoubleType),
		cel.Variable("unusualMultiplier", cel.DoubleType),
	)
}

// compiledRule pairs a Rule with its compiled program.
type compiledRule struct {
	Rule
	program cel.Program
}

func compile(env *cel.Env, r Rule) (compiledRule, error) {
	ast, issues := env.Compile(r.Expression)
	if issues != nil && issues.Err() != nil {
		return compiledRule{}, fmt.Errorf("compile rule %s: %w", r.Kind, issues.Err())
	}
	prg, err := env.Program(ast)
	if err != nil {
		return compiledRule{}, fmt.Errorf("build program for rule %s: %w", r.Kind, err)
	}
	return compiledRule{Rule: r, program: prg}, nil
}

func evalBool(prg cel.Program, facts map[string]any) (bool, error) {
	out, _, err := prg.Eval(facts)
	if err != nil {
		return false, err
	}
	if b, ok := out.Value().(bool); ok {
		return b, nil
	}
	return false, fmt.Errorf("rule did not evaluate to a boolean, got %T", out.Value())
}

// Package types provides the fixed-point numeric primitives shared by the
// inventory engine: Quantity (exact decimal arithmetic, no floating
// point) and the SKU / unit-of-measure value types.
package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// QuantityScale is the number of fractional digits every Quantity is
// normalized to (spec: precision 18, scale 6).
const QuantityScale = 6

// Quantity is a fixed-point decimal with scale 6, always expressed in a
// variant's base unit. Unlike the teacher's int64-scaled Quantity, this
// wraps decimal.Decimal directly so arithmetic never round-trips through
// float64 - required because the spec forbids approximate quantities.
type Quantity struct {
	d decimal.Decimal
}

// Zero is the additive identity.
var Zero = Quantity{d: decimal.Zero}

// NewQuantity wraps a decimal.Decimal, rounding to QuantityScale.
func NewQuantity(d decimal.Decimal) Quantity {
	return Quantity{d: d.Round(QuantityScale)}
}

// NewQuantityFromString parses an exact decimal string (no scientific
// notation surprises, unlike a float64 path).
func NewQuantityFromString(s string) (Quantity, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Quantity{}, fmt.Errorf("parse quantity: %w", err)
	}
	return NewQuantity(d), nil
}

// NewQuantityFromInt64 is a convenience constructor for whole-unit amounts.
func NewQuantityFromInt64(v int64) Quantity {
	return Quantity{d: decimal.NewFromInt(v)}
}

// MustQuantity parses or panics; use only for literals in tests and constants.
func MustQuantity(s string) Quantity {
	q, err := NewQuantityFromString(s)
	if err != nil {
		panic(err)
	}
	return q
}

func (q Quantity) Decimal() decimal.Decimal { return q.d }

func (q Quantity) Add(other Quantity) Quantity { return NewQuantity(q.d.Add(other.d)) }
func (q Quantity) Sub(other Quantity) Quantity { return NewQuantity(q.d.Sub(other.d)) }
func (q Quantity) Neg() Quantity               { return NewQuantity(q.d.Neg()) }
func (q Quantity) Abs() Quantity               { return NewQuantity(q.d.Abs()) }

func (q Quantity) IsZero() bool     { return q.d.IsZero() }
func (q Quantity) IsPositive() bool { return q.d.IsPositive() }
func (q Quantity) IsNegative() bool { return q.d.IsNegative() }

func (q Quantity) GreaterThan(other Quantity) bool        { return q.d.GreaterThan(other.d) }
func (q Quantity) GreaterThanOrEqual(other Quantity) bool { return q.d.GreaterThanOrEqual(other.d) }
func (q Quantity) LessThan(other Quantity) bool           { return q.d.LessThan(other.d) }
func (q Quantity) LessThanOrEqual(other Quantity) bool    { return q.d.LessThanOrEqual(other.d) }
func (q Quantity) Equal(other Quantity) bool              { return q.d.Equal(other.d) }

func (q Quantity) String() string { return q.d.StringFixed(QuantityScale) }

// MarshalJSON encodes as a JSON string to preserve exact decimal digits
// (a bare JSON number would round-trip through float64 in most decoders).
func (q Quantity) MarshalJSON() ([]byte, error) {
	return json.Marshal(q.String())
}

func (q *Quantity) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		// Accept a bare JSON number too, for lenient callers.
		var f json.Number
		if err2 := json.Unmarshal(data, &f); err2 != nil {
			return fmt.Errorf("unmarshal quantity: %w", err)
		}
		s = f.String()
	}
	parsed, err := NewQuantityFromString(s)
	if err != nil {
		return err
	}
	*q = parsed
	return nil
}

// Value implements driver.Valuer for storage as PostgreSQL NUMERIC(18,6).
func (q Quantity) Value() (driver.Value, error) {
	return q.String(), nil
}

// Scan implements sql.Scanner.
func (q *Quantity) Scan(src any) error {
	if src == nil {
		*q = Zero
		return nil
	}
	switch v := src.(type) {
	case string:
		parsed, err := NewQuantityFromString(v)
		if err != nil {
			return err
		}
		*q = parsed
		return nil
	case []byte:
		parsed, err := NewQuantityFromString(string(v))
		if err != nil {
			return err
		}
		*q = parsed
		return nil
	case float64:
		*q = NewQuantity(decimal.NewFromFloat(v))
		return nil
	default:
		return fmt.Errorf("unsupported quantity scan source: %T", src)
	}
}

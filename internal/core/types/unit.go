package types

import "fmt"

// UnitOfMeasure names the unit a quantity is expressed in. Conversions
// between units are metadata only: they inform display/ordering in
// other-unit packs, but the ledger always records quantities in a
// variant's base unit (spec §3 "Unit conversions are metadata only and
// never participate in ledger math").
type UnitOfMeasure struct {
	Code     string // e.g. "EA", "KG", "BOX"
	Category string // unit-type category, e.g. "count", "weight", "volume"
}

// UnitConversion is a from -> to factor within the same Category.
type UnitConversion struct {
	From   UnitOfMeasure
	To     UnitOfMeasure
	Factor Quantity // From * Factor = To, Factor > 0
}

// Validate checks the conversion's invariants (spec §3 Variant):
// factor > 0 and both units share a unit-type category.
func (c UnitConversion) Validate() error {
	if c.From.Category != c.To.Category {
		return fmt.Errorf("unit conversion crosses categories: %s -> %s", c.From.Category, c.To.Category)
	}
	if !c.Factor.IsPositive() {
		return fmt.Errorf("unit conversion factor must be positive, got %s", c.Factor)
	}
	return nil
}

// Convert applies the factor to a quantity expressed in From, returning
// the equivalent quantity expressed in To. Display/metadata use only.
func (c UnitConversion) Convert(q Quantity) (Quantity, error) {
	if err := c.Validate(); err != nil {
		return Quantity{}, err
	}
	return NewQuantity(q.Decimal().Mul(c.Factor.Decimal())), nil
}

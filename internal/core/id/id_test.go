package id

import "testing"

func TestDistinctKindsNeverEqual(t *testing.T) {
	v := NewVariantID()
	w := WarehouseID{v.v}

	if v.String() != w.String() {
		t.Fatalf("expected identical underlying bytes, got %s vs %s", v.String(), w.String())
	}

	// VariantID and WarehouseID are different Go types; the compiler
	// already prevents v == w from type-checking. What we can assert at
	// runtime is that each type's zero value and parse round-trip behave
	// independently per kind.
	var zeroVariant VariantID
	var zeroWarehouse WarehouseID
	if !zeroVariant.IsZero() || !zeroWarehouse.IsZero() {
		t.Fatalf("zero values should report IsZero")
	}
}

func TestParseRoundTrip(t *testing.T) {
	v := NewVariantID()
	parsed, err := ParseVariantID(v.String())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if parsed.String() != v.String() {
		t.Fatalf("round trip mismatch: %s != %s", parsed.String(), v.String())
	}
}

func TestParseInvalid(t *testing.T) {
	if _, err := ParseVariantID("not-a-uuid"); err == nil {
		t.Fatal("expected error for invalid uuid")
	}
}

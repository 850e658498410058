package types

import (
	"fmt"
	"strings"
)

// SKU is a variant's immutable public identifier: 3-50 characters,
// uppercase alphanumeric plus '-'/'_'. Normalized (upper-cased, trimmed)
// on construction so two different-case inputs never collide silently.
type SKU struct {
	v string
}

// NewSKU validates and normalizes a raw SKU string.
func NewSKU(raw string) (SKU, error) {
	normalized := strings.ToUpper(strings.TrimSpace(raw))
	if len(normalized) < 3 || len(normalized) > 50 {
		return SKU{}, fmt.Errorf("sku must be 3-50 characters, got %d", len(normalized))
	}
	for _, r := range normalized {
		switch {
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '-' || r == '_':
		default:
			return SKU{}, fmt.Errorf("sku contains invalid character %q", r)
		}
	}
	return SKU{v: normalized}, nil
}

func (s SKU) String() string { return s.v }
func (s SKU) IsZero() bool   { return s.v == "" }

func (s SKU) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.v + `"`), nil
}

func (s *SKU) UnmarshalJSON(data []byte) error {
	raw := strings.Trim(string(data), `"`)
	parsed, err := NewSKU(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

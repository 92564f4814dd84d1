package types

import (
	"bytes"
	"fmt"

	"github.com/shopspring/decimal"
)

// Money is a currency amount rendered in JSON as a bare number with two decimals.
type Money struct {
	decimal.Decimal
}

func NewMoney(d decimal.Decimal) Money {
	return Money{Decimal: d}
}

// MoneyPtr returns nil for a nil input so optional amounts stay omitted.
func MoneyPtr(d *decimal.Decimal) *Money {
	if d == nil {
		return nil
	}
	m := NewMoney(*d)
	return &m
}

func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.Decimal.StringFixed(2)), nil
}

// UnmarshalJSON accepts both bare numbers and quoted strings.
func (m *Money) UnmarshalJSON(data []byte) error {
	trimmed := bytes.Trim(bytes.TrimSpace(data), `"`)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		m.Decimal = decimal.Zero
		return nil
	}
	parsed, err := decimal.NewFromString(string(trimmed))
	if err != nil {
		return fmt.Errorf("money: invalid amount %q: %w", string(data), err)
	}
	m.Decimal = parsed
	return nil
}

package models

import (
	"strconv"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Money is a decimal amount with two fraction digits. It scans from and
// writes to NUMERIC columns and renders as a fixed-point JSON string.
type Money struct {
	decimal.Decimal
}

// NewMoney rounds d half-up to two places.
func NewMoney(d decimal.Decimal) Money {
	return Money{d.Round(2)}
}

// MustMoney parses a literal such as "990.00" and panics on malformed input.
func MustMoney(s string) Money {
	return NewMoney(decimal.RequireFromString(s))
}

func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(m.StringFixed(2))), nil
}

func (m Money) String() string {
	return m.StringFixed(2)
}

// JSONOr returns j, or def when j is empty, so NOT NULL jsonb columns never
// receive NULL.
func JSONOr(j datatypes.JSON, def string) datatypes.JSON {
	if len(j) == 0 || string(j) == "null" {
		return datatypes.JSON(def)
	}
	return j
}

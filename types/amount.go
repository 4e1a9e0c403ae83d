// Package types provides the value types shared across the thermal ledger.
package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// Decimals is the number of fractional digits of the display unit.
const Decimals = 2

// unit is the number of hundredths in one display unit.
const unit = 100

// ErrOverflow is returned when checked arithmetic would leave the int64 range.
var ErrOverflow = errors.New("types: amount overflow")

// ErrInvalidAmount is returned when a decimal string cannot be represented
// as a non-negative count of hundredths.
var ErrInvalidAmount = errors.New("types: invalid amount")

// Amount is a quantity expressed in hundredths of the display unit
// (one TAT is 100, one kWh of energy is 100). All arithmetic is
// integer-only and checked.
//
// Examples:
//   - Amount(10000) = 100.00 TAT
//   - Amount(4550)  = 45.50
type Amount int64

// Zero is the zero Amount.
const Zero Amount = 0

// FromWhole converts a whole number of display units into an Amount.
func FromWhole(n int64) (Amount, error) {
	return Amount(n).Mul(unit)
}

// ParseAmount parses a display-unit decimal string ("123.45") into an
// Amount. More than two fractional digits or a negative value is rejected.
func ParseAmount(s string) (Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	if d.IsNegative() {
		return 0, fmt.Errorf("%w: %q is negative", ErrInvalidAmount, s)
	}
	scaled := d.Shift(Decimals)
	if !scaled.Equal(scaled.Truncate(0)) {
		return 0, fmt.Errorf("%w: %q has more than %d decimals", ErrInvalidAmount, s, Decimals)
	}
	if scaled.GreaterThan(decimal.NewFromInt(math.MaxInt64)) {
		return 0, fmt.Errorf("%w: %q", ErrOverflow, s)
	}
	return Amount(scaled.IntPart()), nil
}

// MustParseAmount is like ParseAmount but panics on error. Use for
// hardcoded values.
func MustParseAmount(s string) Amount {
	a, err := ParseAmount(s)
	if err != nil {
		panic(err)
	}
	return a
}

// Add returns a+b or ErrOverflow.
func (a Amount) Add(b Amount) (Amount, error) {
	if (b > 0 && a > math.MaxInt64-b) || (b < 0 && a < math.MinInt64-b) {
		return 0, ErrOverflow
	}
	return a + b, nil
}

// Sub returns a-b or ErrOverflow.
func (a Amount) Sub(b Amount) (Amount, error) {
	if (b < 0 && a > math.MaxInt64+b) || (b > 0 && a < math.MinInt64+b) {
		return 0, ErrOverflow
	}
	return a - b, nil
}

// Mul returns a*n or ErrOverflow.
func (a Amount) Mul(n int64) (Amount, error) {
	if a == 0 || n == 0 {
		return 0, nil
	}
	r := int64(a) * n
	if r/n != int64(a) || (int64(a) == -1 && n == math.MinInt64) || (n == -1 && int64(a) == math.MinInt64) {
		return 0, ErrOverflow
	}
	return Amount(r), nil
}

// IsPositive returns true if the amount is greater than zero.
func (a Amount) IsPositive() bool { return a > 0 }

// IsNegative returns true if the amount is less than zero.
func (a Amount) IsNegative() bool { return a < 0 }

// IsZero returns true if the amount is zero.
func (a Amount) IsZero() bool { return a == 0 }

// Hundredths returns the raw count of hundredths.
func (a Amount) Hundredths() int64 { return int64(a) }

// Whole returns the amount in whole display units, floored.
func (a Amount) Whole() int64 {
	q := int64(a) / unit
	if a < 0 && int64(a)%unit != 0 {
		q--
	}
	return q
}

// Decimal returns the amount in display units as a decimal.
func (a Amount) Decimal() decimal.Decimal {
	return decimal.New(int64(a), -Decimals)
}

// String formats the amount in display units with two decimals.
func (a Amount) String() string {
	return a.Decimal().StringFixed(Decimals)
}

// MarshalJSON encodes the amount as its raw hundredths count.
func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(int64(a))
}

// UnmarshalJSON accepts a hundredths count or a display-unit string.
func (a *Amount) UnmarshalJSON(data []byte) error {
	var n int64
	if err := json.Unmarshal(data, &n); err == nil {
		*a = Amount(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidAmount, data)
	}
	parsed, err := ParseAmount(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

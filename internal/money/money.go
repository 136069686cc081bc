// Package money holds the fixed-point arithmetic used for balances, prices and
// stock quantities. Values are shopspring decimals end to end; rounding to two
// places happens only when an amount is presented (Amount) or persisted.
package money

import (
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// Scale is the number of fractional digits shown to players and stored in NUMERIC columns.
const Scale = 2

var (
	ErrInsufficientBalance = errors.New("balance would go negative")
	ErrInsufficientUnits   = errors.New("quantity would go negative")
	ErrInvalidQuantity     = errors.New("quantity must be > 0")
	ErrInvalidPrice        = errors.New("price must be > 0")
	ErrQuantityOverflow    = errors.New("quantity overflow")
)

// Parse reads a decimal amount such as "12.50".
func Parse(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse amount %q: %w", s, err)
	}
	return d, nil
}

// MustParse is Parse for constants.
func MustParse(s string) decimal.Decimal {
	d, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return d
}

// LineTotal is price * qty without rounding.
func LineTotal(price decimal.Decimal, qty int64) decimal.Decimal {
	return price.Mul(decimal.NewFromInt(qty))
}

// Round rounds half away from zero to Scale places.
func Round(v decimal.Decimal) decimal.Decimal {
	return v.Round(Scale)
}

// Format renders v with exactly Scale fractional digits.
func Format(v decimal.Decimal) string {
	return v.StringFixed(Scale)
}

// Debit subtracts amount from balance. The balance is never clamped: a debit that
// would leave it negative is rejected.
func Debit(balance, amount decimal.Decimal) (decimal.Decimal, error) {
	if amount.IsNegative() {
		return balance, fmt.Errorf("debit of negative amount %s", amount)
	}
	next := balance.Sub(amount)
	if next.IsNegative() {
		return balance, ErrInsufficientBalance
	}
	return next, nil
}

// Credit adds a non-negative amount to balance.
func Credit(balance, amount decimal.Decimal) (decimal.Decimal, error) {
	if amount.IsNegative() {
		return balance, fmt.Errorf("credit of negative amount %s", amount)
	}
	return balance.Add(amount), nil
}

// CheckQuantity rejects non-positive unit counts.
func CheckQuantity(qty int64) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	return nil
}

// CheckPrice rejects prices that are zero or negative.
func CheckPrice(price decimal.Decimal) error {
	if !price.IsPositive() {
		return ErrInvalidPrice
	}
	return nil
}

// TakeUnits removes qty from have and fails instead of going below zero.
func TakeUnits(have, qty int64) (int64, error) {
	if err := CheckQuantity(qty); err != nil {
		return have, err
	}
	if have < qty {
		return have, ErrInsufficientUnits
	}
	return have - qty, nil
}

// AddUnits adds qty to have.
func AddUnits(have, qty int64) (int64, error) {
	if err := CheckQuantity(qty); err != nil {
		return have, err
	}
	if have > math.MaxInt64-qty {
		return have, ErrQuantityOverflow
	}
	return have + qty, nil
}

// MaxAffordable is the largest unit count whose total at unitPrice fits in balance.
func MaxAffordable(balance, unitPrice decimal.Decimal) int64 {
	if !unitPrice.IsPositive() || !balance.IsPositive() {
		return 0
	}
	units := balance.Div(unitPrice).Floor()
	if !units.IsInteger() || units.GreaterThan(decimal.NewFromInt(math.MaxInt64)) {
		return math.MaxInt64
	}
	n := units.IntPart()
	// Div is rounded to DivisionPrecision digits; step back if that pushed us one over.
	for n > 0 && LineTotal(unitPrice, n).GreaterThan(balance) {
		n--
	}
	return n
}

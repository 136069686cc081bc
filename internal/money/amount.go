package money

import (
	"github.com/shopspring/decimal"
)

// Amount is a decimal that presents itself with exactly two fractional digits.
// It is used on response payloads; arithmetic stays on decimal.Decimal.
type Amount struct {
	d decimal.Decimal
}

func A(d decimal.Decimal) Amount {
	return Amount{d: Round(d)}
}

func (a Amount) Decimal() decimal.Decimal { return a.d }

func (a Amount) String() string { return Format(a.d) }

func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(`"` + a.String() + `"`), nil
}

func (a *Amount) UnmarshalJSON(b []byte) error {
	var d decimal.Decimal
	if err := d.UnmarshalJSON(b); err != nil {
		return err
	}
	a.d = Round(d)
	return nil
}

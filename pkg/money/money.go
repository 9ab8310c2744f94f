// Package money implements fixed-point monetary values in integer minor units.
package money

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

// BasisPointsScale is the denominator for rates expressed in basis points (500 = 5%).
const BasisPointsScale int64 = 10_000

// DefaultExponent is the number of minor-unit digits used when rendering amounts.
const DefaultExponent int32 = 2

var (
	ErrCurrencyMismatch = errors.New("currency_mismatch")
	ErrInvalidCurrency  = errors.New("invalid_currency")
	ErrInvalidRate      = errors.New("invalid_rate")
)

// Money is an amount of minor units (cents, bani) in a single currency.
type Money struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

// New returns a Money with a normalized currency code.
func New(amount int64, currency string) Money {
	return Money{Amount: amount, Currency: NormalizeCurrency(currency)}
}

// Zero returns the zero value for a currency.
func Zero(currency string) Money {
	return New(0, currency)
}

// NormalizeCurrency upper-cases and trims an ISO currency code.
func NormalizeCurrency(currency string) string {
	return strings.ToUpper(strings.TrimSpace(currency))
}

func (m Money) IsZero() bool     { return m.Amount == 0 }
func (m Money) IsNegative() bool { return m.Amount < 0 }
func (m Money) IsPositive() bool { return m.Amount > 0 }

func (m Money) Add(other Money) (Money, error) {
	if err := m.sameCurrency(other); err != nil {
		return Money{}, err
	}
	return Money{Amount: m.Amount + other.Amount, Currency: m.Currency}, nil
}

func (m Money) Sub(other Money) (Money, error) {
	if err := m.sameCurrency(other); err != nil {
		return Money{}, err
	}
	return Money{Amount: m.Amount - other.Amount, Currency: m.Currency}, nil
}

// Cmp returns -1, 0 or 1. Currencies must match.
func (m Money) Cmp(other Money) (int, error) {
	if err := m.sameCurrency(other); err != nil {
		return 0, err
	}
	switch {
	case m.Amount < other.Amount:
		return -1, nil
	case m.Amount > other.Amount:
		return 1, nil
	default:
		return 0, nil
	}
}

// Mul multiplies by an integer quantity.
func (m Money) Mul(quantity int64) Money {
	return Money{Amount: m.Amount * quantity, Currency: m.Currency}
}

// ApplyRate returns round_half_up(amount * bps / 10000).
func (m Money) ApplyRate(bps int64) (Money, error) {
	if bps < 0 || bps > BasisPointsScale {
		return Money{}, ErrInvalidRate
	}
	return Money{Amount: RoundHalfUp(m.Amount*bps, BasisPointsScale), Currency: m.Currency}, nil
}

// String renders the amount in major units, e.g. "950.00 RON".
func (m Money) String() string {
	return m.Decimal().StringFixed(DefaultExponent) + " " + m.Currency
}

// Decimal converts to a decimal in major units. Display only.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.Amount, -DefaultExponent)
}

func (m Money) sameCurrency(other Money) error {
	if m.Currency == "" || other.Currency == "" {
		return ErrInvalidCurrency
	}
	if m.Currency != other.Currency {
		return ErrCurrencyMismatch
	}
	return nil
}

// RoundHalfUp divides num by den rounding halves away from zero. den must be positive.
// This is the only rounding rule used for money in the module.
func RoundHalfUp(num, den int64) int64 {
	if den <= 0 {
		panic("money: non-positive denominator")
	}
	if num >= 0 {
		return (num + den/2) / den
	}
	return -((-num + den/2) / den)
}

// FromMajor converts a major-unit decimal string ("12.50") into minor units.
func FromMajor(value string, currency string) (Money, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(value))
	if err != nil {
		return Money{}, err
	}
	minor := d.Shift(DefaultExponent).Round(0)
	return New(minor.IntPart(), currency), nil
}

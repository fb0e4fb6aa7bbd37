package money

import (
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"
)

var (
	ErrInvalidCurrency  = errors.New("money: invalid currency code")
	ErrCurrencyMismatch = errors.New("money: currency mismatch")
	ErrInvalidAmount    = errors.New("money: invalid amount")
	ErrInvalidRate      = errors.New("money: invalid conversion rate")
)

// minorDigits is the number of fraction digits kept for every supported currency.
const minorDigits = 2

// Money keeps amounts in integer minor units (cents) to avoid floating point issues.
type Money struct {
	Amount   int64
	Currency string
}

// New constructs a Money value validating minimal invariants.
func New(amount int64, currency string) (Money, error) {
	if len(currency) != 3 {
		return Money{}, ErrInvalidCurrency
	}
	currency = strings.ToUpper(currency)
	return Money{Amount: amount, Currency: currency}, nil
}

// Must creates Money and panics if validation fails; useful in tests and fixtures.
func Must(amount int64, currency string) Money {
	m, err := New(amount, currency)
	if err != nil {
		panic(err)
	}
	return m
}

// Parse reads a non-negative decimal string such as "100.00" into minor units
// without going through floating point. Extra fraction digits are accepted only
// when they are zeros.
func Parse(value, currency string) (Money, error) {
	value = strings.TrimSpace(value)
	if value == "" || strings.HasPrefix(value, "-") || strings.HasPrefix(value, "+") {
		return Money{}, ErrInvalidAmount
	}
	whole, frac, hasDot := strings.Cut(value, ".")
	if whole == "" || (hasDot && frac == "") {
		return Money{}, ErrInvalidAmount
	}
	if len(frac) > minorDigits {
		if strings.Trim(frac[minorDigits:], "0") != "" {
			return Money{}, ErrInvalidAmount
		}
		frac = frac[:minorDigits]
	}
	for len(frac) < minorDigits {
		frac += "0"
	}
	if !digitsOnly(whole) || !digitsOnly(frac) {
		return Money{}, ErrInvalidAmount
	}
	units, err := strconv.ParseInt(whole+frac, 10, 64)
	if err != nil {
		return Money{}, ErrInvalidAmount
	}
	return New(units, currency)
}

// Add adds two money values ensuring currencies match.
func (m Money) Add(other Money) (Money, error) {
	if err := m.ensureSameCurrency(other); err != nil {
		return Money{}, err
	}
	return Money{Amount: m.Amount + other.Amount, Currency: m.Currency}, nil
}

// Sub subtracts other from the receiver.
func (m Money) Sub(other Money) (Money, error) {
	if err := m.ensureSameCurrency(other); err != nil {
		return Money{}, err
	}
	return Money{Amount: m.Amount - other.Amount, Currency: m.Currency}, nil
}

// Multiply multiplies the amount by the provided factor.
func (m Money) Multiply(times int64) Money {
	return Money{Amount: m.Amount * times, Currency: m.Currency}
}

// Equal reports exact equality of amount and currency.
func (m Money) Equal(other Money) bool {
	return m.Amount == other.Amount && strings.EqualFold(m.Currency, other.Currency)
}

// IsZero returns true if the amount equals zero.
func (m Money) IsZero() bool {
	return m.Amount == 0
}

// Decimal renders the amount as a plain decimal string, e.g. "100.00".
func (m Money) Decimal() string {
	sign := ""
	amount := m.Amount
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	return fmt.Sprintf("%s%d.%02d", sign, amount/100, amount%100)
}

func (m Money) String() string {
	return m.Decimal() + " " + m.Currency
}

// ConvertWithRate converts the amount into target currency using an injected
// rate expressed as a decimal string ("0.0077"). The result is rounded half-up
// to minor units.
func (m Money) ConvertWithRate(rate string, target string) (Money, error) {
	r, ok := new(big.Rat).SetString(strings.TrimSpace(rate))
	if !ok || r.Sign() <= 0 {
		return Money{}, ErrInvalidRate
	}
	product := new(big.Rat).Mul(new(big.Rat).SetInt64(m.Amount), r)
	num := new(big.Int).Set(product.Num())
	den := product.Denom()
	// half-up: floor((2*num + den) / (2*den))
	num.Mul(num, big.NewInt(2))
	num.Add(num, den)
	num.Quo(num, new(big.Int).Mul(den, big.NewInt(2)))
	if !num.IsInt64() {
		return Money{}, ErrInvalidAmount
	}
	return New(num.Int64(), target)
}

func (m Money) ensureSameCurrency(other Money) error {
	if m.Currency == "" || other.Currency == "" {
		return ErrInvalidCurrency
	}
	if m.Currency != other.Currency {
		return ErrCurrencyMismatch
	}
	return nil
}

func digitsOnly(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

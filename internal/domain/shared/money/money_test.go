package money_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stayhub/internal/domain/shared/money"
)

func TestParseExactDecimal(t *testing.T) {
	cases := []struct {
		in   string
		want int64
	}{
		{"100", 10000},
		{"100.00", 10000},
		{"100.5", 10050},
		{"99.99", 9999},
		{"0.01", 1},
		{"12.3400", 1234},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			m, err := money.Parse(tc.in, "kes")
			require.NoError(t, err)
			assert.Equal(t, tc.want, m.Amount)
			assert.Equal(t, "KES", m.Currency)
		})
	}
}

func TestParseRejectsInvalid(t *testing.T) {
	for _, in := range []string{"", "-1", "+1", "1.", ".5", "1.001", "1e3", "ten", "1,50"} {
		_, err := money.Parse(in, "KES")
		assert.ErrorIs(t, err, money.ErrInvalidAmount, in)
	}
	_, err := money.Parse("1", "KESH")
	assert.ErrorIs(t, err, money.ErrInvalidCurrency)
}

func TestEqualIsExact(t *testing.T) {
	total := money.Must(10000, "KES")
	paid, err := money.Parse("99.99", "KES")
	require.NoError(t, err)
	assert.False(t, total.Equal(paid))

	paid, err = money.Parse("100.00", "kes")
	require.NoError(t, err)
	assert.True(t, total.Equal(paid))
	assert.False(t, total.Equal(money.Must(10000, "USD")))
}

func TestMultiplyAndDecimal(t *testing.T) {
	nightly := money.Must(2550, "KES")
	assert.Equal(t, "102.00", nightly.Multiply(4).Decimal())
	assert.Equal(t, "-0.05", money.Must(-5, "KES").Decimal())
	assert.Equal(t, "25.50 KES", nightly.String())
}

func TestAddSubCurrencyMismatch(t *testing.T) {
	_, err := money.Must(1, "KES").Add(money.Must(1, "USD"))
	assert.ErrorIs(t, err, money.ErrCurrencyMismatch)
	sum, err := money.Must(150, "KES").Sub(money.Must(50, "KES"))
	require.NoError(t, err)
	assert.Equal(t, int64(100), sum.Amount)
}

func TestConvertWithRateRoundsHalfUp(t *testing.T) {
	kes := money.Must(10000, "KES")
	usd, err := kes.ConvertWithRate("0.0077", "USD")
	require.NoError(t, err)
	assert.Equal(t, int64(77), usd.Amount)
	assert.Equal(t, "USD", usd.Currency)

	half, err := money.Must(1, "KES").ConvertWithRate("0.5", "USD")
	require.NoError(t, err)
	assert.Equal(t, int64(1), half.Amount)

	_, err = kes.ConvertWithRate("zero", "USD")
	assert.ErrorIs(t, err, money.ErrInvalidRate)
	_, err = kes.ConvertWithRate("-1", "USD")
	assert.ErrorIs(t, err, money.ErrInvalidRate)
}

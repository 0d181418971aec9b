package domain

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"1", "1000000000000000000"},
		{"0.1", "100000000000000000"},
		{".5", "500000000000000000"},
		{"2.", "2000000000000000000"},
		{" 3.25 ", "3250000000000000000"},
		{"0.000000000000000001", "1"},
		{"0.0000000000000000019", "1"}, // más de 18 decimales se trunca
		{"0", "0"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseAmount(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestParseAmount_Invalid(t *testing.T) {
	for _, in := range []string{"", "abc", "-1", "+1", "1.2.3", "1e18", "1.-5"} {
		_, err := ParseAmount(in)
		assert.Error(t, err, in)
	}
}

func TestFormatAmount(t *testing.T) {
	oneCelo := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

	assert.Equal(t, "0 CELO", FormatAmount(nil))
	assert.Equal(t, "0 CELO", FormatAmount(big.NewInt(0)))
	assert.Equal(t, "1.000 CELO", FormatAmount(oneCelo))
	assert.Equal(t, "300.000 CELO", FormatAmount(new(big.Int).Mul(oneCelo, big.NewInt(300))))

	v, err := ParseAmount("1.23456")
	require.NoError(t, err)
	assert.Equal(t, "1.234 CELO", FormatAmount(v))

	// Por debajo de una milésima se muestra como 0.000.
	assert.Equal(t, "0.000 CELO", FormatAmount(big.NewInt(1)))
}

func TestFormatAmount_PoolTotalEqualsSubtotalSum(t *testing.T) {
	oneCelo := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	hundred := new(big.Int).Mul(oneCelo, big.NewInt(100))
	p := Pool{
		Total:     new(big.Int).Mul(oneCelo, big.NewInt(300)),
		ByOutcome: [NumOutcomes]*big.Int{hundred, hundred, hundred},
	}
	assert.Equal(t, FormatAmount(p.Total), FormatAmount(p.Sum()))
}

package rules

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNum(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{in: "12", want: 12},
		{in: "-12.5", want: -12.5},
		{in: "12,5", want: 12.5},
		{in: "1 000,25", want: 1000.25},
		{in: "12,300.50", want: 12300.5},
		{in: "12.300,50", want: 12300.5},
		{in: "1,000,000", want: 1000000},
		{in: "1.000.000", want: 1000000},
		{in: "1,000", want: 1},
		{in: "€ 9,90", want: 9.9},
		{in: "9.90 EUR", want: 9.9},
		{in: "USD12.00", want: 12},
		{in: "3.5 kpl", want: 3.5},
		{in: "+7", want: 7},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.InDelta(t, tt.want, Num(tt.in), 1e-9)
		})
	}
}

func TestNum_Invalid(t *testing.T) {
	for _, in := range []string{"", "abc", "EUR", "-"} {
		assert.True(t, math.IsNaN(Num(in)), in)
	}
}

func TestCents(t *testing.T) {
	got, err := Cents(0.125)
	require.NoError(t, err)
	assert.Equal(t, 13.0, got)

	got, err = Cents(-1.005)
	require.NoError(t, err)
	assert.Equal(t, -101.0, got)

	_, err = Cents(math.NaN())
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

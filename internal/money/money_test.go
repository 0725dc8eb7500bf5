package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestPresent_RoundsToTwoDecimals(t *testing.T) {
	got := Present(decimal.RequireFromString("123.4567"))
	assert.True(t, decimal.RequireFromString("123.46").Equal(got))
}

func TestPresent_NeverMutatesInput(t *testing.T) {
	in := decimal.RequireFromString("10.005")
	_ = Present(in)
	assert.True(t, decimal.RequireFromString("10.005").Equal(in))
}

func TestPresentFloat_RoundsToTwoDecimals(t *testing.T) {
	assert.InDelta(t, 42.13, PresentFloat(42.1251), 0.001)
}

func TestFromFloat_PreservesValue(t *testing.T) {
	got := FromFloat(100.5)
	assert.True(t, decimal.NewFromFloat(100.5).Equal(got))
}

func TestPercentOf(t *testing.T) {
	got := PercentOf(decimal.RequireFromString("1000"), decimal.RequireFromString("5"))
	assert.True(t, decimal.RequireFromString("50").Equal(got))
}

func TestPercentOf_ZeroPercent(t *testing.T) {
	got := PercentOf(decimal.RequireFromString("1000"), decimal.Zero)
	assert.True(t, decimal.Zero.Equal(got))
}

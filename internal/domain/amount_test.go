package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAmount(t *testing.T) {
	d, err := ParseAmount("100.50")
	require.NoError(t, err)
	assert.Equal(t, "100.5000", FormatAmount(d))
}

func TestParseAmount_FullScale(t *testing.T) {
	d, err := ParseAmount("0.0001")
	require.NoError(t, err)
	assert.Equal(t, "0.0001", FormatAmount(d))
}

func TestParseAmount_TooPrecise(t *testing.T) {
	_, err := ParseAmount("1.00001")
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestParseAmount_NotANumber(t *testing.T) {
	_, err := ParseAmount("ten dollars")
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestAccount_CanDebit(t *testing.T) {
	acc := &Account{
		Status:     AccountStatusActive,
		Balance:    decimal.RequireFromString("100.00"),
		DailyLimit: decimal.RequireFromString("50.00"),
		DailyUsed:  decimal.RequireFromString("40.00"),
	}

	assert.True(t, acc.CanDebit(decimal.RequireFromString("5.00")))
	assert.True(t, acc.CanDebit(decimal.RequireFromString("10.00")))
	// Over the daily-limit headroom even though balance suffices.
	assert.False(t, acc.CanDebit(decimal.RequireFromString("10.01")))

	acc.Status = AccountStatusBlocked
	assert.False(t, acc.CanDebit(decimal.RequireFromString("1.00")))
}

package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestPassType_ValidTo(t *testing.T) {
	cases := []struct {
		pt   PassType
		from time.Time
		want time.Time
	}{
		{PassDaily, date(2024, 1, 1), date(2024, 1, 2)},
		{PassWeekly, date(2024, 1, 1), date(2024, 1, 8)},
		{PassMonthly, date(2024, 1, 15), date(2024, 2, 15)},
		{PassMonthly, date(2024, 1, 31), date(2024, 2, 29)},
		{PassMonthly, date(2023, 1, 31), date(2023, 2, 28)},
		{PassYearly, date(2024, 2, 29), date(2025, 2, 28)},
		{PassYearly, date(2024, 6, 1), date(2025, 6, 1)},
	}

	for _, tc := range cases {
		got, err := tc.pt.ValidTo(tc.from)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got, "%s from %s", tc.pt, tc.from.Format(time.DateOnly))
	}

	_, err := PassType("hourly").ValidTo(date(2024, 1, 1))
	assert.ErrorIs(t, err, ErrUnknownPassType)
}

func TestNewBusPass_Daily(t *testing.T) {
	from := date(2024, 1, 1)

	p, err := NewBusPass(uuid.New(), PassDaily, "Pune", from, "PASS_X")
	require.NoError(t, err)

	assert.Equal(t, date(2024, 1, 2), p.ValidTo)
	assert.Equal(t, int64(50), p.Price)
	assert.Equal(t, 10, p.MaxUsage)
	assert.Equal(t, PassActive, p.Status)

	now := from.Add(6 * time.Hour)
	for i := range 10 {
		require.NoError(t, p.Use(now), "use %d", i+1)
	}

	assert.False(t, p.IsValid(now))
	assert.ErrorIs(t, p.Use(now), ErrPassInvalid)
	assert.Equal(t, 10, p.UsageCount)
	assert.Equal(t, 0, *p.RemainingUsage())
}

func TestNewBusPass_UnknownType(t *testing.T) {
	_, err := NewBusPass(uuid.New(), "hourly", "Pune", date(2024, 1, 1), "PASS_X")
	assert.ErrorIs(t, err, ErrUnknownPassType)
}

func TestBusPass_IsValidWindow(t *testing.T) {
	p := &BusPass{Status: PassActive, ValidFrom: date(2024, 1, 1), ValidTo: date(2024, 1, 2), MaxUsage: 10}

	assert.False(t, p.IsValid(date(2023, 12, 31)))
	assert.True(t, p.IsValid(date(2024, 1, 1)))
	assert.True(t, p.IsValid(date(2024, 1, 2)))
	assert.False(t, p.IsValid(date(2024, 1, 2).Add(time.Second)))

	p.Status = PassCancelled
	assert.False(t, p.IsValid(date(2024, 1, 1)))
}

func TestBusPass_RemainingUsage(t *testing.T) {
	unlimited := &BusPass{}
	assert.Nil(t, unlimited.RemainingUsage())

	p := &BusPass{MaxUsage: 5, UsageCount: 2}
	assert.Equal(t, 3, *p.RemainingUsage())
}

func TestBusPass_Cancel(t *testing.T) {
	p := &BusPass{Status: PassActive}
	require.NoError(t, p.Cancel())
	assert.Equal(t, PassCancelled, p.Status)
	assert.ErrorIs(t, p.Cancel(), ErrPassNotActive)
}

func TestBusPass_EffectiveStatus(t *testing.T) {
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	p, err := NewBusPass(uuid.New(), PassDaily, "Pune", from, "PASS_X")
	require.NoError(t, err)

	assert.Equal(t, PassActive, p.EffectiveStatus(from.Add(time.Hour)))
	assert.Equal(t, PassExpired, p.EffectiveStatus(from.Add(25*time.Hour)))

	require.NoError(t, p.Cancel())
	assert.Equal(t, PassCancelled, p.EffectiveStatus(from.Add(25*time.Hour)))
}

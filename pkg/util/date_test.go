package util

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTime(t *testing.T) {
	got, ok := ParseTime("2024-10-10T10:10:10Z")
	require.True(t, ok)
	assert.Equal(t, "2024-10-10T10:10:10Z", got.UTC().Format(time.RFC3339))

	got, ok = ParseTime("2024-04-25")
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 4, 25, 0, 0, 0, 0, time.UTC), got)

	ts := time.Date(2024, 10, 10, 10, 10, 10, 0, time.UTC).Unix()
	got, ok = ParseTime(strconv.FormatInt(ts, 10))
	require.True(t, ok)
	assert.Equal(t, ts, got.Unix())

	_, ok = ParseTime("yesterday")
	assert.False(t, ok)
}

func TestParseTimeDefault(t *testing.T) {
	def := time.Date(2024, 10, 10, 10, 10, 10, 0, time.UTC)
	assert.Equal(t, def, ParseTimeDefault("", def))
}

func TestDayAndYearFraction(t *testing.T) {
	now := time.Date(2024, 3, 1, 15, 30, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), Day(now))
	assert.InDelta(t, 73.0/365, YearFraction(now, now.Add(73*24*time.Hour)), 1e-12)
	assert.Zero(t, YearFraction(now, now.Add(-time.Hour)))
}

func TestStrings(t *testing.T) {
	assert.Equal(t, 7, ParseIntDefault("x", 7))
	assert.Equal(t, 3, ParseIntDefault("3", 7))
	assert.Equal(t, []string{"SPY", "QQQ"}, NormalizeSymbols([]string{" spy", "QQQ", "", "Spy"}))
}

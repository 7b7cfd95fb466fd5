package cronexpr

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRejectsWrongFieldCount(t *testing.T) {
	_, err := Parse("* * *")
	assert.Error(t, err)
}

func TestParseRejectsOutOfRangeValue(t *testing.T) {
	_, err := Parse("60 * * * *")
	assert.Error(t, err)
}

func TestParseRejectsInvertedRange(t *testing.T) {
	_, err := Parse("5-1 * * * *")
	assert.Error(t, err)
}

func TestParseAcceptsWildcardEveryMinute(t *testing.T) {
	e, err := Parse("* * * * *")
	require.NoError(t, err)
	assert.True(t, e.Matches(time.Date(2026, 1, 1, 3, 17, 0, 0, time.UTC)))
}

func TestParseAcceptsStep(t *testing.T) {
	e, err := Parse("*/15 * * * *")
	require.NoError(t, err)
	assert.True(t, e.Matches(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)))
	assert.True(t, e.Matches(time.Date(2026, 1, 1, 0, 15, 0, 0, time.UTC)))
	assert.False(t, e.Matches(time.Date(2026, 1, 1, 0, 16, 0, 0, time.UTC)))
}

func TestParseAcceptsList(t *testing.T) {
	e, err := Parse("0,30 * * * *")
	require.NoError(t, err)
	assert.True(t, e.Matches(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)))
	assert.True(t, e.Matches(time.Date(2026, 1, 1, 0, 30, 0, 0, time.UTC)))
	assert.False(t, e.Matches(time.Date(2026, 1, 1, 0, 1, 0, 0, time.UTC)))
}

func TestParseAcceptsRange(t *testing.T) {
	e, err := Parse("0 9-17 * * *")
	require.NoError(t, err)
	assert.True(t, e.Matches(time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)))
	assert.True(t, e.Matches(time.Date(2026, 1, 1, 17, 0, 0, 0, time.UTC)))
	assert.False(t, e.Matches(time.Date(2026, 1, 1, 18, 0, 0, 0, time.UTC)))
}

func TestDayOfWeekZeroAndSevenBothMeanSunday(t *testing.T) {
	sunday := time.Date(2026, 8, 2, 0, 0, 0, 0, time.UTC) // a Sunday
	require.Equal(t, time.Sunday, sunday.Weekday())

	e0, err := Parse("0 0 * * 0")
	require.NoError(t, err)
	assert.True(t, e0.Matches(sunday))

	e7, err := Parse("0 0 * * 7")
	require.NoError(t, err)
	assert.True(t, e7.Matches(sunday))
}

func TestNextFindsNextNightlyFire(t *testing.T) {
	e, err := Parse("30 2 * * *")
	require.NoError(t, err)

	after := time.Date(2026, 7, 31, 10, 0, 0, 0, time.UTC)
	next, ok := e.Next(after)
	require.True(t, ok)
	assert.Equal(t, time.Date(2026, 8, 1, 2, 30, 0, 0, time.UTC), next)
}

func TestNextIsStrictlyAfterGivenTimeEvenOnExactMatch(t *testing.T) {
	e, err := Parse("0 0 * * *")
	require.NoError(t, err)

	exact := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	next, ok := e.Next(exact)
	require.True(t, ok)
	assert.Equal(t, time.Date(2026, 8, 2, 0, 0, 0, 0, time.UTC), next)
}

func TestParseCombinedListAndRange(t *testing.T) {
	e, err := Parse("0 0 1,15 * 1-5")
	require.NoError(t, err)

	mon := time.Date(2026, 8, 3, 0, 0, 0, 0, time.UTC) // a Monday, but day 3
	assert.False(t, e.Matches(mon))

	mon1 := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC) // Saturday the 1st
	assert.False(t, e.Matches(mon1))
}

package calendar

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) time.Time {
	t, _ := time.Parse("2006-01-02", s)
	return t
}

func TestHolidays(t *testing.T) {
	c := NewNYSE()
	closed := []string{
		"2024-01-01", // New Year's Day
		"2024-01-15", // MLK
		"2024-02-19", // Washington's Birthday
		"2024-03-29", // Good Friday
		"2024-05-27", // Memorial Day
		"2024-06-19", // Juneteenth
		"2024-07-04",
		"2024-09-02",
		"2024-11-28",
		"2024-12-25",
		"2023-01-02", // New Year's Day observed on Monday
		"2021-12-24", // Christmas observed on Friday
		"2020-07-03", // Independence Day observed on Friday
		"2025-04-18", // Good Friday
	}
	for _, s := range closed {
		assert.False(t, c.IsSession(d(s)), s)
	}
	open := []string{
		"2024-01-02",
		"2021-06-18", // Juneteenth not yet an exchange holiday
		"2021-12-31", // New Year's Day 2022 on Saturday is not observed
		"2024-11-29",
	}
	for _, s := range open {
		assert.True(t, c.IsSession(d(s)), s)
	}
	assert.False(t, c.IsSession(d("2024-01-06")), "saturday")
}

func TestSessions(t *testing.T) {
	c := NewNYSE(WithClosures("2025-01-13"))
	got, err := c.Sessions(context.Background(), d("2025-01-06"), d("2025-01-14"))
	require.NoError(t, err)
	require.Equal(t, []time.Time{d("2025-01-06"), d("2025-01-07"), d("2025-01-08"), d("2025-01-10"), d("2025-01-14")}, got)
}

func TestSpecialClosures(t *testing.T) {
	c := NewNYSE()
	for _, s := range []string{
		"1972-12-28",
		"1973-01-25",
		"1977-07-14",
		"1985-09-27",
		"1994-04-27",
		"2001-09-11",
		"2001-09-12",
		"2001-09-13",
		"2001-09-14",
		"2004-06-11",
		"2007-01-02",
		"2012-10-29",
		"2012-10-30",
		"2018-12-05",
		"2025-01-09",
	} {
		assert.False(t, c.IsSession(d(s)), s)
	}
	// Days around the closures still trade.
	for _, s := range []string{"2001-09-10", "2001-09-17", "2012-10-26", "2012-10-31", "2018-12-04", "2018-12-06"} {
		assert.True(t, c.IsSession(d(s)), s)
	}

	got, err := c.Sessions(context.Background(), d("2012-10-22"), d("2012-11-02"))
	require.NoError(t, err)
	assert.Len(t, got, 8)
}

func TestSessionsYearCount(t *testing.T) {
	got, err := NewNYSE().Sessions(context.Background(), d("2023-01-01"), d("2023-12-31"))
	require.NoError(t, err)
	assert.Len(t, got, 250)
}

func TestEaster(t *testing.T) {
	for y, want := range map[int]string{2019: "2019-04-21", 2024: "2024-03-31", 2025: "2025-04-20", 2038: "2038-04-25"} {
		assert.Equal(t, d(want), easter(y), "%d", y)
	}
}

func TestParseClosures(t *testing.T) {
	out, err := ParseClosures([]string{"2025-01-09", "2018-12-05"})
	require.NoError(t, err)
	assert.Equal(t, []string{"2018-12-05", "2025-01-09"}, out)

	_, err = ParseClosures([]string{"09/01/2025"})
	assert.Error(t, err)
}

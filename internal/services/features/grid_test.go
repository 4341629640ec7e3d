package features

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"FinPrep/internal/domain/models"
)

func TestBuildGridDaily(t *testing.T) {
	cal := fixedCalendar{days: []time.Time{day("2024-01-02"), day("2024-01-03"), day("2024-01-05"), day("2024-01-08")}}

	g, err := BuildGrid(context.Background(), cal, day("2024-01-01"), day("2024-01-05"), models.FreqDaily, DefaultSession())
	require.NoError(t, err)
	require.Equal(t, models.FreqDaily, g.Frequency)
	require.Equal(t, []time.Time{day("2024-01-02"), day("2024-01-03"), day("2024-01-05")}, g.Timestamps)
}

func TestBuildGridMinute(t *testing.T) {
	cal := fixedCalendar{days: []time.Time{day("2024-07-01"), day("2024-07-02")}}

	g, err := BuildGrid(context.Background(), cal, day("2024-07-01"), day("2024-07-02"), models.FreqMinute, DefaultSession())
	require.NoError(t, err)
	require.Equal(t, 2*510, g.Len())

	// 08:00 London is 07:00 UTC in British Summer Time.
	require.Equal(t, time.Date(2024, 7, 1, 7, 0, 0, 0, time.UTC), g.Timestamps[0])
	require.Equal(t, time.Date(2024, 7, 1, 15, 29, 0, 0, time.UTC), g.Timestamps[509])
	require.Equal(t, time.Date(2024, 7, 2, 7, 0, 0, 0, time.UTC), g.Timestamps[510])

	for i := 1; i < g.Len(); i++ {
		require.True(t, g.Timestamps[i].After(g.Timestamps[i-1]), "grid must be strictly increasing at %d", i)
	}
}

func TestBuildGridWinterOpen(t *testing.T) {
	cal := fixedCalendar{days: []time.Time{day("2024-01-02")}}
	g, err := BuildGrid(context.Background(), cal, day("2024-01-02"), day("2024-01-02"), models.FreqMinute, DefaultSession())
	require.NoError(t, err)
	require.Equal(t, time.Date(2024, 1, 2, 8, 0, 0, 0, time.UTC), g.Timestamps[0])
}

func TestBuildGridUnsupportedFrequency(t *testing.T) {
	cal := fixedCalendar{days: []time.Time{day("2024-01-02")}}
	for _, f := range []models.Frequency{"5Min", "1H", "1W", "bogus"} {
		_, err := BuildGrid(context.Background(), cal, day("2024-01-01"), day("2024-01-31"), f, DefaultSession())
		require.True(t, errors.Is(err, models.ErrUnsupportedFrequency), "frequency %s: %v", f, err)
	}
}

func TestBuildGridCalendarError(t *testing.T) {
	cal := fixedCalendar{err: errors.New("calendar down")}
	_, err := BuildGrid(context.Background(), cal, day("2024-01-01"), day("2024-01-31"), models.FreqDaily, DefaultSession())
	require.ErrorContains(t, err, "calendar down")
}

func TestStepGrid(t *testing.T) {
	from := time.Date(2024, 3, 1, 14, 30, 0, 0, time.UTC)
	g, err := StepGrid(from, from.Add(4*time.Minute), models.FreqMinute)
	require.NoError(t, err)
	require.Equal(t, 5, g.Len())
	require.Equal(t, from.Add(4*time.Minute), g.Timestamps[4])

	_, err = StepGrid(from, from.Add(time.Hour), models.FreqDaily)
	require.ErrorIs(t, err, models.ErrUnsupportedFrequency)
}

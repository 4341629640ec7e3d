package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinPrep/internal/domain/models"
	"FinPrep/internal/services/calendar"
	"FinPrep/internal/services/indicators"
	"FinPrep/internal/usecase"
)

// weekdayProvider returns one bar per weekday with a close that rises by one.
type weekdayProvider struct{}

func (weekdayProvider) FetchBars(_ context.Context, ticker string, start, end time.Time, _ models.Frequency) ([]models.Bar, error) {
	var out []models.Bar
	price := 10.0
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		if d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
			continue
		}
		out = append(out, models.Bar{Ticker: ticker, Timestamp: d, Open: price, High: price, Low: price, Close: price, Volume: 100})
		price++
	}
	return out, nil
}

func newPipeline() *usecase.PipelineUseCase {
	return usecase.NewPipelineUseCase(calendar.NewNYSE(), weekdayProvider{}, indicators.NewEngine(),
		usecase.PipelineConfig{Indicators: []string{"close_2_sma"}})
}

func date(s string) time.Time {
	t, _ := time.Parse(time.DateOnly, s)
	return t
}

func TestParamsRollingWindow(t *testing.T) {
	s := NewScheduler(newPipeline(), Job{
		Tickers:  []string{"AAPL"},
		Window:   30 * 24 * time.Hour,
		Interval: models.FreqDaily,
		Publish:  true,
	}, nil)
	s.now = func() time.Time { return time.Date(2024, 3, 15, 14, 30, 0, 0, time.UTC) }

	p := s.Params()
	assert.Equal(t, date("2024-03-15"), p.End)
	assert.Equal(t, date("2024-02-14"), p.Start)
	assert.False(t, p.Publish, "publish needs a wired publisher")
}

func TestParamsFixedRange(t *testing.T) {
	s := NewScheduler(newPipeline(), Job{
		Start: date("2024-01-01"),
		End:   date("2024-01-31"),
	}, nil)
	p := s.Params()
	assert.Equal(t, date("2024-01-01"), p.Start)
	assert.Equal(t, date("2024-01-31"), p.End)
}

func TestRegister(t *testing.T) {
	require.NoError(t, NewScheduler(newPipeline(), Job{}, nil).Register())
	require.NoError(t, NewScheduler(newPipeline(), Job{Spec: "0 0 6 * * 1-5"}, nil).Register())
	require.Error(t, NewScheduler(newPipeline(), Job{Spec: "every day"}, nil).Register())
}

func TestRunNow(t *testing.T) {
	s := NewScheduler(newPipeline(), Job{
		Tickers:            []string{"MSFT", "AAPL"},
		Start:              date("2024-01-01"),
		End:                date("2024-01-12"),
		Interval:           models.FreqDaily,
		UseVolatilityProxy: true,
		Timeout:            time.Minute,
	}, nil)

	res, err := s.RunNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 9, res.Rows)
	assert.Equal(t, []string{"AAPL", "MSFT"}, res.Arrays.Tickers)
	assert.Equal(t, "vix", res.Arrays.ScalarSource)
	assert.False(t, res.Published)
}

func TestStartStop(t *testing.T) {
	s := NewScheduler(newPipeline(), Job{Spec: "@every 1h"}, nil)
	require.NoError(t, s.Register())
	s.Start()
	s.Stop()
}

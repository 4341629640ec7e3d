package usecase

import (
	"context"
	"sync"
	"time"

	"FinPrep/internal/domain/models"
)

type fixedCalendar struct{ days []time.Time }

func (c fixedCalendar) Sessions(_ context.Context, start, end time.Time) ([]time.Time, error) {
	var out []time.Time
	for _, d := range c.days {
		if !d.Before(start) && !d.After(end) {
			out = append(out, d)
		}
	}
	return out, nil
}

// januaryCalendar holds the ten sessions from 2024-01-02 to 2024-01-15.
var januaryCalendar = fixedCalendar{days: []time.Time{
	day("2024-01-02"), day("2024-01-03"), day("2024-01-04"), day("2024-01-05"),
	day("2024-01-08"), day("2024-01-09"), day("2024-01-10"), day("2024-01-11"),
	day("2024-01-12"), day("2024-01-15"),
}}

func day(s string) time.Time {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		panic(err)
	}
	return t
}

type mapProvider struct {
	mu    sync.Mutex
	bars  map[string][]models.Bar
	err   map[string]error
	calls []string
}

func (p *mapProvider) FetchBars(_ context.Context, ticker string, start, end time.Time, _ models.Frequency) ([]models.Bar, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, ticker)
	if err := p.err[ticker]; err != nil {
		return nil, err
	}
	var out []models.Bar
	for _, b := range p.bars[ticker] {
		if !b.Timestamp.Before(start) && !b.Timestamp.After(end) {
			out = append(out, b)
		}
	}
	return out, nil
}

type latestProvider struct {
	bars map[string][]models.Bar
}

func (p latestProvider) LatestBars(_ context.Context, ticker string, n int, _ models.Frequency) ([]models.Bar, error) {
	bars := p.bars[ticker]
	if len(bars) > n {
		bars = bars[len(bars)-n:]
	}
	return bars, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	runIDs []string
	arrays []*models.FeatureArrays
	err    error
}

func (p *recordingPublisher) PublishArrays(_ context.Context, runID string, a *models.FeatureArrays) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.runIDs = append(p.runIDs, runID)
	p.arrays = append(p.arrays, a)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func dailySeries(ticker string, closes map[string]float64) []models.Bar {
	var out []models.Bar
	for d, c := range closes {
		out = append(out, models.Bar{Ticker: ticker, Timestamp: day(d), Open: c, High: c + 1, Low: c - 1, Close: c, Volume: 100})
	}
	return out
}

// walk returns one close per January session following a deterministic path.
func walk(base float64, steps ...float64) map[string]float64 {
	out := make(map[string]float64, len(januaryCalendar.days))
	v := base
	for i, d := range januaryCalendar.days {
		if i < len(steps) {
			v += steps[i]
		}
		out[d.Format(time.DateOnly)] = v
	}
	return out
}

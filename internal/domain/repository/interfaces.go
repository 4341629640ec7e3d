package repository

import (
	"context"
	"time"

	"FinPrep/internal/domain/models"
)

// Calendar lists exchange session dates (00:00 UTC) within [start, end].
type Calendar interface {
	Sessions(ctx context.Context, start, end time.Time) ([]time.Time, error)
}

// BarProvider fetches raw bars for one ticker. Retries and rate limits are the
// provider's concern.
type BarProvider interface {
	FetchBars(ctx context.Context, ticker string, start, end time.Time, interval models.Frequency) ([]models.Bar, error)
}

// IndicatorEngine computes a named indicator series aligned to the input bars.
type IndicatorEngine interface {
	Compute(name string, bars []models.Bar) ([]float64, error)
}

// ArraysPublisher ships prepared arrays to the learner side.
type ArraysPublisher interface {
	PublishArrays(ctx context.Context, runID string, arrays *models.FeatureArrays) error
	Close() error
}

type Metrics interface {
	RecordBarsFetched(provider, ticker string, n int)
	RecordError(kind string)
	RecordFilled(kind string, n int)
	RecordDegradedTicker(ticker string)
	RecordTurbulence(value float64)
	RecordLatency(op string, seconds float64)
}

// NoopMetrics discards everything.
type NoopMetrics struct{}

func (NoopMetrics) RecordBarsFetched(string, string, int) {}
func (NoopMetrics) RecordError(string)                    {}
func (NoopMetrics) RecordFilled(string, int)              {}
func (NoopMetrics) RecordDegradedTicker(string)           {}
func (NoopMetrics) RecordTurbulence(float64)              {}
func (NoopMetrics) RecordLatency(string, float64)         {}

// LatestBarProvider is implemented by providers that can return the newest n
// bars directly instead of scanning a time window.
type LatestBarProvider interface {
	LatestBars(ctx context.Context, ticker string, n int, interval models.Frequency) ([]models.Bar, error)
}

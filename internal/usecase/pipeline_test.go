package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinPrep/internal/domain/models"
	"FinPrep/internal/services/features"
	"FinPrep/internal/services/indicators"
	pkgkafka "FinPrep/pkg/kafka"
)

func newPipeline(p *mapProvider, opts ...PipelineOption) *PipelineUseCase {
	return NewPipelineUseCase(januaryCalendar, p, indicators.NewEngine(), PipelineConfig{
		ProxyTicker: "VIXY",
		Lookback:    3,
		Workers:     2,
		Indicators:  []string{"close_2_sma", "rsi_3"},
	}, opts...)
}

func janProvider() *mapProvider {
	return &mapProvider{bars: map[string][]models.Bar{
		"AAPL": dailySeries("AAPL", walk(100, 0, 1, -2, 3, 1, -1, 2, 0.5, -0.5, 1)),
		"MSFT": dailySeries("MSFT", walk(300, 0, -3, 2, 1, 4, -2, -1, 3, 2, -4)),
		"VIXY": dailySeries("VIXY", map[string]float64{"2024-01-03": 20, "2024-01-05": 22, "2024-01-10": 18}),
	}}
}

func TestPrepareTurbulence(t *testing.T) {
	p := janProvider()
	uc := newPipeline(p)
	res, err := uc.Prepare(context.Background(), PrepareParams{
		Tickers:  []string{"msft", "AAPL", "GHOST"},
		Start:    day("2024-01-01"),
		End:      day("2024-01-15"),
		Interval: models.FreqDaily,
	})
	require.NoError(t, err)

	a := res.Arrays
	require.Equal(t, []string{"AAPL", "GHOST", "MSFT"}, a.Tickers)
	require.Equal(t, 10, res.Rows)
	require.Len(t, a.Price, 10)
	require.Len(t, a.Tech[0], 3*2)
	assert.Equal(t, features.ScalarTurbulence, a.ScalarSource)
	assert.Equal(t, []string{"GHOST"}, res.Degraded)
	assert.NotEmpty(t, res.RunID)
	assert.False(t, res.Published)

	assert.Equal(t, 100.0, a.Price[0][0])
	assert.Equal(t, 0.0, a.Price[0][1])
	assert.Equal(t, 300.0, a.Price[0][2])
	for i := 0; i < 3; i++ {
		assert.Zero(t, a.Scalar[i], "row %d precedes the lookback", i)
	}
	for _, v := range a.Scalar {
		assert.GreaterOrEqual(t, v, 0.0)
	}
	assert.NotContains(t, p.calls, "VIXY")
}

func TestPrepareVolatilityProxy(t *testing.T) {
	p := janProvider()
	uc := newPipeline(p)
	res, err := uc.Prepare(context.Background(), PrepareParams{
		Tickers:            []string{"AAPL"},
		Start:              day("2024-01-02"),
		End:                day("2024-01-11"),
		Interval:           models.FreqDaily,
		UseVolatilityProxy: true,
	})
	require.NoError(t, err)
	a := res.Arrays
	assert.Equal(t, features.ScalarVolatilityProxy, a.ScalarSource)
	assert.Equal(t, []string{"AAPL"}, a.Tickers)
	// Leading slot takes the first proxy close, later gaps repeat the previous one.
	assert.Equal(t, []float64{20, 20, 20, 22, 22, 22, 18, 18}, a.Scalar)
	assert.Contains(t, p.calls, "VIXY")
}

func TestPreparePublishes(t *testing.T) {
	pub := &recordingPublisher{}
	uc := newPipeline(janProvider(), WithPublisher(pub))
	res, err := uc.Prepare(context.Background(), PrepareParams{
		Tickers: []string{"AAPL"}, Start: day("2024-01-02"), End: day("2024-01-15"),
		Interval: models.FreqDaily, Publish: true,
	})
	require.NoError(t, err)
	assert.True(t, res.Published)
	require.Equal(t, []string{res.RunID}, pub.runIDs)
	assert.Same(t, res.Arrays, pub.arrays[0])
}

func TestPrepareErrors(t *testing.T) {
	ctx := context.Background()
	base := PrepareParams{Tickers: []string{"AAPL"}, Start: day("2024-01-02"), End: day("2024-01-15"), Interval: models.FreqDaily}

	t.Run("publish without publisher", func(t *testing.T) {
		p := base
		p.Publish = true
		_, err := newPipeline(janProvider()).Prepare(ctx, p)
		assert.ErrorIs(t, err, ErrPublishDisabled)
	})
	t.Run("unsupported frequency", func(t *testing.T) {
		p := base
		p.Interval = "5Min"
		_, err := newPipeline(janProvider()).Prepare(ctx, p)
		assert.ErrorIs(t, err, models.ErrUnsupportedFrequency)
	})
	t.Run("no sessions", func(t *testing.T) {
		p := base
		p.Start, p.End = day("2024-02-01"), day("2024-02-10")
		_, err := newPipeline(janProvider()).Prepare(ctx, p)
		assert.ErrorIs(t, err, models.ErrEmptyGrid)
	})
	t.Run("unknown indicator", func(t *testing.T) {
		p := base
		p.Indicators = []string{"close_2_sma", "wobble"}
		_, err := newPipeline(janProvider()).Prepare(ctx, p)
		assert.ErrorIs(t, err, models.ErrUnknownIndicator)
	})
	t.Run("provider failure", func(t *testing.T) {
		boom := errors.New("upstream down")
		prov := janProvider()
		prov.err = map[string]error{"AAPL": boom}
		_, err := newPipeline(prov).Prepare(ctx, base)
		assert.ErrorIs(t, err, boom)
	})
	t.Run("end before start", func(t *testing.T) {
		p := base
		p.Start, p.End = p.End, p.Start
		_, err := newPipeline(janProvider()).Prepare(ctx, p)
		assert.Error(t, err)
	})
}

func TestGridFor(t *testing.T) {
	uc := newPipeline(janProvider())
	g, err := uc.GridFor(context.Background(), day("2024-01-04"), day("2024-01-09"), models.FreqDaily)
	require.NoError(t, err)
	assert.Equal(t, []time.Time{day("2024-01-04"), day("2024-01-05"), day("2024-01-08"), day("2024-01-09")}, g.Timestamps)

	g, err = uc.GridFor(context.Background(), day("2024-01-04"), day("2024-01-04"), models.FreqMinute)
	require.NoError(t, err)
	require.Equal(t, 510, g.Len())
	assert.Equal(t, time.Date(2024, 1, 4, 8, 0, 0, 0, time.UTC), g.Timestamps[0])
}

func minute(h, m int) time.Time { return time.Date(2024, 3, 1, h, m, 0, 0, time.UTC) }

func TestLatestFromLatestProvider(t *testing.T) {
	lp := latestProvider{bars: map[string][]models.Bar{
		"AAPL": {
			{Ticker: "AAPL", Timestamp: minute(14, 29), Close: 9},
			{Ticker: "AAPL", Timestamp: minute(14, 30), Close: 1},
			{Ticker: "AAPL", Timestamp: minute(14, 31), Close: 2},
			{Ticker: "AAPL", Timestamp: minute(14, 33), Close: 3},
		},
		"VIXY": {
			{Ticker: "VIXY", Timestamp: minute(14, 30), Close: 21},
			{Ticker: "VIXY", Timestamp: minute(14, 32), Close: 20},
		},
	}}
	uc := newPipeline(&mapProvider{}, WithLatestProvider(lp))
	snap, err := uc.Latest(context.Background(), LatestParams{
		Tickers: []string{"AAPL"}, Interval: models.FreqMinute, Limit: 3, Indicators: []string{"close_2_sma"},
	})
	require.NoError(t, err)
	assert.Equal(t, minute(14, 33), snap.Timestamp)
	assert.Equal(t, 4, snap.Rows)
	assert.Equal(t, []float64{3}, snap.Price)
	assert.InDelta(t, 2.5, snap.Tech[0], 1e-12)
	assert.Equal(t, 20.0, snap.VolatilityProxy)
	assert.Equal(t, "VIXY", snap.ProxyTicker)
}

func TestLatestFromWindowedProvider(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Minute)
	p := &mapProvider{bars: map[string][]models.Bar{
		"AAPL": {
			{Ticker: "AAPL", Timestamp: now.Add(-3 * time.Minute), Close: 5},
			{Ticker: "AAPL", Timestamp: now.Add(-2 * time.Minute), Close: 6},
			{Ticker: "AAPL", Timestamp: now.Add(-time.Minute), Close: 7},
		},
	}}
	uc := newPipeline(p)
	snap, err := uc.Latest(context.Background(), LatestParams{Tickers: []string{"AAPL"}, Interval: models.FreqMinute, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, snap.Rows)
	assert.Equal(t, []float64{7}, snap.Price)
	assert.Zero(t, snap.VolatilityProxy)
	assert.ElementsMatch(t, []string{"AAPL", "VIXY"}, p.calls)
}

func TestLatestWithoutBars(t *testing.T) {
	uc := newPipeline(&mapProvider{})
	_, err := uc.Latest(context.Background(), LatestParams{Tickers: []string{"AAPL"}, Interval: models.FreqMinute, Limit: 5})
	assert.ErrorIs(t, err, models.ErrEmptyGrid)
}

func TestJobsHandler(t *testing.T) {
	pub := &recordingPublisher{}
	h := NewJobsHandler("finprep.jobs", newPipeline(janProvider(), WithPublisher(pub)), nil, nil)
	assert.Equal(t, "finprep.jobs", h.Topic())
	assert.Equal(t, JobTypePrepare, h.Type())

	err := h.Handle(context.Background(), []byte("{not json"))
	assert.ErrorIs(t, err, pkgkafka.ErrNonRetryable)
	assert.False(t, Retryable(err))

	err = h.Handle(context.Background(), []byte(`{"tickers":[],"start":"2024-01-02","end":"2024-01-15"}`))
	assert.ErrorIs(t, err, pkgkafka.ErrNonRetryable)

	job, _ := json.Marshal(models.PrepareRequest{
		Tickers: []string{"AAPL", "MSFT"}, Start: "2024-01-02", End: "2024-01-15", Interval: "1d", Lookback: 5,
	})
	require.NoError(t, h.Handle(context.Background(), job))
	require.Len(t, pub.arrays, 1)
	assert.Equal(t, []string{"AAPL", "MSFT"}, pub.arrays[0].Tickers)

	job, _ = json.Marshal(models.PrepareRequest{Tickers: []string{"AAPL"}, Start: "2024-01-02", End: "2024-01-15", Interval: "5Min", Lookback: 10})
	assert.ErrorIs(t, h.Handle(context.Background(), job), pkgkafka.ErrNonRetryable)
}

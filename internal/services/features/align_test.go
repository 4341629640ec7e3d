package features

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"FinPrep/internal/domain/models"
)

var fiveDays = dailyGrid("2024-01-02", "2024-01-03", "2024-01-04", "2024-01-05", "2024-01-08")

func closesOf(bars []models.Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}

func TestAlignTickerForwardFill(t *testing.T) {
	raw := []models.Bar{
		bar("AAPL", "2024-01-02", 10, 100),
		bar("AAPL", "2024-01-04", 12, 120),
		bar("AAPL", "2024-01-08", 11, 110),
	}
	out, rep, err := AlignTicker("AAPL", raw, fiveDays)
	require.NoError(t, err)
	require.Equal(t, []float64{10, 10, 12, 12, 11}, closesOf(out))
	require.Equal(t, 0.0, out[1].Volume)
	require.Equal(t, 0.0, out[3].Volume)
	require.Equal(t, 120.0, out[2].Volume)
	require.Equal(t, models.Bar{Ticker: "AAPL", Timestamp: day("2024-01-03"), Open: 10, High: 10, Low: 10, Close: 10}, out[1])
	require.Equal(t, 2, rep.ForwardFilled)
	require.Equal(t, 3, rep.Matched)
	require.False(t, rep.LeadingFilled)
	require.False(t, rep.Degraded)
}

func TestAlignTickerLeadingGap(t *testing.T) {
	raw := []models.Bar{
		bar("MSFT", "2024-01-04", 12, 10),
		bar("MSFT", "2024-01-05", 13, 10),
	}
	out, rep, err := AlignTicker("MSFT", raw, fiveDays)
	require.NoError(t, err)
	require.Equal(t, []float64{12, 12, 12, 13, 13}, closesOf(out))
	require.Equal(t, 12.0, out[0].Open)
	require.Equal(t, 0.0, out[0].Volume)
	require.True(t, rep.LeadingFilled)
	require.Equal(t, 2, rep.ForwardFilled)
}

func TestAlignTickerNoValidClose(t *testing.T) {
	raw := []models.Bar{
		{Ticker: "GONE", Timestamp: day("2024-01-03"), Close: math.NaN()},
		bar("GONE", "2023-12-29", 5, 1),
	}
	out, rep, err := AlignTicker("GONE", raw, fiveDays)
	require.NoError(t, err)
	require.Len(t, out, 5)
	for i, b := range out {
		require.Equal(t, models.Bar{Ticker: "GONE", Timestamp: fiveDays.Timestamps[i]}, b)
	}
	require.True(t, rep.Degraded)
	require.Equal(t, 1, rep.OffGrid)
}

func TestAlignTickerNaNCloseIsMissing(t *testing.T) {
	raw := []models.Bar{
		bar("X", "2024-01-02", 10, 1),
		{Ticker: "X", Timestamp: day("2024-01-03"), Open: 1, Close: math.NaN(), Volume: 5},
		bar("X", "2024-01-04", 12, 1),
	}
	out, _, err := AlignTicker("X", raw, fiveDays)
	require.NoError(t, err)
	require.Equal(t, []float64{10, 10, 12, 12, 12}, closesOf(out))
	require.Equal(t, 0.0, out[1].Volume)
}

func TestAlignTickerDropsOffGridBars(t *testing.T) {
	raw := []models.Bar{
		bar("X", "2024-01-02", 10, 1),
		bar("X", "2024-01-06", 99, 1), // Saturday, not on the grid
	}
	out, rep, err := AlignTicker("X", raw, fiveDays)
	require.NoError(t, err)
	require.Equal(t, []float64{10, 10, 10, 10, 10}, closesOf(out))
	require.Equal(t, 1, rep.OffGrid)
}

func TestAlignerAlign(t *testing.T) {
	raw := map[string][]models.Bar{
		"AAPL": {bar("AAPL", "2024-01-02", 10, 1), bar("AAPL", "2024-01-04", 12, 1), bar("AAPL", "2024-01-08", 11, 1)},
		"MSFT": {bar("MSFT", "2024-01-04", 20, 1)},
		"NONE": nil,
	}
	metrics := &countingMetrics{}
	panel, err := NewAligner(WithWorkers(2), WithAlignMetrics(metrics)).Align(context.Background(), raw, fiveDays)
	require.NoError(t, err)
	require.Equal(t, []string{"AAPL", "MSFT", "NONE"}, panel.Tickers())
	for _, tic := range panel.Tickers() {
		require.Len(t, panel.Series[tic], fiveDays.Len())
	}
	require.Equal(t, []float64{20, 20, 20, 20, 20}, panel.Closes("MSFT"))
	require.Equal(t, []float64{0, 0, 0, 0, 0}, panel.Closes("NONE"))
	require.Equal(t, []string{"NONE"}, metrics.degraded)
	require.Equal(t, []string{"NONE"}, panel.Degraded)
	require.Equal(t, map[string]int{"forward": 9, "leading": 1}, metrics.filled)
}

func TestAlignerMatchesSequential(t *testing.T) {
	raw := make(map[string][]models.Bar)
	for i := 0; i < 20; i++ {
		tic := fmt.Sprintf("T%02d", i)
		for j, ts := range fiveDays.Timestamps {
			if (i+j)%3 == 0 {
				continue
			}
			raw[tic] = append(raw[tic], models.Bar{Ticker: tic, Timestamp: ts, Close: float64(i*10 + j), Volume: 1})
		}
	}
	parallel, err := NewAligner(WithWorkers(8)).Align(context.Background(), raw, fiveDays)
	require.NoError(t, err)
	for tic, bars := range raw {
		seq, _, err := AlignTicker(tic, bars, fiveDays)
		require.NoError(t, err)
		require.Equal(t, seq, parallel.Series[tic])
	}
}

func TestAlignIsIdempotent(t *testing.T) {
	raw := map[string][]models.Bar{
		"A": {bar("A", "2024-01-03", 5, 1), bar("A", "2024-01-05", 6, 1)},
		"B": {bar("B", "2024-01-02", 7, 1)},
	}
	a := NewAligner()
	first, err := a.Align(context.Background(), raw, fiveDays)
	require.NoError(t, err)

	again := make(map[string][]models.Bar)
	for _, b := range first.Bars() {
		again[b.Ticker] = append(again[b.Ticker], b)
	}
	second, err := a.Align(context.Background(), again, fiveDays)
	require.NoError(t, err)
	require.Equal(t, first.Series, second.Series)
	require.Empty(t, second.Degraded)
}

func TestAlignerCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewAligner().Align(ctx, map[string][]models.Bar{"A": nil}, fiveDays)
	require.True(t, errors.Is(err, context.Canceled))
}

type countingMetrics struct {
	mu         sync.Mutex
	degraded   []string
	filled     map[string]int
	errors     []string
	turbulence float64
}

func (m *countingMetrics) RecordBarsFetched(string, string, int) {}
func (m *countingMetrics) RecordLatency(string, float64)         {}

func (m *countingMetrics) RecordError(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors = append(m.errors, kind)
}

func (m *countingMetrics) RecordFilled(kind string, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.filled == nil {
		m.filled = map[string]int{}
	}
	m.filled[kind] += n
}

func (m *countingMetrics) RecordDegradedTicker(t string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.degraded = append(m.degraded, t)
}

func (m *countingMetrics) RecordTurbulence(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turbulence = v
}

package features

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"FinPrep/internal/domain/models"
	"FinPrep/internal/domain/repository"
	applogger "FinPrep/pkg/logger"
)

// FillReport summarizes how one ticker was mapped onto the grid.
type FillReport struct {
	Ticker        string
	Matched       int  // raw bars landing on a grid slot with a valid close
	OffGrid       int  // raw bars with no matching grid timestamp
	LeadingFilled bool // first slot copied from the first valid close
	ForwardFilled int  // slots copied from the previous close
	Degraded      bool // no valid close at all, series is zero
}

// AlignTicker maps one ticker's raw bars onto the grid and fills every gap.
//
// Bars are matched by exact timestamp; a bar with a NaN close counts as
// missing. A missing first slot takes the first valid close as OHLC with zero
// volume, or all zeros when the ticker has no valid close. Every later missing
// slot repeats the previous close as OHLC with zero volume.
func AlignTicker(ticker string, bars []models.Bar, grid models.Grid) ([]models.Bar, FillReport, error) {
	rep := FillReport{Ticker: ticker}
	n := grid.Len()
	out := make([]models.Bar, n)
	if n == 0 {
		rep.OffGrid = len(bars)
		return out, rep, nil
	}

	idx := grid.Index()
	present := make([]bool, n)
	for _, b := range bars {
		i, ok := idx[b.Timestamp.UnixNano()]
		if !ok {
			rep.OffGrid++
			continue
		}
		if math.IsNaN(b.Close) {
			continue
		}
		if !present[i] {
			rep.Matched++
		}
		b.Ticker = ticker
		b.Timestamp = grid.Timestamps[i]
		out[i] = b
		present[i] = true
	}

	if !present[0] {
		first := -1
		for i := 1; i < n; i++ {
			if present[i] {
				first = i
				break
			}
		}
		if first < 0 {
			out[0] = flatBar(ticker, grid.Timestamps[0], 0)
			rep.Degraded = true
		} else {
			out[0] = flatBar(ticker, grid.Timestamps[0], out[first].Close)
			rep.LeadingFilled = true
		}
		present[0] = true
	}

	for i := 1; i < n; i++ {
		if present[i] {
			continue
		}
		if !present[i-1] {
			return nil, rep, fmt.Errorf("ticker %s slot %d (%s): %w", ticker, i, grid.Timestamps[i].Format(time.RFC3339), models.ErrAlignmentInvariant)
		}
		out[i] = flatBar(ticker, grid.Timestamps[i], out[i-1].Close)
		present[i] = true
		rep.ForwardFilled++
	}
	return out, rep, nil
}

func flatBar(ticker string, ts time.Time, price float64) models.Bar {
	return models.Bar{Ticker: ticker, Timestamp: ts, Open: price, High: price, Low: price, Close: price, Volume: 0}
}

// Aligner aligns many tickers concurrently and reports degraded data.
type Aligner struct {
	workers int
	l       *applogger.Logger
	m       repository.Metrics
}

type AlignerOption func(*Aligner)

func WithWorkers(n int) AlignerOption {
	return func(a *Aligner) {
		if n > 0 {
			a.workers = n
		}
	}
}

func WithAlignLogger(l *applogger.Logger) AlignerOption {
	return func(a *Aligner) {
		if l != nil {
			a.l = l
		}
	}
}

func WithAlignMetrics(m repository.Metrics) AlignerOption {
	return func(a *Aligner) {
		if m != nil {
			a.m = m
		}
	}
}

func NewAligner(opts ...AlignerOption) *Aligner {
	a := &Aligner{workers: 4, l: applogger.Nop(), m: repository.NoopMetrics{}}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Align builds a panel holding every key of raw, including tickers with no bars.
// The result does not depend on worker count or scheduling.
func (a *Aligner) Align(ctx context.Context, raw map[string][]models.Bar, grid models.Grid) (*models.AlignedPanel, error) {
	start := time.Now()
	panel := models.NewAlignedPanel(grid)
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.workers)
	for ticker, bars := range raw {
		ticker, bars := ticker, bars
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			series, rep, err := AlignTicker(ticker, bars, grid)
			if err != nil {
				a.m.RecordError("alignment")
				return err
			}
			a.report(rep)
			mu.Lock()
			panel.Series[ticker] = series
			if rep.Degraded {
				panel.Degraded = append(panel.Degraded, ticker)
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		a.l.Error("align failed", applogger.Error(err))
		return nil, err
	}
	sort.Strings(panel.Degraded)

	a.m.RecordLatency("align", time.Since(start).Seconds())
	a.l.Debug("align ok",
		applogger.Int("tickers", len(raw)),
		applogger.Int("slots", grid.Len()),
		applogger.Duration("duration", time.Since(start)),
	)
	return panel, nil
}

func (a *Aligner) report(rep FillReport) {
	if rep.ForwardFilled > 0 {
		a.m.RecordFilled("forward", rep.ForwardFilled)
	}
	if rep.LeadingFilled {
		a.m.RecordFilled("leading", 1)
		a.l.Warn("leading gap filled from first valid close",
			applogger.String("ticker", rep.Ticker))
	}
	if rep.Degraded {
		a.m.RecordDegradedTicker(rep.Ticker)
		a.l.Warn("ticker has no valid close in range, series filled with zeros",
			applogger.String("ticker", rep.Ticker),
			applogger.Int("off_grid", rep.OffGrid))
	}
	if rep.OffGrid > 0 {
		a.l.Debug("dropped off-grid bars",
			applogger.String("ticker", rep.Ticker),
			applogger.Int("count", rep.OffGrid))
	}
}

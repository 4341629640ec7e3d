package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"FinPrep/internal/domain/models"
	"FinPrep/internal/services/features"
	applogger "FinPrep/pkg/logger"
	"FinPrep/pkg/util"
)

type LatestParams struct {
	Tickers    []string
	Interval   models.Frequency
	Limit      int
	Indicators []string
}

// LatestSnapshot is the newest row of a live panel.
type LatestSnapshot struct {
	Timestamp       time.Time `json:"timestamp"`
	Interval        string    `json:"interval"`
	Tickers         []string  `json:"tickers"`
	Indicators      []string  `json:"indicators"`
	Price           []float64 `json:"price"`
	Tech            []float64 `json:"tech"`
	ProxyTicker     string    `json:"proxy_ticker"`
	VolatilityProxy float64   `json:"volatility_proxy"`
	Rows            int       `json:"rows"`
	Degraded        []string  `json:"degraded,omitempty"`
}

// Latest fetches the most recent bars, aligns them on a contiguous grid
// spanning the earliest to the latest bar and returns the last row.
func (uc *PipelineUseCase) Latest(ctx context.Context, p LatestParams) (*LatestSnapshot, error) {
	started := time.Now()
	tickers := util.NormalizeTickers(p.Tickers)
	if len(tickers) == 0 {
		return nil, fmt.Errorf("tickers required")
	}
	if p.Interval.Step() <= 0 {
		return nil, fmt.Errorf("latest bars for %q: %w", p.Interval, models.ErrUnsupportedFrequency)
	}
	if p.Limit < 2 {
		p.Limit = 2
	}
	indicators := p.Indicators
	if len(indicators) == 0 {
		indicators = uc.cfg.Indicators
	}
	if err := uc.validateIndicators(indicators); err != nil {
		return nil, err
	}

	fetch := tickers
	if !contains(tickers, uc.cfg.ProxyTicker) {
		fetch = append(append([]string(nil), tickers...), uc.cfg.ProxyTicker)
	}
	raw, err := uc.downloadLatest(ctx, fetch, p.Interval, p.Limit)
	if err != nil {
		return nil, err
	}
	proxyBars := raw[uc.cfg.ProxyTicker]
	if !contains(tickers, uc.cfg.ProxyTicker) {
		delete(raw, uc.cfg.ProxyTicker)
	}

	grid, err := uc.liveGrid(ctx, raw, p.Interval)
	if err != nil {
		return nil, err
	}

	panel, err := features.NewAligner(
		features.WithWorkers(uc.cfg.Workers),
		features.WithAlignLogger(uc.l),
		features.WithAlignMetrics(uc.m),
	).Align(ctx, raw, grid)
	if err != nil {
		return nil, fmt.Errorf("align: %w", err)
	}
	fp := models.NewFeaturePanel(panel)
	if err := uc.attachIndicators(ctx, fp, indicators); err != nil {
		return nil, err
	}
	proxy, _, err := features.AlignTicker(uc.cfg.ProxyTicker, proxyBars, grid)
	if err != nil {
		return nil, fmt.Errorf("align volatility proxy: %w", err)
	}
	fp.VolatilityProxy = closes(proxy)

	arrays, err := features.ToArrays(fp, indicators, true)
	if err != nil {
		return nil, fmt.Errorf("reshape: %w", err)
	}
	last := arrays.Rows() - 1
	snap := &LatestSnapshot{
		Timestamp:       arrays.Timestamps[last],
		Interval:        p.Interval.String(),
		Tickers:         arrays.Tickers,
		Indicators:      arrays.Indicators,
		Price:           arrays.Price[last],
		Tech:            arrays.Tech[last],
		ProxyTicker:     uc.cfg.ProxyTicker,
		VolatilityProxy: arrays.Scalar[last],
		Rows:            arrays.Rows(),
		Degraded:        panel.Degraded,
	}
	uc.m.RecordLatency("latest", time.Since(started).Seconds())
	uc.l.Debug("latest ok",
		applogger.Strings("tickers", tickers),
		applogger.String("interval", snap.Interval),
		applogger.Int("rows", snap.Rows),
		applogger.String("timestamp", snap.Timestamp.Format(time.RFC3339)),
		applogger.Duration("duration", time.Since(started)),
	)
	return snap, nil
}

// liveGrid spans the earliest to the latest fetched bar. Intraday grids are
// contiguous steps; daily grids follow the calendar.
func (uc *PipelineUseCase) liveGrid(ctx context.Context, raw map[string][]models.Bar, interval models.Frequency) (models.Grid, error) {
	var lo, hi time.Time
	for _, bars := range raw {
		for _, b := range bars {
			if lo.IsZero() || b.Timestamp.Before(lo) {
				lo = b.Timestamp
			}
			if b.Timestamp.After(hi) {
				hi = b.Timestamp
			}
		}
	}
	if lo.IsZero() {
		return models.Grid{}, fmt.Errorf("no recent bars for any ticker: %w", models.ErrEmptyGrid)
	}
	if interval.Intraday() {
		return features.StepGrid(lo, hi, interval)
	}
	return uc.GridFor(ctx, lo, hi, interval)
}

func (uc *PipelineUseCase) downloadLatest(ctx context.Context, tickers []string, interval models.Frequency, limit int) (map[string][]models.Bar, error) {
	if uc.latest == nil {
		end := time.Now().UTC()
		out, err := uc.download(ctx, tickers, end.Add(-latestWindow(interval, limit)), end, interval)
		if err != nil {
			return nil, err
		}
		for t, bars := range out {
			if len(bars) > limit {
				out[t] = bars[len(bars)-limit:]
			}
		}
		return out, nil
	}

	out := make(map[string][]models.Bar, len(tickers))
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(uc.cfg.Workers)
	for _, ticker := range tickers {
		ticker := ticker
		g.Go(func() error {
			bars, err := uc.latest.LatestBars(gctx, ticker, limit, interval)
			if err != nil {
				return fmt.Errorf("latest %s: %w", ticker, err)
			}
			mu.Lock()
			out[ticker] = bars
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		uc.m.RecordError("download")
		return nil, err
	}
	return out, nil
}

// latestWindow is how far back to ask a windowed provider so that limit bars
// survive nights, weekends and holidays.
func latestWindow(interval models.Frequency, limit int) time.Duration {
	span := time.Duration(limit) * interval.Step()
	if interval.Intraday() {
		return span*3 + 4*24*time.Hour
	}
	return span*2 + 10*24*time.Hour
}

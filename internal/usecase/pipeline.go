package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"FinPrep/internal/domain/models"
	domrepo "FinPrep/internal/domain/repository"
	"FinPrep/internal/services/features"
	applogger "FinPrep/pkg/logger"
	"FinPrep/pkg/util"
)

// ErrPublishDisabled is returned when a run asks to publish but no publisher is wired.
var ErrPublishDisabled = errors.New("publishing is not configured")

// PipelineConfig carries the run defaults.
type PipelineConfig struct {
	ProxyTicker string
	Lookback    int
	Workers     int
	Policy      features.InsufficientPolicy
	Indicators  []string
	Session     features.Session
}

// PipelineUseCase prepares learner arrays from raw provider bars.
type PipelineUseCase struct {
	cal       domrepo.Calendar
	provider  domrepo.BarProvider
	latest    domrepo.LatestBarProvider
	engine    domrepo.IndicatorEngine
	publisher domrepo.ArraysPublisher
	cfg       PipelineConfig
	l         *applogger.Logger
	m         domrepo.Metrics
}

type PipelineOption func(*PipelineUseCase)

// WithPublisher enables publishing of prepared arrays.
func WithPublisher(p domrepo.ArraysPublisher) PipelineOption {
	return func(uc *PipelineUseCase) {
		uc.publisher = p
	}
}

// WithLatestProvider lets snapshots ask the source for the newest n bars.
func WithLatestProvider(p domrepo.LatestBarProvider) PipelineOption {
	return func(uc *PipelineUseCase) {
		uc.latest = p
	}
}

func WithPipelineLogger(l *applogger.Logger) PipelineOption {
	return func(uc *PipelineUseCase) {
		if l != nil {
			uc.l = l
		}
	}
}

func WithPipelineMetrics(m domrepo.Metrics) PipelineOption {
	return func(uc *PipelineUseCase) {
		if m != nil {
			uc.m = m
		}
	}
}

func NewPipelineUseCase(cal domrepo.Calendar, provider domrepo.BarProvider, engine domrepo.IndicatorEngine, cfg PipelineConfig, opts ...PipelineOption) *PipelineUseCase {
	if cfg.Lookback <= 0 {
		cfg.Lookback = features.DefaultLookback
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.ProxyTicker == "" {
		cfg.ProxyTicker = "VIXY"
	}
	if cfg.Policy == "" {
		cfg.Policy = features.InsufficientFail
	}
	if cfg.Session.Steps <= 0 {
		cfg.Session = features.DefaultSession()
	}
	uc := &PipelineUseCase{
		cal:      cal,
		provider: provider,
		engine:   engine,
		cfg:      cfg,
		l:        applogger.Nop(),
		m:        domrepo.NoopMetrics{},
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

// Publishing reports whether a publisher is wired.
func (uc *PipelineUseCase) Publishing() bool { return uc.publisher != nil }

type PrepareParams struct {
	Tickers            []string
	Start              time.Time
	End                time.Time
	Interval           models.Frequency
	Indicators         []string
	UseVolatilityProxy bool
	Lookback           int
	Publish            bool
}

type PrepareResult struct {
	RunID     string                `json:"run_id"`
	Interval  string                `json:"interval"`
	Rows      int                   `json:"rows"`
	Degraded  []string              `json:"degraded,omitempty"`
	Published bool                  `json:"published"`
	Duration  time.Duration         `json:"duration"`
	Arrays    *models.FeatureArrays `json:"arrays"`
}

// Prepare downloads bars, aligns them on the trading grid, attaches indicators
// and the scalar column, and reshapes the panel into arrays.
func (uc *PipelineUseCase) Prepare(ctx context.Context, p PrepareParams) (*PrepareResult, error) {
	started := time.Now()
	runID := uuid.NewString()
	l := uc.l.With(applogger.String("run_id", runID))

	tickers := util.NormalizeTickers(p.Tickers)
	if len(tickers) == 0 {
		return nil, fmt.Errorf("tickers required")
	}
	if p.End.Before(p.Start) {
		return nil, fmt.Errorf("end %s is before start %s", p.End.Format(time.DateOnly), p.Start.Format(time.DateOnly))
	}
	if p.Publish && uc.publisher == nil {
		return nil, ErrPublishDisabled
	}
	indicators := p.Indicators
	if len(indicators) == 0 {
		indicators = uc.cfg.Indicators
	}
	if err := uc.validateIndicators(indicators); err != nil {
		return nil, err
	}
	lookback := p.Lookback
	if lookback <= 0 {
		lookback = uc.cfg.Lookback
	}

	grid, err := uc.GridFor(ctx, p.Start, p.End, p.Interval)
	if err != nil {
		return nil, err
	}
	first, last := grid.Timestamps[0], grid.Timestamps[grid.Len()-1]

	fetch := tickers
	if p.UseVolatilityProxy && !contains(tickers, uc.cfg.ProxyTicker) {
		fetch = append(append([]string(nil), tickers...), uc.cfg.ProxyTicker)
	}
	raw, err := uc.download(ctx, fetch, first, last, grid.Frequency)
	if err != nil {
		return nil, err
	}
	var proxyBars []models.Bar
	if p.UseVolatilityProxy {
		proxyBars = raw[uc.cfg.ProxyTicker]
		if !contains(tickers, uc.cfg.ProxyTicker) {
			delete(raw, uc.cfg.ProxyTicker)
		}
	}

	aligner := features.NewAligner(
		features.WithWorkers(uc.cfg.Workers),
		features.WithAlignLogger(l),
		features.WithAlignMetrics(uc.m),
	)
	panel, err := aligner.Align(ctx, raw, grid)
	if err != nil {
		return nil, fmt.Errorf("align: %w", err)
	}

	fp := models.NewFeaturePanel(panel)
	if err := uc.attachIndicators(ctx, fp, indicators); err != nil {
		return nil, err
	}

	if p.UseVolatilityProxy {
		series, rep, err := features.AlignTicker(uc.cfg.ProxyTicker, proxyBars, grid)
		if err != nil {
			return nil, fmt.Errorf("align volatility proxy: %w", err)
		}
		if rep.Degraded {
			uc.m.RecordDegradedTicker(uc.cfg.ProxyTicker)
			l.Warn("volatility proxy has no valid close in range",
				applogger.String("ticker", uc.cfg.ProxyTicker))
		}
		fp.VolatilityProxy = closes(series)
	} else {
		engine := features.NewTurbulenceEngine(lookback,
			features.WithInsufficientPolicy(uc.cfg.Policy),
			features.WithTurbulenceLogger(l),
			features.WithTurbulenceMetrics(uc.m),
		)
		if fp.Turbulence, err = engine.Compute(panel); err != nil {
			uc.m.RecordError("turbulence")
			return nil, err
		}
	}

	arrays, err := features.ToArrays(fp, indicators, p.UseVolatilityProxy)
	if err != nil {
		return nil, fmt.Errorf("reshape: %w", err)
	}

	res := &PrepareResult{
		RunID:    runID,
		Interval: grid.Frequency.String(),
		Rows:     arrays.Rows(),
		Degraded: panel.Degraded,
		Arrays:   arrays,
	}
	if p.Publish {
		if err := uc.publisher.PublishArrays(ctx, runID, arrays); err != nil {
			uc.m.RecordError("publish")
			return nil, err
		}
		res.Published = true
	}
	res.Duration = time.Since(started)
	uc.m.RecordLatency("prepare", res.Duration.Seconds())
	l.Info("prepare ok",
		applogger.Strings("tickers", arrays.Tickers),
		applogger.String("interval", res.Interval),
		applogger.Int("rows", res.Rows),
		applogger.Int("degraded", len(res.Degraded)),
		applogger.String("scalar", arrays.ScalarSource),
		applogger.Bool("published", res.Published),
		applogger.Duration("duration", res.Duration),
	)
	return res, nil
}

// GridFor lists the trading grid for a range without fetching any data.
func (uc *PipelineUseCase) GridFor(ctx context.Context, start, end time.Time, interval models.Frequency) (models.Grid, error) {
	grid, err := features.BuildGrid(ctx, uc.cal, start, end, interval, uc.cfg.Session)
	if err != nil {
		return models.Grid{}, err
	}
	if grid.Len() == 0 {
		return models.Grid{}, fmt.Errorf("no sessions between %s and %s: %w",
			start.Format(time.DateOnly), end.Format(time.DateOnly), models.ErrEmptyGrid)
	}
	return grid, nil
}

func (uc *PipelineUseCase) download(ctx context.Context, tickers []string, start, end time.Time, interval models.Frequency) (map[string][]models.Bar, error) {
	began := time.Now()
	out := make(map[string][]models.Bar, len(tickers))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(uc.cfg.Workers)
	for _, ticker := range tickers {
		ticker := ticker
		g.Go(func() error {
			bars, err := uc.provider.FetchBars(gctx, ticker, start, end, interval)
			if err != nil {
				return fmt.Errorf("fetch %s: %w", ticker, err)
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
	uc.m.RecordLatency("download", time.Since(began).Seconds())
	return out, nil
}

func (uc *PipelineUseCase) attachIndicators(ctx context.Context, fp *models.FeaturePanel, names []string) error {
	began := time.Now()
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(uc.cfg.Workers)
	for ticker, bars := range fp.Series {
		ticker, bars := ticker, bars
		g.Go(func() error {
			cols := make(map[string][]float64, len(names))
			for _, name := range names {
				if err := gctx.Err(); err != nil {
					return err
				}
				series, err := uc.engine.Compute(name, bars)
				if err != nil {
					return fmt.Errorf("indicator %s for %s: %w", name, ticker, err)
				}
				cols[name] = series
			}
			mu.Lock()
			fp.Indicators[ticker] = cols
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		uc.m.RecordError("indicators")
		return err
	}
	uc.m.RecordLatency("indicators", time.Since(began).Seconds())
	return nil
}

type indicatorValidator interface {
	Validate(names []string) error
}

func (uc *PipelineUseCase) validateIndicators(names []string) error {
	if v, ok := uc.engine.(indicatorValidator); ok {
		return v.Validate(names)
	}
	return nil
}

func closes(bars []models.Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

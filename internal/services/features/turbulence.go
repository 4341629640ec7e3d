package features

import (
	"errors"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"FinPrep/internal/domain/models"
	"FinPrep/internal/domain/repository"
	applogger "FinPrep/pkg/logger"
)

const DefaultLookback = 252

// warmupPositives is how many positive scores are zeroed at the start of a series.
const warmupPositives = 2

// pinvRcond matches the usual singular value cutoff relative to the largest value.
const pinvRcond = 1e-15

// InsufficientPolicy decides what a window without usable data produces.
type InsufficientPolicy string

const (
	InsufficientFail InsufficientPolicy = "fail"
	InsufficientZero InsufficientPolicy = "zero"
)

// TurbulenceEngine scores each timestamp by the Mahalanobis distance of its
// cross-sectional returns from the trailing window.
type TurbulenceEngine struct {
	lookback int
	policy   InsufficientPolicy
	l        *applogger.Logger
	m        repository.Metrics
}

type TurbulenceOption func(*TurbulenceEngine)

func WithInsufficientPolicy(p InsufficientPolicy) TurbulenceOption {
	return func(e *TurbulenceEngine) {
		if p != "" {
			e.policy = p
		}
	}
}

func WithTurbulenceLogger(l *applogger.Logger) TurbulenceOption {
	return func(e *TurbulenceEngine) {
		if l != nil {
			e.l = l
		}
	}
}

func WithTurbulenceMetrics(m repository.Metrics) TurbulenceOption {
	return func(e *TurbulenceEngine) {
		if m != nil {
			e.m = m
		}
	}
}

func NewTurbulenceEngine(lookback int, opts ...TurbulenceOption) *TurbulenceEngine {
	if lookback <= 0 {
		lookback = DefaultLookback
	}
	e := &TurbulenceEngine{lookback: lookback, policy: InsufficientFail, l: applogger.Nop(), m: repository.NoopMetrics{}}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Turbulence computes the series with the default policy.
func Turbulence(panel *models.AlignedPanel, lookback int) ([]float64, error) {
	return NewTurbulenceEngine(lookback).Compute(panel)
}

// Compute returns one non-negative score per grid timestamp. Scores before
// the lookback are zero, and so are the first two positive scores.
func (e *TurbulenceEngine) Compute(panel *models.AlignedPanel) ([]float64, error) {
	start := time.Now()
	returns, tickers := ReturnMatrix(panel)
	n := len(returns)
	out := make([]float64, n)

	positives := 0
	for i := e.lookback; i < n; i++ {
		score, err := windowScore(returns[i-e.lookback:i], returns[i])
		if err != nil {
			if errors.Is(err, models.ErrInsufficientCoverage) && e.policy == InsufficientZero {
				e.m.RecordError("insufficient_coverage")
				e.l.Warn("turbulence window skipped",
					applogger.Int("index", i),
					applogger.String("timestamp", panel.Grid.Timestamps[i].Format(time.RFC3339)),
					applogger.Error(err))
				continue
			}
			return nil, fmt.Errorf("turbulence at %s: %w", panel.Grid.Timestamps[i].Format(time.RFC3339), err)
		}
		if !(score > 0) {
			continue
		}
		positives++
		if positives > warmupPositives {
			out[i] = score
		}
	}

	if n > 0 {
		e.m.RecordTurbulence(out[n-1])
	}
	e.m.RecordLatency("turbulence", time.Since(start).Seconds())
	e.l.Debug("turbulence ok",
		applogger.Int("tickers", len(tickers)),
		applogger.Int("rows", n),
		applogger.Int("lookback", e.lookback),
		applogger.Duration("duration", time.Since(start)),
	)
	return out, nil
}

// selectWindow keeps the tickers with the fewest missing returns in the window
// (all tickers sharing the minimum, in column order) and then the rows where
// every kept ticker has a value.
func selectWindow(window [][]float64) (cols []int, rows [][]float64) {
	if len(window) == 0 || len(window[0]) == 0 {
		return nil, nil
	}
	k := len(window[0])
	missing := make([]int, k)
	for _, row := range window {
		for j, v := range row {
			if !finite(v) {
				missing[j]++
			}
		}
	}
	minMissing := missing[0]
	for _, c := range missing[1:] {
		if c < minMissing {
			minMissing = c
		}
	}
	for j, c := range missing {
		if c == minMissing {
			cols = append(cols, j)
		}
	}

	for _, row := range window {
		kept := make([]float64, len(cols))
		ok := true
		for x, j := range cols {
			if !finite(row[j]) {
				ok = false
				break
			}
			kept[x] = row[j]
		}
		if ok {
			rows = append(rows, kept)
		}
	}
	return cols, rows
}

// windowScore is d·pinv(Σ)·dᵀ for the current row against the window. A
// non-finite deviation yields 0.
func windowScore(window [][]float64, current []float64) (float64, error) {
	cols, rows := selectWindow(window)
	if len(cols) == 0 || len(rows) < 2 {
		return 0, fmt.Errorf("%d tickers over %d rows: %w", len(cols), len(rows), models.ErrInsufficientCoverage)
	}

	k := len(cols)
	data := make([]float64, 0, len(rows)*k)
	for _, r := range rows {
		data = append(data, r...)
	}
	x := mat.NewDense(len(rows), k, data)

	var cov mat.SymDense
	stat.CovarianceMatrix(&cov, x, nil)

	dev := make([]float64, k)
	for j, c := range cols {
		mean := stat.Mean(mat.Col(nil, j, x), nil)
		dev[j] = current[c] - mean
		if !finite(dev[j]) {
			return 0, nil
		}
	}

	pinv, err := pseudoInverse(&cov)
	if err != nil {
		return 0, err
	}
	d := mat.NewVecDense(k, dev)
	score := mat.Inner(d, pinv, d)
	if !finite(score) {
		return 0, nil
	}
	return score, nil
}

// pseudoInverse computes the Moore-Penrose inverse V·S⁺·Uᵀ from a thin SVD.
func pseudoInverse(a mat.Matrix) (*mat.Dense, error) {
	var svd mat.SVD
	if ok := svd.Factorize(a, mat.SVDThin); !ok {
		return nil, errors.New("svd factorization failed")
	}
	s := svd.Values(nil)
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	maxSV := 0.0
	for _, x := range s {
		maxSV = math.Max(maxSV, x)
	}
	cutoff := pinvRcond * maxSV
	inv := make([]float64, len(s))
	for i, x := range s {
		if x > cutoff {
			inv[i] = 1 / x
		}
	}

	var vs, out mat.Dense
	vs.Mul(&v, mat.NewDiagDense(len(inv), inv))
	out.Mul(&vs, u.T())
	return &out, nil
}

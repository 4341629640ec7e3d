package features

import (
	"fmt"
	"math"

	"FinPrep/internal/domain/models"
)

const (
	ScalarTurbulence      = "turbulence"
	ScalarVolatilityProxy = "vix"
)

// ToArrays flattens a feature panel into learner arrays. Tickers follow sorted
// order; tech columns are ticker-major with indicators in the requested order.
// Undefined indicator values (warm-up NaN) are written as 0.
func ToArrays(panel *models.FeaturePanel, indicators []string, useVolatilityProxy bool) (*models.FeatureArrays, error) {
	n := panel.Grid.Len()
	tickers := panel.Tickers()

	scalar, source := panel.Turbulence, ScalarTurbulence
	if useVolatilityProxy {
		scalar, source = panel.VolatilityProxy, ScalarVolatilityProxy
	}
	if scalar == nil {
		return nil, fmt.Errorf("%s column not computed: %w", source, models.ErrRowCountMismatch)
	}
	if len(scalar) != n {
		return nil, fmt.Errorf("%s has %d rows, grid has %d: %w", source, len(scalar), n, models.ErrRowCountMismatch)
	}

	for _, t := range tickers {
		if got := len(panel.Series[t]); got != n {
			return nil, fmt.Errorf("ticker %s has %d rows, grid has %d: %w", t, got, n, models.ErrRowCountMismatch)
		}
		for _, ind := range indicators {
			series, ok := panel.Indicators[t][ind]
			if !ok {
				return nil, fmt.Errorf("ticker %s missing indicator %s: %w", t, ind, models.ErrRowCountMismatch)
			}
			if len(series) != n {
				return nil, fmt.Errorf("ticker %s indicator %s has %d rows, grid has %d: %w", t, ind, len(series), n, models.ErrRowCountMismatch)
			}
		}
	}

	width := len(tickers) * len(indicators)
	out := &models.FeatureArrays{
		Tickers:      tickers,
		Indicators:   append([]string(nil), indicators...),
		Timestamps:   append(panel.Grid.Timestamps[:0:0], panel.Grid.Timestamps...),
		Price:        make([][]float64, n),
		Tech:         make([][]float64, n),
		Scalar:       make([]float64, n),
		ScalarSource: source,
	}
	for i := 0; i < n; i++ {
		price := make([]float64, len(tickers))
		tech := make([]float64, 0, width)
		for j, t := range tickers {
			price[j] = panel.Series[t][i].Close
			for _, ind := range indicators {
				v := panel.Indicators[t][ind][i]
				if math.IsNaN(v) || math.IsInf(v, 0) {
					v = 0
				}
				tech = append(tech, v)
			}
		}
		out.Price[i] = price
		out.Tech[i] = tech
		out.Scalar[i] = scalar[i]
	}
	return out, nil
}

package features

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"FinPrep/internal/domain/models"
)

func featurePanel() *models.FeaturePanel {
	p := models.NewFeaturePanel(panelFromCloses(map[string][]float64{
		"MSFT": {20, 21, 22},
		"AAPL": {10, 11, 12},
	}))
	p.Indicators["AAPL"] = map[string][]float64{"macd": {math.NaN(), 0.1, 0.2}, "rsi_30": {50, 51, 52}}
	p.Indicators["MSFT"] = map[string][]float64{"macd": {0.3, 0.4, 0.5}, "rsi_30": {60, 61, 62}}
	p.Turbulence = []float64{0, 0, 7.5}
	p.VolatilityProxy = []float64{18, 19, 20}
	return p
}

func TestToArrays(t *testing.T) {
	arr, err := ToArrays(featurePanel(), []string{"macd", "rsi_30"}, false)
	require.NoError(t, err)

	require.Equal(t, []string{"AAPL", "MSFT"}, arr.Tickers)
	require.Equal(t, 3, arr.Rows())
	require.Equal(t, [][]float64{{10, 20}, {11, 21}, {12, 22}}, arr.Price)
	require.Equal(t, []float64{0, 50, 0.3, 60}, arr.Tech[0])
	require.Equal(t, []float64{0.2, 52, 0.5, 62}, arr.Tech[2])
	require.Equal(t, []float64{0, 0, 7.5}, arr.Scalar)
	require.Equal(t, ScalarTurbulence, arr.ScalarSource)
	require.Equal(t, []models.TechColumn{
		{Ticker: "AAPL", Indicator: "macd"},
		{Ticker: "AAPL", Indicator: "rsi_30"},
		{Ticker: "MSFT", Indicator: "macd"},
		{Ticker: "MSFT", Indicator: "rsi_30"},
	}, arr.Columns())
}

func TestToArraysVolatilityProxy(t *testing.T) {
	arr, err := ToArrays(featurePanel(), []string{"macd"}, true)
	require.NoError(t, err)
	require.Equal(t, []float64{18, 19, 20}, arr.Scalar)
	require.Equal(t, ScalarVolatilityProxy, arr.ScalarSource)
	require.Len(t, arr.Tech[0], 2)
}

func TestToArraysRowCountMismatch(t *testing.T) {
	cases := map[string]func(p *models.FeaturePanel){
		"short ticker":       func(p *models.FeaturePanel) { p.Series["MSFT"] = p.Series["MSFT"][:2] },
		"short indicator":    func(p *models.FeaturePanel) { p.Indicators["AAPL"]["macd"] = []float64{1} },
		"missing indicator":  func(p *models.FeaturePanel) { delete(p.Indicators["MSFT"], "rsi_30") },
		"short scalar":       func(p *models.FeaturePanel) { p.Turbulence = []float64{1, 2} },
		"scalar not present": func(p *models.FeaturePanel) { p.Turbulence = nil },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			p := featurePanel()
			mutate(p)
			_, err := ToArrays(p, []string{"macd", "rsi_30"}, false)
			require.ErrorIs(t, err, models.ErrRowCountMismatch)
		})
	}
}

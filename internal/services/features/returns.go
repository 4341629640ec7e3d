package features

import (
	"math"

	"FinPrep/internal/domain/models"
)

// PctChange computes simple returns r_t = C_t/C_{t-1} - 1. The first value is
// NaN, and so is any return whose previous close is zero.
func PctChange(closes []float64) []float64 {
	out := make([]float64, len(closes))
	if len(closes) == 0 {
		return out
	}
	out[0] = math.NaN()
	for i := 1; i < len(closes); i++ {
		prev := closes[i-1]
		if prev == 0 || math.IsNaN(prev) || math.IsNaN(closes[i]) {
			out[i] = math.NaN()
			continue
		}
		out[i] = closes[i]/prev - 1
	}
	return out
}

// ReturnMatrix returns rows=timestamps, columns=tickers in panel.Tickers() order.
func ReturnMatrix(panel *models.AlignedPanel) ([][]float64, []string) {
	tickers := panel.Tickers()
	n := panel.Grid.Len()
	rows := make([][]float64, n)
	for i := range rows {
		rows[i] = make([]float64, len(tickers))
	}
	for j, t := range tickers {
		r := PctChange(panel.Closes(t))
		for i := 0; i < n && i < len(r); i++ {
			rows[i][j] = r[i]
		}
	}
	return rows, tickers
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

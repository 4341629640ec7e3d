package models

import (
	"sort"
	"time"
)

// Bar is one OHLCV record for a ticker at a timestamp.
type Bar struct {
	Ticker    string    `json:"tic"`
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// Grid is the ordered, duplicate-free set of timestamps every ticker is aligned to.
type Grid struct {
	Frequency  Frequency
	Timestamps []time.Time
}

func (g Grid) Len() int { return len(g.Timestamps) }

// Index maps each grid timestamp to its position.
func (g Grid) Index() map[int64]int {
	idx := make(map[int64]int, len(g.Timestamps))
	for i, ts := range g.Timestamps {
		idx[ts.UnixNano()] = i
	}
	return idx
}

// AlignedPanel holds one fully populated bar per (ticker, grid timestamp).
type AlignedPanel struct {
	Grid   Grid
	Series map[string][]Bar
	// Degraded lists, sorted, the tickers that had no valid close and were zero filled.
	Degraded []string
}

func NewAlignedPanel(grid Grid) *AlignedPanel {
	return &AlignedPanel{Grid: grid, Series: make(map[string][]Bar)}
}

// Tickers returns the panel tickers in sorted order. Every matrix built from the
// panel uses this column order.
func (p *AlignedPanel) Tickers() []string {
	out := make([]string, 0, len(p.Series))
	for t := range p.Series {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Closes returns the close column of a ticker, nil if absent.
func (p *AlignedPanel) Closes(ticker string) []float64 {
	bars, ok := p.Series[ticker]
	if !ok {
		return nil
	}
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}

// Bars flattens the panel back to a bar list ordered by (timestamp, ticker).
func (p *AlignedPanel) Bars() []Bar {
	tickers := p.Tickers()
	out := make([]Bar, 0, len(tickers)*p.Grid.Len())
	for i := range p.Grid.Timestamps {
		for _, t := range tickers {
			if i < len(p.Series[t]) {
				out = append(out, p.Series[t][i])
			}
		}
	}
	return out
}

// FeaturePanel is an aligned panel enriched with indicator columns and a
// market-wide scalar column.
type FeaturePanel struct {
	*AlignedPanel
	// Indicators maps ticker -> indicator name -> series aligned to the grid.
	Indicators map[string]map[string][]float64
	// Turbulence is one score per grid timestamp, nil when not computed.
	Turbulence []float64
	// VolatilityProxy is the proxy ticker close per grid timestamp, nil when not attached.
	VolatilityProxy []float64
}

func NewFeaturePanel(p *AlignedPanel) *FeaturePanel {
	return &FeaturePanel{AlignedPanel: p, Indicators: make(map[string]map[string][]float64)}
}

// FeatureArrays are the dense learner inputs.
type FeatureArrays struct {
	Tickers    []string    `json:"tickers"`
	Indicators []string    `json:"indicators"`
	Timestamps []time.Time `json:"timestamps"`
	// Price is rows=timestamps, columns=tickers (close).
	Price [][]float64 `json:"price"`
	// Tech is rows=timestamps, columns=ticker-major blocks of indicators.
	Tech [][]float64 `json:"tech"`
	// Scalar is turbulence or the volatility proxy, one value per timestamp.
	Scalar       []float64 `json:"scalar"`
	ScalarSource string    `json:"scalar_source"`
}

// TechColumn identifies one column of the tech array.
type TechColumn struct {
	Ticker    string `json:"tic"`
	Indicator string `json:"indicator"`
}

// Columns lists the tech array columns in order.
func (a *FeatureArrays) Columns() []TechColumn {
	out := make([]TechColumn, 0, len(a.Tickers)*len(a.Indicators))
	for _, t := range a.Tickers {
		for _, ind := range a.Indicators {
			out = append(out, TechColumn{Ticker: t, Indicator: ind})
		}
	}
	return out
}

// Rows is the number of timestamps covered by the arrays.
func (a *FeatureArrays) Rows() int { return len(a.Price) }

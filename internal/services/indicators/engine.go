// Package indicators computes technical indicators named the way stockstats
// names them (macd, boll_ub, rsi_30, close_60_sma, ...).
package indicators

import (
	"fmt"
	"math"
	"regexp"
	"strconv"

	"FinPrep/internal/domain/models"
)

// DefaultIndicators is the usual learner feature set.
var DefaultIndicators = []string{"macd", "boll_ub", "boll_lb", "rsi_30", "cci_30", "dx_30", "close_30_sma", "close_60_sma"}

var (
	windowed  = regexp.MustCompile(`^(rsi|cci|dx|atr)_(\d+)$`)
	closeStat = regexp.MustCompile(`^close_(\d+)_(sma|ema)$`)
)

const bollWindow = 20

// Engine evaluates indicators over one ticker's bars. It is stateless and safe
// for concurrent use.
type Engine struct{}

func NewEngine() *Engine { return &Engine{} }

// Validate reports the first name Compute would reject.
func (e *Engine) Validate(names []string) error {
	for _, n := range names {
		if _, err := e.Compute(n, nil); err != nil {
			return err
		}
	}
	return nil
}

// Compute returns the named series, one value per bar. Leading values without
// enough history may be NaN.
func (e *Engine) Compute(name string, bars []models.Bar) ([]float64, error) {
	closes := field(bars, func(b models.Bar) float64 { return b.Close })

	switch name {
	case "macd", "macds", "macdh":
		line, signal := macd(closes)
		switch name {
		case "macd":
			return line, nil
		case "macds":
			return signal, nil
		}
		out := make([]float64, len(line))
		for i := range out {
			out[i] = line[i] - signal[i]
		}
		return out, nil
	case "boll", "boll_ub", "boll_lb":
		mid := sma(closes, bollWindow)
		if name == "boll" {
			return mid, nil
		}
		std := rollingStd(closes, bollWindow)
		k := 2.0
		if name == "boll_lb" {
			k = -2.0
		}
		out := make([]float64, len(mid))
		for i := range out {
			out[i] = mid[i] + k*std[i]
		}
		return out, nil
	}

	if m := closeStat.FindStringSubmatch(name); m != nil {
		n, err := window(name, m[1])
		if err != nil {
			return nil, err
		}
		if m[2] == "ema" {
			return ema(closes, n), nil
		}
		return sma(closes, n), nil
	}

	if m := windowed.FindStringSubmatch(name); m != nil {
		n, err := window(name, m[2])
		if err != nil {
			return nil, err
		}
		switch m[1] {
		case "rsi":
			return rsi(closes, n), nil
		case "cci":
			return cci(bars, n), nil
		case "dx":
			return dx(bars, n), nil
		case "atr":
			return smma(trueRange(bars), n), nil
		}
	}
	return nil, fmt.Errorf("%q: %w", name, models.ErrUnknownIndicator)
}

func window(name, s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%q window %q: %w", name, s, models.ErrUnknownIndicator)
	}
	return n, nil
}

func field(bars []models.Bar, f func(models.Bar) float64) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = f(b)
	}
	return out
}

func macd(closes []float64) (line, signal []float64) {
	fast, slow := ema(closes, 12), ema(closes, 26)
	line = make([]float64, len(closes))
	for i := range line {
		line[i] = fast[i] - slow[i]
	}
	return line, ema(line, 9)
}

func rsi(closes []float64, n int) []float64 {
	change := diff(closes)
	up := make([]float64, len(change))
	down := make([]float64, len(change))
	for i, c := range change {
		if math.IsNaN(c) {
			up[i], down[i] = math.NaN(), math.NaN()
			continue
		}
		up[i] = math.Max(c, 0)
		down[i] = math.Max(-c, 0)
	}
	pu, pd := smma(up, n), smma(down, n)
	out := make([]float64, len(closes))
	for i := range out {
		switch {
		case math.IsNaN(pu[i]) || math.IsNaN(pd[i]):
			out[i] = math.NaN()
		case pu[i]+pd[i] == 0:
			out[i] = 50
		default:
			out[i] = 100 * pu[i] / (pu[i] + pd[i])
		}
	}
	return out
}

func cci(bars []models.Bar, n int) []float64 {
	tp := field(bars, func(b models.Bar) float64 { return (b.High + b.Low + b.Close) / 3 })
	mean := sma(tp, n)
	mad := rollingMAD(tp, n)
	dev := make([]float64, len(tp))
	for i := range tp {
		dev[i] = tp[i] - mean[i]
	}
	return ratio(dev, mad, 1/0.015)
}

func trueRange(bars []models.Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		tr := b.High - b.Low
		if i > 0 {
			pc := bars[i-1].Close
			tr = math.Max(tr, math.Max(math.Abs(b.High-pc), math.Abs(b.Low-pc)))
		}
		out[i] = tr
	}
	return out
}

func dx(bars []models.Bar, n int) []float64 {
	pdm := make([]float64, len(bars))
	ndm := make([]float64, len(bars))
	for i := 1; i < len(bars); i++ {
		up := bars[i].High - bars[i-1].High
		down := bars[i-1].Low - bars[i].Low
		if up > down && up > 0 {
			pdm[i] = up
		}
		if down > up && down > 0 {
			ndm[i] = down
		}
	}
	atr := smma(trueRange(bars), n)
	pdi := ratio(smma(pdm, n), atr, 100)
	ndi := ratio(smma(ndm, n), atr, 100)
	num := make([]float64, len(bars))
	den := make([]float64, len(bars))
	for i := range num {
		num[i] = math.Abs(pdi[i] - ndi[i])
		den[i] = pdi[i] + ndi[i]
	}
	return ratio(num, den, 100)
}

package features

import (
	"context"
	"time"

	"gonum.org/v1/gonum/mat"

	"FinPrep/internal/domain/models"
)

type fixedCalendar struct {
	days []time.Time
	err  error
}

func (c fixedCalendar) Sessions(_ context.Context, start, end time.Time) ([]time.Time, error) {
	if c.err != nil {
		return nil, c.err
	}
	var out []time.Time
	for _, d := range c.days {
		if !d.Before(start) && !d.After(end) {
			out = append(out, d)
		}
	}
	return out, nil
}

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func dailyGrid(days ...string) models.Grid {
	g := models.Grid{Frequency: models.FreqDaily}
	for _, d := range days {
		g.Timestamps = append(g.Timestamps, day(d))
	}
	return g
}

func bar(ticker, d string, close, volume float64) models.Bar {
	return models.Bar{Ticker: ticker, Timestamp: day(d), Open: close, High: close, Low: close, Close: close, Volume: volume}
}

// panelFromCloses builds an aligned panel on consecutive days starting 2024-01-01.
func panelFromCloses(closes map[string][]float64) *models.AlignedPanel {
	n := 0
	for _, c := range closes {
		n = len(c)
		break
	}
	grid := models.Grid{Frequency: models.FreqDaily}
	for i := 0; i < n; i++ {
		grid.Timestamps = append(grid.Timestamps, day("2024-01-01").AddDate(0, 0, i))
	}
	p := models.NewAlignedPanel(grid)
	for t, cs := range closes {
		bars := make([]models.Bar, len(cs))
		for i, c := range cs {
			bars[i] = models.Bar{Ticker: t, Timestamp: grid.Timestamps[i], Open: c, High: c, Low: c, Close: c, Volume: 1}
		}
		p.Series[t] = bars
	}
	return p
}

func mat2(a, b, c, d float64) *mat.Dense {
	return mat.NewDense(2, 2, []float64{a, b, c, d})
}

package yahoo

import (
	"fmt"
	"time"

	"FinPrep/internal/domain/models"
)

type chartResponse struct {
	Chart struct {
		Result []chartResult `json:"result"`
		Error  *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

type chartResult struct {
	Meta struct {
		Symbol    string `json:"symbol"`
		GMTOffset int64  `json:"gmtoffset"`
	} `json:"meta"`
	Timestamp  []int64 `json:"timestamp"`
	Indicators struct {
		Quote []struct {
			Open   []*float64 `json:"open"`
			High   []*float64 `json:"high"`
			Low    []*float64 `json:"low"`
			Close  []*float64 `json:"close"`
			Volume []*float64 `json:"volume"`
		} `json:"quote"`
	} `json:"indicators"`
}

// APIError is an error reported inside a chart payload.
type APIError struct {
	Code        string
	Description string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("yahoo api error %s: %s", e.Code, e.Description)
}

func (r *chartResponse) bars(ticker string, intraday bool) ([]models.Bar, error) {
	if r.Chart.Error != nil {
		return nil, &APIError{Code: r.Chart.Error.Code, Description: r.Chart.Error.Description}
	}
	if len(r.Chart.Result) == 0 {
		return nil, nil
	}
	res := r.Chart.Result[0]
	if len(res.Indicators.Quote) == 0 {
		return nil, nil
	}
	q := res.Indicators.Quote[0]

	out := make([]models.Bar, 0, len(res.Timestamp))
	for i, ts := range res.Timestamp {
		c := at(q.Close, i)
		if c == nil {
			continue // null bar
		}
		t := time.Unix(ts, 0).UTC()
		if !intraday {
			local := time.Unix(ts+res.Meta.GMTOffset, 0).UTC()
			t = time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
		}
		b := models.Bar{Ticker: ticker, Timestamp: t, Close: *c}
		b.Open = valueOr(at(q.Open, i), *c)
		b.High = valueOr(at(q.High, i), *c)
		b.Low = valueOr(at(q.Low, i), *c)
		b.Volume = valueOr(at(q.Volume, i), 0)
		out = append(out, b)
	}
	return out, nil
}

func at(s []*float64, i int) *float64 {
	if i < len(s) {
		return s[i]
	}
	return nil
}

func valueOr(p *float64, def float64) float64 {
	if p == nil {
		return def
	}
	return *p
}

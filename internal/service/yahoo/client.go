// Package yahoo fetches OHLCV bars from the Yahoo Finance chart API.
package yahoo

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"FinPrep/internal/domain/models"
	"FinPrep/internal/domain/repository"
	xhttp "FinPrep/pkg/http"
	applogger "FinPrep/pkg/logger"
	"FinPrep/pkg/util"
)

const (
	DefaultBaseURL = "https://query1.finance.yahoo.com"

	defaultRetries = 3
	retryBase      = 500 * time.Millisecond
)

// DefaultIntervals maps interval labels to chart API interval codes.
var DefaultIntervals = map[models.Frequency]string{
	"1Min":  "1m",
	"2Min":  "2m",
	"5Min":  "5m",
	"15Min": "15m",
	"30Min": "30m",
	"60Min": "60m",
	"90Min": "90m",
	"1H":    "1h",
	"1D":    "1d",
	"5D":    "5d",
	"1W":    "1wk",
	"1M":    "1mo",
	"3M":    "3mo",
}

// Client implements repository.BarProvider.
type Client struct {
	baseURL      string
	http         *xhttp.Client
	limiter      *rate.Limiter
	intervals    map[models.Frequency]string
	intradayDays int
	retries      int
	symbolMap    map[string]string
	l            *applogger.Logger
	m            repository.Metrics
}

type ClientOption func(*Client)

func WithBaseURL(u string) ClientOption {
	return func(c *Client) {
		if u != "" {
			c.baseURL = u
		}
	}
}

func WithHTTPClient(hc *xhttp.Client) ClientOption {
	return func(c *Client) { c.http = hc }
}

// WithRateLimit caps outgoing requests per second.
func WithRateLimit(perSecond float64, burst int) ClientOption {
	return func(c *Client) {
		if perSecond > 0 {
			if burst < 1 {
				burst = 1
			}
			c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
		}
	}
}

// WithIntervals overrides or extends the interval code table.
func WithIntervals(overrides map[string]string) ClientOption {
	return func(c *Client) {
		for k, v := range overrides {
			c.intervals[models.Frequency(k)] = v
		}
	}
}

// WithIntradayDays limits the span of one intraday request.
func WithIntradayDays(days int) ClientOption {
	return func(c *Client) {
		if days > 0 {
			c.intradayDays = days
		}
	}
}

func WithRetries(n int) ClientOption {
	return func(c *Client) {
		if n >= 0 {
			c.retries = n
		}
	}
}

// WithSymbolMap maps internal tickers to Yahoo symbols (e.g. "SPX" -> "^GSPC").
func WithSymbolMap(m map[string]string) ClientOption {
	return func(c *Client) {
		for k, v := range m {
			c.symbolMap[k] = v
		}
	}
}

func WithLogger(l *applogger.Logger) ClientOption {
	return func(c *Client) {
		if l != nil {
			c.l = l
		}
	}
}

func WithMetrics(m repository.Metrics) ClientOption {
	return func(c *Client) {
		if m != nil {
			c.m = m
		}
	}
}

func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		baseURL:      DefaultBaseURL,
		limiter:      rate.NewLimiter(rate.Limit(2), 2),
		intervals:    make(map[models.Frequency]string, len(DefaultIntervals)),
		intradayDays: 7,
		retries:      defaultRetries,
		symbolMap:    map[string]string{"SPX": "^GSPC", "VIX": "^VIX"},
		l:            applogger.Nop(),
		m:            repository.NoopMetrics{},
	}
	for k, v := range DefaultIntervals {
		c.intervals[k] = v
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		c.http = xhttp.NewClient(xhttp.WithTimeout(15*time.Second), xhttp.WithUserAgent("Mozilla/5.0"))
	}
	return c
}

// IntervalCode returns the chart API code for an interval label.
func (c *Client) IntervalCode(f models.Frequency) (string, error) {
	code, ok := c.intervals[f]
	if !ok {
		return "", fmt.Errorf("yahoo interval %q: %w", f, models.ErrUnsupportedFrequency)
	}
	return code, nil
}

// FetchBars returns bars in [start, end] sorted by time. Daily and coarser bars
// are stamped with their session date at 00:00 UTC, so the end date's session
// is included whatever time of day Yahoo reports it at. A date-only end
// includes that day's intraday bars.
func (c *Client) FetchBars(ctx context.Context, ticker string, start, end time.Time, interval models.Frequency) ([]models.Bar, error) {
	code, err := c.IntervalCode(interval)
	if err != nil {
		return nil, err
	}
	until := requestEnd(end, interval)
	if interval.Intraday() {
		end = until
	}
	began := time.Now()

	byTime := make(map[int64]models.Bar)
	for _, w := range c.windows(start, until, interval) {
		bars, err := c.fetchWindow(ctx, ticker, code, w[0], w[1], interval.Intraday())
		if err != nil {
			c.m.RecordError("provider")
			c.l.Error("yahoo fetch failed",
				applogger.String("ticker", ticker),
				applogger.String("interval", code),
				applogger.Error(err))
			return nil, err
		}
		for _, b := range bars {
			byTime[b.Timestamp.UnixNano()] = b
		}
	}

	out := make([]models.Bar, 0, len(byTime))
	for _, b := range byTime {
		if b.Timestamp.Before(start) || b.Timestamp.After(end) {
			continue
		}
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })

	c.m.RecordBarsFetched("yahoo", ticker, len(out))
	c.m.RecordLatency("provider_fetch", time.Since(began).Seconds())
	c.l.Debug("yahoo fetch ok",
		applogger.String("ticker", ticker),
		applogger.String("interval", code),
		applogger.Int("bars", len(out)),
		applogger.Duration("duration", time.Since(began)))
	return out, nil
}

// requestEnd is the last instant asked of the API. Daily and coarser bars carry
// the session open time, so the whole end date is requested; intraday ranges
// are widened only for a date-only end.
func requestEnd(end time.Time, interval models.Frequency) time.Time {
	if !interval.Intraday() || end.Equal(end.Truncate(24*time.Hour)) {
		return util.EndOfDay(end)
	}
	return end
}

// windows splits intraday ranges into spans the API accepts in one call.
func (c *Client) windows(start, end time.Time, interval models.Frequency) [][2]time.Time {
	if !interval.Intraday() {
		return [][2]time.Time{{start, end}}
	}
	span := time.Duration(c.intradayDays) * 24 * time.Hour
	var out [][2]time.Time
	for from := start; from.Before(end) || from.Equal(end); from = from.Add(span) {
		to := from.Add(span)
		if to.After(end) {
			to = end
		}
		out = append(out, [2]time.Time{from, to})
		if !to.Before(end) {
			break
		}
	}
	return out
}

func (c *Client) fetchWindow(ctx context.Context, ticker, code string, from, to time.Time, intraday bool) ([]models.Bar, error) {
	symbol := ticker
	if mapped, ok := c.symbolMap[ticker]; ok {
		symbol = mapped
	}
	opts := &xhttp.RequestOptions{
		URL: fmt.Sprintf("%s/v8/finance/chart/%s", c.baseURL, url.PathEscape(symbol)),
		QueryParams: map[string][]string{
			"period1":        {strconv.FormatInt(from.Unix(), 10)},
			"period2":        {strconv.FormatInt(to.Unix()+1, 10)},
			"interval":       {code},
			"includePrePost": {"false"},
		},
	}

	var chart chartResponse
	var err error
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(retryBase << (attempt - 1)):
			}
		}
		if err = c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
		chart = chartResponse{}
		err = c.http.SendAndParse(ctx, opts, &chart)
		var se *xhttp.StatusError
		if err == nil || !errors.As(err, &se) || !se.Retryable() {
			break
		}
		c.l.Warn("yahoo request retry",
			applogger.String("ticker", ticker),
			applogger.Int("attempt", attempt+1),
			applogger.Int("status", se.StatusCode))
	}
	var se *xhttp.StatusError
	if errors.As(err, &se) && se.StatusCode == http.StatusNotFound {
		c.l.Warn("yahoo has no data for symbol", applogger.String("ticker", ticker))
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("yahoo chart %s: %w", ticker, err)
	}
	return chart.bars(ticker, intraday)
}

package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"FinPrep/internal/domain/models"
	domrepo "FinPrep/internal/domain/repository"
	pkgch "FinPrep/pkg/clickhouse"
	applogger "FinPrep/pkg/logger"
	"FinPrep/pkg/util"
)

const ProviderClickHouse = "clickhouse"

// CHBarSource implements BarProvider over pre-ingested candle tables.
type CHBarSource struct {
	db       *sql.DB
	database string
	l        *applogger.Logger
	m        domrepo.Metrics
}

func NewCHBarSource(ch *pkgch.Client) *CHBarSource {
	return &CHBarSource{db: ch.DB(), database: ch.Database(), l: applogger.Nop(), m: domrepo.NoopMetrics{}}
}

// SetLogger injects a structured logger.
func (s *CHBarSource) SetLogger(l *applogger.Logger) {
	if l != nil {
		s.l = l
	}
}

// SetMetrics injects a metrics sink.
func (s *CHBarSource) SetMetrics(m domrepo.Metrics) {
	if m != nil {
		s.m = m
	}
}

// BarSchema returns the DDL for the candle tables read by CHBarSource.
func BarSchema(database string) []string {
	const tpl = `
        CREATE TABLE IF NOT EXISTS %s.%s (
            ts     DateTime64(3, 'UTC'),
            ticker LowCardinality(String),
            open   Float64,
            high   Float64,
            low    Float64,
            close  Float64,
            volume Float64
        ) ENGINE = ReplacingMergeTree
        ORDER BY (ticker, ts)
    `
	return []string{
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", database),
		fmt.Sprintf(tpl, database, "candles_1d"),
		fmt.Sprintf(tpl, database, "candles_1m"),
	}
}

func tableFor(freq models.Frequency) (string, error) {
	switch freq {
	case models.FreqDaily:
		return "candles_1d", nil
	case models.FreqMinute:
		return "candles_1m", nil
	default:
		return "", fmt.Errorf("clickhouse bars for %q: %w", freq, models.ErrUnsupportedFrequency)
	}
}

// FetchBars returns bars with start <= ts <= end in ascending order. Daily
// rows match on their date, whatever time of day they were stored at.
func (s *CHBarSource) FetchBars(ctx context.Context, ticker string, start, end time.Time, interval models.Frequency) ([]models.Bar, error) {
	table, err := tableFor(interval)
	if err != nil {
		return nil, err
	}
	const qtpl = `
        SELECT ts, open, high, low, close, volume
        FROM %s.%s FINAL
        WHERE ticker = ? AND ts >= ? AND ts <= ?
        ORDER BY ts ASC
    `
	q := fmt.Sprintf(qtpl, s.database, table)
	from, to := queryBounds(start, end, interval)
	return s.query(ctx, "fetch_bars", table, ticker, interval, q, ticker, from, to)
}

// queryBounds widens daily ranges to whole dates.
func queryBounds(start, end time.Time, interval models.Frequency) (time.Time, time.Time) {
	start, end = start.UTC(), end.UTC()
	if interval.Intraday() {
		return start, end
	}
	from := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC)
	return from, util.EndOfDay(end)
}

// LatestBars returns the newest n bars in ascending order.
func (s *CHBarSource) LatestBars(ctx context.Context, ticker string, n int, interval models.Frequency) ([]models.Bar, error) {
	table, err := tableFor(interval)
	if err != nil {
		return nil, err
	}
	if n <= 0 {
		n = 1
	}
	const qtpl = `
        SELECT ts, open, high, low, close, volume FROM (
            SELECT ts, open, high, low, close, volume
            FROM %s.%s FINAL
            WHERE ticker = ?
            ORDER BY ts DESC
            LIMIT ?
        ) ORDER BY ts ASC
    `
	q := fmt.Sprintf(qtpl, s.database, table)
	return s.query(ctx, "latest_bars", table, ticker, interval, q, ticker, n)
}

func (s *CHBarSource) query(ctx context.Context, op, table, ticker string, interval models.Frequency, q string, args ...any) ([]models.Bar, error) {
	started := time.Now()
	fail := func(stage string, err error) error {
		s.m.RecordError("clickhouse")
		s.l.Error("clickhouse "+op+" "+stage+" error",
			applogger.String("table", table),
			applogger.String("ticker", ticker),
			applogger.String("interval", interval.String()),
			applogger.Error(err),
		)
		return fmt.Errorf("%s %s: %w", op, stage, err)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fail("query", err)
	}
	defer rows.Close()

	out := make([]models.Bar, 0, 512)
	for rows.Next() {
		b := models.Bar{Ticker: ticker}
		if err := rows.Scan(&b.Timestamp, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, fail("scan", err)
		}
		b.Timestamp = normalizeTimestamp(b.Timestamp, interval)
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fail("rows", err)
	}

	s.m.RecordBarsFetched(ProviderClickHouse, ticker, len(out))
	s.m.RecordLatency("clickhouse_"+op, time.Since(started).Seconds())
	s.l.Debug("clickhouse "+op+" ok",
		applogger.String("table", table),
		applogger.String("ticker", ticker),
		applogger.Int("rows", len(out)),
		applogger.Duration("duration", time.Since(started)),
	)
	return out, nil
}

// normalizeTimestamp puts daily bars on 00:00 UTC of their date.
func normalizeTimestamp(ts time.Time, interval models.Frequency) time.Time {
	ts = ts.UTC()
	if interval.Intraday() {
		return ts
	}
	return time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC)
}

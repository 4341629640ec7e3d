package util

import (
	"strconv"
	"strings"
	"testing"
	"time"
)

func TestParseTimeRFC3339(t *testing.T) {
	s := "2024-10-10T10:10:10Z"
	got, ok := ParseTime(s)
	if !ok {
		t.Fatalf("expected ok")
	}
	if got.Format(time.RFC3339) != s {
		t.Fatalf("unexpected time %v", got)
	}
}

func TestParseTimeDate(t *testing.T) {
	got, ok := ParseTime("2024-03-29")
	if !ok {
		t.Fatalf("expected ok")
	}
	if !got.Equal(time.Date(2024, 3, 29, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected time %v", got)
	}
}

func TestParseTimeUnix(t *testing.T) {
	ts := time.Date(2024, 10, 10, 10, 10, 10, 0, time.UTC).Unix()
	got, ok := ParseTime(strconv.FormatInt(ts, 10))
	if !ok {
		t.Fatalf("expected ok")
	}
	if got.Unix() != ts {
		t.Fatalf("unexpected unix %v", got.Unix())
	}
}

func TestEndOfDay(t *testing.T) {
	got := EndOfDay(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC))
	if got.Format(time.RFC3339) != "2024-01-02T23:59:59Z" {
		t.Fatalf("unexpected end of day %v", got)
	}
}

func TestNormalizeTickers(t *testing.T) {
	got := NormalizeTickers([]string{" msft", "AAPL,jpm", "aapl", ""})
	if strings.Join(got, ",") != "AAPL,JPM,MSFT" {
		t.Fatalf("unexpected tickers %v", got)
	}
}

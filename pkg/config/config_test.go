package config

import (
	"strings"
	"testing"
	"time"
)

func TestParseAppliesDefaults(t *testing.T) {
	c, err := Parse([]byte("environment: test\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Server.Port != 8080 {
		t.Fatalf("server.port default = %d", c.Server.Port)
	}
	if c.Pipeline.Lookback != 252 || c.Pipeline.ProxyTicker != "VIXY" || c.Pipeline.Session.Steps != 510 {
		t.Fatalf("pipeline defaults not applied: %+v", c.Pipeline)
	}
	if len(c.Pipeline.Indicators) != 8 || c.Pipeline.Indicators[0] != "macd" {
		t.Fatalf("indicator defaults = %v", c.Pipeline.Indicators)
	}
	if c.Provider.CacheTTL != time.Hour {
		t.Fatalf("provider.cache_ttl = %s", c.Provider.CacheTTL)
	}
	if c.Pipeline.Schedule.Window != 365*24*time.Hour || !c.Pipeline.Schedule.Publish {
		t.Fatalf("schedule defaults = %+v", c.Pipeline.Schedule)
	}
	if c.Kafka.RequiredAcks != -1 {
		t.Fatalf("kafka.required_acks = %d", c.Kafka.RequiredAcks)
	}
	h, m, err := c.SessionOpen()
	if err != nil || h != 8 || m != 0 {
		t.Fatalf("session open = %d:%d, %v", h, m, err)
	}
}

func TestParseOverridesDefaults(t *testing.T) {
	doc := `
environment: prod
pipeline:
  tickers: [AAPL, MSFT]
  start: "2024-01-01"
  end: "2024-06-30"
  interval: 1Min
  lookback: 30
  indicators: [macd]
  session:
    open: "09:30"
    location: America/New_York
    steps: 390
`
	c, err := Parse([]byte(doc))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Pipeline.Interval != "1Min" || c.Pipeline.Lookback != 30 || len(c.Pipeline.Indicators) != 1 {
		t.Fatalf("overrides not applied: %+v", c.Pipeline)
	}
	start, end, err := c.PipelineRange()
	if err != nil {
		t.Fatalf("range: %v", err)
	}
	if !end.After(start) {
		t.Fatalf("range = %s..%s", start, end)
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{"bad policy", "environment: x\npipeline:\n  on_insufficient_coverage: skip\n", "OnInsufficientCoverage"},
		{"bad open", "environment: x\npipeline:\n  session:\n    open: 8am\n", "HH:MM"},
		{"bad location", "environment: x\npipeline:\n  session:\n    location: Mars/Olympus\n", "location"},
		{"reversed range", "environment: x\npipeline:\n  start: \"2024-02-01\"\n  end: \"2024-01-01\"\n", "before"},
		{"kafka without brokers", "environment: x\nkafka:\n  enabled: true\n", "brokers"},
		{"bad provider", "environment: x\nprovider:\n  type: bloomberg\n", "Type"},
		{"small lookback", "environment: x\npipeline:\n  lookback: 1\n", "Lookback"},
		{"queue without kafka", "environment: x\nqueue:\n  enabled: true\n", "queue requires kafka"},
		{"schedule without tickers", "environment: x\npipeline:\n  schedule:\n    cron: \"0 0 6 * * 1-5\"\n", "tickers"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			if err == nil {
				t.Fatalf("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestApplyEnv(t *testing.T) {
	c, err := Parse([]byte("environment: test\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	env := map[string]string{
		"FINPREP_TICKERS": "AAPL, MSFT,,JPM",
		"KAFKA_BROKERS":   "k1:9092,k2:9092",
		"SERVER_PORT":     "9090",
		"QUEUE_ENABLED":   "true",
	}
	if err := c.applyEnv(func(k string) string { return env[k] }); err != nil {
		t.Fatalf("applyEnv: %v", err)
	}
	if strings.Join(c.Pipeline.Tickers, "|") != "AAPL|MSFT|JPM" {
		t.Fatalf("tickers = %v", c.Pipeline.Tickers)
	}
	if !c.Kafka.Enabled || len(c.Kafka.Brokers) != 2 {
		t.Fatalf("kafka = %+v", c.Kafka)
	}
	if c.Server.Port != 9090 {
		t.Fatalf("port = %d", c.Server.Port)
	}
	if !c.Queue.Enabled {
		t.Fatalf("queue not enabled from env")
	}

	env["SERVER_PORT"] = "nope"
	if err := c.applyEnv(func(k string) string { return env[k] }); err == nil {
		t.Fatalf("expected SERVER_PORT error")
	}
}

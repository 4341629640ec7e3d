package models

import (
	"strings"
	"time"
)

// Frequency is a bar interval label such as "1D" or "1Min".
type Frequency string

const (
	FreqMinute Frequency = "1Min"
	FreqDaily  Frequency = "1D"
)

var frequencySteps = map[Frequency]time.Duration{
	"1Min":  time.Minute,
	"2Min":  2 * time.Minute,
	"5Min":  5 * time.Minute,
	"15Min": 15 * time.Minute,
	"30Min": 30 * time.Minute,
	"60Min": time.Hour,
	"90Min": 90 * time.Minute,
	"1H":    time.Hour,
	"1D":    24 * time.Hour,
	"5D":    5 * 24 * time.Hour,
	"1W":    7 * 24 * time.Hour,
}

var frequencyAliases = map[string]Frequency{
	"1m":     FreqMinute,
	"1min":   FreqMinute,
	"minute": FreqMinute,
	"1d":     FreqDaily,
	"daily":  FreqDaily,
	"day":    FreqDaily,
}

// ParseFrequency normalizes an interval label. Unknown labels are returned
// unchanged; grid construction rejects them later.
func ParseFrequency(s string) Frequency {
	s = strings.TrimSpace(s)
	if f, ok := frequencyAliases[strings.ToLower(s)]; ok {
		return f
	}
	return Frequency(s)
}

// Step returns the nominal bar spacing, zero for labels without a fixed step.
func (f Frequency) Step() time.Duration { return frequencySteps[f] }

func (f Frequency) Intraday() bool {
	s := f.Step()
	return s > 0 && s < 24*time.Hour
}

func (f Frequency) String() string { return string(f) }

package features

import (
	"context"
	"fmt"
	"time"
	_ "time/tzdata"

	"FinPrep/internal/domain/models"
	"FinPrep/internal/domain/repository"
)

// Session describes the intraday grid of one trading day.
type Session struct {
	Location *time.Location
	OpenHour int
	OpenMin  int
	Steps    int
}

// DefaultSession is 510 one-minute bars from 08:00 London time.
func DefaultSession() Session {
	loc, err := time.LoadLocation("Europe/London")
	if err != nil {
		loc = time.UTC
	}
	return Session{Location: loc, OpenHour: 8, Steps: 510}
}

// BuildGrid lists the canonical timestamps between start and end for freq.
// Daily grids hold one 00:00 UTC timestamp per session date; minute grids hold
// session.Steps one-minute slots from the session open of every session date.
func BuildGrid(ctx context.Context, cal repository.Calendar, start, end time.Time, freq models.Frequency, session Session) (models.Grid, error) {
	if freq != models.FreqDaily && freq != models.FreqMinute {
		return models.Grid{}, fmt.Errorf("build grid for %q: %w", freq, models.ErrUnsupportedFrequency)
	}
	days, err := cal.Sessions(ctx, start, end)
	if err != nil {
		return models.Grid{}, fmt.Errorf("calendar sessions: %w", err)
	}

	grid := models.Grid{Frequency: freq}
	if freq == models.FreqDaily {
		grid.Timestamps = make([]time.Time, 0, len(days))
		for _, d := range days {
			grid.Timestamps = append(grid.Timestamps, time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC))
		}
		return grid, nil
	}

	loc := session.Location
	if loc == nil {
		loc = time.UTC
	}
	grid.Timestamps = make([]time.Time, 0, len(days)*session.Steps)
	for _, d := range days {
		open := time.Date(d.Year(), d.Month(), d.Day(), session.OpenHour, session.OpenMin, 0, 0, loc)
		for i := 0; i < session.Steps; i++ {
			grid.Timestamps = append(grid.Timestamps, open.Add(time.Duration(i)*time.Minute).UTC())
		}
	}
	return grid, nil
}

// StepGrid builds a contiguous grid of fixed steps covering [from, to].
// Used for live snapshots where bars are not bound to session boundaries.
func StepGrid(from, to time.Time, freq models.Frequency) (models.Grid, error) {
	step := freq.Step()
	if step <= 0 || !freq.Intraday() {
		return models.Grid{}, fmt.Errorf("step grid for %q: %w", freq, models.ErrUnsupportedFrequency)
	}
	grid := models.Grid{Frequency: freq}
	if to.Before(from) {
		return grid, nil
	}
	for ts := from.UTC(); !ts.After(to); ts = ts.Add(step) {
		grid.Timestamps = append(grid.Timestamps, ts)
	}
	return grid, nil
}

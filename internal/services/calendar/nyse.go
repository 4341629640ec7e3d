// Package calendar provides exchange session calendars.
package calendar

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// NYSE lists New York Stock Exchange sessions from holiday rules and the
// exchange's recorded special closures. Closures announced after the list was
// last updated are supplied through WithClosures.
type NYSE struct {
	closures map[string]struct{}
}

type Option func(*NYSE)

// WithClosures adds extra closed dates, formatted 2006-01-02.
func WithClosures(dates ...string) Option {
	return func(c *NYSE) {
		for _, d := range dates {
			c.closures[d] = struct{}{}
		}
	}
}

// specialClosures are full-day closures outside the holiday rules since 1970.
var specialClosures = []string{
	"1972-12-28", // President Truman's funeral
	"1973-01-25", // President Johnson's funeral
	"1977-07-14", // New York City blackout
	"1985-09-27", // Hurricane Gloria
	"1994-04-27", // President Nixon's funeral
	"2001-09-11", // September 11 attacks
	"2001-09-12",
	"2001-09-13",
	"2001-09-14",
	"2004-06-11", // President Reagan's funeral
	"2007-01-02", // President Ford's day of mourning
	"2012-10-29", // Hurricane Sandy
	"2012-10-30",
	"2018-12-05", // President George H. W. Bush's day of mourning
	"2025-01-09", // President Carter's day of mourning
}

func NewNYSE(opts ...Option) *NYSE {
	c := &NYSE{closures: make(map[string]struct{}, len(specialClosures))}
	WithClosures(specialClosures...)(c)
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ParseClosures validates closure dates before they reach WithClosures.
func ParseClosures(dates []string) ([]string, error) {
	out := make([]string, 0, len(dates))
	for _, d := range dates {
		t, err := time.Parse("2006-01-02", d)
		if err != nil {
			return nil, fmt.Errorf("invalid closure date %q: %w", d, err)
		}
		out = append(out, t.Format("2006-01-02"))
	}
	sort.Strings(out)
	return out, nil
}

// Sessions returns the session dates in [start, end] as 00:00 UTC timestamps.
func (c *NYSE) Sessions(ctx context.Context, start, end time.Time) ([]time.Time, error) {
	from := dateOf(start)
	to := dateOf(end)
	var out []time.Time
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if c.IsSession(d) {
			out = append(out, d)
		}
	}
	return out, nil
}

// IsSession reports whether the exchange trades on the date of t.
func (c *NYSE) IsSession(t time.Time) bool {
	d := dateOf(t)
	if wd := d.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return false
	}
	if _, ok := c.closures[d.Format("2006-01-02")]; ok {
		return false
	}
	_, holiday := holidays(d.Year())[d]
	return !holiday
}

func dateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func holidays(year int) map[time.Time]string {
	h := make(map[time.Time]string, 10)
	add := func(d time.Time, name string) { h[d] = name }

	// New Year's Day falling on Saturday is not observed on the prior Friday.
	if ny := date(year, time.January, 1); ny.Weekday() == time.Sunday {
		add(ny.AddDate(0, 0, 1), "New Year's Day")
	} else if ny.Weekday() != time.Saturday {
		add(ny, "New Year's Day")
	}
	if year >= 1998 {
		add(nthWeekday(year, time.January, time.Monday, 3), "Martin Luther King Jr. Day")
	}
	add(nthWeekday(year, time.February, time.Monday, 3), "Washington's Birthday")
	add(easter(year).AddDate(0, 0, -2), "Good Friday")
	add(lastWeekday(year, time.May, time.Monday), "Memorial Day")
	if year >= 2022 {
		add(observed(date(year, time.June, 19)), "Juneteenth")
	}
	add(observed(date(year, time.July, 4)), "Independence Day")
	add(nthWeekday(year, time.September, time.Monday, 1), "Labor Day")
	add(nthWeekday(year, time.November, time.Thursday, 4), "Thanksgiving Day")
	add(observed(date(year, time.December, 25)), "Christmas Day")
	return h
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// observed moves Saturday holidays to Friday and Sunday holidays to Monday.
func observed(d time.Time) time.Time {
	switch d.Weekday() {
	case time.Saturday:
		return d.AddDate(0, 0, -1)
	case time.Sunday:
		return d.AddDate(0, 0, 1)
	}
	return d
}

func nthWeekday(y int, m time.Month, wd time.Weekday, n int) time.Time {
	d := date(y, m, 1)
	offset := (int(wd) - int(d.Weekday()) + 7) % 7
	return d.AddDate(0, 0, offset+7*(n-1))
}

func lastWeekday(y int, m time.Month, wd time.Weekday) time.Time {
	d := date(y, m+1, 1).AddDate(0, 0, -1)
	offset := (int(d.Weekday()) - int(wd) + 7) % 7
	return d.AddDate(0, 0, -offset)
}

// easter returns Easter Sunday (Gregorian) for the year.
func easter(y int) time.Time {
	a := y % 19
	b := y / 100
	c := y % 100
	d := b / 4
	e := b % 4
	f := (b + 8) / 25
	g := (b - f + 1) / 3
	h := (19*a + b - d - g + 15) % 30
	i := c / 4
	k := c % 4
	l := (32 + 2*e + 2*i - h - k) % 7
	m := (a + 11*h + 22*l) / 451
	month := (h + l - 7*m + 114) / 31
	day := (h+l-7*m+114)%31 + 1
	return date(y, time.Month(month), day)
}

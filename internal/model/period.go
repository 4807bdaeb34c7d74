package model

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// Period selects a forecast window relative to "now" in the deployment's
// local calendar.
type Period string

const (
	PeriodThisMonth   Period = "this_month"
	PeriodNextMonth   Period = "next_month"
	PeriodThisQuarter Period = "this_quarter"
	PeriodNextQuarter Period = "next_quarter"
	PeriodThisYear    Period = "this_year"
	PeriodNextYear    Period = "next_year"
)

// Periods lists every accepted period value.
var Periods = []Period{
	PeriodThisMonth,
	PeriodNextMonth,
	PeriodThisQuarter,
	PeriodNextQuarter,
	PeriodThisYear,
	PeriodNextYear,
}

// ParsePeriod normalizes a user-supplied period label. Hyphens are accepted
// in place of underscores, and "current" in place of "this".
func ParsePeriod(s string) (Period, error) {
	norm := strings.ToLower(strings.TrimSpace(s))
	norm = strings.ReplaceAll(norm, "-", "_")
	norm = strings.ReplaceAll(norm, "current_", "this_")
	p := Period(norm)
	for _, known := range Periods {
		if p == known {
			return known, nil
		}
	}
	return "", eris.Errorf("model: unknown period %q (expected one of %s)", s, periodList())
}

func periodList() string {
	names := make([]string, len(Periods))
	for i, p := range Periods {
		names[i] = string(p)
	}
	return strings.Join(names, ", ")
}

// DateRange is a half-open [Start, End) window. All period resolution and
// store filtering uses this shape so month/quarter boundaries never double
// count.
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Contains reports whether t falls inside the half-open window.
func (r DateRange) Contains(t time.Time) bool {
	return !t.Before(r.Start) && t.Before(r.End)
}

// Label renders the window as "2026-01-01..2026-04-01" for logs and
// snapshot rows.
func (r DateRange) Label() string {
	return r.Start.Format(time.DateOnly) + ".." + r.End.Format(time.DateOnly)
}

// Range resolves the period against now's local calendar. Months, quarters,
// and years all start at midnight on day one.
func (p Period) Range(now time.Time) DateRange {
	loc := now.Location()
	y, m, _ := now.Date()

	switch p {
	case PeriodThisMonth:
		start := time.Date(y, m, 1, 0, 0, 0, 0, loc)
		return DateRange{Start: start, End: start.AddDate(0, 1, 0)}
	case PeriodNextMonth:
		start := time.Date(y, m, 1, 0, 0, 0, 0, loc).AddDate(0, 1, 0)
		return DateRange{Start: start, End: start.AddDate(0, 1, 0)}
	case PeriodThisQuarter:
		start := quarterStart(y, m, loc)
		return DateRange{Start: start, End: start.AddDate(0, 3, 0)}
	case PeriodNextQuarter:
		start := quarterStart(y, m, loc).AddDate(0, 3, 0)
		return DateRange{Start: start, End: start.AddDate(0, 3, 0)}
	case PeriodThisYear:
		start := time.Date(y, 1, 1, 0, 0, 0, 0, loc)
		return DateRange{Start: start, End: start.AddDate(1, 0, 0)}
	case PeriodNextYear:
		start := time.Date(y+1, 1, 1, 0, 0, 0, 0, loc)
		return DateRange{Start: start, End: start.AddDate(1, 0, 0)}
	default:
		// Unknown periods fall back to the current quarter, the dashboard
		// default.
		start := quarterStart(y, m, loc)
		return DateRange{Start: start, End: start.AddDate(0, 3, 0)}
	}
}

func quarterStart(y int, m time.Month, loc *time.Location) time.Time {
	qm := time.Month((int(m)-1)/3*3 + 1)
	return time.Date(y, qm, 1, 0, 0, 0, 0, loc)
}

// CustomRange builds a window from an inclusive start/end date pair, the
// shape the API and CLI accept. The inclusive end converts to an exclusive
// bound internally.
func CustomRange(start, end time.Time) (DateRange, error) {
	if end.Before(start) {
		return DateRange{}, eris.Errorf("model: custom range end %s before start %s",
			end.Format(time.DateOnly), start.Format(time.DateOnly))
	}
	return DateRange{
		Start: DateOf(start),
		End:   DateOf(end).AddDate(0, 0, 1),
	}, nil
}

// DateOf truncates to midnight in t's location. Overdue checks and range
// bounds compare dates, not instants.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// ParseDate reads a YYYY-MM-DD string in local time.
func ParseDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation(time.DateOnly, strings.TrimSpace(s), time.Local)
	if err != nil {
		return time.Time{}, eris.Wrapf(err, "model: parse date %q", s)
	}
	return t, nil
}

package summary

import (
	"time"

	"github.com/paulwilltell/carbonplane/internal/core"
)

// bounds returns the [from, to) window of p's type that contains t; the
// preceding window for trend comparison comes from previousPeriod. Week periods use
// ISO-8601 week-date numbering: a week "belongs" to
// whichever year holds its Thursday, so Year/Week here are always the
// ISO year/week pair time.Time.ISOWeek reports, not calendar year.
func bounds(loc *time.Location, p core.Period, t time.Time) (from, to time.Time) {
	switch p.Type {
	case core.PeriodDaily:
		from = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
		to = from.AddDate(0, 0, 1)
	case core.PeriodWeekly:
		from = isoWeekStart(t, loc)
		to = from.AddDate(0, 0, 7)
	case core.PeriodMonthly:
		from = time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, loc)
		to = from.AddDate(0, 1, 0)
	case core.PeriodYearly:
		from = time.Date(t.Year(), 1, 1, 0, 0, 0, 0, loc)
		to = from.AddDate(1, 0, 0)
	case core.PeriodAllTime:
		from = time.Unix(0, 0).In(loc)
		to = time.Date(9999, 1, 1, 0, 0, 0, 0, loc)
	}
	return from, to
}

// isoWeekStart returns the Monday 00:00 of t's ISO-8601 week.
func isoWeekStart(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	weekday := int(t.Weekday())
	if weekday == 0 {
		weekday = 7 // Sunday -> 7, Monday -> 1
	}
	monday := t.AddDate(0, 0, -(weekday - 1))
	return time.Date(monday.Year(), monday.Month(), monday.Day(), 0, 0, 0, 0, loc)
}

// PeriodFor builds the core.Period that contains t for the given type,
// using ISO-8601 week/year numbering for weekly periods.
func PeriodFor(periodType core.PeriodType, t time.Time, loc *time.Location) core.Period {
	t = t.In(loc)
	switch periodType {
	case core.PeriodDaily:
		return core.Period{Type: periodType, Year: t.Year(), Month: int(t.Month()), Day: t.Day()}
	case core.PeriodWeekly:
		isoYear, isoWeek := t.ISOWeek()
		return core.Period{Type: periodType, Year: isoYear, Week: isoWeek}
	case core.PeriodMonthly:
		return core.Period{Type: periodType, Year: t.Year(), Month: int(t.Month())}
	case core.PeriodYearly:
		return core.Period{Type: periodType, Year: t.Year()}
	default:
		return core.Period{Type: core.PeriodAllTime}
	}
}

// Bounds returns [from, to) nanosecond bounds for p. For weekly periods,
// the anchor date is the Monday that starts ISO week p.Week of ISO year
// p.Year (from isoWeekAnchor), which bounds then maps to the same Monday
// via isoWeekStart.
func Bounds(p core.Period, loc *time.Location) (from, to int64) {
	var anchor time.Time
	switch p.Type {
	case core.PeriodDaily:
		anchor = time.Date(p.Year, time.Month(p.Month), p.Day, 12, 0, 0, 0, loc)
	case core.PeriodWeekly:
		anchor = isoWeekAnchor(p.Year, p.Week, loc)
	case core.PeriodMonthly:
		anchor = time.Date(p.Year, time.Month(p.Month), 15, 0, 0, 0, 0, loc)
	case core.PeriodYearly:
		anchor = time.Date(p.Year, 7, 1, 0, 0, 0, 0, loc)
	default:
		f, t := bounds(loc, core.Period{Type: core.PeriodAllTime}, time.Now())
		return f.UnixNano(), t.UnixNano()
	}
	f, t := bounds(loc, p, anchor)
	return f.UnixNano(), t.UnixNano()
}

// isoWeekAnchor returns the Monday 00:00 that starts ISO year/week
// (year, week): the start of the week holding January 4th (always in ISO
// week 1) plus week-1 weeks, since Go's standard library has no inverse
// of ISOWeek.
func isoWeekAnchor(year, week int, loc *time.Location) time.Time {
	jan4 := time.Date(year, 1, 4, 0, 0, 0, 0, loc)
	start := isoWeekStart(jan4, loc)
	return start.AddDate(0, 0, (week-1)*7)
}

// previousPeriod returns the equal-length period immediately preceding p,
// for trend comparison. Periods partition time into contiguous
// non-overlapping [from, to) windows, so the instant just before p's start
// always falls inside the preceding same-type period.
func previousPeriod(p core.Period, loc *time.Location) core.Period {
	if p.Type == core.PeriodAllTime {
		return p
	}
	from, _ := Bounds(p, loc)
	anchor := time.Unix(0, from-1).In(loc)
	return PeriodFor(p.Type, anchor, loc)
}

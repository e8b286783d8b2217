// Package scheduler drives the periodic jobs (monthly aggregation,
// overdue-collection detection and summary creation) against a standard
// 5-field cron expression evaluated in the ingestion timezone. Jobs are
// non-reentrant: a tick that matches while the previous run is still in
// flight is skipped, not queued.
package scheduler

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Expression is a parsed 5-field cron expression (minute hour
// day-of-month month day-of-week), each field either "*", a comma list, a
// "*/n" step, a single value, or a range "a-b".
type Expression struct {
	minute, hour, dom, month, dow fieldSet
}

type fieldSet struct {
	wildcard bool
	values   map[int]bool
}

// Parse parses a standard 5-field cron expression.
func Parse(expr string) (Expression, error) {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return Expression{}, fmt.Errorf("scheduler: cron expression %q must have 5 fields, got %d", expr, len(fields))
	}
	bounds := [5][2]int{{0, 59}, {0, 23}, {1, 31}, {1, 12}, {0, 6}}
	parsed := make([]fieldSet, 5)
	for i, f := range fields {
		fs, err := parseField(f, bounds[i][0], bounds[i][1])
		if err != nil {
			return Expression{}, fmt.Errorf("scheduler: field %d of %q: %w", i, expr, err)
		}
		parsed[i] = fs
	}
	return Expression{minute: parsed[0], hour: parsed[1], dom: parsed[2], month: parsed[3], dow: parsed[4]}, nil
}

// MustParse parses expr, panicking on error. Intended for config defaults
// known to be valid at compile time.
func MustParse(expr string) Expression {
	e, err := Parse(expr)
	if err != nil {
		panic(err)
	}
	return e
}

func parseField(f string, min, max int) (fieldSet, error) {
	if f == "*" {
		return fieldSet{wildcard: true}, nil
	}
	values := make(map[int]bool)
	for _, part := range strings.Split(f, ",") {
		if step, ok := strings.CutPrefix(part, "*/"); ok {
			n, err := strconv.Atoi(step)
			if err != nil || n <= 0 {
				return fieldSet{}, fmt.Errorf("invalid step %q", part)
			}
			for v := min; v <= max; v += n {
				values[v] = true
			}
			continue
		}
		if lo, hi, ok := strings.Cut(part, "-"); ok {
			loN, err1 := strconv.Atoi(lo)
			hiN, err2 := strconv.Atoi(hi)
			if err1 != nil || err2 != nil || loN > hiN {
				return fieldSet{}, fmt.Errorf("invalid range %q", part)
			}
			for v := loN; v <= hiN; v++ {
				values[v] = true
			}
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil || n < min || n > max {
			return fieldSet{}, fmt.Errorf("invalid value %q (want %d-%d)", part, min, max)
		}
		values[n] = true
	}
	return fieldSet{values: values}, nil
}

func (fs fieldSet) matches(v int) bool {
	return fs.wildcard || fs.values[v]
}

// Matches reports whether t (truncated to the minute) satisfies the
// expression. day-of-month and day-of-week are OR'd together when both
// are restricted, per standard cron semantics.
func (e Expression) Matches(t time.Time) bool {
	if !e.minute.matches(t.Minute()) || !e.hour.matches(t.Hour()) || !e.month.matches(int(t.Month())) {
		return false
	}
	domRestricted := !e.dom.wildcard
	dowRestricted := !e.dow.wildcard
	domOK := e.dom.matches(t.Day())
	dowOK := e.dow.matches(int(t.Weekday()))
	switch {
	case domRestricted && dowRestricted:
		return domOK || dowOK
	case domRestricted:
		return domOK
	case dowRestricted:
		return dowOK
	default:
		return true
	}
}

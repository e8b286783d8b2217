package measurement

import (
	"fmt"
	"time"
)

// ParseTimestamp parses the supplied date and time strings: date is
// either DD/MM/YYYY or YYYY-MM-DD, time is HH:mm:ss. Either may be empty,
// in which case "now" in loc is substituted for that component.
func ParseTimestamp(date, clock string, loc *time.Location, now time.Time) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	nowInLoc := now.In(loc)

	var day time.Time
	if date == "" {
		day = time.Date(nowInLoc.Year(), nowInLoc.Month(), nowInLoc.Day(), 0, 0, 0, 0, loc)
	} else {
		parsed, err := parseDate(date, loc)
		if err != nil {
			return time.Time{}, err
		}
		day = parsed
	}

	if clock == "" {
		return time.Date(day.Year(), day.Month(), day.Day(),
			nowInLoc.Hour(), nowInLoc.Minute(), nowInLoc.Second(), 0, loc), nil
	}

	hh, mm, ss, err := parseClock(clock)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(day.Year(), day.Month(), day.Day(), hh, mm, ss, 0, loc), nil
}

func parseDate(s string, loc *time.Location) (time.Time, error) {
	if t, err := time.ParseInLocation("02/01/2006", s, loc); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation("2006-01-02", s, loc); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("measurement: date %q is neither DD/MM/YYYY nor YYYY-MM-DD", s)
}

func parseClock(s string) (hh, mm, ss int, err error) {
	t, parseErr := time.Parse("15:04:05", s)
	if parseErr != nil {
		return 0, 0, 0, fmt.Errorf("measurement: time %q is not HH:mm:ss: %w", s, parseErr)
	}
	return t.Hour(), t.Minute(), t.Second(), nil
}

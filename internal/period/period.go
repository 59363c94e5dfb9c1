// Package period implements the calendar arithmetic behind recurrence and
// habit cadences. Everything here is a pure function over UTC instants.
package period

import (
	"fmt"
	"time"

	"betterme/internal/domain"
)

// DayFormat is the calendar-day normalization used everywhere a date acts as
// a set member. Storing days as strings avoids timezone drift in membership
// tests.
const DayFormat = "2006-01-02"

// Day normalizes an instant to its UTC calendar day string.
func Day(t time.Time) string {
	return t.UTC().Format(DayFormat)
}

// ParseDay parses a YYYY-MM-DD day string back into a UTC midnight instant.
func ParseDay(s string) (time.Time, error) {
	t, err := time.Parse(DayFormat, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid day %q: %w", s, err)
	}
	return t, nil
}

// Truncate drops the time-of-day component, keeping the UTC calendar day.
func Truncate(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// NextOccurrence advances from the given instant by one recurrence step.
// The second return is false for PatternNone (non-recurring). Intervals
// below 1 are treated as 1 so repeated application always moves forward.
func NextOccurrence(p domain.Pattern, interval int, from time.Time) (time.Time, bool) {
	if interval < 1 {
		interval = 1
	}
	from = from.UTC()
	switch p {
	case domain.PatternDaily:
		return from.AddDate(0, 0, interval), true
	case domain.PatternWeekly:
		return from.AddDate(0, 0, interval*7), true
	case domain.PatternMonthly:
		return from.AddDate(0, interval, 0), true
	case domain.PatternYearly:
		return from.AddDate(interval, 0, 0), true
	case domain.PatternNone:
		return time.Time{}, false
	default:
		return time.Time{}, false
	}
}

// Start returns the beginning of the period containing ref: the day itself,
// the most recent weekStart at or before ref, or the first of the month.
func Start(f domain.Frequency, ref time.Time, weekStart time.Weekday) time.Time {
	day := Truncate(ref)
	switch f {
	case domain.FrequencyDaily:
		return day
	case domain.FrequencyWeekly:
		back := (int(day.Weekday()) - int(weekStart) + 7) % 7
		return day.AddDate(0, 0, -back)
	case domain.FrequencyMonthly:
		return time.Date(day.Year(), day.Month(), 1, 0, 0, 0, 0, time.UTC)
	default:
		return day
	}
}

// IsDue reports whether a new completion is owed for the period containing
// today. A nil last completion is always due.
func IsDue(last *time.Time, f domain.Frequency, today time.Time) bool {
	if last == nil {
		return true
	}
	lastDay := Truncate(*last)
	todayDay := Truncate(today)
	switch f {
	case domain.FrequencyDaily:
		return lastDay.Before(todayDay)
	case domain.FrequencyWeekly:
		return todayDay.Sub(lastDay) >= 7*24*time.Hour
	case domain.FrequencyMonthly:
		return lastDay.Month() != todayDay.Month() || lastDay.Year() != todayDay.Year()
	default:
		return true
	}
}

// CountInPeriod counts completion days falling inside the current period.
// Malformed day strings are skipped; they cannot have been written by Day.
func CountInPeriod(days []string, f domain.Frequency, now time.Time, weekStart time.Weekday) int {
	start := Start(f, now, weekStart)
	count := 0
	for _, d := range days {
		t, err := ParseDay(d)
		if err != nil {
			continue
		}
		if !t.Before(start) {
			count++
		}
	}
	return count
}

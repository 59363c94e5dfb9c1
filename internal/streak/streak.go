// Package streak derives continuity measures from sparse completion-day
// sets. Both algorithms recompute from the full history: completions can be
// retracted out of order, and an incremental patch cannot undo a split run.
package streak

import (
	"sort"
	"time"

	"betterme/internal/period"
)

// Distinct returns the unique parseable days in ascending order.
func Distinct(days []string) []time.Time {
	seen := make(map[string]struct{}, len(days))
	out := make([]time.Time, 0, len(days))
	for _, d := range days {
		if _, ok := seen[d]; ok {
			continue
		}
		t, err := period.ParseDay(d)
		if err != nil {
			continue
		}
		seen[d] = struct{}{}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// FromInstances computes the live streak of a recurring task from its
// instance completion days. The streak is anchored at today: a task not yet
// completed today still carries the run that ended yesterday, but a run
// whose latest day is older than yesterday is dead.
func FromInstances(days []string, today time.Time) int {
	sorted := Distinct(days)
	if len(sorted) == 0 {
		return 0
	}
	// walk descending
	i := len(sorted) - 1
	todayDay := period.Truncate(today)
	yesterday := todayDay.AddDate(0, 0, -1)

	var expected time.Time
	streak := 0
	switch {
	case sorted[i].Equal(todayDay):
		streak = 1
		expected = yesterday
		i--
	case sorted[i].Equal(yesterday):
		streak = 1
		expected = yesterday.AddDate(0, 0, -1)
		i--
	default:
		return 0
	}
	for ; i >= 0; i-- {
		if !sorted[i].Equal(expected) {
			break
		}
		streak++
		expected = expected.AddDate(0, 0, -1)
	}
	return streak
}

// Recalculate recomputes a habit's streak from scratch. It returns the run
// ending at the latest recorded day (not necessarily today) and the longest
// run found anywhere in the history. Callers keep best-streak monotonic by
// taking the max against the previously stored value.
func Recalculate(days []string) (current, longest int) {
	sorted := Distinct(days)
	if len(sorted) == 0 {
		return 0, 0
	}
	current, longest = 1, 1
	for i := 1; i < len(sorted); i++ {
		if sorted[i].Sub(sorted[i-1]) == 24*time.Hour {
			current++
			if current > longest {
				longest = current
			}
		} else {
			current = 1
		}
	}
	return current, longest
}

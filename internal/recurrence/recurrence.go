// Package recurrence advances recurring tasks through time: recording
// instance completions and materializing the next instance when a due date
// passes. Functions here are pure; the engine persists the results.
package recurrence

import (
	"time"

	"betterme/internal/domain"
	"betterme/internal/period"
)

// CompleteInstance records a completion day on a recurring task and advances
// its next due date. Idempotent per calendar day: recording the same day
// twice, or completing a non-recurring task, returns the task unchanged with
// ok=false.
func CompleteInstance(t domain.Task, completedAt time.Time) (domain.Task, bool) {
	if !t.IsRecurring {
		return t, false
	}
	day := period.Day(completedAt)
	for _, d := range t.CompletedInstanceDates {
		if d == day {
			return t, false
		}
	}
	dates := make([]string, len(t.CompletedInstanceDates), len(t.CompletedInstanceDates)+1)
	copy(dates, t.CompletedInstanceDates)
	t.CompletedInstanceDates = append(dates, day)
	if next, ok := period.NextOccurrence(t.Pattern, t.Interval, completedAt); ok {
		s := next.Format(time.RFC3339)
		t.NextDueDate = &s
	}
	return t, true
}

// RetractInstance removes a completion day from a recurring task and
// restores the next-due invariant: the due date computed from the most
// recent remaining completion, or the original due date when none remain.
// ok=false when the day was never recorded.
func RetractInstance(t domain.Task, day string) (domain.Task, bool) {
	found := false
	remaining := make([]string, 0, len(t.CompletedInstanceDates))
	for _, d := range t.CompletedInstanceDates {
		if d == day {
			found = true
			continue
		}
		remaining = append(remaining, d)
	}
	if !found {
		return t, false
	}
	t.CompletedInstanceDates = remaining

	latest := ""
	for _, d := range remaining {
		if d > latest {
			latest = d
		}
	}
	if latest == "" {
		t.NextDueDate = t.DueDate
		return t, true
	}
	from, err := period.ParseDay(latest)
	if err != nil {
		return t, false
	}
	if next, ok := period.NextOccurrence(t.Pattern, t.Interval, from); ok {
		s := next.Format(time.RFC3339)
		t.NextDueDate = &s
	}
	return t, true
}

// Generated pairs a freshly materialized instance with its source task,
// whose next due date has been advanced past the instance's period.
type Generated struct {
	Instance domain.Task
	Source   domain.Task
}

// NextInstances materializes one new instance for every recurring task whose
// next due date has arrived and whose end date has not passed. The source
// task's next due date moves to the instance's own next due date, so running
// the sweep again with the same now cannot duplicate an instance for the
// same period; a task several periods behind catches up one instance per
// sweep.
func NextInstances(tasks []domain.Task, now time.Time, newID func() string) []Generated {
	nowStr := now.UTC().Format(time.RFC3339)
	var out []Generated
	for _, t := range tasks {
		if !t.IsRecurring || t.NextDueDate == nil {
			continue
		}
		due, err := time.Parse(time.RFC3339, *t.NextDueDate)
		if err != nil || due.After(now) {
			continue
		}
		if t.EndDate != nil {
			end, err := time.Parse(time.RFC3339, *t.EndDate)
			if err == nil && due.After(end) {
				continue
			}
		}
		dueStr := due.UTC().Format(time.RFC3339)
		rootID := t.RootID()
		inst := domain.Task{
			ID:             newID(),
			UserID:         t.UserID,
			Title:          t.Title,
			Description:    t.Description,
			Priority:       t.Priority,
			Category:       t.Category,
			Status:         "pending",
			DueDate:        &dueStr,
			IsRecurring:    true,
			Pattern:        t.Pattern,
			Interval:       t.Interval,
			EndDate:        t.EndDate,
			OriginalTaskID: &rootID,
			CreatedAt:      nowStr,
			UpdatedAt:      nowStr,
		}
		if next, ok := period.NextOccurrence(t.Pattern, t.Interval, due); ok {
			s := next.Format(time.RFC3339)
			inst.NextDueDate = &s
			t.NextDueDate = &s
		}
		t.UpdatedAt = nowStr
		out = append(out, Generated{Instance: inst, Source: t})
	}
	return out
}

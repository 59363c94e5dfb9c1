package recurrence

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"betterme/internal/domain"
)

func strPtr(s string) *string { return &s }

func recurringTask() domain.Task {
	return domain.Task{
		ID:          "task-1",
		UserID:      "alice",
		Title:       "water the plants",
		IsRecurring: true,
		Pattern:     domain.PatternDaily,
		Interval:    1,
		DueDate:     strPtr("2024-06-01T00:00:00Z"),
		NextDueDate: strPtr("2024-06-01T00:00:00Z"),
	}
}

func TestCompleteInstance(t *testing.T) {
	task := recurringTask()
	at := time.Date(2024, time.June, 1, 8, 0, 0, 0, time.UTC)

	done, ok := CompleteInstance(task, at)
	assert.True(t, ok)
	assert.Equal(t, []string{"2024-06-01"}, done.CompletedInstanceDates)
	assert.Equal(t, "2024-06-02T08:00:00Z", *done.NextDueDate)

	// Same calendar day again is a no-op.
	again, ok := CompleteInstance(done, at.Add(2*time.Hour))
	assert.False(t, ok)
	assert.Equal(t, done, again)

	// The input task is not mutated.
	assert.Empty(t, task.CompletedInstanceDates)
}

func TestCompleteInstanceNonRecurring(t *testing.T) {
	task := domain.Task{ID: "task-2", IsRecurring: false}
	_, ok := CompleteInstance(task, time.Now())
	assert.False(t, ok)
}

func TestRetractInstance(t *testing.T) {
	task := recurringTask()
	task.CompletedInstanceDates = []string{"2024-06-01", "2024-06-02"}
	task.NextDueDate = strPtr("2024-06-03T00:00:00Z")

	// Retracting the latest day re-anchors next-due on the remaining one.
	got, ok := RetractInstance(task, "2024-06-02")
	assert.True(t, ok)
	assert.Equal(t, []string{"2024-06-01"}, got.CompletedInstanceDates)
	assert.Equal(t, "2024-06-02T00:00:00Z", *got.NextDueDate)

	// Retracting the last remaining day restores the original due date.
	got, ok = RetractInstance(got, "2024-06-01")
	assert.True(t, ok)
	assert.Empty(t, got.CompletedInstanceDates)
	assert.Equal(t, task.DueDate, got.NextDueDate)

	// Unknown day is rejected.
	_, ok = RetractInstance(got, "2024-06-09")
	assert.False(t, ok)
}

func TestNextInstances(t *testing.T) {
	now := time.Date(2024, time.June, 1, 12, 0, 0, 0, time.UTC)
	counter := 0
	newID := func() string {
		counter++
		return fmt.Sprintf("gen-%d", counter)
	}

	tasks := []domain.Task{recurringTask()}
	gen := NextInstances(tasks, now, newID)
	if assert.Len(t, gen, 1) {
		inst := gen[0].Instance
		assert.Equal(t, "gen-1", inst.ID)
		assert.Equal(t, "pending", inst.Status)
		assert.Equal(t, "2024-06-01T00:00:00Z", *inst.DueDate)
		assert.Equal(t, "task-1", *inst.OriginalTaskID)
		assert.Empty(t, inst.CompletedInstanceDates)

		// Source and instance both advance to the following period.
		assert.Equal(t, "2024-06-02T00:00:00Z", *gen[0].Source.NextDueDate)
		assert.Equal(t, "2024-06-02T00:00:00Z", *inst.NextDueDate)
	}

	// Sweeping again from the advanced source yields nothing for this period.
	gen = NextInstances([]domain.Task{gen[0].Source}, now, newID)
	assert.Empty(t, gen)
}

func TestNextInstancesSkipsNotYetDue(t *testing.T) {
	task := recurringTask()
	now := time.Date(2024, time.May, 31, 12, 0, 0, 0, time.UTC)
	assert.Empty(t, NextInstances([]domain.Task{task}, now, func() string { return "x" }))
}

func TestNextInstancesRespectsEndDate(t *testing.T) {
	task := recurringTask()
	task.EndDate = strPtr("2024-05-31T00:00:00Z")
	now := time.Date(2024, time.June, 5, 0, 0, 0, 0, time.UTC)
	assert.Empty(t, NextInstances([]domain.Task{task}, now, func() string { return "x" }))
}

func TestNextInstancesRootsInstancesAtOriginal(t *testing.T) {
	// An instance generated from an instance still points at the root task.
	task := recurringTask()
	task.ID = "gen-7"
	task.OriginalTaskID = strPtr("task-1")

	now := time.Date(2024, time.June, 1, 12, 0, 0, 0, time.UTC)
	gen := NextInstances([]domain.Task{task}, now, func() string { return "gen-8" })
	if assert.Len(t, gen, 1) {
		assert.Equal(t, "task-1", *gen[0].Instance.OriginalTaskID)
	}
}

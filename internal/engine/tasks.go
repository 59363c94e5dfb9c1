package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"betterme/internal/domain"
	"betterme/internal/events"
	"betterme/internal/period"
	"betterme/internal/recurrence"
	"betterme/internal/repo"
	"betterme/internal/streak"
)

// TaskCreateOptions are parameters for creating a task.
type TaskCreateOptions struct {
	UserID      string
	Title       string
	Description string
	Priority    int
	Category    string
	DueDate     *time.Time
	IsRecurring bool
	Pattern     string
	Interval    int
	EndDate     *time.Time
}

func (e Engine) CreateTask(ctx context.Context, opts TaskCreateOptions) (domain.Task, error) {
	if opts.UserID == "" {
		return domain.Task{}, fmt.Errorf("%w: user is required", ErrValidation)
	}
	if opts.Title == "" {
		return domain.Task{}, fmt.Errorf("%w: title is required", ErrValidation)
	}
	if opts.Priority == 0 {
		opts.Priority = 1
	}
	if opts.Priority < 1 || opts.Priority > 5 {
		return domain.Task{}, fmt.Errorf("%w: priority must be 1..5", ErrValidation)
	}
	pattern := domain.PatternNone
	if opts.IsRecurring {
		p, ok := domain.ParsePattern(opts.Pattern)
		if !ok || p == domain.PatternNone {
			return domain.Task{}, fmt.Errorf("%w: recurring task needs a pattern", ErrValidation)
		}
		pattern = p
		if opts.Interval == 0 {
			opts.Interval = 1
		}
		if opts.Interval < 1 {
			return domain.Task{}, fmt.Errorf("%w: interval must be positive", ErrValidation)
		}
		if opts.DueDate == nil {
			return domain.Task{}, fmt.Errorf("%w: recurring task needs a due date", ErrValidation)
		}
	}
	if opts.EndDate != nil && opts.DueDate != nil && opts.EndDate.Before(*opts.DueDate) {
		return domain.Task{}, fmt.Errorf("%w: end date before due date", ErrValidation)
	}
	if _, err := e.Repo.GetUser(ctx, opts.UserID); err != nil {
		return domain.Task{}, err
	}
	now := e.now().UTC().Format(time.RFC3339)
	t := domain.Task{
		ID:          uuid.New().String(),
		UserID:      opts.UserID,
		Title:       opts.Title,
		Description: opts.Description,
		Priority:    opts.Priority,
		Category:    opts.Category,
		Status:      "pending",
		IsRecurring: opts.IsRecurring,
		Pattern:     pattern,
		Interval:    opts.Interval,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if opts.DueDate != nil {
		s := opts.DueDate.UTC().Format(time.RFC3339)
		t.DueDate = &s
		if t.IsRecurring {
			// next occurrence before any completion is the original due date
			t.NextDueDate = &s
		}
	}
	if opts.EndDate != nil {
		s := opts.EndDate.UTC().Format(time.RFC3339)
		t.EndDate = &s
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertTask(ctx, tx, t); err != nil {
		return domain.Task{}, err
	}
	if err := e.Events.Append(ctx, tx, "task.created", t.UserID, "task", t.ID, events.EventPayload{"title": t.Title, "recurring": t.IsRecurring}); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

// CompleteTask closes a plain task: Pending -> Completed, scored with the
// timeliness bonus. Recurring tasks go through CompleteRecurringTask.
func (e Engine) CompleteTask(ctx context.Context, taskID string, opts CompleteOptions) (CompletionResult, error) {
	t, err := e.Repo.GetTask(ctx, taskID)
	if err != nil {
		return CompletionResult{}, err
	}
	if t.IsRecurring {
		return CompletionResult{}, fmt.Errorf("%w: task %s is recurring; complete an instance date instead", ErrInvalidOperation, taskID)
	}
	if t.Status == "completed" {
		return CompletionResult{}, fmt.Errorf("%w: task already completed", ErrInvalidOperation)
	}
	completedAt := e.now().UTC()
	if opts.Date != nil {
		completedAt = opts.Date.UTC()
	}
	cfg := e.userConfig(ctx, t.UserID)
	catalog, err := e.Repo.ListAchievements(ctx)
	if err != nil {
		return CompletionResult{}, err
	}
	var due *time.Time
	if t.DueDate != nil {
		d, err := time.Parse(time.RFC3339, *t.DueDate)
		if err != nil {
			return CompletionResult{}, fmt.Errorf("%w: task due date malformed: %v", ErrValidation, err)
		}
		due = &d
	}
	points := cfg.Scoring.TaskPoints(t.Priority, due, completedAt)

	nowStr := e.now().UTC().Format(time.RFC3339)
	completedStr := completedAt.Format(time.RFC3339)
	t.Status = "completed"
	t.CompletedAt = &completedStr
	t.UpdatedAt = nowStr

	c := domain.Completion{
		ID:           uuid.New().String(),
		UserID:       t.UserID,
		EntityKind:   "task",
		EntityID:     t.ID,
		Day:          period.Day(completedAt),
		CompletedAt:  completedStr,
		PointsEarned: points,
		Notes:        opts.Notes,
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return CompletionResult{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertCompletion(ctx, tx, c); err != nil {
		return CompletionResult{}, err
	}
	if err := e.Repo.UpdateTask(ctx, tx, t); err != nil {
		return CompletionResult{}, err
	}
	progress, stats, err := e.recomputeProgress(ctx, tx, t.UserID, cfg)
	if err != nil {
		return CompletionResult{}, err
	}
	unlocked, err := e.unlockAchievements(ctx, tx, t.UserID, catalog, stats)
	if err != nil {
		return CompletionResult{}, err
	}
	if err := e.Events.Append(ctx, tx, "task.completed", t.UserID, "task", t.ID, events.EventPayload{"points": points}); err != nil {
		return CompletionResult{}, err
	}
	if err := tx.Commit(); err != nil {
		return CompletionResult{}, err
	}
	return CompletionResult{Task: &t, Completion: c, Progress: progress, NewAchievements: unlocked}, nil
}

// UncompleteTask reopens a completed plain task, removes the completion
// event and recomputes the aggregate from what remains.
func (e Engine) UncompleteTask(ctx context.Context, taskID string) (CompletionResult, error) {
	t, err := e.Repo.GetTask(ctx, taskID)
	if err != nil {
		return CompletionResult{}, err
	}
	if t.IsRecurring {
		return CompletionResult{}, fmt.Errorf("%w: task %s is recurring; retract an instance date instead", ErrInvalidOperation, taskID)
	}
	cfg := e.userConfig(ctx, t.UserID)
	if t.Status != "completed" || t.CompletedAt == nil {
		progress, err := e.progressOrZero(ctx, t.UserID)
		if err != nil {
			return CompletionResult{}, err
		}
		return CompletionResult{Task: &t, Progress: progress}, nil
	}
	completedAt, err := time.Parse(time.RFC3339, *t.CompletedAt)
	if err != nil {
		return CompletionResult{}, fmt.Errorf("%w: completed_at malformed: %v", ErrValidation, err)
	}
	day := period.Day(completedAt)
	t.Status = "pending"
	t.CompletedAt = nil
	t.UpdatedAt = e.now().UTC().Format(time.RFC3339)

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return CompletionResult{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteCompletion(ctx, tx, "task", t.ID, day); err != nil && !errors.Is(err, repo.ErrNotFound) {
		return CompletionResult{}, err
	}
	if err := e.Repo.UpdateTask(ctx, tx, t); err != nil {
		return CompletionResult{}, err
	}
	progress, _, err := e.recomputeProgress(ctx, tx, t.UserID, cfg)
	if err != nil {
		return CompletionResult{}, err
	}
	if err := e.Events.Append(ctx, tx, "task.uncompleted", t.UserID, "task", t.ID, events.EventPayload{"day": day}); err != nil {
		return CompletionResult{}, err
	}
	if err := tx.Commit(); err != nil {
		return CompletionResult{}, err
	}
	return CompletionResult{Task: &t, Progress: progress}, nil
}

// CompleteRecurringTask records one instance completion day on a recurring
// task. Recording is idempotent per calendar day: a repeat call returns the
// unchanged task without writing anything. Instance completions keep their
// own task's history and score, but are excluded from the cross-cutting
// point total.
func (e Engine) CompleteRecurringTask(ctx context.Context, taskID string, completionDate time.Time) (CompletionResult, error) {
	t, err := e.Repo.GetTask(ctx, taskID)
	if err != nil {
		return CompletionResult{}, err
	}
	if !t.IsRecurring {
		return CompletionResult{}, fmt.Errorf("%w: task %s is not recurring", ErrInvalidOperation, taskID)
	}
	cfg := e.userConfig(ctx, t.UserID)
	updated, ok := recurrence.CompleteInstance(t, completionDate)
	if !ok {
		// already recorded for that day
		progress, err := e.progressOrZero(ctx, t.UserID)
		if err != nil {
			return CompletionResult{}, err
		}
		return CompletionResult{Task: &t, Progress: progress}, nil
	}
	catalog, err := e.Repo.ListAchievements(ctx)
	if err != nil {
		return CompletionResult{}, err
	}
	var due *time.Time
	if t.DueDate != nil {
		d, err := time.Parse(time.RFC3339, *t.DueDate)
		if err != nil {
			return CompletionResult{}, fmt.Errorf("%w: task due date malformed: %v", ErrValidation, err)
		}
		due = &d
	}
	completedAt := completionDate.UTC()
	points := cfg.Scoring.TaskPoints(t.Priority, due, completedAt)
	updated.UpdatedAt = e.now().UTC().Format(time.RFC3339)

	c := domain.Completion{
		ID:                  uuid.New().String(),
		UserID:              t.UserID,
		EntityKind:          "task",
		EntityID:            t.ID,
		Day:                 period.Day(completedAt),
		CompletedAt:         completedAt.Format(time.RFC3339),
		PointsEarned:        points,
		IsRecurringInstance: true,
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return CompletionResult{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertCompletion(ctx, tx, c); err != nil {
		return CompletionResult{}, err
	}
	if err := e.Repo.UpdateTask(ctx, tx, updated); err != nil {
		return CompletionResult{}, err
	}
	progress, stats, err := e.recomputeProgress(ctx, tx, t.UserID, cfg)
	if err != nil {
		return CompletionResult{}, err
	}
	unlocked, err := e.unlockAchievements(ctx, tx, t.UserID, catalog, stats)
	if err != nil {
		return CompletionResult{}, err
	}
	if err := e.Events.Append(ctx, tx, "task.instance.completed", t.UserID, "task", t.ID, events.EventPayload{
		"day": c.Day, "points": points, "next_due": deref(updated.NextDueDate),
	}); err != nil {
		return CompletionResult{}, err
	}
	if err := tx.Commit(); err != nil {
		return CompletionResult{}, err
	}
	return CompletionResult{Task: &updated, Completion: c, Progress: progress, NewAchievements: unlocked}, nil
}

// UncompleteRecurringTask retracts one instance day and restores the
// next-due invariant from the remaining history.
func (e Engine) UncompleteRecurringTask(ctx context.Context, taskID string, date time.Time) (CompletionResult, error) {
	t, err := e.Repo.GetTask(ctx, taskID)
	if err != nil {
		return CompletionResult{}, err
	}
	if !t.IsRecurring {
		return CompletionResult{}, fmt.Errorf("%w: task %s is not recurring", ErrInvalidOperation, taskID)
	}
	cfg := e.userConfig(ctx, t.UserID)
	day := period.Day(date)
	updated, ok := recurrence.RetractInstance(t, day)
	if !ok {
		progress, err := e.progressOrZero(ctx, t.UserID)
		if err != nil {
			return CompletionResult{}, err
		}
		return CompletionResult{Task: &t, Progress: progress}, nil
	}
	updated.UpdatedAt = e.now().UTC().Format(time.RFC3339)

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return CompletionResult{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteCompletion(ctx, tx, "task", t.ID, day); err != nil && !errors.Is(err, repo.ErrNotFound) {
		return CompletionResult{}, err
	}
	if err := e.Repo.UpdateTask(ctx, tx, updated); err != nil {
		return CompletionResult{}, err
	}
	progress, _, err := e.recomputeProgress(ctx, tx, t.UserID, cfg)
	if err != nil {
		return CompletionResult{}, err
	}
	if err := e.Events.Append(ctx, tx, "task.instance.uncompleted", t.UserID, "task", t.ID, events.EventPayload{"day": day}); err != nil {
		return CompletionResult{}, err
	}
	if err := tx.Commit(); err != nil {
		return CompletionResult{}, err
	}
	return CompletionResult{Task: &updated, Progress: progress}, nil
}

// SweepRecurringInstances materializes due instances across every user.
// Safe to run on a timer: each sweep advances source due dates, so the same
// period is never instantiated twice.
func (e Engine) SweepRecurringInstances(ctx context.Context, now time.Time) ([]domain.Task, error) {
	tasks, err := e.Repo.ListRecurringTasks(ctx)
	if err != nil {
		return nil, err
	}
	generated := recurrence.NextInstances(tasks, now, func() string { return uuid.New().String() })
	if len(generated) == 0 {
		return nil, nil
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()
	instances := make([]domain.Task, 0, len(generated))
	for _, g := range generated {
		if err := e.Repo.InsertTask(ctx, tx, g.Instance); err != nil {
			return nil, err
		}
		if err := e.Repo.UpdateTask(ctx, tx, g.Source); err != nil {
			return nil, err
		}
		if err := e.Events.Append(ctx, tx, "task.instance.generated", g.Instance.UserID, "task", g.Instance.ID, events.EventPayload{
			"source": g.Source.ID, "due": deref(g.Instance.DueDate),
		}); err != nil {
			return nil, err
		}
		instances = append(instances, g.Instance)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return instances, nil
}

// RecurringTaskStreak derives the live instance streak for a recurring
// task, anchored at the current day.
func (e Engine) RecurringTaskStreak(t domain.Task) int {
	return streak.FromInstances(t.CompletedInstanceDates, e.now().UTC())
}

func (e Engine) DeleteTask(ctx context.Context, taskID string) error {
	t, err := e.Repo.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	cfg := e.userConfig(ctx, t.UserID)
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteTask(ctx, tx, t.ID); err != nil {
		return err
	}
	if _, _, err := e.recomputeProgress(ctx, tx, t.UserID, cfg); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "task.deleted", t.UserID, "task", t.ID, events.EventPayload{"title": t.Title}); err != nil {
		return err
	}
	return tx.Commit()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

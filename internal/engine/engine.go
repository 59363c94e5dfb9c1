package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"betterme/internal/config"
	"betterme/internal/domain"
	"betterme/internal/events"
	"betterme/internal/period"
	"betterme/internal/repo"
	"betterme/internal/streak"
)

// Engine orchestrates recurrence, streak and scoring state. All reads and
// recomputes for one mutation happen against a loaded snapshot; a single
// transaction persists the result, so a failed invariant never leaves a
// partial write behind.
type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Config *config.Config
	Now    func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Config: cfg,
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// userConfig loads the user's stored config, falling back to the engine
// default and then the stock config.
func (e Engine) userConfig(ctx context.Context, userID string) *config.Config {
	cfg, err := e.Repo.GetUserConfig(ctx, userID)
	if err == nil {
		return cfg
	}
	if e.Config != nil {
		return e.Config
	}
	return config.Default(userID)
}

// HabitCreateOptions are parameters for creating a habit.
type HabitCreateOptions struct {
	UserID      string
	Name        string
	Description string
	Frequency   string
	Difficulty  string
	Points      int
	TargetCount int
}

func (e Engine) CreateHabit(ctx context.Context, opts HabitCreateOptions) (domain.Habit, error) {
	if opts.UserID == "" {
		return domain.Habit{}, fmt.Errorf("%w: user is required", ErrValidation)
	}
	if opts.Name == "" {
		return domain.Habit{}, fmt.Errorf("%w: name is required", ErrValidation)
	}
	freq := domain.FrequencyDaily
	if opts.Frequency != "" {
		f, ok := domain.ParseFrequency(opts.Frequency)
		if !ok {
			return domain.Habit{}, fmt.Errorf("%w: unknown frequency %q", ErrValidation, opts.Frequency)
		}
		freq = f
	}
	diff := domain.DifficultyEasy
	if opts.Difficulty != "" {
		d, ok := domain.ParseDifficulty(opts.Difficulty)
		if !ok {
			return domain.Habit{}, fmt.Errorf("%w: unknown difficulty %q", ErrValidation, opts.Difficulty)
		}
		diff = d
	}
	if opts.Points < 0 {
		return domain.Habit{}, fmt.Errorf("%w: points must not be negative", ErrValidation)
	}
	if opts.Points == 0 {
		opts.Points = 10
	}
	if opts.TargetCount < 0 {
		return domain.Habit{}, fmt.Errorf("%w: target count must not be negative", ErrValidation)
	}
	if opts.TargetCount == 0 {
		opts.TargetCount = 1
	}
	if _, err := e.Repo.GetUser(ctx, opts.UserID); err != nil {
		return domain.Habit{}, err
	}
	now := e.now().UTC().Format(time.RFC3339)
	h := domain.Habit{
		ID:          uuid.New().String(),
		UserID:      opts.UserID,
		Name:        opts.Name,
		Description: opts.Description,
		Frequency:   freq,
		Difficulty:  diff,
		Points:      opts.Points,
		TargetCount: opts.TargetCount,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Habit{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertHabit(ctx, tx, h); err != nil {
		return domain.Habit{}, err
	}
	if err := e.Events.Append(ctx, tx, "habit.created", h.UserID, "habit", h.ID, events.EventPayload{"name": h.Name, "frequency": string(h.Frequency)}); err != nil {
		return domain.Habit{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Habit{}, err
	}
	return h, nil
}

// CompleteOptions carry the optional metadata of a completion call.
type CompleteOptions struct {
	Date  *time.Time
	Notes string
	Mood  string
}

// CompletionResult is what a completion returns to the caller: the updated
// entity state and anything newly unlocked. The caller decides how to
// surface unlocks.
type CompletionResult struct {
	Habit           *domain.Habit
	Task            *domain.Task
	Completion      domain.Completion
	Progress        domain.UserProgress
	NewAchievements []domain.Achievement
}

// CompleteHabit records a habit completion for one calendar day, recomputes
// the habit streak from its full history, scores the completion and rolls
// the user aggregate forward.
func (e Engine) CompleteHabit(ctx context.Context, habitID string, opts CompleteOptions) (CompletionResult, error) {
	h, err := e.Repo.GetHabit(ctx, habitID)
	if err != nil {
		return CompletionResult{}, err
	}
	completedAt := e.now().UTC()
	if opts.Date != nil {
		completedAt = opts.Date.UTC()
	}
	day := period.Day(completedAt)
	for _, d := range h.CompletedDates {
		if d == day {
			return CompletionResult{}, fmt.Errorf("%w: habit already completed for %s", ErrInvalidOperation, day)
		}
	}
	cfg := e.userConfig(ctx, h.UserID)
	catalog, err := e.Repo.ListAchievements(ctx)
	if err != nil {
		return CompletionResult{}, err
	}

	dates := append(append([]string{}, h.CompletedDates...), day)
	current, longest := streak.Recalculate(dates)
	best := h.BestStreak
	if longest > best {
		best = longest
	}
	if best < current {
		return CompletionResult{}, fmt.Errorf("%w: best streak %d below current %d", ErrInvariant, best, current)
	}
	points := cfg.Scoring.HabitPoints(h.Points, current, h.Difficulty)

	h.CompletedDates = dates
	h.Streak = current
	h.BestStreak = best
	h.UpdatedAt = e.now().UTC().Format(time.RFC3339)

	c := domain.Completion{
		ID:           uuid.New().String(),
		UserID:       h.UserID,
		EntityKind:   "habit",
		EntityID:     h.ID,
		Day:          day,
		CompletedAt:  completedAt.Format(time.RFC3339),
		PointsEarned: points,
		Notes:        opts.Notes,
		Mood:         opts.Mood,
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return CompletionResult{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertCompletion(ctx, tx, c); err != nil {
		return CompletionResult{}, err
	}
	if err := e.Repo.UpdateHabit(ctx, tx, h); err != nil {
		return CompletionResult{}, err
	}
	progress, stats, err := e.recomputeProgress(ctx, tx, h.UserID, cfg)
	if err != nil {
		return CompletionResult{}, err
	}
	unlocked, err := e.unlockAchievements(ctx, tx, h.UserID, catalog, stats)
	if err != nil {
		return CompletionResult{}, err
	}
	if err := e.Events.Append(ctx, tx, "habit.completed", h.UserID, "habit", h.ID, events.EventPayload{
		"day": day, "points": points, "streak": current,
	}); err != nil {
		return CompletionResult{}, err
	}
	if err := tx.Commit(); err != nil {
		return CompletionResult{}, err
	}
	return CompletionResult{
		Habit:           &h,
		Completion:      c,
		Progress:        progress,
		NewAchievements: unlocked,
	}, nil
}

// UncompleteHabit retracts a completion. Removing an arbitrary historical
// day can shorten or split a run, so the streak is recomputed from the
// remaining history rather than patched. Best streak never decreases, and
// achievements are not revoked.
func (e Engine) UncompleteHabit(ctx context.Context, habitID string, date time.Time) (CompletionResult, error) {
	h, err := e.Repo.GetHabit(ctx, habitID)
	if err != nil {
		return CompletionResult{}, err
	}
	day := period.Day(date)
	found := false
	remaining := make([]string, 0, len(h.CompletedDates))
	for _, d := range h.CompletedDates {
		if d == day {
			found = true
			continue
		}
		remaining = append(remaining, d)
	}
	cfg := e.userConfig(ctx, h.UserID)
	if !found {
		progress, err := e.progressOrZero(ctx, h.UserID)
		if err != nil {
			return CompletionResult{}, err
		}
		return CompletionResult{Habit: &h, Progress: progress}, nil
	}

	current, longest := streak.Recalculate(remaining)
	best := h.BestStreak
	if longest > best {
		best = longest
	}
	if best < current {
		return CompletionResult{}, fmt.Errorf("%w: best streak %d below current %d", ErrInvariant, best, current)
	}
	h.CompletedDates = remaining
	h.Streak = current
	h.BestStreak = best
	h.UpdatedAt = e.now().UTC().Format(time.RFC3339)

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return CompletionResult{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteCompletion(ctx, tx, "habit", h.ID, day); err != nil && !errors.Is(err, repo.ErrNotFound) {
		return CompletionResult{}, err
	}
	if err := e.Repo.UpdateHabit(ctx, tx, h); err != nil {
		return CompletionResult{}, err
	}
	progress, _, err := e.recomputeProgress(ctx, tx, h.UserID, cfg)
	if err != nil {
		return CompletionResult{}, err
	}
	if err := e.Events.Append(ctx, tx, "habit.uncompleted", h.UserID, "habit", h.ID, events.EventPayload{"day": day}); err != nil {
		return CompletionResult{}, err
	}
	if err := tx.Commit(); err != nil {
		return CompletionResult{}, err
	}
	return CompletionResult{Habit: &h, Progress: progress}, nil
}

// HabitStatus is the derived per-period view of a habit.
type HabitStatus struct {
	Habit        domain.Habit `json:"habit"`
	DueToday     bool         `json:"due_today"`
	CurrentCount int          `json:"current_count"`
}

// HabitStatuses derives due/count state for every habit of a user. The
// period count is computed from the day set, never stored.
func (e Engine) HabitStatuses(ctx context.Context, userID string) ([]HabitStatus, error) {
	habits, err := e.Repo.ListHabits(ctx, userID)
	if err != nil {
		return nil, err
	}
	cfg := e.userConfig(ctx, userID)
	now := e.now().UTC()
	weekStart := cfg.WeekStartDay()
	res := make([]HabitStatus, 0, len(habits))
	for _, h := range habits {
		var last *time.Time
		if days := streak.Distinct(h.CompletedDates); len(days) > 0 {
			latest := days[len(days)-1]
			last = &latest
		}
		res = append(res, HabitStatus{
			Habit:        h,
			DueToday:     period.IsDue(last, h.Frequency, now),
			CurrentCount: period.CountInPeriod(h.CompletedDates, h.Frequency, now, weekStart),
		})
	}
	return res, nil
}

func (e Engine) DeleteHabit(ctx context.Context, habitID string) error {
	h, err := e.Repo.GetHabit(ctx, habitID)
	if err != nil {
		return err
	}
	cfg := e.userConfig(ctx, h.UserID)
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteHabit(ctx, tx, h.ID); err != nil {
		return err
	}
	if _, _, err := e.recomputeProgress(ctx, tx, h.UserID, cfg); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "habit.deleted", h.UserID, "habit", h.ID, events.EventPayload{"name": h.Name}); err != nil {
		return err
	}
	return tx.Commit()
}

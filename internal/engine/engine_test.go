package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"betterme/internal/app"
	"betterme/internal/db"
	"betterme/internal/engine"
	"betterme/internal/migrate"
	"betterme/internal/repo"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	ctx := context.Background()
	_, cfg, err := app.ResolveUserAndConfig(ctx, "alice", repo.Repo{DB: conn})
	if err != nil {
		t.Fatalf("resolve user: %v", err)
	}
	eng := engine.New(conn, cfg)
	eng.Now = func() time.Time { return time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC) }
	eng.Events.Now = eng.Now
	return testEnv{Engine: eng, Ctx: ctx}
}

func day(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		t.Fatalf("parse day %s: %v", s, err)
	}
	return d
}

func mustCreateHabit(t *testing.T, env testEnv) string {
	t.Helper()
	h, err := env.Engine.CreateHabit(env.Ctx, engine.HabitCreateOptions{
		UserID: "alice",
		Name:   "meditate",
	})
	if err != nil {
		t.Fatalf("create habit: %v", err)
	}
	return h.ID
}

func TestCreateHabitDefaults(t *testing.T) {
	env := newTestEnv(t)
	h, err := env.Engine.CreateHabit(env.Ctx, engine.HabitCreateOptions{UserID: "alice", Name: "read"})
	if err != nil {
		t.Fatalf("create habit: %v", err)
	}
	if h.Frequency != "daily" || h.Difficulty != "easy" || h.Points != 10 || h.TargetCount != 1 {
		t.Fatalf("unexpected defaults: %+v", h)
	}
	// validation failures
	if _, err := env.Engine.CreateHabit(env.Ctx, engine.HabitCreateOptions{UserID: "alice"}); !errors.Is(err, engine.ErrValidation) {
		t.Fatalf("missing name: %v", err)
	}
	if _, err := env.Engine.CreateHabit(env.Ctx, engine.HabitCreateOptions{UserID: "alice", Name: "x", Frequency: "hourly"}); !errors.Is(err, engine.ErrValidation) {
		t.Fatalf("bad frequency: %v", err)
	}
	if _, err := env.Engine.CreateHabit(env.Ctx, engine.HabitCreateOptions{UserID: "ghost", Name: "x"}); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("unknown user: %v", err)
	}
}

func TestCompleteHabitScoresAndAggregates(t *testing.T) {
	env := newTestEnv(t)
	id := mustCreateHabit(t, env)

	res, err := env.Engine.CompleteHabit(env.Ctx, id, engine.CompleteOptions{})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if res.Completion.PointsEarned != 10 {
		t.Fatalf("points = %d, want 10", res.Completion.PointsEarned)
	}
	if res.Habit.Streak != 1 || res.Habit.BestStreak != 1 {
		t.Fatalf("streak = %d/%d, want 1/1", res.Habit.Streak, res.Habit.BestStreak)
	}
	if res.Progress.TotalPoints != 10 || res.Progress.Level != 1 || res.Progress.CurrentStreak != 1 {
		t.Fatalf("progress = %+v", res.Progress)
	}
	if res.Progress.LastCompletionDate == nil || *res.Progress.LastCompletionDate != "2024-01-10" {
		t.Fatalf("last completion = %v", res.Progress.LastCompletionDate)
	}
	// the ledger row is persisted under the calendar day
	c, err := env.Engine.Repo.GetCompletion(env.Ctx, "habit", id, "2024-01-10")
	if err != nil {
		t.Fatalf("get completion: %v", err)
	}
	if c.PointsEarned != 10 || c.UserID != "alice" {
		t.Fatalf("completion = %+v", c)
	}

	// same day again is rejected
	if _, err := env.Engine.CompleteHabit(env.Ctx, id, engine.CompleteOptions{}); !errors.Is(err, engine.ErrInvalidOperation) {
		t.Fatalf("duplicate day: %v", err)
	}
}

func TestCompleteHabitStreakBonus(t *testing.T) {
	env := newTestEnv(t)
	id := mustCreateHabit(t, env)

	var last engine.CompletionResult
	for d := 4; d <= 10; d++ {
		date := time.Date(2024, 1, d, 8, 0, 0, 0, time.UTC)
		res, err := env.Engine.CompleteHabit(env.Ctx, id, engine.CompleteOptions{Date: &date})
		if err != nil {
			t.Fatalf("complete day %d: %v", d, err)
		}
		last = res
	}
	if last.Habit.Streak != 7 || last.Habit.BestStreak != 7 {
		t.Fatalf("streak = %d/%d, want 7/7", last.Habit.Streak, last.Habit.BestStreak)
	}
	// day seven carries the first streak bonus window: 10 + round(1*0.1*10)
	if last.Completion.PointsEarned != 11 {
		t.Fatalf("day-7 points = %d, want 11", last.Completion.PointsEarned)
	}
	if last.Progress.TotalPoints != 6*10+11 {
		t.Fatalf("total = %d, want 71", last.Progress.TotalPoints)
	}
	// the 7-day streak achievement unlocks on the seventh completion
	found := false
	for _, a := range last.NewAchievements {
		if a.ID == "week-streak" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected week-streak unlock, got %+v", last.NewAchievements)
	}
}

func TestHabitDifficultyMultiplier(t *testing.T) {
	env := newTestEnv(t)
	h, err := env.Engine.CreateHabit(env.Ctx, engine.HabitCreateOptions{
		UserID: "alice", Name: "run", Difficulty: "hard",
	})
	if err != nil {
		t.Fatalf("create habit: %v", err)
	}
	res, err := env.Engine.CompleteHabit(env.Ctx, h.ID, engine.CompleteOptions{})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if res.Completion.PointsEarned != 20 {
		t.Fatalf("points = %d, want 20", res.Completion.PointsEarned)
	}
}

func TestUncompleteHabitRecomputesStreak(t *testing.T) {
	env := newTestEnv(t)
	id := mustCreateHabit(t, env)
	for d := 8; d <= 10; d++ {
		date := time.Date(2024, 1, d, 8, 0, 0, 0, time.UTC)
		if _, err := env.Engine.CompleteHabit(env.Ctx, id, engine.CompleteOptions{Date: &date}); err != nil {
			t.Fatalf("complete day %d: %v", d, err)
		}
	}

	// removing the middle day splits the run; the streak is recomputed,
	// not patched, and best streak keeps its high-water mark
	res, err := env.Engine.UncompleteHabit(env.Ctx, id, day(t, "2024-01-09"))
	if err != nil {
		t.Fatalf("uncomplete: %v", err)
	}
	if res.Habit.Streak != 1 {
		t.Fatalf("streak = %d, want 1", res.Habit.Streak)
	}
	if res.Habit.BestStreak != 3 {
		t.Fatalf("best = %d, want 3", res.Habit.BestStreak)
	}
	if res.Progress.TotalPoints != 20 {
		t.Fatalf("total = %d, want 20", res.Progress.TotalPoints)
	}
	if res.Progress.BestStreak != 3 || res.Progress.CurrentStreak != 1 {
		t.Fatalf("progress streaks = %d/%d", res.Progress.CurrentStreak, res.Progress.BestStreak)
	}
	if _, err := env.Engine.Repo.GetCompletion(env.Ctx, "habit", id, "2024-01-09"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("retracted completion still stored: %v", err)
	}

	// retracting a day that was never recorded is a harmless no-op
	res, err = env.Engine.UncompleteHabit(env.Ctx, id, day(t, "2024-01-01"))
	if err != nil {
		t.Fatalf("noop uncomplete: %v", err)
	}
	if res.Habit.Streak != 1 || res.Progress.TotalPoints != 20 {
		t.Fatalf("noop changed state: %+v", res.Progress)
	}
}

func TestHabitStatuses(t *testing.T) {
	env := newTestEnv(t)
	id := mustCreateHabit(t, env)

	statuses, err := env.Engine.HabitStatuses(env.Ctx, "alice")
	if err != nil {
		t.Fatalf("statuses: %v", err)
	}
	if len(statuses) != 1 || !statuses[0].DueToday || statuses[0].CurrentCount != 0 {
		t.Fatalf("fresh habit status = %+v", statuses)
	}

	if _, err := env.Engine.CompleteHabit(env.Ctx, id, engine.CompleteOptions{}); err != nil {
		t.Fatalf("complete: %v", err)
	}
	statuses, err = env.Engine.HabitStatuses(env.Ctx, "alice")
	if err != nil {
		t.Fatalf("statuses: %v", err)
	}
	if statuses[0].DueToday || statuses[0].CurrentCount != 1 {
		t.Fatalf("completed habit status = %+v", statuses[0])
	}
}

func TestCompleteTaskTimeliness(t *testing.T) {
	env := newTestEnv(t)
	due := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		UserID: "alice", Title: "file taxes", Priority: 2, DueDate: &due,
	})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	res, err := env.Engine.CompleteTask(env.Ctx, task.ID, engine.CompleteOptions{})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	// 10 base + 2*5 priority + 5 on time
	if res.Completion.PointsEarned != 25 {
		t.Fatalf("points = %d, want 25", res.Completion.PointsEarned)
	}
	if res.Task.Status != "completed" || res.Task.CompletedAt == nil {
		t.Fatalf("task not closed: %+v", res.Task)
	}
	// first task completion unlocks the starter achievement
	if len(res.NewAchievements) == 0 || res.NewAchievements[0].ID != "first-step" {
		t.Fatalf("unlocks = %+v", res.NewAchievements)
	}

	if _, err := env.Engine.CompleteTask(env.Ctx, task.ID, engine.CompleteOptions{}); !errors.Is(err, engine.ErrInvalidOperation) {
		t.Fatalf("double complete: %v", err)
	}
}

func TestCompleteTaskOverdueAndUndated(t *testing.T) {
	env := newTestEnv(t)
	due := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)
	overdue, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		UserID: "alice", Title: "late", Priority: 1, DueDate: &due,
	})
	if err != nil {
		t.Fatal(err)
	}
	res, err := env.Engine.CompleteTask(env.Ctx, overdue.ID, engine.CompleteOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if res.Completion.PointsEarned != 15 {
		t.Fatalf("overdue points = %d, want 15", res.Completion.PointsEarned)
	}

	undated, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		UserID: "alice", Title: "someday", Priority: 1,
	})
	if err != nil {
		t.Fatal(err)
	}
	date := time.Date(2024, 1, 11, 0, 0, 0, 0, time.UTC)
	res, err = env.Engine.CompleteTask(env.Ctx, undated.ID, engine.CompleteOptions{Date: &date})
	if err != nil {
		t.Fatal(err)
	}
	if res.Completion.PointsEarned != 17 {
		t.Fatalf("undated points = %d, want 17", res.Completion.PointsEarned)
	}
}

func TestUncompleteTaskRestoresAggregate(t *testing.T) {
	env := newTestEnv(t)
	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{UserID: "alice", Title: "draft"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.CompleteTask(env.Ctx, task.ID, engine.CompleteOptions{}); err != nil {
		t.Fatal(err)
	}
	res, err := env.Engine.UncompleteTask(env.Ctx, task.ID)
	if err != nil {
		t.Fatalf("uncomplete: %v", err)
	}
	if res.Task.Status != "pending" || res.Task.CompletedAt != nil {
		t.Fatalf("task not reopened: %+v", res.Task)
	}
	if res.Progress.TotalPoints != 0 || res.Progress.CurrentStreak != 0 {
		t.Fatalf("aggregate not restored: %+v", res.Progress)
	}
	// reopening a pending task is a no-op, not an error
	if _, err := env.Engine.UncompleteTask(env.Ctx, task.ID); err != nil {
		t.Fatalf("noop uncomplete: %v", err)
	}
}

func TestCompleteRecurringTaskInstance(t *testing.T) {
	env := newTestEnv(t)
	due := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		UserID: "alice", Title: "weekly review", Priority: 1,
		DueDate: &due, IsRecurring: true, Pattern: "weekly",
	})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	at := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	res, err := env.Engine.CompleteRecurringTask(env.Ctx, task.ID, at)
	if err != nil {
		t.Fatalf("complete instance: %v", err)
	}
	if len(res.Task.CompletedInstanceDates) != 1 || res.Task.CompletedInstanceDates[0] != "2024-01-10" {
		t.Fatalf("instance dates = %v", res.Task.CompletedInstanceDates)
	}
	if res.Task.NextDueDate == nil || *res.Task.NextDueDate != "2024-01-17T00:00:00Z" {
		t.Fatalf("next due = %v", res.Task.NextDueDate)
	}
	// scored for the task's own history, excluded from the cross total
	if res.Completion.PointsEarned != 20 || !res.Completion.IsRecurringInstance {
		t.Fatalf("completion = %+v", res.Completion)
	}
	if res.Progress.TotalPoints != 0 {
		t.Fatalf("instance leaked into total: %d", res.Progress.TotalPoints)
	}
	// but it still counts toward tasks-completed thresholds
	if len(res.NewAchievements) == 0 || res.NewAchievements[0].ID != "first-step" {
		t.Fatalf("unlocks = %+v", res.NewAchievements)
	}

	// same day again: unchanged, nothing written
	res, err = env.Engine.CompleteRecurringTask(env.Ctx, task.ID, at.Add(time.Hour))
	if err != nil {
		t.Fatalf("repeat complete: %v", err)
	}
	if len(res.Task.CompletedInstanceDates) != 1 {
		t.Fatalf("duplicate day recorded: %v", res.Task.CompletedInstanceDates)
	}

	// plain completion path refuses recurring tasks
	if _, err := env.Engine.CompleteTask(env.Ctx, task.ID, engine.CompleteOptions{}); !errors.Is(err, engine.ErrInvalidOperation) {
		t.Fatalf("plain complete on recurring: %v", err)
	}
}

func TestUncompleteRecurringTaskInstance(t *testing.T) {
	env := newTestEnv(t)
	due := time.Date(2024, 1, 9, 0, 0, 0, 0, time.UTC)
	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		UserID: "alice", Title: "standup", Priority: 1,
		DueDate: &due, IsRecurring: true, Pattern: "daily",
	})
	if err != nil {
		t.Fatal(err)
	}
	for d := 9; d <= 10; d++ {
		at := time.Date(2024, 1, d, 9, 0, 0, 0, time.UTC)
		if _, err := env.Engine.CompleteRecurringTask(env.Ctx, task.ID, at); err != nil {
			t.Fatalf("complete day %d: %v", d, err)
		}
	}
	current, err := env.Engine.Repo.GetTask(env.Ctx, task.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got := env.Engine.RecurringTaskStreak(current); got != 2 {
		t.Fatalf("streak = %d, want 2", got)
	}

	res, err := env.Engine.UncompleteRecurringTask(env.Ctx, task.ID, day(t, "2024-01-10"))
	if err != nil {
		t.Fatalf("uncomplete instance: %v", err)
	}
	if len(res.Task.CompletedInstanceDates) != 1 {
		t.Fatalf("instance dates = %v", res.Task.CompletedInstanceDates)
	}
	if res.Task.NextDueDate == nil || *res.Task.NextDueDate != "2024-01-10T00:00:00Z" {
		t.Fatalf("next due = %v", res.Task.NextDueDate)
	}
}

func TestSweepRecurringInstances(t *testing.T) {
	env := newTestEnv(t)
	due := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		UserID: "alice", Title: "water plants", Priority: 1,
		DueDate: &due, IsRecurring: true, Pattern: "daily",
	})
	if err != nil {
		t.Fatal(err)
	}
	now := time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)
	instances, err := env.Engine.SweepRecurringInstances(env.Ctx, now)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if len(instances) != 1 {
		t.Fatalf("instances = %d, want 1", len(instances))
	}
	inst := instances[0]
	if inst.OriginalTaskID == nil || *inst.OriginalTaskID != task.ID {
		t.Fatalf("instance root = %v", inst.OriginalTaskID)
	}
	if inst.Status != "pending" || inst.DueDate == nil || *inst.DueDate != "2024-01-10T00:00:00Z" {
		t.Fatalf("instance = %+v", inst)
	}

	// a second sweep at the same time generates nothing
	instances, err = env.Engine.SweepRecurringInstances(env.Ctx, now)
	if err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	if len(instances) != 0 {
		t.Fatalf("duplicate instances: %d", len(instances))
	}

	// a day later only the advanced source is due again; the generated
	// instance never re-enters the sweep
	instances, err = env.Engine.SweepRecurringInstances(env.Ctx, now.AddDate(0, 0, 1))
	if err != nil {
		t.Fatalf("third sweep: %v", err)
	}
	if len(instances) != 1 {
		t.Fatalf("next period instances = %d, want 1", len(instances))
	}
}

func TestLevelUpAndEvents(t *testing.T) {
	env := newTestEnv(t)
	// three undated priority-5 tasks: 37 points each, crossing 100
	for i := 0; i < 3; i++ {
		task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
			UserID: "alice", Title: "big one", Priority: 5,
		})
		if err != nil {
			t.Fatal(err)
		}
		res, err := env.Engine.CompleteTask(env.Ctx, task.ID, engine.CompleteOptions{})
		if err != nil {
			t.Fatal(err)
		}
		if i == 2 {
			if res.Progress.TotalPoints != 111 || res.Progress.Level != 2 {
				t.Fatalf("progress = %+v", res.Progress)
			}
			// crossing 100 also unlocks the points achievement
			found := false
			for _, a := range res.NewAchievements {
				if a.ID == "getting-warm" {
					found = true
				}
			}
			if !found {
				t.Fatalf("unlocks = %+v", res.NewAchievements)
			}
		}
	}
	events, err := env.Engine.Repo.ListEvents(env.Ctx, "alice", 0, 100)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	var levelUps int
	for _, ev := range events {
		if ev.Type == "level.up" {
			levelUps++
		}
	}
	if levelUps != 1 {
		t.Fatalf("level.up events = %d, want 1", levelUps)
	}
}

func TestProgressSnapshotSurfacesUnlocksOnce(t *testing.T) {
	env := newTestEnv(t)
	id := mustCreateHabit(t, env)
	if _, err := env.Engine.CompleteHabit(env.Ctx, id, engine.CompleteOptions{}); err != nil {
		t.Fatal(err)
	}
	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{UserID: "alice", Title: "t"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.CompleteTask(env.Ctx, task.ID, engine.CompleteOptions{}); err != nil {
		t.Fatal(err)
	}

	snap, err := env.Engine.ProgressSnapshot(env.Ctx, "alice")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(snap.NewAchievements) != 1 || snap.NewAchievements[0].ID != "first-step" {
		t.Fatalf("new achievements = %+v", snap.NewAchievements)
	}
	if snap.LevelProgress.PointsToNext == 0 {
		t.Fatalf("level progress = %+v", snap.LevelProgress)
	}

	snap, err = env.Engine.ProgressSnapshot(env.Ctx, "alice")
	if err != nil {
		t.Fatalf("second snapshot: %v", err)
	}
	if len(snap.NewAchievements) != 0 {
		t.Fatalf("unlocks surfaced twice: %+v", snap.NewAchievements)
	}
}

func TestDeleteHabitDropsItsPoints(t *testing.T) {
	env := newTestEnv(t)
	id := mustCreateHabit(t, env)
	if _, err := env.Engine.CompleteHabit(env.Ctx, id, engine.CompleteOptions{}); err != nil {
		t.Fatal(err)
	}
	if err := env.Engine.DeleteHabit(env.Ctx, id); err != nil {
		t.Fatalf("delete: %v", err)
	}
	p, err := env.Engine.Repo.GetUserProgress(env.Ctx, "alice")
	if err != nil {
		t.Fatalf("progress: %v", err)
	}
	if p.TotalPoints != 0 {
		t.Fatalf("total = %d, want 0", p.TotalPoints)
	}
	// best streak survives the deletion
	if p.BestStreak != 1 {
		t.Fatalf("best = %d, want 1", p.BestStreak)
	}
	if err := env.Engine.DeleteHabit(env.Ctx, id); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("double delete: %v", err)
	}
}

func TestLeaderboard(t *testing.T) {
	env := newTestEnv(t)
	if _, _, err := app.ResolveUserAndConfig(env.Ctx, "bob", env.Engine.Repo); err != nil {
		t.Fatalf("resolve bob: %v", err)
	}
	aliceHabit := mustCreateHabit(t, env)
	if _, err := env.Engine.CompleteHabit(env.Ctx, aliceHabit, engine.CompleteOptions{}); err != nil {
		t.Fatal(err)
	}
	bobHabit, err := env.Engine.CreateHabit(env.Ctx, engine.HabitCreateOptions{
		UserID: "bob", Name: "lift", Difficulty: "hard",
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.CompleteHabit(env.Ctx, bobHabit.ID, engine.CompleteOptions{}); err != nil {
		t.Fatal(err)
	}

	entries, err := env.Engine.Leaderboard(env.Ctx, 10)
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	if entries[0].UserID != "bob" || entries[0].Rank != 1 || entries[0].TotalPoints != 20 {
		t.Fatalf("first = %+v", entries[0])
	}
	if entries[1].UserID != "alice" || entries[1].Rank != 2 {
		t.Fatalf("second = %+v", entries[1])
	}
}

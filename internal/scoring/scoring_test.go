package scoring

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"betterme/internal/domain"
)

func TestTaskPoints(t *testing.T) {
	table := DefaultTable()
	due := time.Date(2024, time.April, 10, 0, 0, 0, 0, time.UTC)

	// On time: base + priority weight + on-time bonus.
	got := table.TaskPoints(2, &due, due.Add(-time.Hour))
	assert.Equal(t, 10+5*2+5, got)

	// Completing exactly at the due instant still counts as on time.
	assert.Equal(t, 10+5, table.TaskPoints(0, &due, due))

	// Overdue: no timeliness bonus.
	assert.Equal(t, 10+5*3, table.TaskPoints(3, &due, due.Add(time.Hour)))

	// Undated tasks earn the smaller flat bonus.
	assert.Equal(t, 10+5+2, table.TaskPoints(1, nil, due))
}

func TestTaskPointsNeverNegative(t *testing.T) {
	table := DefaultTable()
	table.TaskBase = 0
	table.PriorityWeight = -20
	assert.Equal(t, 0, table.TaskPoints(5, nil, time.Now()))
}

func TestHabitPoints(t *testing.T) {
	table := DefaultTable()

	// Below the bonus window: base times multiplier only.
	assert.Equal(t, 10, table.HabitPoints(10, 6, domain.DifficultyEasy))
	assert.Equal(t, 15, table.HabitPoints(10, 3, domain.DifficultyMedium))
	assert.Equal(t, 20, table.HabitPoints(10, 1, domain.DifficultyHard))

	// One full window: 10% bonus of base before the multiplier.
	assert.Equal(t, 11, table.HabitPoints(10, 7, domain.DifficultyEasy))
	assert.Equal(t, 22, table.HabitPoints(10, 7, domain.DifficultyHard))

	// Two windows at day 14.
	assert.Equal(t, 12, table.HabitPoints(10, 14, domain.DifficultyEasy))
	assert.Equal(t, 18, table.HabitPoints(10, 14, domain.DifficultyMedium))

	// Day 13 is still inside the first window.
	assert.Equal(t, 11, table.HabitPoints(10, 13, domain.DifficultyEasy))

	// Unknown difficulty falls back to a neutral multiplier.
	assert.Equal(t, 10, table.HabitPoints(10, 1, domain.Difficulty("heroic")))
}

func TestLevelForPoints(t *testing.T) {
	table := DefaultTable()

	assert.Equal(t, 1, table.LevelForPoints(0))
	assert.Equal(t, 1, table.LevelForPoints(99))
	assert.Equal(t, 2, table.LevelForPoints(100))
	assert.Equal(t, 3, table.LevelForPoints(300))
	assert.Equal(t, 10, table.LevelForPoints(5499))
	assert.Equal(t, 11, table.LevelForPoints(5500))
	assert.Equal(t, 11, table.LevelForPoints(1_000_000))
}

func TestProgressToNextLevel(t *testing.T) {
	table := DefaultTable()

	lp := table.ProgressToNextLevel(1, 0)
	assert.Equal(t, LevelProgress{PointsToNext: 100, Percent: 0}, lp)

	lp = table.ProgressToNextLevel(1, 25)
	assert.Equal(t, LevelProgress{PointsToNext: 75, Percent: 25}, lp)

	// Level 2 spans 100..300; 150 points is a quarter of the way.
	lp = table.ProgressToNextLevel(2, 150)
	assert.Equal(t, LevelProgress{PointsToNext: 150, Percent: 25}, lp)

	// Percent is rounded to one decimal.
	lp = table.ProgressToNextLevel(1, 33)
	assert.Equal(t, LevelProgress{PointsToNext: 67, Percent: 33}, lp)
	lp = table.ProgressToNextLevel(2, 101)
	assert.Equal(t, LevelProgress{PointsToNext: 199, Percent: 0.5}, lp)

	// Beyond the ladder there is nothing left to earn.
	lp = table.ProgressToNextLevel(11, 6000)
	assert.Equal(t, LevelProgress{PointsToNext: 0, Percent: 100}, lp)
}

func intPtr(n int) *int { return &n }

func TestEvaluate(t *testing.T) {
	catalog := []domain.Achievement{
		{ID: "first-100", PointsRequired: intPtr(100)},
		{ID: "week-streak", StreakRequired: intPtr(7)},
		{ID: "either", PointsRequired: intPtr(1000), TasksCompletedRequired: intPtr(5)},
		{ID: "no-thresholds"},
	}

	s := Stats{Points: 120, Streak: 3, Level: 2, TasksCompleted: 5}
	earned := Evaluate(catalog, map[string]bool{}, s)

	ids := make([]string, 0, len(earned))
	for _, a := range earned {
		ids = append(ids, a.ID)
	}
	// "either" unlocks through its task criterion alone; empty criteria never do.
	assert.Equal(t, []string{"first-100", "either"}, ids)

	// Already-unlocked entries are skipped.
	earned = Evaluate(catalog, map[string]bool{"first-100": true, "either": true}, s)
	assert.Empty(t, earned)
}

func TestRank(t *testing.T) {
	entries := []domain.LeaderboardEntry{
		{UserID: "a", TotalPoints: 50},
		{UserID: "b", TotalPoints: 200},
		{UserID: "c", TotalPoints: 50},
		{UserID: "d", TotalPoints: 120},
	}

	ranked := Rank(entries, 0)
	assert.Len(t, ranked, 4)
	assert.Equal(t, "b", ranked[0].UserID)
	assert.Equal(t, 1, ranked[0].Rank)
	assert.Equal(t, "d", ranked[1].UserID)
	// Ties keep their input order.
	assert.Equal(t, "a", ranked[2].UserID)
	assert.Equal(t, "c", ranked[3].UserID)
	assert.Equal(t, 4, ranked[3].Rank)

	top2 := Rank(entries, 2)
	assert.Len(t, top2, 2)
	assert.Equal(t, "d", top2[1].UserID)

	// Input is not mutated.
	assert.Equal(t, "a", entries[0].UserID)
	assert.Equal(t, 0, entries[0].Rank)
}

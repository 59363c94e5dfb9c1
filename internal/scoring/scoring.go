// Package scoring converts completion history into points, levels,
// achievements and leaderboard ranks.
package scoring

import (
	"math"
	"sort"
	"time"

	"betterme/internal/domain"
)

// Table holds the scoring constants. Users carry their own copy inside
// their config document, so the numbers are tunable without code changes.
type Table struct {
	TaskBase         int                           `json:"task_base" yaml:"task_base"`
	PriorityWeight   int                           `json:"priority_weight" yaml:"priority_weight"`
	OnTimeBonus      int                           `json:"on_time_bonus" yaml:"on_time_bonus"`
	UndatedBonus     int                           `json:"undated_bonus" yaml:"undated_bonus"`
	StreakBonusEvery int                           `json:"streak_bonus_every" yaml:"streak_bonus_every"`
	StreakBonusRate  float64                       `json:"streak_bonus_rate" yaml:"streak_bonus_rate"`
	Multipliers      map[domain.Difficulty]float64 `json:"multipliers" yaml:"multipliers"`
	Levels           []int                         `json:"levels" yaml:"levels"`
}

// DefaultTable returns the stock scoring constants.
func DefaultTable() Table {
	return Table{
		TaskBase:         10,
		PriorityWeight:   5,
		OnTimeBonus:      5,
		UndatedBonus:     2,
		StreakBonusEvery: 7,
		StreakBonusRate:  0.1,
		Multipliers: map[domain.Difficulty]float64{
			domain.DifficultyEasy:   1,
			domain.DifficultyMedium: 1.5,
			domain.DifficultyHard:   2,
		},
		Levels: []int{100, 300, 600, 1000, 1500, 2100, 2800, 3600, 4500, 5500},
	}
}

// TaskPoints scores a plain task completion: base plus priority weight plus
// a timeliness bonus. Closing an undated task earns a small bonus; overdue
// earns none.
func (t Table) TaskPoints(priority int, dueDate *time.Time, completedAt time.Time) int {
	pts := t.TaskBase + t.PriorityWeight*priority
	switch {
	case dueDate == nil:
		pts += t.UndatedBonus
	case !completedAt.After(*dueDate):
		pts += t.OnTimeBonus
	}
	if pts < 0 {
		return 0
	}
	return pts
}

// HabitPoints scores a habit completion: the habit's configured base reward,
// a streak bonus once the streak reaches a full bonus window, then the
// difficulty multiplier.
func (t Table) HabitPoints(base, streakLen int, d domain.Difficulty) int {
	subtotal := float64(base)
	if t.StreakBonusEvery > 0 && streakLen >= t.StreakBonusEvery {
		bonus := float64(streakLen/t.StreakBonusEvery) * t.StreakBonusRate * float64(base)
		subtotal += math.Round(bonus)
	}
	mult, ok := t.Multipliers[d]
	if !ok {
		mult = 1
	}
	pts := int(math.Round(subtotal * mult))
	if pts < 0 {
		return 0
	}
	return pts
}

// LevelForPoints maps a point total onto the threshold ladder: the smallest
// level whose threshold the total has not yet reached. Monotonic in points.
func (t Table) LevelForPoints(points int) int {
	for i, threshold := range t.Levels {
		if points < threshold {
			return i + 1
		}
	}
	return len(t.Levels) + 1
}

// LevelProgress describes how far into the current level a point total sits.
type LevelProgress struct {
	PointsToNext int     `json:"points_to_next"`
	Percent      float64 `json:"percent"`
}

// ProgressToNextLevel computes remaining points and percent progress within
// the given level. Percent is rounded to one decimal. Past the top of the
// ladder there is nothing left to earn.
func (t Table) ProgressToNextLevel(level, points int) LevelProgress {
	if level > len(t.Levels) {
		return LevelProgress{PointsToNext: 0, Percent: 100}
	}
	next := t.Levels[level-1]
	current := 0
	if level > 1 {
		current = t.Levels[level-2]
	}
	if points >= next {
		return LevelProgress{PointsToNext: 0, Percent: 100}
	}
	pct := float64(points-current) / float64(next-current) * 100
	return LevelProgress{
		PointsToNext: next - points,
		Percent:      math.Round(pct*10) / 10,
	}
}

// Stats is the immutable snapshot achievement predicates evaluate against.
type Stats struct {
	Points         int
	Streak         int
	Level          int
	TasksCompleted int
}

// Predicate is one unlock criterion over a stats snapshot.
type Predicate func(Stats) bool

// Predicates expands an achievement's nullable thresholds into criteria.
// Unset thresholds contribute nothing; criteria are OR'd.
func Predicates(a domain.Achievement) []Predicate {
	var preds []Predicate
	if a.PointsRequired != nil {
		n := *a.PointsRequired
		preds = append(preds, func(s Stats) bool { return s.Points >= n })
	}
	if a.StreakRequired != nil {
		n := *a.StreakRequired
		preds = append(preds, func(s Stats) bool { return s.Streak >= n })
	}
	if a.LevelRequired != nil {
		n := *a.LevelRequired
		preds = append(preds, func(s Stats) bool { return s.Level >= n })
	}
	if a.TasksCompletedRequired != nil {
		n := *a.TasksCompletedRequired
		preds = append(preds, func(s Stats) bool { return s.TasksCompleted >= n })
	}
	return preds
}

// Evaluate returns the catalog entries newly earned by the snapshot,
// skipping anything already unlocked. An achievement with no thresholds at
// all never unlocks.
func Evaluate(catalog []domain.Achievement, unlocked map[string]bool, s Stats) []domain.Achievement {
	var earned []domain.Achievement
	for _, a := range catalog {
		if unlocked[a.ID] {
			continue
		}
		for _, pred := range Predicates(a) {
			if pred(s) {
				earned = append(earned, a)
				break
			}
		}
	}
	return earned
}

// Rank orders entries by total points descending and assigns 1-based ranks
// by position. The sort is stable so ties keep their input order.
func Rank(entries []domain.LeaderboardEntry, limit int) []domain.LeaderboardEntry {
	ranked := make([]domain.LeaderboardEntry, len(entries))
	copy(ranked, entries)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].TotalPoints > ranked[j].TotalPoints
	})
	if limit > 0 && limit < len(ranked) {
		ranked = ranked[:limit]
	}
	for i := range ranked {
		ranked[i].Rank = i + 1
	}
	return ranked
}

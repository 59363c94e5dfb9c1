package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"betterme/internal/config"
	"betterme/internal/domain"
	"betterme/internal/events"
	"betterme/internal/period"
	"betterme/internal/repo"
	"betterme/internal/scoring"
	"betterme/internal/streak"
)

// recomputeProgress rebuilds the user's aggregate row from the completion
// ledger inside the caller's transaction. Totals and streaks are always
// derived from scratch; best streak only ever moves up.
func (e Engine) recomputeProgress(ctx context.Context, tx *sql.Tx, userID string, cfg *config.Config) (domain.UserProgress, scoring.Stats, error) {
	var zero domain.UserProgress
	var stats scoring.Stats

	total, err := e.Repo.SumPoints(ctx, tx, userID)
	if err != nil {
		return zero, stats, err
	}
	if total < 0 {
		total = 0
	}
	days, err := e.Repo.CompletionDays(ctx, tx, userID)
	if err != nil {
		return zero, stats, err
	}
	current, longest := streak.Recalculate(days)

	prev, err := e.Repo.GetUserProgressTx(ctx, tx, userID)
	if err != nil && !errors.Is(err, repo.ErrNotFound) {
		return zero, stats, err
	}
	best := longest
	if prev.BestStreak > best {
		best = prev.BestStreak
	}
	if best < current {
		return zero, stats, fmt.Errorf("%w: best streak %d below current %d for user %s", ErrInvariant, best, current, userID)
	}

	level := cfg.Scoring.LevelForPoints(total)
	var last *string
	if n := len(days); n > 0 {
		sorted := streak.Distinct(days)
		d := period.Day(sorted[len(sorted)-1])
		last = &d
	}

	p := domain.UserProgress{
		UserID:             userID,
		TotalPoints:        total,
		Level:              level,
		CurrentStreak:      current,
		BestStreak:         best,
		LastCompletionDate: last,
		UpdatedAt:          e.now().UTC().Format(time.RFC3339),
	}
	if err := e.Repo.UpsertUserProgress(ctx, tx, p); err != nil {
		return zero, stats, err
	}
	if prev.Level > 0 && level > prev.Level {
		err := e.Events.Append(ctx, tx, "level.up", userID, "user", userID, events.EventPayload{
			"from": prev.Level, "to": level, "total_points": total,
		})
		if err != nil {
			return zero, stats, err
		}
	}

	tasksDone, err := e.Repo.CountTaskCompletions(ctx, tx, userID)
	if err != nil {
		return zero, stats, err
	}
	stats = scoring.Stats{
		Points:         total,
		Streak:         current,
		Level:          level,
		TasksCompleted: tasksDone,
	}
	return p, stats, nil
}

// unlockAchievements grants every catalog entry whose thresholds the stats
// now satisfy. Grants are insert-or-ignore so an unlock is never revoked or
// duplicated even if stats later dip below the threshold.
func (e Engine) unlockAchievements(ctx context.Context, tx *sql.Tx, userID string, catalog []domain.Achievement, stats scoring.Stats) ([]domain.Achievement, error) {
	held, err := e.Repo.UnlockedAchievementIDs(ctx, tx, userID)
	if err != nil {
		return nil, err
	}
	earned := scoring.Evaluate(catalog, held, stats)
	for _, a := range earned {
		ua := domain.UserAchievement{
			UserID:        userID,
			AchievementID: a.ID,
			UnlockedAt:    e.now().UTC().Format(time.RFC3339),
			IsNew:         true,
		}
		if err := e.Repo.InsertUserAchievement(ctx, tx, ua); err != nil {
			return nil, err
		}
		err := e.Events.Append(ctx, tx, "achievement.unlocked", userID, "achievement", a.ID, events.EventPayload{
			"name": a.Name,
		})
		if err != nil {
			return nil, err
		}
	}
	return earned, nil
}

// progressOrZero reads the aggregate row, treating a missing row as a fresh
// level-one account rather than an error.
func (e Engine) progressOrZero(ctx context.Context, userID string) (domain.UserProgress, error) {
	p, err := e.Repo.GetUserProgress(ctx, userID)
	if errors.Is(err, repo.ErrNotFound) {
		cfg := e.userConfig(ctx, userID)
		return domain.UserProgress{
			UserID:    userID,
			Level:     cfg.Scoring.LevelForPoints(0),
			UpdatedAt: e.now().UTC().Format(time.RFC3339),
		}, nil
	}
	return p, err
}

// Snapshot is the read-only progress summary served to clients. Fresh
// achievement unlocks are included once and marked seen by the read.
type Snapshot struct {
	Progress        domain.UserProgress   `json:"progress"`
	LevelProgress   scoring.LevelProgress `json:"level_progress"`
	NewAchievements []domain.Achievement  `json:"new_achievements,omitempty"`
}

func (e Engine) ProgressSnapshot(ctx context.Context, userID string) (Snapshot, error) {
	p, err := e.progressOrZero(ctx, userID)
	if err != nil {
		return Snapshot{}, err
	}
	cfg := e.userConfig(ctx, userID)
	snap := Snapshot{
		Progress:      p,
		LevelProgress: cfg.Scoring.ProgressToNextLevel(p.Level, p.TotalPoints),
	}

	held, err := e.Repo.ListUserAchievements(ctx, userID)
	if err != nil {
		return Snapshot{}, err
	}
	fresh := map[string]bool{}
	for _, ua := range held {
		if ua.IsNew {
			fresh[ua.AchievementID] = true
		}
	}
	if len(fresh) > 0 {
		catalog, err := e.Repo.ListAchievements(ctx)
		if err != nil {
			return Snapshot{}, err
		}
		for _, a := range catalog {
			if fresh[a.ID] {
				snap.NewAchievements = append(snap.NewAchievements, a)
			}
		}
		if err := e.Repo.MarkAchievementsSeen(ctx, userID); err != nil {
			return Snapshot{}, err
		}
	}
	return snap, nil
}

// Leaderboard ranks every known user by total points. Ties share order of
// account creation so ranks are stable between reads.
func (e Engine) Leaderboard(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error) {
	entries, err := e.Repo.ListProgress(ctx)
	if err != nil {
		return nil, err
	}
	return scoring.Rank(entries, limit), nil
}

package server

import (
	"fmt"
	"time"

	"betterme/internal/domain"
	"betterme/internal/engine"
	"betterme/internal/period"
	"betterme/internal/scoring"
)

// Request payloads

type CreateHabitRequest struct {
	Name        string  `json:"name"`
	Description *string `json:"description,omitempty"`
	Frequency   string  `json:"frequency,omitempty" enum:"daily,weekly,monthly"`
	Difficulty  string  `json:"difficulty,omitempty" enum:"easy,medium,hard"`
	Points      *int    `json:"points,omitempty"`
	TargetCount *int    `json:"target_count,omitempty"`
}

type CreateTaskRequest struct {
	Title       string  `json:"title"`
	Description *string `json:"description,omitempty"`
	Priority    *int    `json:"priority,omitempty" minimum:"1" maximum:"5"`
	Category    *string `json:"category,omitempty"`
	DueDate     *string `json:"due_date,omitempty" format:"date-time"`
	IsRecurring bool    `json:"is_recurring,omitempty"`
	Pattern     *string `json:"pattern,omitempty" enum:"daily,weekly,monthly,yearly"`
	Interval    *int    `json:"interval,omitempty" minimum:"1"`
	EndDate     *string `json:"end_date,omitempty" format:"date-time"`
}

// CompleteRequest accepts either a full timestamp or a bare YYYY-MM-DD day.
type CompleteRequest struct {
	Date  *string `json:"date,omitempty"`
	Notes *string `json:"notes,omitempty"`
	Mood  *string `json:"mood,omitempty"`
}

type UncompleteRequest struct {
	Date *string `json:"date,omitempty"`
}

type CreateAPIKeyRequest struct {
	Name string `json:"name,omitempty"`
}

// Response payloads

type CompletionResponse struct {
	Habit           *domain.Habit        `json:"habit,omitempty"`
	Task            *domain.Task         `json:"task,omitempty"`
	Completion      domain.Completion    `json:"completion"`
	Progress        domain.UserProgress  `json:"progress"`
	NewAchievements []domain.Achievement `json:"new_achievements,omitempty"`
}

type ProgressResponse struct {
	Progress        domain.UserProgress   `json:"progress"`
	LevelProgress   scoring.LevelProgress `json:"level_progress"`
	NewAchievements []domain.Achievement  `json:"new_achievements,omitempty"`
}

type AchievementStatusResponse struct {
	Achievement domain.Achievement `json:"achievement"`
	Unlocked    bool               `json:"unlocked"`
	UnlockedAt  string             `json:"unlocked_at,omitempty" format:"date-time"`
}

type SweepResponse struct {
	Generated []domain.Task `json:"generated"`
}

type APIKeyResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name,omitempty"`
	Key       string `json:"key,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

func completionResponse(res engine.CompletionResult) CompletionResponse {
	return CompletionResponse{
		Habit:           res.Habit,
		Task:            res.Task,
		Completion:      res.Completion,
		Progress:        res.Progress,
		NewAchievements: res.NewAchievements,
	}
}

func progressResponse(s engine.Snapshot) ProgressResponse {
	return ProgressResponse{
		Progress:        s.Progress,
		LevelProgress:   s.LevelProgress,
		NewAchievements: s.NewAchievements,
	}
}

// parseWhen accepts an RFC3339 timestamp or a bare day string.
func parseWhen(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	if t, err := period.ParseDay(s); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("invalid date %q: want RFC3339 or YYYY-MM-DD", s)
}

func stringOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

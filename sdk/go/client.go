package bettermesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal BetterMe HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Habit represents the API habit model (partial).
type Habit struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Frequency  string `json:"frequency"`
	Difficulty string `json:"difficulty"`
	Streak     int    `json:"streak"`
	BestStreak int    `json:"best_streak"`
}

// Task represents the API task model (partial).
type Task struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Status      string  `json:"status"`
	Priority    int     `json:"priority"`
	IsRecurring bool    `json:"is_recurring"`
	Pattern     string  `json:"pattern"`
	NextDueDate *string `json:"next_due_date,omitempty"`
}

// Progress is the per-user scoring aggregate.
type Progress struct {
	UserID        string `json:"user_id"`
	TotalPoints   int    `json:"total_points"`
	Level         int    `json:"level"`
	CurrentStreak int    `json:"current_streak"`
	BestStreak    int    `json:"best_streak"`
}

// Achievement is one catalog entry.
type Achievement struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Icon        string `json:"icon,omitempty"`
}

// CompletionResult is what completion endpoints return.
type CompletionResult struct {
	Habit           *Habit        `json:"habit,omitempty"`
	Task            *Task         `json:"task,omitempty"`
	Progress        Progress      `json:"progress"`
	NewAchievements []Achievement `json:"new_achievements,omitempty"`
}

// ProgressSnapshot wraps the progress endpoint response.
type ProgressSnapshot struct {
	Progress      Progress `json:"progress"`
	LevelProgress struct {
		PointsToNext int     `json:"points_to_next"`
		Percent      float64 `json:"percent"`
	} `json:"level_progress"`
	NewAchievements []Achievement `json:"new_achievements,omitempty"`
}

// LeaderboardEntry is one ranked row.
type LeaderboardEntry struct {
	Rank        int    `json:"rank"`
	UserID      string `json:"user_id"`
	Name        string `json:"name,omitempty"`
	TotalPoints int    `json:"total_points"`
	Level       int    `json:"level"`
}

// Event represents a log entry.
type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// CreateHabit creates a habit.
func (c *Client) CreateHabit(ctx context.Context, name, frequency, difficulty string) (Habit, error) {
	body := map[string]any{
		"name":       name,
		"frequency":  frequency,
		"difficulty": difficulty,
	}
	var resp Habit
	err := c.do(ctx, http.MethodPost, "v0/habits", body, &resp)
	return resp, err
}

// CompleteHabit records a habit completion. Pass an empty date for today.
func (c *Client) CompleteHabit(ctx context.Context, habitID, date string) (CompletionResult, error) {
	body := map[string]any{}
	if date != "" {
		body["date"] = date
	}
	var resp CompletionResult
	endpoint := fmt.Sprintf("v0/habits/%s/complete", url.PathEscape(habitID))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// CreateTask creates a one-shot task.
func (c *Client) CreateTask(ctx context.Context, title string, priority int) (Task, error) {
	body := map[string]any{
		"title":    title,
		"priority": priority,
	}
	var resp Task
	err := c.do(ctx, http.MethodPost, "v0/tasks", body, &resp)
	return resp, err
}

// CompleteTask completes a one-shot task.
func (c *Client) CompleteTask(ctx context.Context, taskID string) (CompletionResult, error) {
	var resp CompletionResult
	endpoint := fmt.Sprintf("v0/tasks/%s/complete", url.PathEscape(taskID))
	err := c.do(ctx, http.MethodPost, endpoint, map[string]any{}, &resp)
	return resp, err
}

// Sweep generates due recurring task instances.
func (c *Client) Sweep(ctx context.Context) ([]Task, error) {
	var resp struct {
		Generated []Task `json:"generated"`
	}
	err := c.do(ctx, http.MethodPost, "v0/tasks/sweep", map[string]any{}, &resp)
	return resp.Generated, err
}

// Progress fetches the progress snapshot.
func (c *Client) Progress(ctx context.Context) (ProgressSnapshot, error) {
	var resp ProgressSnapshot
	err := c.do(ctx, http.MethodGet, "v0/progress", nil, &resp)
	return resp, err
}

// Leaderboard fetches the ranked point totals.
func (c *Client) Leaderboard(ctx context.Context, limit int) ([]LeaderboardEntry, error) {
	endpoint := "v0/leaderboard"
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	var resp []LeaderboardEntry
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Events returns the event log after a given id.
func (c *Client) Events(ctx context.Context, afterID int64, limit int) ([]Event, error) {
	endpoint := fmt.Sprintf("v0/events?after_id=%d", afterID)
	if limit > 0 {
		endpoint = fmt.Sprintf("%s&limit=%d", endpoint, limit)
	}
	var resp []Event
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}

package domain

// Pattern is the recurrence pattern of a task. A closed set so the period
// calculator can dispatch with an exhaustive switch instead of matching
// free-form strings.
type Pattern string

const (
	PatternNone    Pattern = "none"
	PatternDaily   Pattern = "daily"
	PatternWeekly  Pattern = "weekly"
	PatternMonthly Pattern = "monthly"
	PatternYearly  Pattern = "yearly"
)

func ParsePattern(s string) (Pattern, bool) {
	switch Pattern(s) {
	case PatternNone, PatternDaily, PatternWeekly, PatternMonthly, PatternYearly:
		return Pattern(s), true
	}
	return PatternNone, false
}

// Frequency is the habit cadence against which "due" and period counts are
// evaluated.
type Frequency string

const (
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
)

func ParseFrequency(s string) (Frequency, bool) {
	switch Frequency(s) {
	case FrequencyDaily, FrequencyWeekly, FrequencyMonthly:
		return Frequency(s), true
	}
	return "", false
}

type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

func ParseDifficulty(s string) (Difficulty, bool) {
	switch Difficulty(s) {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return Difficulty(s), true
	}
	return "", false
}

type User struct {
	ID        string `json:"id"`
	Name      string `json:"name,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

// Task carries its recurrence rule inline. CompletedInstanceDates holds
// calendar-day-normalized YYYY-MM-DD strings, unique per day.
type Task struct {
	ID                     string   `json:"id"`
	UserID                 string   `json:"user_id"`
	Title                  string   `json:"title"`
	Description            string   `json:"description,omitempty"`
	Priority               int      `json:"priority"`
	Category               string   `json:"category,omitempty"`
	Status                 string   `json:"status" enum:"pending,completed"`
	DueDate                *string  `json:"due_date,omitempty" format:"date-time"`
	CompletedAt            *string  `json:"completed_at,omitempty" format:"date-time"`
	IsRecurring            bool     `json:"is_recurring"`
	Pattern                Pattern  `json:"pattern" enum:"none,daily,weekly,monthly,yearly"`
	Interval               int      `json:"interval,omitempty"`
	EndDate                *string  `json:"end_date,omitempty" format:"date-time"`
	NextDueDate            *string  `json:"next_due_date,omitempty" format:"date-time"`
	OriginalTaskID         *string  `json:"original_task_id,omitempty"`
	CompletedInstanceDates []string `json:"completed_instance_dates,omitempty"`
	CreatedAt              string   `json:"created_at" format:"date-time"`
	UpdatedAt              string   `json:"updated_at" format:"date-time"`
}

// RootID resolves the root of an instance chain; generated instances carry
// the id of the original template task.
func (t Task) RootID() string {
	if t.OriginalTaskID != nil && *t.OriginalTaskID != "" {
		return *t.OriginalTaskID
	}
	return t.ID
}

type Habit struct {
	ID             string     `json:"id"`
	UserID         string     `json:"user_id"`
	Name           string     `json:"name"`
	Description    string     `json:"description,omitempty"`
	Frequency      Frequency  `json:"frequency" enum:"daily,weekly,monthly"`
	Difficulty     Difficulty `json:"difficulty" enum:"easy,medium,hard"`
	Points         int        `json:"points"`
	TargetCount    int        `json:"target_count"`
	Streak         int        `json:"streak"`
	BestStreak     int        `json:"best_streak"`
	CompletedDates []string   `json:"completed_dates,omitempty"`
	CreatedAt      string     `json:"created_at" format:"date-time"`
	UpdatedAt      string     `json:"updated_at" format:"date-time"`
}

// Completion is one recorded completion event. Hard-deleted on retraction.
type Completion struct {
	ID                  string `json:"id"`
	UserID              string `json:"user_id"`
	EntityKind          string `json:"entity_kind" enum:"habit,task"`
	EntityID            string `json:"entity_id"`
	Day                 string `json:"day"`
	CompletedAt         string `json:"completed_at" format:"date-time"`
	PointsEarned        int    `json:"points_earned"`
	IsRecurringInstance bool   `json:"is_recurring_instance,omitempty"`
	Notes               string `json:"notes,omitempty"`
	Mood                string `json:"mood,omitempty"`
}

// UserProgress is the per-user scoring aggregate. It is always recomputed
// from the completion history, never incrementally patched.
type UserProgress struct {
	UserID             string  `json:"user_id"`
	TotalPoints        int     `json:"total_points"`
	Level              int     `json:"level"`
	CurrentStreak      int     `json:"current_streak"`
	BestStreak         int     `json:"best_streak"`
	LastCompletionDate *string `json:"last_completion_date,omitempty"`
	UpdatedAt          string  `json:"updated_at" format:"date-time"`
}

// Achievement is one catalog entry. Thresholds are independent and OR'd;
// a nil threshold is skipped.
type Achievement struct {
	ID                     string `json:"id"`
	Name                   string `json:"name"`
	Description            string `json:"description,omitempty"`
	Icon                   string `json:"icon,omitempty"`
	PointsRequired         *int   `json:"points_required,omitempty"`
	StreakRequired         *int   `json:"streak_required,omitempty"`
	LevelRequired          *int   `json:"level_required,omitempty"`
	TasksCompletedRequired *int   `json:"tasks_completed_required,omitempty"`
}

// UserAchievement records a one-time unlock; never revoked.
type UserAchievement struct {
	UserID        string `json:"user_id"`
	AchievementID string `json:"achievement_id"`
	UnlockedAt    string `json:"unlocked_at" format:"date-time"`
	IsNew         bool   `json:"is_new"`
}

type LeaderboardEntry struct {
	Rank        int    `json:"rank"`
	UserID      string `json:"user_id"`
	Name        string `json:"name,omitempty"`
	TotalPoints int    `json:"total_points"`
	Level       int    `json:"level"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	UserID     string `json:"user_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	Payload    string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

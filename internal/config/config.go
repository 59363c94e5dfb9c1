package config

import (
	"bytes"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"betterme/internal/domain"
	"betterme/internal/scoring"
)

// Config models betterme.yml. Each user's copy is stored in the database
// and imported or exported explicitly.
type Config struct {
	User struct {
		ID   string `yaml:"id" json:"id"`
		Name string `yaml:"name" json:"name,omitempty"`
	} `yaml:"user" json:"user"`
	WeekStart    string            `yaml:"week_start" json:"week_start,omitempty"`
	Scoring      scoring.Table     `yaml:"scoring" json:"scoring"`
	Achievements []AchievementSeed `yaml:"achievements" json:"achievements,omitempty"`
	Webhooks     []WebhookConfig   `yaml:"webhooks" json:"webhooks,omitempty"`
}

// AchievementSeed is one catalog entry as configured. At least one threshold
// must be set; thresholds are OR'd at evaluation time.
type AchievementSeed struct {
	ID             string `yaml:"id" json:"id"`
	Name           string `yaml:"name" json:"name"`
	Description    string `yaml:"description" json:"description,omitempty"`
	Icon           string `yaml:"icon" json:"icon,omitempty"`
	Points         *int   `yaml:"points,omitempty" json:"points,omitempty"`
	Streak         *int   `yaml:"streak,omitempty" json:"streak,omitempty"`
	Level          *int   `yaml:"level,omitempty" json:"level,omitempty"`
	TasksCompleted *int   `yaml:"tasks_completed,omitempty" json:"tasks_completed,omitempty"`
}

func (s AchievementSeed) Achievement() domain.Achievement {
	return domain.Achievement{
		ID:                     s.ID,
		Name:                   s.Name,
		Description:            s.Description,
		Icon:                   s.Icon,
		PointsRequired:         s.Points,
		StreakRequired:         s.Streak,
		LevelRequired:          s.Level,
		TasksCompletedRequired: s.TasksCompleted,
	}
}

type WebhookConfig struct {
	URL     string   `yaml:"url" json:"url"`
	Events  []string `yaml:"events,omitempty" json:"events,omitempty"`
	Secret  string   `yaml:"secret,omitempty" json:"secret,omitempty"`
	Enabled *bool    `yaml:"enabled,omitempty" json:"enabled,omitempty"`
}

func intPtr(v int) *int { return &v }

// Default returns the stock config for a user: default scoring constants
// and the built-in achievement catalog.
func Default(userID string) *Config {
	cfg := &Config{}
	cfg.User.ID = userID
	cfg.WeekStart = "monday"
	cfg.Scoring = scoring.DefaultTable()
	cfg.Achievements = []AchievementSeed{
		{ID: "first-step", Name: "First Step", Description: "Complete your first task or habit", Icon: "🏁", TasksCompleted: intPtr(1)},
		{ID: "getting-warm", Name: "Getting Warm", Description: "Earn 100 points", Icon: "🔥", Points: intPtr(100)},
		{ID: "point-collector", Name: "Point Collector", Description: "Earn 500 points", Icon: "💰", Points: intPtr(500)},
		{ID: "high-roller", Name: "High Roller", Description: "Earn 2000 points", Icon: "💎", Points: intPtr(2000)},
		{ID: "week-streak", Name: "One Week Strong", Description: "Keep a 7 day streak", Icon: "📅", Streak: intPtr(7)},
		{ID: "month-streak", Name: "Habit Machine", Description: "Keep a 30 day streak", Icon: "🗓️", Streak: intPtr(30)},
		{ID: "level-five", Name: "Climber", Description: "Reach level 5", Icon: "⛰️", Level: intPtr(5)},
		{ID: "level-ten", Name: "Summit", Description: "Reach level 10", Icon: "🏔️", Level: intPtr(10)},
		{ID: "fifty-done", Name: "Half Century", Description: "Complete 50 tasks", Icon: "✅", TasksCompleted: intPtr(50)},
	}
	return cfg
}

// Path returns the config file location within a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "betterme.yml")
}

// Load reads and validates config from a workspace file.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; import with bm config import --file <path>", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// FromYAML decodes and validates a config document.
func FromYAML(data []byte) (*Config, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var cfg Config
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ToYAML encodes the config for export.
func (c *Config) ToYAML() ([]byte, error) {
	return yaml.Marshal(c)
}

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// WeekStartDay resolves the configured week start; Monday when unset.
func (c *Config) WeekStartDay() time.Weekday {
	if d, ok := weekdays[strings.ToLower(c.WeekStart)]; ok {
		return d
	}
	return time.Monday
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.User.ID == "" {
		return fmt.Errorf("config.user.id is required")
	}
	if c.WeekStart != "" {
		if _, ok := weekdays[strings.ToLower(c.WeekStart)]; !ok {
			return fmt.Errorf("config.week_start %q is not a weekday", c.WeekStart)
		}
	}
	if len(c.Scoring.Levels) == 0 {
		return fmt.Errorf("config.scoring.levels is required")
	}
	prev := 0
	for i, threshold := range c.Scoring.Levels {
		if threshold <= prev {
			return fmt.Errorf("config.scoring.levels must be strictly ascending positive values (index %d)", i)
		}
		prev = threshold
	}
	if c.Scoring.StreakBonusEvery < 0 {
		return fmt.Errorf("config.scoring.streak_bonus_every must not be negative")
	}
	for d, m := range c.Scoring.Multipliers {
		if _, ok := domain.ParseDifficulty(string(d)); !ok {
			return fmt.Errorf("config.scoring.multipliers has unknown difficulty %q", d)
		}
		if m <= 0 {
			return fmt.Errorf("config.scoring.multipliers.%s must be positive", d)
		}
	}
	seen := map[string]bool{}
	for _, a := range c.Achievements {
		if a.ID == "" {
			return fmt.Errorf("achievement entry missing id")
		}
		if seen[a.ID] {
			return fmt.Errorf("duplicate achievement id %s", a.ID)
		}
		seen[a.ID] = true
		if a.Name == "" {
			return fmt.Errorf("achievement %s missing name", a.ID)
		}
		if a.Points == nil && a.Streak == nil && a.Level == nil && a.TasksCompleted == nil {
			return fmt.Errorf("achievement %s has no unlock threshold", a.ID)
		}
	}
	for i, w := range c.Webhooks {
		if w.URL == "" {
			return fmt.Errorf("webhook %d missing url", i)
		}
		if _, err := url.ParseRequestURI(w.URL); err != nil {
			return fmt.Errorf("webhook %d url invalid: %w", i, err)
		}
	}
	return nil
}

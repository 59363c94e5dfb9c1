package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default("alice")
	assert.Equal(t, "alice", cfg.User.ID)
	assert.Equal(t, time.Monday, cfg.WeekStartDay())
	assert.Len(t, cfg.Achievements, 9)
	assert.NoError(t, cfg.Validate())
}

func TestYAMLRoundTrip(t *testing.T) {
	cfg := Default("alice")
	cfg.User.Name = "Alice"
	cfg.WeekStart = "sunday"
	cfg.Webhooks = []WebhookConfig{{URL: "https://example.com/hook", Events: []string{"habit.completed"}}}

	data, err := cfg.ToYAML()
	require.NoError(t, err)

	parsed, err := FromYAML(data)
	require.NoError(t, err)
	assert.Equal(t, "Alice", parsed.User.Name)
	assert.Equal(t, time.Sunday, parsed.WeekStartDay())
	assert.Equal(t, cfg.Scoring, parsed.Scoring)
	assert.Equal(t, cfg.Webhooks, parsed.Webhooks)
}

func TestFromYAMLRejectsUnknownFields(t *testing.T) {
	_, err := FromYAML([]byte("user:\n  id: alice\nbogus_key: 1\nscoring:\n  levels: [100]\n"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := func() *Config { return Default("alice") }

	cfg := base()
	cfg.User.ID = ""
	assert.ErrorContains(t, cfg.Validate(), "user.id")

	cfg = base()
	cfg.WeekStart = "someday"
	assert.ErrorContains(t, cfg.Validate(), "week_start")

	cfg = base()
	cfg.Scoring.Levels = nil
	assert.ErrorContains(t, cfg.Validate(), "levels")

	cfg = base()
	cfg.Scoring.Levels = []int{100, 100, 300}
	assert.ErrorContains(t, cfg.Validate(), "ascending")

	cfg = base()
	cfg.Scoring.Multipliers["heroic"] = 3
	assert.ErrorContains(t, cfg.Validate(), "difficulty")

	cfg = base()
	cfg.Achievements = append(cfg.Achievements, AchievementSeed{ID: "first-step", Name: "Dup"})
	assert.ErrorContains(t, cfg.Validate(), "duplicate")

	cfg = base()
	cfg.Achievements = []AchievementSeed{{ID: "empty", Name: "Empty"}}
	assert.ErrorContains(t, cfg.Validate(), "threshold")

	cfg = base()
	cfg.Webhooks = []WebhookConfig{{URL: "::not-a-url"}}
	assert.ErrorContains(t, cfg.Validate(), "url")
}

func TestPath(t *testing.T) {
	assert.Equal(t, "ws/betterme.yml", Path("ws"))
	assert.Equal(t, "betterme.yml", Path(""))
}

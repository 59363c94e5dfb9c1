package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"betterme/internal/app"
	"betterme/internal/config"
	"betterme/internal/db"
	"betterme/internal/engine"
	"betterme/internal/logger"
	"betterme/internal/migrate"
	"betterme/internal/period"
	"betterme/internal/repo"
	"betterme/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "bm",
	Short: "BetterMe CLI",
	Long: `BetterMe tracks habits and tasks, scores completions, and keeps streaks honest.
Core concepts:
- Workspace: your .betterme directory holding the database; per-user config lives in the DB and is imported explicitly.
- Habits: recurring practices with a cadence (daily/weekly/monthly) and a difficulty; each day counts at most once.
- Tasks: one-shot work items, or recurring templates that spawn dated instances when they come due.
- Streaks: consecutive-day chains recomputed from the full completion history, never patched in place.
- Points and levels: completions earn points (priority, timeliness and streak bonuses apply) and points climb a level ladder.
- Achievements: threshold badges that unlock once and stay unlocked.
- Event log: diary of changes, view with 'bm log tail'.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		dir, err := db.EnsureWorkspace(workspace)
		if err != nil {
			return err
		}
		return logger.Init(logger.Config{Debug: viper.GetBool("debug"), WorkspaceDir: dir})
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("BETTERME")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("user", "", "user id (overrides single-user detection)")
	rootCmd.PersistentFlags().Bool("debug", false, "debug logging")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("user", rootCmd.PersistentFlags().Lookup("user"))
	_ = viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
}

func registerCommands() {
	rootCmd.AddCommand(habitCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(progressCmd())
	rootCmd.AddCommand(leaderboardCmd())
	rootCmd.AddCommand(achievementsCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(apikeyCmd())
	rootCmd.AddCommand(serveCmd())
}

func habitCmd() *cobra.Command {
	habit := &cobra.Command{
		Use:   "habit",
		Short: "Manage habits",
		Long:  "Habits are recurring practices. Completing one scores points with difficulty and streak bonuses; streaks are recomputed from the full day history on every change.",
	}
	habit.AddCommand(habitAddCmd())
	habit.AddCommand(habitListCmd())
	habit.AddCommand(habitDoneCmd())
	habit.AddCommand(habitUndoCmd())
	habit.AddCommand(habitDeleteCmd())
	return habit
}

func habitAddCmd() *cobra.Command {
	var opts engine.HabitCreateOptions
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a habit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				opts.UserID = e.Config.User.ID
				h, err := e.CreateHabit(ctx, opts)
				if err != nil {
					return err
				}
				return printJSON(h)
			})
		},
	}
	cmd.Flags().StringVar(&opts.Name, "name", "", "habit name")
	cmd.Flags().StringVar(&opts.Description, "description", "", "description")
	cmd.Flags().StringVar(&opts.Frequency, "frequency", "daily", "cadence: daily, weekly or monthly")
	cmd.Flags().StringVar(&opts.Difficulty, "difficulty", "easy", "difficulty: easy, medium or hard")
	cmd.Flags().IntVar(&opts.Points, "points", 0, "base points per completion (default from config)")
	cmd.Flags().IntVar(&opts.TargetCount, "target", 0, "target completions per period")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func habitListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List habits with due state",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				statuses, err := e.HabitStatuses(ctx, e.Config.User.ID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(statuses)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Frequency", "Difficulty", "Streak", "Best", "Due", "Period"})
				for _, s := range statuses {
					due := ""
					if s.DueToday {
						due = "yes"
					}
					tw.AppendRow(table.Row{
						s.Habit.ID, s.Habit.Name, s.Habit.Frequency, s.Habit.Difficulty,
						s.Habit.Streak, s.Habit.BestStreak, due,
						fmt.Sprintf("%d/%d", s.CurrentCount, s.Habit.TargetCount),
					})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func habitDoneCmd() *cobra.Command {
	var date, notes, mood string
	cmd := &cobra.Command{
		Use:   "done <habit-id>",
		Short: "Record a habit completion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				opts := engine.CompleteOptions{Notes: notes, Mood: mood}
				if date != "" {
					when, err := parseWhen(date)
					if err != nil {
						return err
					}
					opts.Date = &when
				}
				res, err := e.CompleteHabit(ctx, args[0], opts)
				if err != nil {
					return err
				}
				return printCompletion(res)
			})
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "completion date (YYYY-MM-DD or RFC3339, default now)")
	cmd.Flags().StringVar(&notes, "notes", "", "notes")
	cmd.Flags().StringVar(&mood, "mood", "", "mood")
	return cmd
}

func habitUndoCmd() *cobra.Command {
	var date string
	cmd := &cobra.Command{
		Use:   "undo <habit-id>",
		Short: "Retract a habit completion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				when := time.Now().UTC()
				if date != "" {
					parsed, err := parseWhen(date)
					if err != nil {
						return err
					}
					when = parsed
				}
				res, err := e.UncompleteHabit(ctx, args[0], when)
				if err != nil {
					return err
				}
				return printCompletion(res)
			})
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "date to retract (default today)")
	return cmd
}

func habitDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <habit-id>",
		Short: "Delete a habit and its history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.DeleteHabit(ctx, args[0])
			})
		},
	}
	return cmd
}

func taskCmd() *cobra.Command {
	task := &cobra.Command{
		Use:   "task",
		Short: "Manage tasks",
		Long:  "Tasks are one-shot work items or recurring templates. Recurring templates spawn dated instances via 'bm task sweep'; instance completions keep a per-template streak.",
	}
	task.AddCommand(taskAddCmd())
	task.AddCommand(taskListCmd())
	task.AddCommand(taskShowCmd())
	task.AddCommand(taskDoneCmd())
	task.AddCommand(taskUndoCmd())
	task.AddCommand(taskInstanceDoneCmd())
	task.AddCommand(taskInstanceUndoCmd())
	task.AddCommand(taskSweepCmd())
	task.AddCommand(taskDeleteCmd())
	return task
}

func taskAddCmd() *cobra.Command {
	var opts engine.TaskCreateOptions
	var due, end string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a task",
		RunE: func(cmd *cobra.Command, args []string) error {
			if due != "" {
				when, err := parseWhen(due)
				if err != nil {
					return err
				}
				opts.DueDate = &when
			}
			if end != "" {
				when, err := parseWhen(end)
				if err != nil {
					return err
				}
				opts.EndDate = &when
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				opts.UserID = e.Config.User.ID
				t, err := e.CreateTask(ctx, opts)
				if err != nil {
					return err
				}
				return printJSON(t)
			})
		},
	}
	cmd.Flags().StringVar(&opts.Title, "title", "", "title")
	cmd.Flags().StringVar(&opts.Description, "description", "", "description")
	cmd.Flags().IntVar(&opts.Priority, "priority", 1, "priority 1..5")
	cmd.Flags().StringVar(&opts.Category, "category", "", "category")
	cmd.Flags().StringVar(&due, "due", "", "due date (YYYY-MM-DD or RFC3339)")
	cmd.Flags().BoolVar(&opts.IsRecurring, "recurring", false, "recurring template")
	cmd.Flags().StringVar(&opts.Pattern, "pattern", "", "recurrence pattern: daily, weekly, monthly or yearly")
	cmd.Flags().IntVar(&opts.Interval, "interval", 1, "recurrence interval")
	cmd.Flags().StringVar(&end, "end", "", "recurrence end date")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func taskListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				tasks, err := e.Repo.ListTasks(ctx, e.Config.User.ID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(tasks)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Status", "Priority", "Due", "Recurring", "Streak"})
				for _, t := range tasks {
					due := ""
					if t.DueDate != nil {
						due = shortDate(*t.DueDate)
					}
					recurring := ""
					streak := ""
					if t.IsRecurring {
						recurring = string(t.Pattern)
						streak = fmt.Sprintf("%d", e.RecurringTaskStreak(t))
					}
					tw.AppendRow(table.Row{t.ID, t.Title, t.Status, t.Priority, due, recurring, streak})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func taskShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <task-id>",
		Short: "Show a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.Repo.GetTask(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(t)
			})
		},
	}
	return cmd
}

func taskDoneCmd() *cobra.Command {
	var date, notes, mood string
	cmd := &cobra.Command{
		Use:   "done <task-id>",
		Short: "Complete a one-shot task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				opts := engine.CompleteOptions{Notes: notes, Mood: mood}
				if date != "" {
					when, err := parseWhen(date)
					if err != nil {
						return err
					}
					opts.Date = &when
				}
				res, err := e.CompleteTask(ctx, args[0], opts)
				if err != nil {
					return err
				}
				return printCompletion(res)
			})
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "completion date (default now)")
	cmd.Flags().StringVar(&notes, "notes", "", "notes")
	cmd.Flags().StringVar(&mood, "mood", "", "mood")
	return cmd
}

func taskUndoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "undo <task-id>",
		Short: "Reopen a completed task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.UncompleteTask(ctx, args[0])
				if err != nil {
					return err
				}
				return printCompletion(res)
			})
		},
	}
	return cmd
}

func taskInstanceDoneCmd() *cobra.Command {
	var date string
	cmd := &cobra.Command{
		Use:   "done-instance <task-id>",
		Short: "Record a recurring task instance completion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				when := time.Now().UTC()
				if date != "" {
					parsed, err := parseWhen(date)
					if err != nil {
						return err
					}
					when = parsed
				}
				res, err := e.CompleteRecurringTask(ctx, args[0], when)
				if err != nil {
					return err
				}
				return printCompletion(res)
			})
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "completion date (default today)")
	return cmd
}

func taskInstanceUndoCmd() *cobra.Command {
	var date string
	cmd := &cobra.Command{
		Use:   "undo-instance <task-id>",
		Short: "Retract a recurring task instance completion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				when := time.Now().UTC()
				if date != "" {
					parsed, err := parseWhen(date)
					if err != nil {
						return err
					}
					when = parsed
				}
				res, err := e.UncompleteRecurringTask(ctx, args[0], when)
				if err != nil {
					return err
				}
				return printCompletion(res)
			})
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "date to retract (default today)")
	return cmd
}

func taskSweepCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Generate due recurring task instances",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				generated, err := e.SweepRecurringInstances(ctx, time.Now().UTC())
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(generated)
				}
				if len(generated) == 0 {
					fmt.Println("nothing due")
					return nil
				}
				for _, t := range generated {
					fmt.Printf("generated %s: %s\n", t.ID, t.Title)
				}
				return nil
			})
		},
	}
	return cmd
}

func taskDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <task-id>",
		Short: "Delete a task and its history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.DeleteTask(ctx, args[0])
			})
		},
	}
	return cmd
}

func progressCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "progress",
		Short: "Show the progress scoreboard",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				snap, err := e.ProgressSnapshot(ctx, e.Config.User.ID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(snap)
				}
				p := snap.Progress
				fmt.Printf("Level %d  (%d points, %d to next, %.1f%%)\n",
					p.Level, p.TotalPoints, snap.LevelProgress.PointsToNext, snap.LevelProgress.Percent)
				fmt.Printf("Streak: %d (best %d)\n", p.CurrentStreak, p.BestStreak)
				if p.LastCompletionDate != nil {
					fmt.Printf("Last completion: %s\n", *p.LastCompletionDate)
				}
				for _, a := range snap.NewAchievements {
					fmt.Printf("NEW achievement: %s %s\n", a.Icon, a.Name)
				}
				return nil
			})
		},
	}
	return cmd
}

func leaderboardCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "leaderboard",
		Short: "Rank users by total points",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				entries, err := e.Leaderboard(ctx, limit)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(entries)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Rank", "User", "Points", "Level"})
				for _, en := range entries {
					name := en.Name
					if name == "" {
						name = en.UserID
					}
					tw.AppendRow(table.Row{en.Rank, name, en.TotalPoints, en.Level})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 10, "number of entries")
	return cmd
}

func achievementsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "achievements",
		Short: "List achievements and unlock state",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				catalog, err := e.Repo.ListAchievements(ctx)
				if err != nil {
					return err
				}
				held, err := e.Repo.ListUserAchievements(ctx, e.Config.User.ID)
				if err != nil {
					return err
				}
				unlockedAt := map[string]string{}
				fresh := map[string]bool{}
				for _, ua := range held {
					unlockedAt[ua.AchievementID] = ua.UnlockedAt
					if ua.IsNew {
						fresh[ua.AchievementID] = true
					}
				}
				if viper.GetBool("json") {
					type row struct {
						ID         string `json:"id"`
						Name       string `json:"name"`
						Unlocked   bool   `json:"unlocked"`
						UnlockedAt string `json:"unlocked_at,omitempty"`
						New        bool   `json:"new,omitempty"`
					}
					rows := make([]row, 0, len(catalog))
					for _, a := range catalog {
						at, ok := unlockedAt[a.ID]
						rows = append(rows, row{ID: a.ID, Name: a.Name, Unlocked: ok, UnlockedAt: at, New: fresh[a.ID]})
					}
					if err := printJSON(rows); err != nil {
						return err
					}
				} else {
					tw := table.NewWriter()
					tw.SetOutputMirror(os.Stdout)
					tw.AppendHeader(table.Row{"", "Achievement", "Description", "Unlocked"})
					for _, a := range catalog {
						at, ok := unlockedAt[a.ID]
						mark := ""
						if ok {
							mark = shortDate(at)
							if fresh[a.ID] {
								mark += " NEW"
							}
						}
						tw.AppendRow(table.Row{a.Icon, a.Name, a.Description, mark})
					}
					tw.Render()
				}
				return e.Repo.MarkAchievementsSeen(ctx, e.Config.User.ID)
			})
		},
	}
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Inspect user config",
		Long:  "Config is the rulebook (stored in DB): scoring table, level ladder, achievement catalog and webhooks. Import from betterme.yml if desired.",
	}
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configValidateCmd())
	cfg.AddCommand(configImportCmd())
	cfg.AddCommand(configExportCmd())
	return cfg
}

func configShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show loaded config",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return printJSON(e.Config)
			})
		},
	}
	return cmd
}

func configValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate stored config",
		RunE: func(cmd *cobra.Command, args []string) error {
			err := withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.Config.Validate()
			})
			if viper.GetBool("json") {
				return printJSON(map[string]any{"ok": err == nil, "error": fmt.Sprint(err)})
			}
			if err != nil {
				return err
			}
			fmt.Println("config OK")
			return nil
		},
	}
	return cmd
}

func configImportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import betterme.yml from the workspace into the DB",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			cfg, err := config.Load(workspace)
			if err != nil {
				return err
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				userID := viper.GetString("user")
				if userID == "" {
					userID = cfg.User.ID
				}
				if userID == "" {
					return fmt.Errorf("config has no user.id; use --user")
				}
				cfg.User.ID = userID
				if err := cfg.Validate(); err != nil {
					return err
				}
				if err := r.UpsertUserConfig(ctx, userID, cfg); err != nil {
					return err
				}
				fmt.Printf("imported config for %s\n", userID)
				return nil
			})
		},
	}
	return cmd
}

func configExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the stored config to betterme.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				data, err := e.Config.ToYAML()
				if err != nil {
					return err
				}
				path := config.Path(viper.GetString("workspace"))
				if err := os.WriteFile(path, data, 0o644); err != nil {
					return err
				}
				fmt.Printf("wrote %s\n", path)
				return nil
			})
		},
	}
	return cmd
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Event log",
		Long:  "The diary of everything that happened: completions, retractions, unlocks, level ups and sweeps.",
	}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	var afterID int64
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				events, err := e.Repo.ListEvents(ctx, e.Config.User.ID, afterID, n)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(events)
				}
				for _, evt := range events {
					fmt.Printf("%d  %s  %-26s %s/%s  %s\n", evt.ID, evt.TS, evt.Type, evt.EntityKind, evt.EntityID, evt.Payload)
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().Int64Var(&afterID, "after", 0, "start after event id")
	return cmd
}

func apikeyCmd() *cobra.Command {
	key := &cobra.Command{
		Use:   "apikey",
		Short: "Manage API keys",
	}
	key.AddCommand(apikeyListCmd())
	key.AddCommand(apikeyDeleteCmd())
	return key
}

func apikeyListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				keys, err := e.Repo.ListAPIKeys(ctx, e.Config.User.ID)
				if err != nil {
					return err
				}
				return printJSON(keys)
			})
		},
	}
	return cmd
}

func apikeyDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <key-id>",
		Short: "Delete an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				return r.DeleteAPIKey(ctx, args[0])
			})
		},
	}
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	var allowUserHeader bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			if _, err := db.EnsureWorkspace(workspace); err != nil {
				return err
			}
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			r := repo.Repo{DB: conn}
			_, cfg, err := app.ResolveUserAndConfig(cmd.Context(), viper.GetString("user"), r)
			if err != nil {
				return err
			}
			e := engine.New(conn, cfg)
			authCfg := server.AuthConfig{
				JWTSecret:       os.Getenv("BETTERME_JWT_SECRET"),
				AllowUserHeader: allowUserHeader,
			}
			if authCfg.JWTSecret == "" && !allowUserHeader {
				return fmt.Errorf("BETTERME_JWT_SECRET is required for bearer auth (or pass --allow-user-header for local use)")
			}
			handler, err := server.New(server.Config{Engine: e, BasePath: basePath, Auth: authCfg})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving BetterMe API on http://%s%s (OpenAPI at /openapi.json, Swagger UI at /docs)\n", addr, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	cmd.Flags().BoolVar(&allowUserHeader, "allow-user-header", false, "accept X-User-Id without a token (local only)")
	return cmd
}

// --- helpers ---

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	r := repo.Repo{DB: conn}
	_, cfg, err := app.ResolveUserAndConfig(ctx, viper.GetString("user"), r)
	if err != nil {
		return err
	}
	e := engine.New(conn, cfg)
	return fn(ctx, e)
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	return fn(ctx, repo.Repo{DB: conn})
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printCompletion(res engine.CompletionResult) error {
	if viper.GetBool("json") {
		return printJSON(res)
	}
	c := res.Completion
	if c.ID != "" {
		fmt.Printf("+%d points on %s\n", c.PointsEarned, c.Day)
	}
	p := res.Progress
	fmt.Printf("Total: %d points, level %d, streak %d (best %d)\n",
		p.TotalPoints, p.Level, p.CurrentStreak, p.BestStreak)
	for _, a := range res.NewAchievements {
		fmt.Printf("Achievement unlocked: %s %s\n", a.Icon, a.Name)
	}
	return nil
}

func parseWhen(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	if t, err := period.ParseDay(s); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("invalid date %q: want RFC3339 or YYYY-MM-DD", s)
}

func shortDate(s string) string {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.Format(period.DayFormat)
	}
	if len(s) >= len(period.DayFormat) {
		return s[:len(period.DayFormat)]
	}
	return s
}

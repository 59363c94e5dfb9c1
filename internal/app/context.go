package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"betterme/internal/config"
	"betterme/internal/repo"
)

// ResolveUserAndConfig picks the active user and ensures a user row plus a
// stored config exist, seeding defaults and the achievement catalog when
// missing. It prefers the override, then a single-user DB.
func ResolveUserAndConfig(ctx context.Context, userOverride string, r repo.Repo) (string, *config.Config, error) {
	userID := userOverride
	if userID == "" {
		users, err := r.ListUsers(ctx)
		if err != nil {
			return "", nil, err
		}
		switch len(users) {
		case 0:
			userID = "local-user"
		case 1:
			userID = users[0].ID
		default:
			return "", nil, fmt.Errorf("user not specified; use --user")
		}
	}
	seedCfg := config.Default(userID)

	if _, err := r.GetUser(ctx, userID); err != nil {
		if !errors.Is(err, repo.ErrNotFound) {
			return "", nil, err
		}
		if err := createUser(ctx, r, userID, seedCfg); err != nil {
			return "", nil, err
		}
	}
	cfg, err := r.GetUserConfig(ctx, userID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			if err := seedUser(ctx, r, userID, seedCfg); err != nil {
				return "", nil, fmt.Errorf("seed user config: %w", err)
			}
			cfg = seedCfg
		} else {
			return "", nil, err
		}
	}
	cfg.User.ID = userID
	return userID, cfg, nil
}

// createUser inserts a minimal user footprint with the seed config and the
// stock achievement catalog.
func createUser(ctx context.Context, r repo.Repo, userID string, seedCfg *config.Config) error {
	if seedCfg == nil {
		seedCfg = config.Default(userID)
	}
	now := time.Now().UTC().Format(time.RFC3339)
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := r.EnsureUser(ctx, tx, userID, seedCfg.User.Name, now); err != nil {
		return fmt.Errorf("ensure user: %w", err)
	}
	if err := r.UpsertUserConfigTx(ctx, tx, userID, seedCfg); err != nil {
		return fmt.Errorf("insert user config: %w", err)
	}
	for _, seed := range seedCfg.Achievements {
		if err := r.UpsertAchievement(ctx, tx, seed.Achievement()); err != nil {
			return fmt.Errorf("seed achievement %s: %w", seed.ID, err)
		}
	}
	return tx.Commit()
}

// seedUser stores the config and catalog for a user row that already exists.
func seedUser(ctx context.Context, r repo.Repo, userID string, seedCfg *config.Config) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := r.UpsertUserConfigTx(ctx, tx, userID, seedCfg); err != nil {
		return err
	}
	for _, seed := range seedCfg.Achievements {
		if err := r.UpsertAchievement(ctx, tx, seed.Achievement()); err != nil {
			return err
		}
	}
	return tx.Commit()
}

package repo

import (
	"context"
	"database/sql"

	"betterme/internal/domain"
)

func (r Repo) UpsertAchievement(ctx context.Context, tx *sql.Tx, a domain.Achievement) error {
	exec := execer(r.DB, tx)
	_, err := exec(ctx, `INSERT INTO achievements(id,name,description,icon,points_required,streak_required,level_required,tasks_completed_required)
VALUES (?,?,?,?,?,?,?,?)
ON CONFLICT(id) DO UPDATE SET name=excluded.name, description=excluded.description, icon=excluded.icon,
points_required=excluded.points_required, streak_required=excluded.streak_required,
level_required=excluded.level_required, tasks_completed_required=excluded.tasks_completed_required`,
		a.ID, a.Name, nullable(a.Description), nullable(a.Icon),
		nullableInt(a.PointsRequired), nullableInt(a.StreakRequired), nullableInt(a.LevelRequired), nullableInt(a.TasksCompletedRequired))
	return err
}

func (r Repo) ListAchievements(ctx context.Context) ([]domain.Achievement, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,COALESCE(description,''),COALESCE(icon,''),points_required,streak_required,level_required,tasks_completed_required FROM achievements ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Achievement
	for rows.Next() {
		var a domain.Achievement
		var points, strk, level, tasks sql.NullInt64
		if err := rows.Scan(&a.ID, &a.Name, &a.Description, &a.Icon, &points, &strk, &level, &tasks); err != nil {
			return nil, err
		}
		a.PointsRequired = intPtrFrom(points)
		a.StreakRequired = intPtrFrom(strk)
		a.LevelRequired = intPtrFrom(level)
		a.TasksCompletedRequired = intPtrFrom(tasks)
		res = append(res, a)
	}
	return res, rows.Err()
}

// UnlockedAchievementIDs returns the set of achievements the user already
// holds; evaluation skips them so unlocks stay unique per pair.
func (r Repo) UnlockedAchievementIDs(ctx context.Context, tx *sql.Tx, userID string) (map[string]bool, error) {
	query := `SELECT achievement_id FROM user_achievements WHERE user_id=?`
	var rows *sql.Rows
	var err error
	if tx != nil {
		rows, err = tx.QueryContext(ctx, query, userID)
	} else {
		rows, err = r.DB.QueryContext(ctx, query, userID)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	unlocked := map[string]bool{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		unlocked[id] = true
	}
	return unlocked, rows.Err()
}

func (r Repo) InsertUserAchievement(ctx context.Context, tx *sql.Tx, ua domain.UserAchievement) error {
	exec := execer(r.DB, tx)
	_, err := exec(ctx, `INSERT INTO user_achievements(user_id,achievement_id,unlocked_at,is_new) VALUES (?,?,?,?)
ON CONFLICT(user_id,achievement_id) DO NOTHING`,
		ua.UserID, ua.AchievementID, ua.UnlockedAt, boolInt(ua.IsNew))
	return err
}

func (r Repo) ListUserAchievements(ctx context.Context, userID string) ([]domain.UserAchievement, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT user_id,achievement_id,unlocked_at,is_new FROM user_achievements WHERE user_id=? ORDER BY unlocked_at ASC, achievement_id ASC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.UserAchievement
	for rows.Next() {
		var ua domain.UserAchievement
		var isNew int
		if err := rows.Scan(&ua.UserID, &ua.AchievementID, &ua.UnlockedAt, &isNew); err != nil {
			return nil, err
		}
		ua.IsNew = isNew != 0
		res = append(res, ua)
	}
	return res, rows.Err()
}

// MarkAchievementsSeen clears the is_new flag once unlocks have been shown.
func (r Repo) MarkAchievementsSeen(ctx context.Context, userID string) error {
	_, err := r.DB.ExecContext(ctx, `UPDATE user_achievements SET is_new=0 WHERE user_id=? AND is_new=1`, userID)
	return err
}

func nullableInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

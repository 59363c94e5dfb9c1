package repo

import (
	"context"
	"database/sql"

	"betterme/internal/domain"
)

func (r Repo) GetUserProgress(ctx context.Context, userID string) (domain.UserProgress, error) {
	return r.getUserProgress(ctx, nil, userID)
}

func (r Repo) GetUserProgressTx(ctx context.Context, tx *sql.Tx, userID string) (domain.UserProgress, error) {
	return r.getUserProgress(ctx, tx, userID)
}

func (r Repo) getUserProgress(ctx context.Context, tx *sql.Tx, userID string) (domain.UserProgress, error) {
	query := `SELECT user_id,total_points,level,current_streak,best_streak,last_completion_date,updated_at FROM user_progress WHERE user_id=?`
	var row *sql.Row
	if tx != nil {
		row = tx.QueryRowContext(ctx, query, userID)
	} else {
		row = r.DB.QueryRowContext(ctx, query, userID)
	}
	var p domain.UserProgress
	var last sql.NullString
	err := row.Scan(&p.UserID, &p.TotalPoints, &p.Level, &p.CurrentStreak, &p.BestStreak, &last, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	p.LastCompletionDate = strPtr(last)
	return p, err
}

func (r Repo) UpsertUserProgress(ctx context.Context, tx *sql.Tx, p domain.UserProgress) error {
	exec := execer(r.DB, tx)
	_, err := exec(ctx, `INSERT INTO user_progress(user_id,total_points,level,current_streak,best_streak,last_completion_date,updated_at)
VALUES (?,?,?,?,?,?,?)
ON CONFLICT(user_id) DO UPDATE SET total_points=excluded.total_points, level=excluded.level,
current_streak=excluded.current_streak, best_streak=excluded.best_streak,
last_completion_date=excluded.last_completion_date, updated_at=excluded.updated_at`,
		p.UserID, p.TotalPoints, p.Level, p.CurrentStreak, p.BestStreak, nullablePtr(p.LastCompletionDate), p.UpdatedAt)
	return err
}

// ListProgress returns every user's aggregate joined with their name, in
// stable user-creation order; the scoring package assigns ranks.
func (r Repo) ListProgress(ctx context.Context) ([]domain.LeaderboardEntry, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT p.user_id, COALESCE(u.name,''), p.total_points, p.level
FROM user_progress p JOIN users u ON u.id = p.user_id ORDER BY u.created_at ASC, u.id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.LeaderboardEntry
	for rows.Next() {
		var e domain.LeaderboardEntry
		if err := rows.Scan(&e.UserID, &e.Name, &e.TotalPoints, &e.Level); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

package repo

import (
	"context"
	"database/sql"

	"betterme/internal/domain"
)

const completionColumns = `id,user_id,entity_kind,entity_id,day,completed_at,points_earned,is_recurring_instance,COALESCE(notes,''),COALESCE(mood,'')`

func scanCompletion(scan func(dest ...any) error) (domain.Completion, error) {
	var c domain.Completion
	var instance int
	err := scan(&c.ID, &c.UserID, &c.EntityKind, &c.EntityID, &c.Day, &c.CompletedAt,
		&c.PointsEarned, &instance, &c.Notes, &c.Mood)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	c.IsRecurringInstance = instance != 0
	return c, err
}

func (r Repo) InsertCompletion(ctx context.Context, tx *sql.Tx, c domain.Completion) error {
	exec := execer(r.DB, tx)
	_, err := exec(ctx, `INSERT INTO completions(id,user_id,entity_kind,entity_id,day,completed_at,points_earned,is_recurring_instance,notes,mood)
VALUES (?,?,?,?,?,?,?,?,?,?)`,
		c.ID, c.UserID, c.EntityKind, c.EntityID, c.Day, c.CompletedAt, c.PointsEarned,
		boolInt(c.IsRecurringInstance), nullable(c.Notes), nullable(c.Mood))
	return err
}

func (r Repo) GetCompletion(ctx context.Context, entityKind, entityID, day string) (domain.Completion, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+completionColumns+` FROM completions WHERE entity_kind=? AND entity_id=? AND day=?`,
		entityKind, entityID, day)
	return scanCompletion(row.Scan)
}

// DeleteCompletion hard-deletes a completion event; retraction is not a
// soft correction.
func (r Repo) DeleteCompletion(ctx context.Context, tx *sql.Tx, entityKind, entityID, day string) error {
	exec := execer(r.DB, tx)
	res, err := exec(ctx, `DELETE FROM completions WHERE entity_kind=? AND entity_id=? AND day=?`, entityKind, entityID, day)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) ListCompletionsForEntity(ctx context.Context, entityKind, entityID string) ([]domain.Completion, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+completionColumns+` FROM completions WHERE entity_kind=? AND entity_id=? ORDER BY day ASC`,
		entityKind, entityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Completion
	for rows.Next() {
		c, err := scanCompletion(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

// SumPoints totals a user's earned points. Recurring-instance task
// completions are recorded for their own task's history but excluded from
// the cross-cutting total.
func (r Repo) SumPoints(ctx context.Context, tx *sql.Tx, userID string) (int, error) {
	query := `SELECT COALESCE(SUM(points_earned),0) FROM completions WHERE user_id=? AND NOT (entity_kind='task' AND is_recurring_instance=1)`
	var total int
	var err error
	if tx != nil {
		err = tx.QueryRowContext(ctx, query, userID).Scan(&total)
	} else {
		err = r.DB.QueryRowContext(ctx, query, userID).Scan(&total)
	}
	return total, err
}

// CompletionDays returns the distinct days on which the user completed
// anything that feeds the cross-entity streak.
func (r Repo) CompletionDays(ctx context.Context, tx *sql.Tx, userID string) ([]string, error) {
	query := `SELECT DISTINCT day FROM completions WHERE user_id=? AND NOT (entity_kind='task' AND is_recurring_instance=1) ORDER BY day ASC`
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
	var days []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, err
		}
		days = append(days, d)
	}
	return days, rows.Err()
}

// CountTaskCompletions counts every task completion a user has recorded,
// instances included; the tasks-completed achievement threshold runs on it.
func (r Repo) CountTaskCompletions(ctx context.Context, tx *sql.Tx, userID string) (int, error) {
	query := `SELECT COUNT(*) FROM completions WHERE user_id=? AND entity_kind='task'`
	var count int
	var err error
	if tx != nil {
		err = tx.QueryRowContext(ctx, query, userID).Scan(&count)
	} else {
		err = r.DB.QueryRowContext(ctx, query, userID).Scan(&count)
	}
	return count, err
}

package repo

import (
	"context"
	"database/sql"

	"betterme/internal/domain"
)

const habitColumns = `id,user_id,name,COALESCE(description,''),frequency,difficulty,points,target_count,streak,best_streak,completed_dates,created_at,updated_at`

func scanHabit(scan func(dest ...any) error) (domain.Habit, error) {
	var h domain.Habit
	var days string
	err := scan(&h.ID, &h.UserID, &h.Name, &h.Description, &h.Frequency, &h.Difficulty,
		&h.Points, &h.TargetCount, &h.Streak, &h.BestStreak, &days, &h.CreatedAt, &h.UpdatedAt)
	if err == sql.ErrNoRows {
		return h, ErrNotFound
	}
	if err != nil {
		return h, err
	}
	h.CompletedDates, err = unmarshalDays(days)
	return h, err
}

func (r Repo) InsertHabit(ctx context.Context, tx *sql.Tx, h domain.Habit) error {
	days, err := marshalDays(h.CompletedDates)
	if err != nil {
		return err
	}
	exec := execer(r.DB, tx)
	_, err = exec(ctx, `INSERT INTO habits(id,user_id,name,description,frequency,difficulty,points,target_count,streak,best_streak,completed_dates,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		h.ID, h.UserID, h.Name, nullable(h.Description), string(h.Frequency), string(h.Difficulty),
		h.Points, h.TargetCount, h.Streak, h.BestStreak, days, h.CreatedAt, h.UpdatedAt)
	return err
}

func (r Repo) GetHabit(ctx context.Context, id string) (domain.Habit, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+habitColumns+` FROM habits WHERE id=?`, id)
	return scanHabit(row.Scan)
}

func (r Repo) ListHabits(ctx context.Context, userID string) ([]domain.Habit, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+habitColumns+` FROM habits WHERE user_id=? ORDER BY created_at ASC, id ASC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Habit
	for rows.Next() {
		h, err := scanHabit(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, h)
	}
	return res, rows.Err()
}

func (r Repo) UpdateHabit(ctx context.Context, tx *sql.Tx, h domain.Habit) error {
	days, err := marshalDays(h.CompletedDates)
	if err != nil {
		return err
	}
	exec := execer(r.DB, tx)
	res, err := exec(ctx, `UPDATE habits SET name=?,description=?,frequency=?,difficulty=?,points=?,target_count=?,streak=?,best_streak=?,completed_dates=?,updated_at=? WHERE id=?`,
		h.Name, nullable(h.Description), string(h.Frequency), string(h.Difficulty),
		h.Points, h.TargetCount, h.Streak, h.BestStreak, days, h.UpdatedAt, h.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteHabit removes a habit and cascades its completion history.
func (r Repo) DeleteHabit(ctx context.Context, tx *sql.Tx, id string) error {
	exec := execer(r.DB, tx)
	if _, err := exec(ctx, `DELETE FROM completions WHERE entity_kind='habit' AND entity_id=?`, id); err != nil {
		return err
	}
	res, err := exec(ctx, `DELETE FROM habits WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

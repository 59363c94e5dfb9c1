package repo

import (
	"context"
	"database/sql"

	"betterme/internal/domain"
)

const taskColumns = `id,user_id,title,COALESCE(description,''),priority,COALESCE(category,''),status,due_date,completed_at,is_recurring,pattern,interval,end_date,next_due_date,original_task_id,completed_instance_dates,created_at,updated_at`

func scanTask(scan func(dest ...any) error) (domain.Task, error) {
	var t domain.Task
	var due, completed, end, next, orig sql.NullString
	var recurring int
	var days string
	err := scan(&t.ID, &t.UserID, &t.Title, &t.Description, &t.Priority, &t.Category, &t.Status,
		&due, &completed, &recurring, &t.Pattern, &t.Interval, &end, &next, &orig, &days, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	if err != nil {
		return t, err
	}
	t.DueDate = strPtr(due)
	t.CompletedAt = strPtr(completed)
	t.EndDate = strPtr(end)
	t.NextDueDate = strPtr(next)
	t.OriginalTaskID = strPtr(orig)
	t.IsRecurring = recurring != 0
	t.CompletedInstanceDates, err = unmarshalDays(days)
	return t, err
}

func (r Repo) InsertTask(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	days, err := marshalDays(t.CompletedInstanceDates)
	if err != nil {
		return err
	}
	exec := execer(r.DB, tx)
	_, err = exec(ctx, `INSERT INTO tasks(id,user_id,title,description,priority,category,status,due_date,completed_at,is_recurring,pattern,interval,end_date,next_due_date,original_task_id,completed_instance_dates,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.UserID, t.Title, nullable(t.Description), t.Priority, nullable(t.Category), t.Status,
		nullablePtr(t.DueDate), nullablePtr(t.CompletedAt), boolInt(t.IsRecurring), string(t.Pattern), t.Interval,
		nullablePtr(t.EndDate), nullablePtr(t.NextDueDate), nullablePtr(t.OriginalTaskID), days, t.CreatedAt, t.UpdatedAt)
	return err
}

func (r Repo) GetTask(ctx context.Context, id string) (domain.Task, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id=?`, id)
	return scanTask(row.Scan)
}

func (r Repo) ListTasks(ctx context.Context, userID string) ([]domain.Task, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE user_id=? ORDER BY created_at DESC, id DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTasks(rows)
}

// ListRecurringTasks returns every recurring source task with a pending
// next due date, across all users. The sweep walks this set; generated
// instances are excluded so a period is never instantiated twice.
func (r Repo) ListRecurringTasks(ctx context.Context) ([]domain.Task, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE is_recurring=1 AND next_due_date IS NOT NULL AND original_task_id IS NULL ORDER BY next_due_date ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTasks(rows)
}

func collectTasks(rows *sql.Rows) ([]domain.Task, error) {
	var res []domain.Task
	for rows.Next() {
		t, err := scanTask(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

func (r Repo) UpdateTask(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	days, err := marshalDays(t.CompletedInstanceDates)
	if err != nil {
		return err
	}
	exec := execer(r.DB, tx)
	res, err := exec(ctx, `UPDATE tasks SET title=?,description=?,priority=?,category=?,status=?,due_date=?,completed_at=?,is_recurring=?,pattern=?,interval=?,end_date=?,next_due_date=?,original_task_id=?,completed_instance_dates=?,updated_at=? WHERE id=?`,
		t.Title, nullable(t.Description), t.Priority, nullable(t.Category), t.Status,
		nullablePtr(t.DueDate), nullablePtr(t.CompletedAt), boolInt(t.IsRecurring), string(t.Pattern), t.Interval,
		nullablePtr(t.EndDate), nullablePtr(t.NextDueDate), nullablePtr(t.OriginalTaskID), days, t.UpdatedAt, t.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteTask removes a task and its completion history.
func (r Repo) DeleteTask(ctx context.Context, tx *sql.Tx, id string) error {
	exec := execer(r.DB, tx)
	if _, err := exec(ctx, `DELETE FROM completions WHERE entity_kind='task' AND entity_id=?`, id); err != nil {
		return err
	}
	res, err := exec(ctx, `DELETE FROM tasks WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

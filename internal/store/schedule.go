package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rkoyama/glmbot/internal/model"
)

// AddTask persists a new scheduled task and returns it with its
// assigned ID. Expression validation is the scheduler's job; the
// store treats expr as opaque.
func (s *Store) AddTask(ctx context.Context, expr, prompt, scope, creator string) (*model.ScheduledTask, error) {
	task := &model.ScheduledTask{
		ID:        s.newID(),
		Expr:      expr,
		Prompt:    prompt,
		Scope:     scope,
		Creator:   creator,
		Enabled:   true,
		CreatedAt: time.Now().UTC(),
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO schedules (id, expr, prompt, scope, creator, enabled, created_at)
		 VALUES (?, ?, ?, ?, ?, 1, ?)`,
		task.ID, expr, prompt, scope, creator, formatTime(task.CreatedAt))
	if err != nil {
		return nil, fmt.Errorf("insert schedule: %w", err)
	}
	return task, nil
}

// GetTask loads one task by ID.
func (s *Store) GetTask(ctx context.Context, id string) (*model.ScheduledTask, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, expr, prompt, scope, creator, enabled, created_at FROM schedules WHERE id = ?`, id)
	task, err := scanTask(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("task %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("load schedule: %w", err)
	}
	return &task, nil
}

// ListTasks returns every task, oldest first.
func (s *Store) ListTasks(ctx context.Context) ([]model.ScheduledTask, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, expr, prompt, scope, creator, enabled, created_at FROM schedules ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list schedules: %w", err)
	}
	defer rows.Close()

	var tasks []model.ScheduledTask
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

// DeleteTask removes a task by ID. Reports ErrNotFound for unknown
// IDs.
func (s *Store) DeleteTask(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM schedules WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete schedule: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	return nil
}

// SetTaskEnabled pauses or resumes a task.
func (s *Store) SetTaskEnabled(ctx context.Context, id string, enabled bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE schedules SET enabled = ? WHERE id = ?`, boolToInt(enabled), id)
	if err != nil {
		return fmt.Errorf("update schedule: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	return nil
}

func scanTask(row rowScanner) (model.ScheduledTask, error) {
	var task model.ScheduledTask
	var enabled int
	var createdAt string
	err := row.Scan(&task.ID, &task.Expr, &task.Prompt, &task.Scope,
		&task.Creator, &enabled, &createdAt)
	if err != nil {
		return task, err
	}
	task.Enabled = enabled != 0
	task.CreatedAt = parseTime(createdAt)
	return task, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

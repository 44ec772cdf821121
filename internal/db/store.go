package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Joseda-hg/taskboard/internal/model"
	"github.com/jmoiron/sqlx"
)

// ErrNotFound is returned when no task has the requested id.
var ErrNotFound = errors.New("task not found")

const selectTask = `SELECT id, description, due, completed, created_at, updated_at FROM tasks`

type Store struct {
	DB  *sqlx.DB
	now func() time.Time
}

type TaskInput struct {
	Description string
	Due         *time.Time
	Completed   bool
}

type taskRow struct {
	ID          int64          `db:"id"`
	Description sql.NullString `db:"description"`
	Due         sql.NullTime   `db:"due"`
	Completed   bool           `db:"completed"`
	CreatedAt   time.Time      `db:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at"`
}

func NewStore(db *sqlx.DB) *Store {
	return &Store{DB: db, now: time.Now}
}

func (s *Store) CreateTask(ctx context.Context, input TaskInput) (model.Task, error) {
	now := s.now().UTC()

	description := strings.TrimSpace(input.Description)
	args := []any{
		sql.NullString{String: description, Valid: description != ""},
		nullTime(input.Due),
		input.Completed,
		now,
		now,
	}
	query := `INSERT INTO tasks (description, due, completed, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`

	var id int64
	if s.DB.DriverName() == DriverPostgres {
		if err := s.DB.QueryRowxContext(ctx, s.DB.Rebind(query+" RETURNING id"), args...).Scan(&id); err != nil {
			return model.Task{}, fmt.Errorf("create task: %w", err)
		}
	} else {
		result, err := s.DB.ExecContext(ctx, s.DB.Rebind(query), args...)
		if err != nil {
			return model.Task{}, fmt.Errorf("create task: %w", err)
		}
		if id, err = result.LastInsertId(); err != nil {
			return model.Task{}, fmt.Errorf("create task: %w", err)
		}
	}

	return s.GetTask(ctx, id)
}

func (s *Store) GetTask(ctx context.Context, taskID int64) (model.Task, error) {
	return getTask(ctx, s.DB, taskID)
}

// ListTasks returns every task, latest due date first. Tasks without a due
// date come last and equal keys keep id order.
func (s *Store) ListTasks(ctx context.Context) ([]model.Task, error) {
	var rows []taskRow
	if err := s.DB.SelectContext(ctx, &rows, selectTask+` ORDER BY due IS NULL, due DESC, id ASC`); err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}

	result := make([]model.Task, 0, len(rows))
	for _, row := range rows {
		result = append(result, mapTask(row))
	}
	return result, nil
}

func (s *Store) EnableTask(ctx context.Context, taskID int64) (model.Task, error) {
	task, err := s.setCompleted(ctx, taskID, true)
	if err != nil {
		return model.Task{}, fmt.Errorf("enable task %d: %w", taskID, err)
	}
	return task, nil
}

func (s *Store) DisableTask(ctx context.Context, taskID int64) (model.Task, error) {
	task, err := s.setCompleted(ctx, taskID, false)
	if err != nil {
		return model.Task{}, fmt.Errorf("disable task %d: %w", taskID, err)
	}
	return task, nil
}

func (s *Store) setCompleted(ctx context.Context, taskID int64, completed bool) (model.Task, error) {
	tx, err := s.DB.BeginTxx(ctx, nil)
	if err != nil {
		return model.Task{}, err
	}
	defer func() { _ = tx.Rollback() }()

	now := s.now().UTC()
	// updated_at never drops below created_at, even with a clock that went backwards
	result, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE tasks
		SET completed = ?, updated_at = CASE WHEN created_at > ? THEN created_at ELSE ? END
		WHERE id = ?`), completed, now, now, taskID)
	if err != nil {
		return model.Task{}, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return model.Task{}, err
	}
	if affected == 0 {
		return model.Task{}, ErrNotFound
	}

	task, err := getTask(ctx, tx, taskID)
	if err != nil {
		return model.Task{}, err
	}

	if err := tx.Commit(); err != nil {
		return model.Task{}, err
	}
	return task, nil
}

func getTask(ctx context.Context, q sqlx.ExtContext, taskID int64) (model.Task, error) {
	var row taskRow
	err := sqlx.GetContext(ctx, q, &row, q.Rebind(selectTask+` WHERE id = ?`), taskID)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Task{}, fmt.Errorf("task %d: %w", taskID, ErrNotFound)
	}
	if err != nil {
		return model.Task{}, fmt.Errorf("get task %d: %w", taskID, err)
	}
	return mapTask(row), nil
}

func mapTask(row taskRow) model.Task {
	task := model.Task{
		ID:          row.ID,
		Description: row.Description.String,
		Completed:   row.Completed,
		CreatedAt:   row.CreatedAt,
		UpdatedAt:   row.UpdatedAt,
	}
	if row.Due.Valid {
		due := row.Due.Time
		task.Due = &due
	}
	return task
}

func nullTime(value *time.Time) sql.NullTime {
	if value == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: value.UTC(), Valid: true}
}

// Package tasks provides the PostgreSQL-backed task repository.
package tasks

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/dmitrijs2005/taskkeeper/internal/common"
	"github.com/dmitrijs2005/taskkeeper/internal/dbx"
	"github.com/dmitrijs2005/taskkeeper/internal/server/models"
)

var columns = []string{
	"id", "user_id", "title", "description", "status", "priority", "due_date", "created_at", "updated_at",
}

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// PostgresRepository implements Repository over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// List returns the user's tasks, newest first. No rows is an empty, non-nil slice.
func (r *PostgresRepository) List(ctx context.Context, userID int64) ([]*models.Task, error) {
	query, args, err := psql.Select(columns...).
		From("tasks").
		Where(sq.Eq{"user_id": userID}).
		OrderBy("created_at DESC", "id DESC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	result := make([]*models.Task, 0)
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return result, nil
}

func (r *PostgresRepository) Get(ctx context.Context, userID, taskID int64) (*models.Task, error) {
	query := `SELECT ` + strings.Join(columns, ", ") + ` FROM tasks
		 WHERE id = $1 AND user_id = $2
		 `

	return scanOne(r.db.QueryRowContext(ctx, query, taskID, userID))
}

// Create inserts task as given; defaults must already be applied by the caller.
func (r *PostgresRepository) Create(ctx context.Context, task *models.Task) (*models.Task, error) {
	query :=
		`INSERT INTO tasks (user_id, title, description, status, priority, due_date)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING ` + strings.Join(columns, ", ")

	return scanOne(r.db.QueryRowContext(ctx, query,
		task.UserID, task.Title, nullableString(task.Description),
		string(task.Status), string(task.Priority), nullableDate(task.DueDate)))
}

// Update writes only the fields present in patch and always sets
// updated_at from the database clock, the same source as created_at. It returns common.ErrorNotFound when no row matches both ids.
func (r *PostgresRepository) Update(ctx context.Context, userID, taskID int64, patch *models.TaskPatch) (*models.Task, error) {
	b := psql.Update("tasks")

	if patch.Title.Set {
		b = b.Set("title", patch.Title.Value)
	}
	if patch.Description.Set {
		b = b.Set("description", nullableString(patch.Description.Ptr()))
	}
	if patch.Status.Set {
		b = b.Set("status", string(patch.Status.Value))
	}
	if patch.Priority.Set {
		b = b.Set("priority", string(patch.Priority.Value))
	}
	if patch.DueDate.Set {
		b = b.Set("due_date", nullableDate(patch.DueDate.Ptr()))
	}

	query, args, err := b.Set("updated_at", sq.Expr("now()")).
		Where(sq.And{sq.Eq{"id": taskID}, sq.Eq{"user_id": userID}}).
		Suffix("RETURNING " + strings.Join(columns, ", ")).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	return scanOne(r.db.QueryRowContext(ctx, query, args...))
}

func (r *PostgresRepository) Delete(ctx context.Context, userID, taskID int64) error {
	query := `DELETE FROM tasks WHERE id = $1 AND user_id = $2`

	res, err := r.db.ExecContext(ctx, query, taskID, userID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}

	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTask(s scanner) (*models.Task, error) {
	var (
		t           models.Task
		description sql.NullString
		dueDate     sql.NullTime
		status      string
		priority    string
	)

	if err := s.Scan(&t.ID, &t.UserID, &t.Title, &description, &status, &priority, &dueDate, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}

	t.Status = models.TaskStatus(status)
	t.Priority = models.TaskPriority(priority)
	if description.Valid {
		t.Description = &description.String
	}
	if dueDate.Valid {
		d := models.NewDate(dueDate.Time)
		t.DueDate = &d
	}

	return &t, nil
}

func scanOne(row *sql.Row) (*models.Task, error) {
	t, err := scanTask(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return t, nil
}

func nullableString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func nullableDate(d *models.Date) any {
	if d == nil {
		return nil
	}
	return d.Time
}

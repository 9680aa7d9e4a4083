package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"taskboard-api/domain"
)

const taskColumns = "id, title, description, status, user_id, created_at, updated_at"

var taskOrderColumns = map[domain.TaskOrderField]string{
	domain.OrderByCreatedAt: "created_at",
	domain.OrderByUpdatedAt: "updated_at",
	domain.OrderByTitle:     "title",
	domain.OrderByStatus:    "status",
}

func scanTask(row scanner) (domain.Task, error) {
	var t domain.Task
	var status string
	var createdAt, updatedAt int64
	if err := row.Scan(&t.ID, &t.Title, &t.Description, &status, &t.UserID, &createdAt, &updatedAt); err != nil {
		return domain.Task{}, err
	}
	t.Status = domain.TaskStatus(status)
	t.CreatedAt = fromNanos(createdAt)
	t.UpdatedAt = fromNanos(updatedAt)
	return t, nil
}

func (s *Store) GetTask(ctx context.Context, id string) (*domain.Task, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+taskColumns+" FROM tasks WHERE id = ?", id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func taskWhere(f domain.TaskFilter) (string, []any) {
	clauses := []string{"user_id = ?"}
	args := []any{f.UserID}
	if f.Status != nil {
		clauses = append(clauses, "status = ?")
		args = append(args, string(*f.Status))
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// taskOrder builds the ORDER BY clause from whitelisted columns only.
func taskOrder(f domain.TaskFilter) string {
	col, ok := taskOrderColumns[f.OrderBy]
	if !ok {
		col = "created_at"
	}
	dir := "DESC"
	if f.Direction == domain.SortAsc {
		dir = "ASC"
	}
	return " ORDER BY " + col + " " + dir + ", id " + dir
}

func (s *Store) ListTasks(ctx context.Context, f domain.TaskFilter) ([]domain.Task, error) {
	where, args := taskWhere(f)
	query := "SELECT " + taskColumns + " FROM tasks" + where + taskOrder(f) + " LIMIT ? OFFSET ?"
	args = append(args, limit(f.Take), f.Skip)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	tasks := []domain.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func (s *Store) CountTasks(ctx context.Context, f domain.TaskFilter) (int, error) {
	where, args := taskWhere(f)
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM tasks"+where, args...).Scan(&n)
	return n, err
}

func (s *Store) CreateTask(ctx context.Context, t domain.Task) (domain.Task, error) {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO tasks ("+taskColumns+") VALUES (?, ?, ?, ?, ?, ?, ?)",
		t.ID, t.Title, t.Description, string(t.Status), t.UserID, toNanos(t.CreatedAt), toNanos(t.UpdatedAt))
	if err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

func (s *Store) UpdateTask(ctx context.Context, id string, p domain.TaskPatch) (domain.Task, error) {
	row := s.db.QueryRowContext(ctx,
		`UPDATE tasks SET
			title = COALESCE(?, title),
			description = COALESCE(?, description),
			status = COALESCE(?, status),
			updated_at = COALESCE(?, updated_at)
		WHERE id = ? RETURNING `+taskColumns,
		optional(p.Title), optional(p.Description), optional(p.Status), optionalTime(p.UpdatedAt), id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Task{}, domain.ErrRecordNotFound
	}
	if err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

func (s *Store) DeleteTask(ctx context.Context, id string) (domain.Task, error) {
	row := s.db.QueryRowContext(ctx, "DELETE FROM tasks WHERE id = ? RETURNING "+taskColumns, id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Task{}, domain.ErrRecordNotFound
	}
	if err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"taskboard-api/domain"
)

const userColumns = "id, email, name, password_hash, created_at, updated_at"

func scanUser(row scanner) (domain.User, error) {
	var u domain.User
	var createdAt, updatedAt int64
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &createdAt, &updatedAt); err != nil {
		return domain.User{}, err
	}
	u.CreatedAt = fromNanos(createdAt)
	u.UpdatedAt = fromNanos(updatedAt)
	return u, nil
}

func (s *Store) getUserWhere(ctx context.Context, where string, arg any) (*domain.User, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE "+where, arg)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Store) GetUser(ctx context.Context, id string) (*domain.User, error) {
	return s.getUserWhere(ctx, "id = ?", id)
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	return s.getUserWhere(ctx, "email = ?", email)
}

func userWhere(q domain.UserQuery) (string, []any) {
	if q.EmailContains == "" {
		return "", nil
	}
	return " WHERE instr(email, ?) > 0", []any{q.EmailContains}
}

func (s *Store) ListUsers(ctx context.Context, q domain.UserQuery) ([]domain.User, error) {
	where, args := userWhere(q)
	dir := "DESC"
	if q.Direction == domain.SortAsc {
		dir = "ASC"
	}
	query := "SELECT " + userColumns + " FROM users" + where +
		fmt.Sprintf(" ORDER BY created_at %s, id %s LIMIT ? OFFSET ?", dir, dir)
	args = append(args, limit(q.Take), q.Skip)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	users := []domain.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *Store) CountUsers(ctx context.Context, q domain.UserQuery) (int, error) {
	where, args := userWhere(q)
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM users"+where, args...).Scan(&n)
	return n, err
}

func (s *Store) CreateUser(ctx context.Context, u domain.User) (domain.User, error) {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO users ("+userColumns+") VALUES (?, ?, ?, ?, ?, ?)",
		u.ID, u.Email, u.Name, u.PasswordHash, toNanos(u.CreatedAt), toNanos(u.UpdatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return domain.User{}, domain.ErrEmailTaken
		}
		return domain.User{}, err
	}
	return u, nil
}

func (s *Store) UpdateUser(ctx context.Context, id string, p domain.UserPatch) (domain.User, error) {
	row := s.db.QueryRowContext(ctx,
		`UPDATE users SET
			name = COALESCE(?, name),
			email = COALESCE(?, email),
			updated_at = COALESCE(?, updated_at)
		WHERE id = ? RETURNING `+userColumns,
		optional(p.Name), optional(p.Email), optionalTime(p.UpdatedAt), id)
	u, err := scanUser(row)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return domain.User{}, domain.ErrRecordNotFound
	case isUniqueViolation(err):
		return domain.User{}, domain.ErrEmailTaken
	case err != nil:
		return domain.User{}, err
	}
	return u, nil
}

func (s *Store) DeleteUser(ctx context.Context, id string) (domain.User, error) {
	row := s.db.QueryRowContext(ctx, "DELETE FROM users WHERE id = ? RETURNING "+userColumns, id)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.User{}, domain.ErrRecordNotFound
	}
	if err != nil {
		return domain.User{}, err
	}
	return u, nil
}

// limit maps a zero take to SQLite's "no limit".
func limit(take int) int {
	if take <= 0 {
		return -1
	}
	return take
}

package domain

import "context"

// UserStore persists user records. Lookups return nil, nil when the record
// is absent; UpdateUser and DeleteUser return ErrRecordNotFound instead.
// CreateUser and UpdateUser return ErrEmailTaken on a duplicate email.
type UserStore interface {
	GetUser(ctx context.Context, id string) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	ListUsers(ctx context.Context, q UserQuery) ([]User, error)
	CountUsers(ctx context.Context, q UserQuery) (int, error)
	CreateUser(ctx context.Context, u User) (User, error)
	UpdateUser(ctx context.Context, id string, p UserPatch) (User, error)
	DeleteUser(ctx context.Context, id string) (User, error)
}

// TaskStore persists task records with the same absence conventions as
// UserStore.
type TaskStore interface {
	GetTask(ctx context.Context, id string) (*Task, error)
	ListTasks(ctx context.Context, f TaskFilter) ([]Task, error)
	CountTasks(ctx context.Context, f TaskFilter) (int, error)
	CreateTask(ctx context.Context, t Task) (Task, error)
	UpdateTask(ctx context.Context, id string, p TaskPatch) (Task, error)
	DeleteTask(ctx context.Context, id string) (Task, error)
}

// PasswordHasher produces and checks salted password digests.
type PasswordHasher interface {
	Hash(plaintext string) (string, error)
	Verify(plaintext, digest string) bool
}

// TokenIssuer signs identity claims into a bearer token.
type TokenIssuer interface {
	Issue(id Identity) (string, error)
}

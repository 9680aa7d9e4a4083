package api

import (
	"context"

	"taskboard-api/domain"
)

// Authenticator exchanges credentials for a bearer token.
type Authenticator interface {
	Login(ctx context.Context, email, password string) (domain.LoginResult, error)
}

// UserDirectory covers sign-up and the profile operations.
type UserDirectory interface {
	SignUp(ctx context.Context, in domain.SignUpInput) (domain.PublicUser, error)
	Find(ctx context.Context, id string) (domain.PublicUser, error)
	Me(ctx context.Context, caller domain.Identity) (domain.PublicUser, error)
	Update(ctx context.Context, caller domain.Identity, id string, p domain.UserPatch) (domain.PublicUser, error)
	Delete(ctx context.Context, caller domain.Identity, id string) error
	List(ctx context.Context, q domain.UserQuery) (domain.UserPage, error)
}

// TaskManager runs the ownership-checked task operations for a caller.
type TaskManager interface {
	Create(ctx context.Context, caller domain.Identity, in domain.NewTask) (domain.Task, error)
	Find(ctx context.Context, caller domain.Identity, id string) (domain.Task, error)
	Update(ctx context.Context, caller domain.Identity, id string, p domain.TaskPatch) (domain.Task, error)
	Delete(ctx context.Context, caller domain.Identity, id string) (domain.Task, error)
	List(ctx context.Context, caller domain.Identity, q domain.TaskQuery) (domain.TaskPage, error)
}

// TokenVerifier turns a raw bearer token into the identity it carries.
type TokenVerifier interface {
	Verify(raw string) (domain.Identity, error)
}

// Deduper prevents processing of duplicate task creations.
type Deduper interface {
	// Add records the idempotency key and returns true if it was newly added.
	Add(ctx context.Context, userID, key string) (bool, error)
	// Remove deletes a previously added key, used when creation fails.
	Remove(ctx context.Context, userID, key string) error
}

// HealthChecker reports whether a backing dependency is reachable.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// Probes pings each checker in order and returns the first failure.
type Probes []HealthChecker

func (p Probes) Ping(ctx context.Context) error {
	for _, hc := range p {
		if err := hc.Ping(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Services bundles the collaborators the routes dispatch to. Deduper and
// Health are optional.
type Services struct {
	Auth    Authenticator
	Users   UserDirectory
	Tasks   TaskManager
	Tokens  TokenVerifier
	Deduper Deduper
	Health  HealthChecker
}

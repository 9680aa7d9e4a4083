package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// UserService handles sign-up and profile operations.
type UserService struct {
	st     UserStore
	hasher PasswordHasher
	pub    EventPublisher
	now    func() time.Time
	newID  func() string
}

func NewUserService(st UserStore, hasher PasswordHasher, pub EventPublisher) UserService {
	if pub == nil {
		pub = nopPublisher{}
	}
	return UserService{st: st, hasher: hasher, pub: pub, now: time.Now, newID: uuid.NewString}
}

// SignUp registers a new user and returns its public view.
func (s UserService) SignUp(ctx context.Context, in SignUpInput) (PublicUser, error) {
	if err := in.validate(); err != nil {
		return PublicUser{}, err
	}
	existing, err := s.st.GetUserByEmail(ctx, in.Email)
	if err != nil {
		return PublicUser{}, fmt.Errorf("lookup user by email: %w", err)
	}
	if existing != nil {
		return PublicUser{}, ErrEmailAlreadyRegistered
	}

	digest, err := s.hasher.Hash(in.Password)
	if err != nil {
		return PublicUser{}, fmt.Errorf("hash password: %w", err)
	}
	now := s.now().UTC()
	u, err := s.st.CreateUser(ctx, User{
		ID:           s.newID(),
		Email:        in.Email,
		Name:         in.Name,
		PasswordHash: digest,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		if errors.Is(err, ErrEmailTaken) {
			return PublicUser{}, ErrEmailAlreadyRegistered
		}
		return PublicUser{}, fmt.Errorf("create user: %w", err)
	}
	log.WithField("user", u.ID).Info("user signed up")
	publish(ctx, s.pub, newEvent(UserCreated, "user", u.ID, u.ID, map[string]string{"name": u.Name, "email": u.Email}, now))
	return u.Public(), nil
}

// Find returns the public view of the user with the given id.
func (s UserService) Find(ctx context.Context, id string) (PublicUser, error) {
	u, err := s.get(ctx, id)
	if err != nil {
		return PublicUser{}, err
	}
	return u.Public(), nil
}

// Me returns the caller's own profile.
func (s UserService) Me(ctx context.Context, caller Identity) (PublicUser, error) {
	return s.Find(ctx, caller.ID)
}

// Update changes the caller's own name or email.
func (s UserService) Update(ctx context.Context, caller Identity, id string, p UserPatch) (PublicUser, error) {
	if err := p.validate(); err != nil {
		return PublicUser{}, err
	}
	u, err := s.self(ctx, caller, id)
	if err != nil {
		return PublicUser{}, err
	}
	if p.Email != nil && *p.Email != u.Email {
		other, err := s.st.GetUserByEmail(ctx, *p.Email)
		if err != nil {
			return PublicUser{}, fmt.Errorf("lookup user by email: %w", err)
		}
		if other != nil {
			return PublicUser{}, ErrEmailAlreadyRegistered
		}
	}
	now := s.now().UTC()
	p.UpdatedAt = now
	updated, err := s.st.UpdateUser(ctx, id, p)
	if err != nil {
		switch {
		case errors.Is(err, ErrRecordNotFound):
			return PublicUser{}, userNotFound(id)
		case errors.Is(err, ErrEmailTaken):
			return PublicUser{}, ErrEmailAlreadyRegistered
		}
		return PublicUser{}, fmt.Errorf("update user %s: %w", id, err)
	}
	publish(ctx, s.pub, newEvent(UserUpdated, "user", id, id, map[string]string{"name": updated.Name, "email": updated.Email}, now))
	return updated.Public(), nil
}

// Delete removes the caller's own account. Tasks are not cascaded.
func (s UserService) Delete(ctx context.Context, caller Identity, id string) error {
	if _, err := s.self(ctx, caller, id); err != nil {
		return err
	}
	if _, err := s.st.DeleteUser(ctx, id); err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return userNotFound(id)
		}
		return fmt.Errorf("delete user %s: %w", id, err)
	}
	publish(ctx, s.pub, newEvent(UserDeleted, "user", id, id, nil, s.now()))
	return nil
}

// List pages through the directory, newest first unless asked otherwise.
func (s UserService) List(ctx context.Context, q UserQuery) (UserPage, error) {
	if err := validatePaging(q.Skip, q.Take); err != nil {
		return UserPage{}, err
	}
	switch q.Direction {
	case "":
		q.Direction = SortDesc
	case SortAsc, SortDesc:
	default:
		return UserPage{}, Validation("order must be asc or desc")
	}
	users, err := s.st.ListUsers(ctx, q)
	if err != nil {
		return UserPage{}, fmt.Errorf("list users: %w", err)
	}
	total, err := s.st.CountUsers(ctx, q)
	if err != nil {
		return UserPage{}, fmt.Errorf("count users: %w", err)
	}
	page := UserPage{Data: make([]PublicUser, 0, len(users)), Meta: PageMeta{Total: total, Skip: q.Skip, Take: q.Take}}
	for _, u := range users {
		page.Data = append(page.Data, u.Public())
	}
	if page.Meta.Take == 0 {
		page.Meta.Take = len(page.Data)
	}
	return page, nil
}

func (s UserService) get(ctx context.Context, id string) (*User, error) {
	u, err := s.st.GetUser(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get user %s: %w", id, err)
	}
	if u == nil {
		return nil, userNotFound(id)
	}
	return u, nil
}

func (s UserService) self(ctx context.Context, caller Identity, id string) (*User, error) {
	u, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if u.ID != caller.ID {
		log.WithFields(log.Fields{"target": id, "user": caller.ID}).Info("profile change denied")
		return nil, ErrNotSelf
	}
	return u, nil
}

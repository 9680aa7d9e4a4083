package domain

import (
	"context"
	"fmt"
	"time"
)

// LoginResult is returned by a successful login.
type LoginResult struct {
	AccessToken string   `json:"access_token"`
	User        Identity `json:"user"`
}

// AuthService turns an email and password into a signed token.
type AuthService struct {
	users  UserStore
	hasher PasswordHasher
	tokens TokenIssuer
	pub    EventPublisher
	now    func() time.Time
	decoy  string
}

func NewAuthService(users UserStore, hasher PasswordHasher, tokens TokenIssuer, pub EventPublisher) AuthService {
	if pub == nil {
		pub = nopPublisher{}
	}
	s := AuthService{users: users, hasher: hasher, tokens: tokens, pub: pub, now: time.Now}
	// Unknown emails still pay for one digest comparison.
	if d, err := hasher.Hash("decoy-password"); err == nil {
		s.decoy = d
	}
	return s
}

// Login verifies the credentials and issues a token. Unknown emails and
// wrong passwords fail with the same ErrInvalidCredentials.
func (s AuthService) Login(ctx context.Context, email, password string) (LoginResult, error) {
	u, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		return LoginResult{}, fmt.Errorf("lookup user by email: %w", err)
	}
	if u == nil || len(password) > MaxPasswordLength {
		s.hasher.Verify(password, s.decoy)
		return LoginResult{}, ErrInvalidCredentials
	}
	if !s.hasher.Verify(password, u.PasswordHash) {
		return LoginResult{}, ErrInvalidCredentials
	}

	id := Identity{ID: u.ID, Email: u.Email}
	token, err := s.tokens.Issue(id)
	if err != nil {
		return LoginResult{}, fmt.Errorf("issue token: %w", err)
	}
	publish(ctx, s.pub, newEvent(UserLoggedIn, "user", u.ID, u.ID, nil, s.now()))
	return LoginResult{AccessToken: token, User: id}, nil
}

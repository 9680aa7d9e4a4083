package domain

import (
	"net/mail"
	"strings"
	"time"
)

// Password length bounds accepted at sign-up. bcrypt ignores bytes past 72.
const (
	MinPasswordLength = 6
	MaxPasswordLength = 72
)

// User is the stored identity record.
type User struct {
	ID           string
	Email        string
	Name         string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// PublicUser is the view of a user safe to return to clients.
type PublicUser struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (u User) Public() PublicUser {
	return PublicUser{
		ID:        u.ID,
		Email:     u.Email,
		Name:      u.Name,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

// Identity is the claim set carried by a verified token.
type Identity struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// SignUpInput holds the fields required to register a user.
type SignUpInput struct {
	Name     string
	Email    string
	Password string
}

func (in SignUpInput) validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return Validation("name is required")
	}
	if err := validateEmail(in.Email); err != nil {
		return err
	}
	if len(in.Password) < MinPasswordLength {
		return Validation("password must be at least %d characters long", MinPasswordLength)
	}
	if len(in.Password) > MaxPasswordLength {
		return Validation("password must be at most %d bytes long", MaxPasswordLength)
	}
	return nil
}

// UserPatch carries a partial profile update. Nil fields are left untouched.
// UpdatedAt is stamped by UserService before the patch reaches the store.
type UserPatch struct {
	Name      *string
	Email     *string
	UpdatedAt time.Time
}

// Apply returns u with the present patch fields applied.
func (p UserPatch) Apply(u User) User {
	if p.Name != nil {
		u.Name = *p.Name
	}
	if p.Email != nil {
		u.Email = *p.Email
	}
	if !p.UpdatedAt.IsZero() {
		u.UpdatedAt = p.UpdatedAt
	}
	return u
}

func (p UserPatch) validate() error {
	if p.Name != nil && strings.TrimSpace(*p.Name) == "" {
		return Validation("name must not be empty")
	}
	if p.Email != nil {
		return validateEmail(*p.Email)
	}
	return nil
}

// UserQuery filters and pages the user directory.
type UserQuery struct {
	Skip          int
	Take          int
	EmailContains string
	Direction     SortDirection
}

// PageMeta describes the window returned by a paged listing.
type PageMeta struct {
	Total int `json:"total"`
	Skip  int `json:"skip"`
	Take  int `json:"take"`
}

// UserPage is a page of public user views.
type UserPage struct {
	Data []PublicUser `json:"data"`
	Meta PageMeta     `json:"meta"`
}

func validateEmail(email string) error {
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return Validation("email must be a valid email address")
	}
	return nil
}

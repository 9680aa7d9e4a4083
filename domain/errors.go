package domain

import (
	"errors"
	"fmt"
)

// Kind classifies a business-rule failure so transports can pick a status code.
type Kind int

const (
	KindNotFound Kind = iota + 1
	KindForbidden
	KindConflict
	KindUnauthorized
	KindValidation
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindForbidden:
		return "forbidden"
	case KindConflict:
		return "conflict"
	case KindUnauthorized:
		return "unauthorized"
	case KindValidation:
		return "validation"
	default:
		return "unknown"
	}
}

// Error is a typed business-rule failure. Two errors are equal under
// errors.Is when their codes match, so messages may carry request details.
type Error struct {
	Kind    Kind
	Code    string
	Message string
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

var (
	// ErrInvalidCredentials is shared by unknown email and wrong password.
	ErrInvalidCredentials     = &Error{Kind: KindUnauthorized, Code: "INVALID_CREDENTIALS", Message: "invalid credentials"}
	ErrEmailAlreadyRegistered = &Error{Kind: KindConflict, Code: "EMAIL_ALREADY_REGISTERED", Message: "a user with this email already exists"}
	ErrTaskNotFound           = &Error{Kind: KindNotFound, Code: "TASK_NOT_FOUND", Message: "task not found"}
	ErrUserNotFound           = &Error{Kind: KindNotFound, Code: "USER_NOT_FOUND", Message: "user not found"}
	ErrNotOwner               = &Error{Kind: KindForbidden, Code: "NOT_OWNER", Message: "you do not have permission to access this task"}
	ErrNotSelf                = &Error{Kind: KindForbidden, Code: "NOT_SELF", Message: "you do not have permission to modify this user"}
	ErrTokenInvalid           = &Error{Kind: KindUnauthorized, Code: "TOKEN_INVALID", Message: "invalid token"}
	ErrTokenExpired           = &Error{Kind: KindUnauthorized, Code: "TOKEN_EXPIRED", Message: "token expired"}
	ErrValidation             = &Error{Kind: KindValidation, Code: "VALIDATION", Message: "validation failed"}
)

// Storage sentinels returned by UserStore and TaskStore implementations.
var (
	ErrRecordNotFound = errors.New("record not found")
	ErrEmailTaken     = errors.New("email already taken")
)

// Validation returns a validation failure with a caller-facing message.
func Validation(format string, args ...any) error {
	return &Error{Kind: KindValidation, Code: ErrValidation.Code, Message: fmt.Sprintf(format, args...)}
}

func taskNotFound(id string) error {
	return &Error{Kind: KindNotFound, Code: ErrTaskNotFound.Code, Message: fmt.Sprintf("task with ID %s not found", id)}
}

func userNotFound(id string) error {
	return &Error{Kind: KindNotFound, Code: ErrUserNotFound.Code, Message: fmt.Sprintf("user with ID %s not found", id)}
}

// AsError extracts the domain error from err's chain.
func AsError(err error) (*Error, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

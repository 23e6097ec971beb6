package service

import (
	"errors"
	"sort"
	"strings"

	"github.com/Skotchmaster/car_rental/internal/access"
)

var (
	ErrValidation         = errors.New("validation error")
	ErrNotFound           = errors.New("not found")
	ErrNotAuthenticated   = access.ErrNotAuthenticated
	ErrPermissionDenied   = access.ErrPermissionDenied
	ErrInvalidCredentials = errors.New("no active account found with the given credentials")
	ErrInvalidToken       = errors.New("token is invalid or expired")
	ErrTokenBlacklisted   = errors.New("token is blacklisted")
	ErrInactiveUser       = errors.New("user is inactive")
	ErrTokenExpired       = errors.New("activation expired")
	ErrTokenMalformed     = errors.New("invalid token")
	ErrResetLinkInvalid   = errors.New("token is not valid, please request a new one")
	ErrSearchDisabled     = errors.New("search is not configured")
)

// ValidationError carries messages per input field.
type ValidationError struct {
	Fields map[string][]string
}

func NewValidationError(field, msg string) *ValidationError {
	v := &ValidationError{}
	v.Add(field, msg)
	return v
}

func (e *ValidationError) Add(field, msg string) {
	if e.Fields == nil {
		e.Fields = map[string][]string{}
	}
	e.Fields[field] = append(e.Fields[field], msg)
}

func (e *ValidationError) Empty() bool { return len(e.Fields) == 0 }

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+strings.Join(e.Fields[k], "; "))
	}
	return "validation error: " + strings.Join(parts, ", ")
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

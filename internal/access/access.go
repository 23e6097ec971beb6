package access

import (
	"context"
	"errors"
)

var (
	ErrNotAuthenticated = errors.New("authentication credentials were not provided")
	ErrPermissionDenied = errors.New("you do not have permission to perform this action")
)

// Principal is the requester as seen by the account core.
type Principal struct {
	UserID        uint
	Username      string
	IsStaff       bool
	Authenticated bool
}

func Anonymous() Principal { return Principal{} }

func User(id uint, username string, isStaff bool) Principal {
	return Principal{UserID: id, Username: username, IsStaff: isStaff, Authenticated: true}
}

type ctxKey struct{}

func IntoContext(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

// FromContext returns the anonymous principal when none was stored.
func FromContext(ctx context.Context) Principal {
	if p, ok := ctx.Value(ctxKey{}).(Principal); ok {
		return p
	}
	return Anonymous()
}

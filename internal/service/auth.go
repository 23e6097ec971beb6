package service

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/Skotchmaster/car_rental/internal/access"
	"github.com/Skotchmaster/car_rental/internal/events"
	"github.com/Skotchmaster/car_rental/internal/hash"
	"github.com/Skotchmaster/car_rental/internal/logging"
	"github.com/Skotchmaster/car_rental/internal/models"
	"github.com/Skotchmaster/car_rental/internal/repo"
	"github.com/Skotchmaster/car_rental/internal/tokens"
)

type AuthService struct {
	Repo          *repo.GormRepo
	Tokens        *tokens.Issuer
	Events        EventPublisher
	RotateRefresh bool
}

type TokenPair struct {
	Access     string
	Refresh    string
	AccessExp  time.Time
	RefreshExp time.Time
}

func (s *AuthService) Login(ctx context.Context, username, password string) (*TokenPair, error) {
	l := logging.FromContext(ctx).With("svc", "auth.login", "username", username)

	u, err := s.Repo.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			l.Warn("login failed", "status", 401, "reason", "unknown username")
			return nil, ErrInvalidCredentials
		}
		l.Error("login failed", "status", 500, "error", err)
		return nil, err
	}
	if !hash.CheckPassword(u.PasswordHash, password) {
		l.Warn("login failed", "status", 401, "reason", "wrong password")
		return nil, ErrInvalidCredentials
	}
	if !u.IsActive {
		l.Warn("login failed", "status", 401, "reason", "inactive user")
		return nil, ErrInvalidCredentials
	}

	acc, err := s.Tokens.Access(u)
	if err != nil {
		l.Error("login failed", "status", 500, "error", err)
		return nil, err
	}
	refresh, err := s.issueRefresh(ctx, u, nil)
	if err != nil {
		l.Error("login failed", "status", 500, "error", err)
		return nil, err
	}

	if err := s.Repo.TouchLastLogin(ctx, u.ID, time.Now().UTC()); err != nil {
		l.Warn("touch_last_login_failed", "error", err)
	}

	return &TokenPair{
		Access:     acc.Token,
		Refresh:    refresh.Token,
		AccessExp:  acc.ExpiresAt,
		RefreshExp: refresh.ExpiresAt,
	}, nil
}

// issueRefresh signs a refresh token and records it in the ledger.
// When replacing is set the old row is blacklisted in the same transaction.
func (s *AuthService) issueRefresh(ctx context.Context, u *models.User, replacing *models.OutstandingToken) (tokens.Issued, error) {
	tok, err := s.Tokens.Refresh(u)
	if err != nil {
		return tokens.Issued{}, err
	}
	row := &models.OutstandingToken{
		UserID:    u.ID,
		JTI:       tok.JTI,
		TokenHash: tokens.Sha256Hex(tok.Token),
		ExpiresAt: tok.ExpiresAt,
	}

	if replacing == nil {
		err = s.Repo.AddOutstanding(ctx, row)
	} else {
		err = s.Repo.RotateRefresh(ctx, replacing.ID, row)
	}
	if err != nil {
		if errors.Is(err, repo.ErrAlreadyBlacklisted) {
			return tokens.Issued{}, ErrTokenBlacklisted
		}
		return tokens.Issued{}, err
	}
	return tok, nil
}

// lookupRefresh resolves a presented refresh token to its ledger row.
func (s *AuthService) lookupRefresh(ctx context.Context, raw string) (*tokens.RefreshClaims, *models.OutstandingToken, error) {
	claims, err := s.Tokens.ParseRefresh(raw)
	if err != nil {
		return nil, nil, ErrInvalidToken
	}
	row, err := s.Repo.FindOutstandingByJTI(ctx, claims.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrInvalidToken
		}
		return nil, nil, err
	}
	if row.TokenHash != tokens.Sha256Hex(raw) {
		return nil, nil, ErrInvalidToken
	}
	black, err := s.Repo.IsBlacklisted(ctx, row.ID)
	if err != nil {
		return nil, nil, err
	}
	if black {
		return nil, nil, ErrTokenBlacklisted
	}
	return claims, row, nil
}

// Refresh mints a new access token. With rotation on it also returns a new
// refresh token and revokes the presented one.
func (s *AuthService) Refresh(ctx context.Context, raw string) (*TokenPair, error) {
	l := logging.FromContext(ctx).With("svc", "auth.refresh")

	_, row, err := s.lookupRefresh(ctx, raw)
	if err != nil {
		l.Warn("refresh failed", "status", 401, "reason", err.Error())
		return nil, err
	}
	u, err := s.Repo.GetUserByID(ctx, row.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}
	if !u.IsActive {
		l.Warn("refresh failed", "status", 401, "reason", "inactive user", "user_id", u.ID)
		return nil, ErrInactiveUser
	}

	acc, err := s.Tokens.Access(u)
	if err != nil {
		return nil, err
	}
	pair := &TokenPair{Access: acc.Token, AccessExp: acc.ExpiresAt}

	if s.RotateRefresh {
		next, err := s.issueRefresh(ctx, u, row)
		if err != nil {
			l.Warn("refresh failed", "status", 401, "reason", err.Error())
			return nil, err
		}
		pair.Refresh = next.Token
		pair.RefreshExp = next.ExpiresAt
	}
	return pair, nil
}

// Logout blacklists one refresh token owned by p.
func (s *AuthService) Logout(ctx context.Context, p access.Principal, raw string) error {
	l := logging.FromContext(ctx).With("svc", "auth.logout", "user_id", p.UserID)

	if err := access.Authorize(access.ActionLogout, p); err != nil {
		return err
	}

	claims, row, err := s.lookupRefresh(ctx, raw)
	if err != nil {
		if errors.Is(err, ErrInvalidToken) || errors.Is(err, ErrTokenBlacklisted) {
			l.Warn("logout failed", "status", 400, "reason", err.Error())
			return NewValidationError("refresh", err.Error())
		}
		return err
	}
	if sub, err := tokens.SubjectID(claims.RegisteredClaims); err != nil || sub != p.UserID || row.UserID != p.UserID {
		l.Warn("logout failed", "status", 400, "reason", "token belongs to another user")
		return NewValidationError("refresh", ErrInvalidToken.Error())
	}

	created, err := s.Repo.Blacklist(ctx, row.ID)
	if err != nil {
		return err
	}
	if !created {
		return NewValidationError("refresh", ErrTokenBlacklisted.Error())
	}

	publish(ctx, l, s.Events, events.UserEvent{Type: events.Logout, UserID: p.UserID, Username: p.Username})
	return nil
}

// LogoutAll blacklists every refresh token ever issued to p. Calling it again is a no-op.
func (s *AuthService) LogoutAll(ctx context.Context, p access.Principal) (int, error) {
	l := logging.FromContext(ctx).With("svc", "auth.logout_all", "user_id", p.UserID)

	if err := access.Authorize(access.ActionLogoutAll, p); err != nil {
		return 0, err
	}
	n, err := s.Repo.BlacklistAllForUser(ctx, p.UserID)
	if err != nil {
		l.Error("logout_all failed", "status", 500, "revoked", n, "error", err)
		return n, err
	}

	publish(ctx, l, s.Events, events.UserEvent{Type: events.LogoutAll, UserID: p.UserID, Username: p.Username, Revoked: n})
	l.Info("logout_all", "revoked", n)
	return n, nil
}

// Principal turns verified access claims into a principal.
// Unknown and inactive users are rejected even while their token is unexpired.
func (s *AuthService) Principal(ctx context.Context, claims *tokens.AccessClaims) (access.Principal, error) {
	id, err := tokens.SubjectID(claims.RegisteredClaims)
	if err != nil {
		return access.Anonymous(), ErrInvalidToken
	}
	u, err := s.Repo.GetUserByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return access.Anonymous(), ErrInvalidToken
		}
		return access.Anonymous(), err
	}
	if !u.IsActive {
		return access.Anonymous(), ErrInactiveUser
	}
	return access.User(u.ID, u.Username, u.IsStaff), nil
}

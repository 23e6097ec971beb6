package service

import (
	"context"
	"errors"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"gorm.io/gorm"

	"github.com/Skotchmaster/car_rental/internal/access"
	"github.com/Skotchmaster/car_rental/internal/events"
	"github.com/Skotchmaster/car_rental/internal/hash"
	"github.com/Skotchmaster/car_rental/internal/logging"
	"github.com/Skotchmaster/car_rental/internal/mail"
	"github.com/Skotchmaster/car_rental/internal/models"
	"github.com/Skotchmaster/car_rental/internal/repo"
	"github.com/Skotchmaster/car_rental/internal/resettoken"
	"github.com/Skotchmaster/car_rental/internal/search"
	"github.com/Skotchmaster/car_rental/internal/tokens"
)

type AccountService struct {
	Repo     *repo.GormRepo
	Tokens   *tokens.Issuer
	Resets   *resettoken.Generator
	Mailer   mail.Sender
	Events   EventPublisher
	Index    UserIndexer
	Searcher UserSearcher
	Site     Site
}

type RegisterInput struct {
	Username string
	Email    string
	Password string
}

type RegisterResult struct {
	User      *models.User
	EmailSent bool
}

// UpdateInput holds the writable profile fields. nil means "leave as is".
type UpdateInput struct {
	Username *string
	Email    *string
}

func (s *AccountService) Register(ctx context.Context, p access.Principal, in RegisterInput) (*RegisterResult, error) {
	l := logging.FromContext(ctx).With("svc", "account.register")

	if err := access.Authorize(access.ActionCreate, p); err != nil {
		l.Warn("register_denied", "reason", err.Error())
		return nil, err
	}

	pwHash, err := hash.HashPassword(in.Password)
	if err != nil {
		l.Error("register_error", "status", 500, "reason", "cannot hash the password", "error", err)
		return nil, err
	}

	u := &models.User{
		Username:     strings.TrimSpace(in.Username),
		Email:        strings.TrimSpace(in.Email),
		PasswordHash: pwHash,
		IsActive:     true,
	}
	if err := s.Repo.CreateUser(ctx, u); err != nil {
		if verr := duplicateToValidation(err); verr != nil {
			l.Warn("register_error", "status", 400, "reason", err.Error())
			return nil, verr
		}
		l.Error("register_error", "status", 500, "error", err)
		return nil, err
	}

	res := &RegisterResult{User: u}
	res.EmailSent = s.sendVerification(ctx, u)

	publish(ctx, l, s.Events, events.UserEvent{Type: events.UserRegistered, UserID: u.ID, Username: u.Username})
	reindex(ctx, l, s.Index, u)

	l.Info("user_registered", "user_id", u.ID, "email_sent", res.EmailSent)
	return res, nil
}

// sendVerification mails the activation link. Failure keeps the user and is only logged.
func (s *AccountService) sendVerification(ctx context.Context, u *models.User) bool {
	l := logging.FromContext(ctx).With("svc", "account.register", "user_id", u.ID)
	if s.Mailer == nil || u.Email == "" {
		return false
	}

	tok, err := s.Tokens.Access(u)
	if err != nil {
		l.Error("verification_token_failed", "error", err)
		return false
	}
	link := mail.ActivationLink(s.Site.Scheme, s.Site.Domain, mail.VerifyPath, tok.Token)
	if err := s.Mailer.Send(ctx, mail.VerificationEmail(u.Email, u.Username, link)); err != nil {
		l.Error("verification_email_failed", "error", err)
		return false
	}
	return true
}

// List returns the users p may see. limit <= 0 returns all of them.
func (s *AccountService) List(ctx context.Context, p access.Principal, offset, limit int) ([]models.User, int64, error) {
	if err := access.Authorize(access.ActionList, p); err != nil {
		return nil, 0, err
	}
	return s.Repo.ListUsers(ctx, access.VisibleUsers(p), offset, limit)
}

func (s *AccountService) Retrieve(ctx context.Context, p access.Principal, id uint) (*models.User, error) {
	if err := access.Authorize(access.ActionRetrieve, p); err != nil {
		return nil, err
	}
	return s.visible(ctx, p, id)
}

func (s *AccountService) visible(ctx context.Context, p access.Principal, id uint) (*models.User, error) {
	u, err := s.Repo.GetVisibleUser(ctx, access.VisibleUsers(p), id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return u, nil
}

func (s *AccountService) Update(ctx context.Context, p access.Principal, id uint, in UpdateInput, partial bool) (*models.User, error) {
	l := logging.FromContext(ctx).With("svc", "account.update", "user_id", id)

	action := access.ActionUpdate
	if partial {
		action = access.ActionPartialUpdate
	}
	if err := access.Authorize(action, p); err != nil {
		return nil, err
	}

	if !partial && in.Username == nil {
		return nil, NewValidationError("username", "This field is required.")
	}

	u, err := s.visible(ctx, p, id)
	if err != nil {
		return nil, err
	}
	if in.Username != nil {
		u.Username = strings.TrimSpace(*in.Username)
	}
	if in.Email != nil {
		u.Email = strings.TrimSpace(*in.Email)
	}

	if err := s.Repo.UpdateProfile(ctx, u); err != nil {
		if verr := duplicateToValidation(err); verr != nil {
			l.Warn("update_error", "status", 400, "reason", err.Error())
			return nil, verr
		}
		l.Error("update_error", "status", 500, "error", err)
		return nil, err
	}

	publish(ctx, l, s.Events, events.UserEvent{Type: events.UserUpdated, UserID: u.ID, Username: u.Username})
	reindex(ctx, l, s.Index, u)
	return u, nil
}

// Destroy deactivates the user. Rows are never removed.
func (s *AccountService) Destroy(ctx context.Context, p access.Principal, id uint) error {
	l := logging.FromContext(ctx).With("svc", "account.destroy", "user_id", id)

	if err := access.Authorize(access.ActionDestroy, p); err != nil {
		return err
	}
	u, err := s.visible(ctx, p, id)
	if err != nil {
		return err
	}
	if err := s.Repo.SetActive(ctx, u.ID, false); err != nil {
		l.Error("destroy_error", "status", 500, "error", err)
		return err
	}
	u.IsActive = false

	publish(ctx, l, s.Events, events.UserEvent{Type: events.UserDeactivated, UserID: u.ID, Username: u.Username})
	reindex(ctx, l, s.Index, u)
	l.Info("user_deactivated")
	return nil
}

func (s *AccountService) ChangePassword(ctx context.Context, p access.Principal, oldPassword, newPassword string) error {
	l := logging.FromContext(ctx).With("svc", "account.change_password", "user_id", p.UserID)

	if err := access.Authorize(access.ActionChangePassword, p); err != nil {
		return err
	}
	u, err := s.Repo.GetUserByID(ctx, p.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return err
	}
	if !hash.CheckPassword(u.PasswordHash, oldPassword) {
		l.Warn("change_password_failed", "status", 400, "reason", "wrong old password")
		return NewValidationError("old_password", "Old password is not correct")
	}

	pwHash, err := hash.HashPassword(newPassword)
	if err != nil {
		return err
	}
	if err := s.Repo.SetPassword(ctx, u.ID, pwHash); err != nil {
		return err
	}

	publish(ctx, l, s.Events, events.UserEvent{Type: events.PasswordChanged, UserID: u.ID, Username: u.Username})
	return nil
}

// VerifyEmail activates the user named by a signed access token.
func (s *AccountService) VerifyEmail(ctx context.Context, token string) (*models.User, error) {
	l := logging.FromContext(ctx).With("svc", "account.verify_email")

	claims, err := s.Tokens.ParseAccess(token)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			l.Warn("verify_email_failed", "status", 400, "reason", "expired")
			return nil, ErrTokenExpired
		}
		l.Warn("verify_email_failed", "status", 400, "reason", "malformed", "error", err)
		return nil, ErrTokenMalformed
	}
	id, err := tokens.SubjectID(claims.RegisteredClaims)
	if err != nil {
		return nil, ErrTokenMalformed
	}
	u, err := s.Repo.GetUserByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTokenMalformed
		}
		return nil, err
	}

	if !u.IsActive {
		if err := s.Repo.SetActive(ctx, u.ID, true); err != nil {
			return nil, err
		}
		u.IsActive = true
		publish(ctx, l, s.Events, events.UserEvent{Type: events.UserActivated, UserID: u.ID, Username: u.Username})
		reindex(ctx, l, s.Index, u)
		l.Info("user_activated", "user_id", u.ID)
	}
	return u, nil
}

// RequestPasswordReset mails a reset link when an active account owns email.
// The outcome is not reported to the caller.
func (s *AccountService) RequestPasswordReset(ctx context.Context, email string) error {
	l := logging.FromContext(ctx).With("svc", "account.request_reset")

	u, err := s.Repo.GetUserByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			l.Debug("reset_requested_unknown_email")
			return nil
		}
		return err
	}
	if !u.IsActive {
		l.Debug("reset_requested_inactive_user", "user_id", u.ID)
		return nil
	}

	link := mail.ResetLink(s.Site.Scheme, s.Site.Domain, resettoken.EncodeUID(u.ID), s.Resets.Make(u))
	if s.Mailer == nil {
		l.Warn("reset_email_skipped", "user_id", u.ID, "reason", "no mailer")
		return nil
	}
	if err := s.Mailer.Send(ctx, mail.PasswordResetEmail(u.Email, link)); err != nil {
		l.Error("reset_email_failed", "user_id", u.ID, "error", err)
		return nil
	}
	l.Info("reset_email_sent", "user_id", u.ID)
	return nil
}

func (s *AccountService) CheckResetToken(ctx context.Context, uidb64, token string) (*models.User, error) {
	id, err := resettoken.DecodeUID(uidb64)
	if err != nil {
		return nil, ErrResetLinkInvalid
	}
	u, err := s.Repo.GetUserByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrResetLinkInvalid
		}
		return nil, err
	}
	if !u.IsActive || !s.Resets.Check(u, token) {
		return nil, ErrResetLinkInvalid
	}
	return u, nil
}

// SetNewPassword completes a reset. The token stops working once the hash changes.
func (s *AccountService) SetNewPassword(ctx context.Context, uidb64, token, password string) error {
	l := logging.FromContext(ctx).With("svc", "account.reset_complete")

	u, err := s.CheckResetToken(ctx, uidb64, token)
	if err != nil {
		l.Warn("reset_complete_failed", "status", 401, "reason", err.Error())
		return err
	}
	pwHash, err := hash.HashPassword(password)
	if err != nil {
		return err
	}
	if err := s.Repo.SetPassword(ctx, u.ID, pwHash); err != nil {
		return err
	}

	publish(ctx, l, s.Events, events.UserEvent{Type: events.PasswordReset, UserID: u.ID, Username: u.Username})
	l.Info("password_reset", "user_id", u.ID)
	return nil
}

func (s *AccountService) Search(ctx context.Context, p access.Principal, q string, from, size int) (search.Results, error) {
	if err := access.Authorize(access.ActionSearch, p); err != nil {
		return search.Results{}, err
	}
	if s.Searcher == nil {
		return search.Results{}, ErrSearchDisabled
	}
	return s.Searcher.Search(ctx, q, from, size)
}

func duplicateToValidation(err error) *ValidationError {
	switch {
	case errors.Is(err, repo.ErrUsernameTaken):
		return NewValidationError("username", repo.ErrUsernameTaken.Error())
	case errors.Is(err, repo.ErrEmailTaken):
		return NewValidationError("email", repo.ErrEmailTaken.Error())
	}
	return nil
}

// Package profile serves account self-service once a user is signed in.
package profile

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kamdhenuseva/server/internal/auth"
	"github.com/kamdhenuseva/server/internal/model"
	"github.com/kamdhenuseva/server/internal/repo"
)

const (
	minNameLength = 2
	maxNameLength = 100
)

// TokenRotator re-signs the session credential after a password change.
type TokenRotator interface {
	Rotate(acct model.Account) (auth.IssuedToken, error)
}

// Service implements profile read, update, rename, password change and deletion.
// Every operation requires a verified account.
type Service struct {
	accounts repo.AccountRepo
	hasher   auth.PasswordHasher
	tokens   TokenRotator
	logger   *zap.Logger
}

// NewService creates a profile service.
func NewService(accounts repo.AccountRepo, hasher auth.PasswordHasher, tokens TokenRotator, logger *zap.Logger) *Service {
	return &Service{accounts: accounts, hasher: hasher, tokens: tokens, logger: logger}
}

func (s *Service) verified(ctx context.Context, id uuid.UUID, action string) (model.Account, error) {
	acct, err := s.accounts.GetByID(ctx, id)
	if errors.Is(err, repo.ErrNotFound) {
		return model.Account{}, auth.NewError(auth.KindNotFound, auth.MsgUserNotFound)
	}
	if err != nil {
		return model.Account{}, err
	}
	if !acct.IsVerified {
		return model.Account{}, auth.NewError(auth.KindForbidden,
			"Your email is not verified. Please verify your email to "+action+".")
	}
	return acct, nil
}

// Get returns the caller's account.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (model.Account, error) {
	return s.verified(ctx, id, "access your profile")
}

// Update changes the non-sensitive fields. Nil fields are left untouched.
func (s *Service) Update(ctx context.Context, id uuid.UUID, email *string, dob *time.Time) (model.Account, error) {
	if _, err := s.verified(ctx, id, "update your profile"); err != nil {
		return model.Account{}, err
	}
	if email != nil {
		normalized := auth.NormalizeEmail(*email)
		if normalized == "" {
			return model.Account{}, auth.NewError(auth.KindValidation, "Invalid email format",
				auth.FieldError{Field: "email", Message: "Invalid email format"})
		}
		email = &normalized
	}
	acct, err := s.accounts.UpdateProfile(ctx, id, email, dob)
	if errors.Is(err, repo.ErrDuplicate) {
		return model.Account{}, auth.NewError(auth.KindConflict, "Email already in use")
	}
	if errors.Is(err, repo.ErrNotFound) {
		return model.Account{}, auth.NewError(auth.KindNotFound, auth.MsgUserNotFound)
	}
	if err != nil {
		return model.Account{}, err
	}
	s.logger.Info("profile updated", zap.String("account_id", id.String()))
	return acct, nil
}

// Rename sets a new display name after re-checking the password.
func (s *Service) Rename(ctx context.Context, id uuid.UUID, currentPassword, newName string) (model.Account, error) {
	if currentPassword == "" || newName == "" {
		return model.Account{}, auth.NewError(auth.KindValidation, "currentPassword and newName are required.")
	}
	acct, err := s.verified(ctx, id, "rename your profile")
	if err != nil {
		return model.Account{}, err
	}
	if !acct.HasPassword() || !s.hasher.Compare(*acct.PasswordHash, currentPassword) {
		return model.Account{}, auth.NewError(auth.KindUnauthorized, "Invalid current password")
	}
	name := strings.TrimSpace(newName)
	if n := len([]rune(name)); n < minNameLength || n > maxNameLength {
		return model.Account{}, auth.NewError(auth.KindValidation, "Invalid name length.",
			auth.FieldError{Field: "newName", Message: "Name must be between 2 and 100 characters"})
	}
	return s.accounts.UpdateName(ctx, id, name)
}

// ChangePassword replaces the password and returns a fresh session token.
func (s *Service) ChangePassword(ctx context.Context, id uuid.UUID, oldPassword, newPassword string) (auth.IssuedToken, error) {
	if oldPassword == "" || newPassword == "" {
		return auth.IssuedToken{}, auth.NewError(auth.KindValidation, "oldPassword and newPassword are required.")
	}
	acct, err := s.verified(ctx, id, "change password")
	if err != nil {
		return auth.IssuedToken{}, err
	}
	if !acct.HasPassword() || !s.hasher.Compare(*acct.PasswordHash, oldPassword) {
		return auth.IssuedToken{}, auth.NewError(auth.KindUnauthorized, "Invalid old password")
	}
	if len(newPassword) < auth.MinPasswordLength {
		return auth.IssuedToken{}, auth.NewError(auth.KindValidation, "New password must be at least 6 characters.",
			auth.FieldError{Field: "newPassword", Message: "New password must be at least 6 characters."})
	}
	if s.hasher.Compare(*acct.PasswordHash, newPassword) {
		return auth.IssuedToken{}, auth.NewError(auth.KindValidation, "New password must be different from the old password.")
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return auth.IssuedToken{}, err
	}
	if err := s.accounts.UpdatePassword(ctx, id, hash); err != nil {
		if errors.Is(err, repo.ErrNoMatch) {
			return auth.IssuedToken{}, auth.NewError(auth.KindForbidden, auth.MsgEmailNotVerified)
		}
		return auth.IssuedToken{}, err
	}
	s.logger.Info("password changed", zap.String("account_id", id.String()))
	return s.tokens.Rotate(acct)
}

// Delete removes the account and everything that cascades from it.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := s.verified(ctx, id, "delete your account"); err != nil {
		return err
	}
	if err := s.accounts.Delete(ctx, id); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return auth.NewError(auth.KindNotFound, auth.MsgUserNotFound)
		}
		return err
	}
	s.logger.Info("account deleted", zap.String("account_id", id.String()))
	return nil
}

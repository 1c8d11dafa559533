package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kamdhenuseva/server/internal/metrics"
	"github.com/kamdhenuseva/server/internal/model"
	"github.com/kamdhenuseva/server/internal/repo"
)

// Service is the account lifecycle state machine:
// Unregistered -> AwaitingEmailVerification -> verified -> (AwaitingTwoFactor) -> Authenticated.
type Service struct {
	accounts repo.AccountRepo
	otp      *OTPIssuer
	sessions *SessionIssuer
	hasher   PasswordHasher
	logger   *zap.Logger
}

// NewService creates the auth service.
func NewService(
	accounts repo.AccountRepo,
	otp *OTPIssuer,
	sessions *SessionIssuer,
	hasher PasswordHasher,
	logger *zap.Logger,
) *Service {
	return &Service{
		accounts: accounts,
		otp:      otp,
		sessions: sessions,
		hasher:   hasher,
		logger:   logger,
	}
}

// NormalizeEmail lower-cases and trims an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validEmail(email string) bool {
	if email == "" {
		return false
	}
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email
}

// lookup loads by email and maps a missing row to ok=false.
func (s *Service) lookup(ctx context.Context, email string) (model.Account, bool, error) {
	acct, err := s.accounts.GetByEmail(ctx, email)
	if errors.Is(err, repo.ErrNotFound) {
		return model.Account{}, false, nil
	}
	if err != nil {
		return model.Account{}, false, err
	}
	return acct, true, nil
}

// consume checks code against acct's challenge and, if it matches, clears the
// challenge and applies effect in a single write.
func (s *Service) consume(ctx context.Context, acct model.Account, code string, intent model.OTPIntent, effect model.OTPEffect) (model.Account, error) {
	code = strings.TrimSpace(code)
	now := s.otp.Now()
	if !Verify(acct, code, intent, now) {
		metrics.OTPVerifications.WithLabelValues(string(intent), "invalid").Inc()
		return model.Account{}, validationErr(MsgInvalidOTP)
	}
	updated, err := s.accounts.ConsumeOTP(ctx, acct.ID, code, intent, now, effect)
	if errors.Is(err, repo.ErrNoMatch) {
		metrics.OTPVerifications.WithLabelValues(string(intent), "invalid").Inc()
		return model.Account{}, validationErr(MsgInvalidOTP)
	}
	if err != nil {
		return model.Account{}, err
	}
	metrics.OTPVerifications.WithLabelValues(string(intent), "ok").Inc()
	return updated, nil
}

// RegisterInit creates the account if needed and sends an email verification code.
// It returns the seconds until the code expires.
func (s *Service) RegisterInit(ctx context.Context, email string) (int, error) {
	email = NormalizeEmail(email)
	if !validEmail(email) {
		return 0, validationErr("Invalid email format", FieldError{Field: "email", Message: "Invalid email format"})
	}
	acct, err := s.accounts.GetOrCreateByEmail(ctx, email)
	if err != nil {
		return 0, err
	}
	if acct.IsVerified && acct.HasName() {
		return 0, conflictErr(MsgUserExists)
	}
	if _, err := s.otp.Issue(ctx, &acct, model.IntentEmailVerification); err != nil {
		return 0, err
	}
	return s.otp.SecondsLeft(acct), nil
}

// VerifyEmail consumes an email verification code and marks the account verified.
func (s *Service) VerifyEmail(ctx context.Context, email, code string) (model.Account, error) {
	email = NormalizeEmail(email)
	if email == "" || strings.TrimSpace(code) == "" {
		return model.Account{}, validationErr("Email and OTP are required")
	}
	acct, ok, err := s.lookup(ctx, email)
	if err != nil {
		return model.Account{}, err
	}
	if !ok {
		return model.Account{}, notFoundErr(MsgUserNotFound)
	}
	return s.consume(ctx, acct, code, model.IntentEmailVerification, model.OTPEffect{MarkVerified: true})
}

// RegisterCompleteInput is the payload of registration-complete.
type RegisterCompleteInput struct {
	Email           string
	Name            string
	Password        string
	ConfirmPassword string
	DateOfBirth     *time.Time
}

func (in RegisterCompleteInput) validate() *Error {
	var fields []FieldError
	if !validEmail(in.Email) {
		fields = append(fields, FieldError{Field: "email", Message: "Invalid email format"})
	}
	if strings.TrimSpace(in.Name) == "" {
		fields = append(fields, FieldError{Field: "name", Message: "Name is required"})
	}
	if len(in.Password) < MinPasswordLength {
		fields = append(fields, FieldError{Field: "password", Message: "Password must be at least 6 characters long"})
	}
	if in.Password != in.ConfirmPassword {
		fields = append(fields, FieldError{Field: "confirmPassword", Message: "Passwords do not match"})
	}
	if len(fields) > 0 {
		return validationErr("Validation failed", fields...)
	}
	return nil
}

// RegisterComplete sets name and password on a verified account and logs it in.
func (s *Service) RegisterComplete(ctx context.Context, in RegisterCompleteInput, meta RequestMeta) (model.Account, IssuedToken, error) {
	in.Email = NormalizeEmail(in.Email)
	if verr := in.validate(); verr != nil {
		return model.Account{}, IssuedToken{}, verr
	}
	acct, ok, err := s.lookup(ctx, in.Email)
	if err != nil {
		return model.Account{}, IssuedToken{}, err
	}
	if !ok {
		return model.Account{}, IssuedToken{}, notFoundErr(MsgUserNotFound)
	}
	if !acct.IsVerified {
		return model.Account{}, IssuedToken{}, forbiddenErr(MsgEmailNotVerified)
	}
	if acct.HasPassword() {
		return model.Account{}, IssuedToken{}, conflictErr(MsgUserExists)
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return model.Account{}, IssuedToken{}, err
	}
	acct, err = s.accounts.CompleteRegistration(ctx, acct.ID, strings.TrimSpace(in.Name), hash, in.DateOfBirth)
	if errors.Is(err, repo.ErrNoMatch) {
		// Verification never reverts, so a miss means a concurrent completion won.
		return model.Account{}, IssuedToken{}, conflictErr(MsgUserExists)
	}
	if err != nil {
		return model.Account{}, IssuedToken{}, err
	}

	token, err := s.sessions.Issue(ctx, acct, meta, SessionRequired)
	if err != nil {
		return model.Account{}, IssuedToken{}, err
	}
	s.logger.Info("registration complete", zap.String("account_id", acct.ID.String()))
	return acct, token, nil
}

// LoginResult is the outcome of a password login. Token is set only when
// no further challenge is pending.
type LoginResult struct {
	Account              model.Account
	Token                *IssuedToken
	VerificationRequired bool
	TwoFactorRequired    bool
	SecondsLeft          int
}

// Login checks credentials. Unverified accounts get a fresh verification code,
// 2FA accounts get a login code; otherwise a session is issued.
func (s *Service) Login(ctx context.Context, email, password string, meta RequestMeta) (LoginResult, error) {
	email = NormalizeEmail(email)
	if email == "" || password == "" {
		return LoginResult{}, validationErr("Email and password are required")
	}
	acct, ok, err := s.lookup(ctx, email)
	if err != nil {
		return LoginResult{}, err
	}
	if !ok {
		metrics.Logins.WithLabelValues("invalid").Inc()
		return LoginResult{}, unauthorizedErr(MsgInvalidCredentials)
	}

	if !acct.IsVerified {
		if _, err := s.otp.Issue(ctx, &acct, model.IntentEmailVerification); err != nil {
			return LoginResult{}, err
		}
		metrics.Logins.WithLabelValues("verification_required").Inc()
		return LoginResult{
			Account:              acct,
			VerificationRequired: true,
			SecondsLeft:          s.otp.SecondsLeft(acct),
		}, nil
	}

	if !acct.HasPassword() || !s.hasher.Compare(*acct.PasswordHash, password) {
		metrics.Logins.WithLabelValues("invalid").Inc()
		return LoginResult{}, unauthorizedErr(MsgInvalidCredentials)
	}

	if acct.TwoFactorEnabled {
		if _, err := s.otp.Issue(ctx, &acct, model.IntentTwoFactor); err != nil {
			return LoginResult{}, err
		}
		metrics.Logins.WithLabelValues("two_factor_required").Inc()
		return LoginResult{
			Account:           acct,
			TwoFactorRequired: true,
			SecondsLeft:       s.otp.SecondsLeft(acct),
		}, nil
	}

	token, err := s.sessions.Issue(ctx, acct, meta, SessionRequired)
	if err != nil {
		return LoginResult{}, err
	}
	metrics.Logins.WithLabelValues("ok").Inc()
	return LoginResult{Account: acct, Token: &token}, nil
}

// VerifyTwoFactor completes a 2FA login. The session audit write is best effort.
func (s *Service) VerifyTwoFactor(ctx context.Context, email, code string, meta RequestMeta) (model.Account, IssuedToken, error) {
	email = NormalizeEmail(email)
	if email == "" || strings.TrimSpace(code) == "" {
		return model.Account{}, IssuedToken{}, validationErr("Email and OTP are required")
	}
	acct, ok, err := s.lookup(ctx, email)
	if err != nil {
		return model.Account{}, IssuedToken{}, err
	}
	if !ok || !acct.TwoFactorEnabled {
		return model.Account{}, IssuedToken{}, validationErr("2FA not enabled")
	}
	acct, err = s.consume(ctx, acct, code, model.IntentTwoFactor, model.OTPEffect{})
	if err != nil {
		return model.Account{}, IssuedToken{}, err
	}
	token, err := s.sessions.Issue(ctx, acct, meta, SessionBestEffort)
	if err != nil {
		return model.Account{}, IssuedToken{}, err
	}
	metrics.Logins.WithLabelValues("ok").Inc()
	return acct, token, nil
}

// ResendTwoFactor issues a new 2FA login code once the previous one has expired.
func (s *Service) ResendTwoFactor(ctx context.Context, email string) (int, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return 0, validationErr("Email is required")
	}
	acct, ok, err := s.lookup(ctx, email)
	if err != nil {
		return 0, err
	}
	if !ok || !acct.TwoFactorEnabled {
		return 0, validationErr("Invalid request")
	}
	if _, err := s.otp.Issue(ctx, &acct, model.IntentTwoFactor); err != nil {
		return 0, err
	}
	return s.otp.SecondsLeft(acct), nil
}

// RequestPasswordReset sends a reset code if the account exists. Callers must
// answer identically whether or not it does; only server errors are returned.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	email = NormalizeEmail(email)
	if email == "" {
		return validationErr("Email is required")
	}
	acct, ok, err := s.lookup(ctx, email)
	if err != nil || !ok {
		return err
	}
	if _, err := s.otp.Issue(ctx, &acct, model.IntentPasswordReset); err != nil {
		if IsKind(err, KindThrottled) {
			return nil
		}
		return err
	}
	return nil
}

// PasswordResetInput is the payload of password-reset confirm.
type PasswordResetInput struct {
	Email           string
	OTP             string
	NewPassword     string
	ConfirmPassword string
}

// ConfirmPasswordReset replaces the password using a reset code and signs the user in.
// The session audit write is best effort.
func (s *Service) ConfirmPasswordReset(ctx context.Context, in PasswordResetInput, meta RequestMeta) (model.Account, IssuedToken, error) {
	in.Email = NormalizeEmail(in.Email)
	if in.Email == "" || strings.TrimSpace(in.OTP) == "" || in.NewPassword == "" || in.ConfirmPassword == "" {
		return model.Account{}, IssuedToken{}, validationErr("Email, OTP and both passwords are required")
	}
	if in.NewPassword != in.ConfirmPassword {
		return model.Account{}, IssuedToken{}, validationErr("Passwords do not match",
			FieldError{Field: "confirmPassword", Message: "Passwords do not match"})
	}
	if len(in.NewPassword) < MinPasswordLength {
		return model.Account{}, IssuedToken{}, validationErr("Password must be at least 6 characters",
			FieldError{Field: "newPassword", Message: "Password must be at least 6 characters"})
	}

	acct, ok, err := s.lookup(ctx, in.Email)
	if err != nil {
		return model.Account{}, IssuedToken{}, err
	}
	if !ok {
		return model.Account{}, IssuedToken{}, validationErr(MsgInvalidOTP)
	}
	// Check the code before paying for a bcrypt hash.
	if !Verify(acct, in.OTP, model.IntentPasswordReset, s.otp.Now()) {
		metrics.OTPVerifications.WithLabelValues(string(model.IntentPasswordReset), "invalid").Inc()
		return model.Account{}, IssuedToken{}, validationErr(MsgInvalidOTP)
	}
	hash, err := s.hasher.Hash(in.NewPassword)
	if err != nil {
		return model.Account{}, IssuedToken{}, err
	}
	// Proving control of the mailbox also verifies it.
	acct, err = s.consume(ctx, acct, in.OTP, model.IntentPasswordReset, model.OTPEffect{
		MarkVerified: true,
		PasswordHash: &hash,
	})
	if err != nil {
		return model.Account{}, IssuedToken{}, err
	}
	token, err := s.sessions.Issue(ctx, acct, meta, SessionBestEffort)
	if err != nil {
		return model.Account{}, IssuedToken{}, err
	}
	return acct, token, nil
}

// ToggleResult is the outcome of a 2FA enable/disable call.
type ToggleResult struct {
	Account model.Account
	// Issued is true when a code was sent and the caller must confirm it.
	Issued bool
	// Pending is true when a previous code is still live; SecondsLeft says for how long.
	Pending     bool
	SecondsLeft int
	// Changed is true when the flag was flipped.
	Changed bool
}

// ToggleTwoFactor enables or disables 2FA. Without a code it issues one;
// with a code it verifies it and flips the flag in the same write.
func (s *Service) ToggleTwoFactor(ctx context.Context, accountID uuid.UUID, enable bool, code string) (ToggleResult, error) {
	acct, err := s.accounts.GetByID(ctx, accountID)
	if errors.Is(err, repo.ErrNotFound) {
		return ToggleResult{}, notFoundErr(MsgUserNotFound)
	}
	if err != nil {
		return ToggleResult{}, err
	}

	if strings.TrimSpace(code) == "" {
		if acct.TwoFactorEnabled == enable {
			state := "disabled"
			if enable {
				state = "enabled"
			}
			return ToggleResult{}, validationErr(fmt.Sprintf("Two-factor authentication already %s", state))
		}
		_, err := s.otp.Issue(ctx, &acct, model.IntentTwoFactor)
		if e, ok := AsError(err); ok && e.Kind == KindThrottled {
			return ToggleResult{Account: acct, Pending: true, SecondsLeft: e.SecondsLeft}, nil
		}
		if err != nil {
			return ToggleResult{}, err
		}
		return ToggleResult{Account: acct, Issued: true, SecondsLeft: s.otp.SecondsLeft(acct)}, nil
	}

	acct, err = s.consume(ctx, acct, code, model.IntentTwoFactor, model.OTPEffect{SetTwoFactor: &enable})
	if err != nil {
		return ToggleResult{}, err
	}
	return ToggleResult{Account: acct, Changed: true}, nil
}

// ValidateToken verifies a bearer token and reloads its account.
func (s *Service) ValidateToken(ctx context.Context, token string) (model.Account, error) {
	if token == "" {
		return model.Account{}, unauthorizedErr(MsgNoToken)
	}
	claims, err := s.sessions.tokens.Verify(token)
	if err != nil {
		return model.Account{}, unauthorizedErr(MsgInvalidToken)
	}
	acct, err := s.accounts.GetByID(ctx, claims.AccountID)
	if errors.Is(err, repo.ErrNotFound) {
		return model.Account{}, notFoundErr(MsgUserNotFound)
	}
	if err != nil {
		return model.Account{}, err
	}
	return acct, nil
}

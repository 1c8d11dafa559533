package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kamdhenuseva/server/internal/model"
)

// AccountRepo is the credential store used by the auth state machine.
// Every mutating method is a single-row, single-statement write.
type AccountRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (model.Account, error)
	GetByEmail(ctx context.Context, email string) (model.Account, error)
	GetOrCreateByEmail(ctx context.Context, email string) (model.Account, error)
	SetOTP(ctx context.Context, id uuid.UUID, code string, intent model.OTPIntent, expiresAt time.Time) error
	ConsumeOTP(ctx context.Context, id uuid.UUID, code string, intent model.OTPIntent, now time.Time, effect model.OTPEffect) (model.Account, error)
	CompleteRegistration(ctx context.Context, id uuid.UUID, name, passwordHash string, dob *time.Time) (model.Account, error)
	UpdateProfile(ctx context.Context, id uuid.UUID, email *string, dob *time.Time) (model.Account, error)
	UpdateName(ctx context.Context, id uuid.UUID, name string) (model.Account, error)
	UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type accountRepo struct {
	db *sql.DB
}

// NewAccountRepo creates a new AccountRepo instance
func NewAccountRepo(db *sql.DB) AccountRepo {
	return &accountRepo{db: db}
}

const accountColumns = `id, public_id, email, name, password_hash, date_of_birth, is_verified,
	two_factor_enabled, otp_code, otp_expires_at, otp_intent, created_at, updated_at`

func scanAccount(row interface{ Scan(...any) error }) (model.Account, error) {
	var (
		a      model.Account
		intent sql.NullString
	)
	err := row.Scan(
		&a.ID,
		&a.PublicID,
		&a.Email,
		&a.Name,
		&a.PasswordHash,
		&a.DateOfBirth,
		&a.IsVerified,
		&a.TwoFactorEnabled,
		&a.OTPCode,
		&a.OTPExpiresAt,
		&intent,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return model.Account{}, err
	}
	if intent.Valid {
		i := model.OTPIntent(intent.String)
		a.OTPIntent = &i
	}
	return a, nil
}

func (r *accountRepo) queryOne(ctx context.Context, op, query string, args ...any) (model.Account, error) {
	a, err := scanAccount(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Account{}, fmt.Errorf("%s: %w", op, ErrNotFound)
		}
		if isUniqueViolation(err) {
			return model.Account{}, fmt.Errorf("%s: %w", op, ErrDuplicate)
		}
		return model.Account{}, fmt.Errorf("%s: %w", op, err)
	}
	return a, nil
}

// GetByID retrieves an account by ID
func (r *accountRepo) GetByID(ctx context.Context, id uuid.UUID) (model.Account, error) {
	return r.queryOne(ctx, "get account by id",
		`SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
}

// GetByEmail retrieves an account by lower-cased email
func (r *accountRepo) GetByEmail(ctx context.Context, email string) (model.Account, error) {
	return r.queryOne(ctx, "get account by email",
		`SELECT `+accountColumns+` FROM accounts WHERE lower(email) = lower($1)`, email)
}

// GetOrCreateByEmail inserts a bare account if none exists, then returns the stored row.
func (r *accountRepo) GetOrCreateByEmail(ctx context.Context, email string) (model.Account, error) {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO accounts (email)
		VALUES (lower($1))
		ON CONFLICT (lower(email)) DO NOTHING
	`, email)
	if err != nil {
		return model.Account{}, fmt.Errorf("insert account: %w", err)
	}
	return r.GetByEmail(ctx, email)
}

// SetOTP stores a fresh challenge, overwriting any previous one.
func (r *accountRepo) SetOTP(ctx context.Context, id uuid.UUID, code string, intent model.OTPIntent, expiresAt time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE accounts
		SET otp_code = $2, otp_intent = $3, otp_expires_at = $4, updated_at = now()
		WHERE id = $1
	`, id, code, string(intent), expiresAt)
	if err != nil {
		return fmt.Errorf("set otp: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("set otp: %w", ErrNotFound)
	}
	return nil
}

// ConsumeOTP clears the challenge and applies effect in one statement. The update only
// matches while the stored code, intent and expiry still agree; otherwise ErrNoMatch.
func (r *accountRepo) ConsumeOTP(ctx context.Context, id uuid.UUID, code string, intent model.OTPIntent, now time.Time, effect model.OTPEffect) (model.Account, error) {
	var twoFactor sql.NullBool
	if effect.SetTwoFactor != nil {
		twoFactor = sql.NullBool{Bool: *effect.SetTwoFactor, Valid: true}
	}
	var hash sql.NullString
	if effect.PasswordHash != nil {
		hash = sql.NullString{String: *effect.PasswordHash, Valid: true}
	}

	a, err := scanAccount(r.db.QueryRowContext(ctx, `
		UPDATE accounts
		SET otp_code = NULL,
		    otp_expires_at = NULL,
		    otp_intent = NULL,
		    is_verified = is_verified OR $5,
		    two_factor_enabled = COALESCE($6, two_factor_enabled),
		    password_hash = COALESCE($7, password_hash),
		    updated_at = now()
		WHERE id = $1
		  AND otp_code = $2
		  AND otp_intent = $3
		  AND otp_expires_at > $4
		RETURNING `+accountColumns,
		id, code, string(intent), now, effect.MarkVerified, twoFactor, hash,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Account{}, fmt.Errorf("consume otp: %w", ErrNoMatch)
		}
		return model.Account{}, fmt.Errorf("consume otp: %w", err)
	}
	return a, nil
}

// CompleteRegistration sets credentials on a verified account that has none yet.
func (r *accountRepo) CompleteRegistration(ctx context.Context, id uuid.UUID, name, passwordHash string, dob *time.Time) (model.Account, error) {
	a, err := r.queryOne(ctx, "complete registration", `
		UPDATE accounts
		SET name = $2, password_hash = $3, date_of_birth = COALESCE($4, date_of_birth), updated_at = now()
		WHERE id = $1 AND is_verified AND password_hash IS NULL
		RETURNING `+accountColumns,
		id, name, passwordHash, dob)
	if errors.Is(err, ErrNotFound) {
		return model.Account{}, fmt.Errorf("complete registration: %w", ErrNoMatch)
	}
	return a, err
}

// UpdateProfile changes email and/or date of birth; nil leaves a field untouched.
func (r *accountRepo) UpdateProfile(ctx context.Context, id uuid.UUID, email *string, dob *time.Time) (model.Account, error) {
	return r.queryOne(ctx, "update profile", `
		UPDATE accounts
		SET email = COALESCE(lower($2), email),
		    date_of_birth = COALESCE($3, date_of_birth),
		    updated_at = now()
		WHERE id = $1
		RETURNING `+accountColumns,
		id, email, dob)
}

// UpdateName sets the display name.
func (r *accountRepo) UpdateName(ctx context.Context, id uuid.UUID, name string) (model.Account, error) {
	return r.queryOne(ctx, "update name", `
		UPDATE accounts SET name = $2, updated_at = now()
		WHERE id = $1
		RETURNING `+accountColumns,
		id, name)
}

// UpdatePassword replaces the password hash of a verified account.
func (r *accountRepo) UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE accounts SET password_hash = $2, updated_at = now()
		WHERE id = $1 AND is_verified
	`, id, passwordHash)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update password: %w", ErrNoMatch)
	}
	return nil
}

// Delete removes the account; sessions and records cascade.
func (r *accountRepo) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM accounts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("delete account: %w", ErrNotFound)
	}
	return nil
}

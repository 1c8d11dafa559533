package model

import (
	"time"

	"github.com/google/uuid"
)

// AccountKind distinguishes ordinary users from privileged accounts on session records.
type AccountKind string

const (
	AccountKindUser  AccountKind = "user"
	AccountKindAdmin AccountKind = "admin"
)

// OTPIntent is the purpose an OTP challenge was issued for.
type OTPIntent string

const (
	IntentEmailVerification OTPIntent = "email_verification"
	IntentTwoFactor         OTPIntent = "two_factor"
	IntentPasswordReset     OTPIntent = "password_reset"
)

// Valid reports whether i is one of the known intents.
func (i OTPIntent) Valid() bool {
	switch i {
	case IntentEmailVerification, IntentTwoFactor, IntentPasswordReset:
		return true
	}
	return false
}

// Label is the human-readable name used in emails.
func (i OTPIntent) Label() string {
	switch i {
	case IntentEmailVerification:
		return "Email Verification"
	case IntentTwoFactor:
		return "Two-Factor Authentication"
	case IntentPasswordReset:
		return "Password Reset"
	}
	return "Verification"
}

// Account represents a registered (or registering) user.
type Account struct {
	ID               uuid.UUID
	PublicID         int64
	Email            string
	Name             *string
	PasswordHash     *string
	DateOfBirth      *time.Time
	IsVerified       bool
	TwoFactorEnabled bool
	OTPCode          *string
	OTPExpiresAt     *time.Time
	OTPIntent        *OTPIntent
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// HasName reports whether registration has set a display name.
func (a Account) HasName() bool {
	return a.Name != nil && *a.Name != ""
}

// HasPassword reports whether a usable password hash is stored.
func (a Account) HasPassword() bool {
	return a.PasswordHash != nil && *a.PasswordHash != ""
}

// DisplayName returns the name or fallback when none is set.
func (a Account) DisplayName(fallback string) string {
	if a.HasName() {
		return *a.Name
	}
	return fallback
}

// OTPEffect is the business change applied in the same write that consumes an OTP.
type OTPEffect struct {
	MarkVerified bool
	SetTwoFactor *bool
	PasswordHash *string
}

// Session is an audit record written on each successful authentication.
type Session struct {
	ID          uuid.UUID
	AccountID   uuid.UUID
	AccountKind AccountKind
	TokenHash   string
	IPAddress   string
	Location    string
	UserAgent   string
	CreatedAt   time.Time
}

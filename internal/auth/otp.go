package auth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"math"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kamdhenuseva/server/internal/metrics"
	"github.com/kamdhenuseva/server/internal/model"
)

const (
	otpMin = 100000
	otpMax = 999999
)

// OTPPolicy sets challenge lifetimes per intent.
type OTPPolicy struct {
	EmailVerificationTTL time.Duration
	TwoFactorTTL         time.Duration
	PasswordResetTTL     time.Duration
}

// DefaultOTPPolicy: short-lived codes for login and reset, a day for sign-up.
var DefaultOTPPolicy = OTPPolicy{
	EmailVerificationTTL: 24 * time.Hour,
	TwoFactorTTL:         20 * time.Second,
	PasswordResetTTL:     20 * time.Second,
}

// TTL returns the lifetime for intent.
func (p OTPPolicy) TTL(intent model.OTPIntent) time.Duration {
	switch intent {
	case model.IntentEmailVerification:
		return p.EmailVerificationTTL
	case model.IntentTwoFactor:
		return p.TwoFactorTTL
	default:
		return p.PasswordResetTTL
	}
}

// Challenge is a freshly issued OTP.
type Challenge struct {
	Code      string
	Intent    model.OTPIntent
	ExpiresAt time.Time
}

// OTPStore persists the live challenge on an account.
type OTPStore interface {
	SetOTP(ctx context.Context, id uuid.UUID, code string, intent model.OTPIntent, expiresAt time.Time) error
}

// CodeSender hands a code to the delivery channel. It must not block on delivery.
type CodeSender interface {
	SendCode(ctx context.Context, to string, intent model.OTPIntent, code string, ttl time.Duration) error
}

// OTPIssuer generates, stores and throttles one-time codes.
type OTPIssuer struct {
	store    OTPStore
	sender   CodeSender
	policy   OTPPolicy
	now      func() time.Time
	generate func() (string, error)
	logger   *zap.Logger
}

// NewOTPIssuer creates an OTPIssuer. A nil clock defaults to time.Now.
func NewOTPIssuer(store OTPStore, sender CodeSender, policy OTPPolicy, now func() time.Time, logger *zap.Logger) *OTPIssuer {
	if now == nil {
		now = time.Now
	}
	return &OTPIssuer{
		store:    store,
		sender:   sender,
		policy:   policy,
		now:      now,
		generate: GenerateCode,
		logger:   logger,
	}
}

// Issue creates a new challenge for acct unless a previous one is still live,
// in which case it returns a throttled *Error. acct is updated in place.
// A delivery failure is logged; the stored code stays valid.
func (i *OTPIssuer) Issue(ctx context.Context, acct *model.Account, intent model.OTPIntent) (Challenge, error) {
	now := i.now()
	if ok, secondsLeft := ResendAllowed(acct.OTPExpiresAt, now); !ok {
		metrics.OTPThrottled.WithLabelValues(string(intent)).Inc()
		return Challenge{}, ThrottledErr(secondsLeft)
	}

	code, err := i.generate()
	if err != nil {
		return Challenge{}, fmt.Errorf("generate otp: %w", err)
	}
	ttl := i.policy.TTL(intent)
	expiresAt := now.Add(ttl)
	if err := i.store.SetOTP(ctx, acct.ID, code, intent, expiresAt); err != nil {
		return Challenge{}, fmt.Errorf("store otp: %w", err)
	}
	acct.OTPCode = &code
	acct.OTPExpiresAt = &expiresAt
	acct.OTPIntent = &intent
	metrics.OTPIssued.WithLabelValues(string(intent)).Inc()

	if err := i.sender.SendCode(ctx, acct.Email, intent, code, ttl); err != nil {
		i.logger.Warn("otp delivery not queued",
			zap.String("account_id", acct.ID.String()),
			zap.String("intent", string(intent)),
			zap.Error(err))
	}
	return Challenge{Code: code, Intent: intent, ExpiresAt: expiresAt}, nil
}

// SecondsLeft is the whole-second countdown until acct's challenge expires.
func (i *OTPIssuer) SecondsLeft(acct model.Account) int {
	return SecondsLeft(acct.OTPExpiresAt, i.now())
}

// Now exposes the issuer clock so callers verify against the same time source.
func (i *OTPIssuer) Now() time.Time {
	return i.now()
}

// ResendAllowed reports whether a new code may be issued. It is allowed when no
// challenge exists or the stored expiry is at or before now; otherwise the
// remaining seconds (rounded up) are returned.
func ResendAllowed(expiresAt *time.Time, now time.Time) (bool, int) {
	if expiresAt == nil || !expiresAt.After(now) {
		return true, 0
	}
	return false, SecondsLeft(expiresAt, now)
}

// SecondsLeft rounds the time until expiresAt up to whole seconds, never negative.
func SecondsLeft(expiresAt *time.Time, now time.Time) int {
	if expiresAt == nil {
		return 0
	}
	d := expiresAt.Sub(now)
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Seconds()))
}

// Verify reports whether code answers acct's live challenge for intent at now.
// Both sides are trimmed; comparison is constant time.
func Verify(acct model.Account, code string, intent model.OTPIntent, now time.Time) bool {
	if acct.OTPCode == nil || acct.OTPExpiresAt == nil {
		return false
	}
	if acct.OTPIntent == nil || *acct.OTPIntent != intent {
		return false
	}
	if !now.Before(*acct.OTPExpiresAt) {
		return false
	}
	return constantTimeCompare([]byte(strings.TrimSpace(code)), []byte(strings.TrimSpace(*acct.OTPCode)))
}

// GenerateCode returns a uniformly random six digit code.
func GenerateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(otpMax-otpMin+1))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()+otpMin), nil
}

func constantTimeCompare(a, b []byte) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	return subtle.ConstantTimeCompare(a, b) == 1
}

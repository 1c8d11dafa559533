package auth

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kamdhenuseva/server/internal/model"
	"github.com/kamdhenuseva/server/internal/repo/repotest"
)

func ptr[T any](v T) *T { return &v }

func TestGenerateCode_sixDigitsInRange(t *testing.T) {
	for i := 0; i < 200; i++ {
		code, err := GenerateCode()
		if err != nil {
			t.Fatalf("GenerateCode: %v", err)
		}
		if len(code) != 6 {
			t.Fatalf("want 6 digits, got %q", code)
		}
		n, err := strconv.Atoi(code)
		if err != nil || n < otpMin || n > otpMax {
			t.Fatalf("code %q out of range", code)
		}
	}
}

func TestResendAllowed(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	cases := []struct {
		name    string
		expires *time.Time
		ok      bool
		left    int
	}{
		{"no challenge", nil, true, 0},
		{"expired", ptr(now.Add(-time.Second)), true, 0},
		{"expires exactly now", ptr(now), true, 0},
		{"live", ptr(now.Add(15 * time.Second)), false, 15},
		{"rounds up", ptr(now.Add(1500 * time.Millisecond)), false, 2},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ok, left := ResendAllowed(tc.expires, now)
			if ok != tc.ok || left != tc.left {
				t.Errorf("got (%v, %d), want (%v, %d)", ok, left, tc.ok, tc.left)
			}
		})
	}
}

func TestVerify(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	acct := model.Account{
		OTPCode:      ptr("123456"),
		OTPExpiresAt: ptr(now.Add(20 * time.Second)),
		OTPIntent:    ptr(model.IntentTwoFactor),
	}

	if !Verify(acct, " 123456 ", model.IntentTwoFactor, now) {
		t.Error("matching code should verify")
	}
	if Verify(acct, "654321", model.IntentTwoFactor, now) {
		t.Error("wrong code must not verify")
	}
	if Verify(acct, "123456", model.IntentPasswordReset, now) {
		t.Error("code issued for another intent must not verify")
	}
	if Verify(acct, "123456", model.IntentTwoFactor, now.Add(20*time.Second)) {
		t.Error("code must not verify at its expiry instant")
	}
	if Verify(acct, "", model.IntentTwoFactor, now) {
		t.Error("empty code must not verify")
	}
	if Verify(model.Account{}, "123456", model.IntentTwoFactor, now) {
		t.Error("account without challenge must not verify")
	}
}

type recordingSender struct {
	codes []string
	err   error
}

func (s *recordingSender) SendCode(_ context.Context, _ string, _ model.OTPIntent, code string, _ time.Duration) error {
	s.codes = append(s.codes, code)
	return s.err
}

func (s *recordingSender) last() string {
	if len(s.codes) == 0 {
		return ""
	}
	return s.codes[len(s.codes)-1]
}

func TestOTPIssuer_throttlesWhileLive(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	store := repotest.NewAccounts()
	acct := store.Put(model.Account{Email: "a@example.com"})
	sender := &recordingSender{}
	issuer := NewOTPIssuer(store, sender, DefaultOTPPolicy, clock, zap.NewNop())

	ch, err := issuer.Issue(context.Background(), &acct, model.IntentTwoFactor)
	if err != nil {
		t.Fatalf("first issue: %v", err)
	}
	if ch.ExpiresAt != now.Add(20*time.Second) {
		t.Errorf("unexpected expiry %v", ch.ExpiresAt)
	}
	if sender.last() != ch.Code {
		t.Error("code should be handed to the sender")
	}

	now = now.Add(5 * time.Second)
	_, err = issuer.Issue(context.Background(), &acct, model.IntentTwoFactor)
	var e *Error
	if !errors.As(err, &e) || e.Kind != KindThrottled || e.SecondsLeft != 15 {
		t.Fatalf("want throttled with 15s left, got %v", err)
	}

	now = now.Add(15 * time.Second)
	if _, err := issuer.Issue(context.Background(), &acct, model.IntentTwoFactor); err != nil {
		t.Fatalf("issue after expiry: %v", err)
	}
	if len(sender.codes) != 2 {
		t.Errorf("want 2 sends, got %d", len(sender.codes))
	}
}

func TestOTPIssuer_deliveryFailureKeepsCode(t *testing.T) {
	store := repotest.NewAccounts()
	acct := store.Put(model.Account{Email: "a@example.com"})
	sender := &recordingSender{err: errors.New("queue full")}
	issuer := NewOTPIssuer(store, sender, DefaultOTPPolicy, nil, zap.NewNop())

	ch, err := issuer.Issue(context.Background(), &acct, model.IntentEmailVerification)
	if err != nil {
		t.Fatalf("delivery failure must not fail issue: %v", err)
	}
	stored, _ := store.Get(acct.ID)
	if stored.OTPCode == nil || *stored.OTPCode != ch.Code {
		t.Error("code should be persisted")
	}
	if stored.OTPIntent == nil || *stored.OTPIntent != model.IntentEmailVerification {
		t.Error("intent should be persisted")
	}
}

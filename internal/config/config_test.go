package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://localhost/kamdhenu_test?sslmode=disable")
	t.Setenv("JWT_SECRET", "test-jwt-secret")
	t.Setenv("RAZORPAY_KEY_ID", "rzp_test_key")
	t.Setenv("RAZORPAY_KEY_SECRET", "rzp_test_secret")
	t.Setenv("RAZORPAY_WEBHOOK_SECRET", "whsec_donations")
	t.Setenv("RAZORPAY_COW_PUJA_WEBHOOK_SECRET", "whsec_puja")
}

func TestLoad_defaults(t *testing.T) {
	setRequired(t)
	t.Setenv("CLIENT_URL", "https://a.example, https://b.example,")
	t.Setenv("SMTP_USER", "noreply@example.org")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "1", cfg.APIVersion)
	assert.Equal(t, DefaultTokenTTL, cfg.TokenTTL)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.ClientOrigins)
	assert.Equal(t, 2, cfg.Mail.Workers)
	assert.Equal(t, 256, cfg.Mail.QueueSize)
	assert.Equal(t, "noreply@example.org", cfg.SMTP.From)
	assert.Equal(t, "whsec_puja", cfg.Razorpay.CowPujaWebhookSecret)
}

func TestLoad_missingRequired(t *testing.T) {
	for _, key := range []string{"DATABASE_URL", "JWT_SECRET", "RAZORPAY_WEBHOOK_SECRET", "RAZORPAY_COW_PUJA_WEBHOOK_SECRET"} {
		t.Run(key, func(t *testing.T) {
			setRequired(t)
			t.Setenv(key, "")
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), key)
		})
	}
}

func TestLoad_badMailWorkers(t *testing.T) {
	setRequired(t)
	t.Setenv("MAIL_WORKERS", "zero")
	_, err := Load()
	require.Error(t, err)
}

func TestParseTTL(t *testing.T) {
	cases := map[string]time.Duration{
		"7d":  7 * 24 * time.Hour,
		"12h": 12 * time.Hour,
		"30m": 30 * time.Minute,
		"45s": 45 * time.Second,
		"":    DefaultTokenTTL,
		"7w":  DefaultTokenTTL,
		"0d":  DefaultTokenTTL,
		"d7":  DefaultTokenTTL,
	}
	for in, want := range cases {
		assert.Equal(t, want, ParseTTL(in), "ParseTTL(%q)", in)
	}
}

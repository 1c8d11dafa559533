package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DefaultTokenTTL applies when JWT_EXPIRY is missing or malformed.
const DefaultTokenTTL = 7 * 24 * time.Hour

// Config holds the application configuration
type Config struct {
	DatabaseURL string
	Port        string
	APIVersion  string
	DevMode     bool

	JWTSecret string
	TokenTTL  time.Duration

	ClientOrigins []string

	RedisAddr     string
	RedisPassword string

	SMTP SMTPConfig
	Mail MailConfig

	Razorpay RazorpayConfig
}

// SMTPConfig configures outbound mail. An empty Host selects the log mailer.
type SMTPConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
}

// MailConfig sizes the asynchronous mail dispatcher.
type MailConfig struct {
	Workers   int
	QueueSize int
}

// RazorpayConfig holds gateway credentials and the per-endpoint webhook secrets.
type RazorpayConfig struct {
	KeyID                string
	KeySecret            string
	WebhookSecret        string
	CowPujaWebhookSecret string
	BaseURL              string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Port:       envOr("PORT", "8080"),
		APIVersion: envOr("API_VERSION", "1"),
		DevMode:    os.Getenv("DEV_MODE") == "true",
		TokenTTL:   ParseTTL(os.Getenv("JWT_EXPIRY")),

		ClientOrigins: splitList(os.Getenv("CLIENT_URL")),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),

		SMTP: SMTPConfig{
			Host:     os.Getenv("SMTP_HOST"),
			Port:     envOr("SMTP_PORT", "587"),
			Username: os.Getenv("SMTP_USER"),
			Password: os.Getenv("SMTP_PASS"),
			From:     os.Getenv("MAIL_FROM"),
		},
		Razorpay: RazorpayConfig{
			BaseURL: envOr("RAZORPAY_BASE_URL", "https://api.razorpay.com/v1"),
		},
	}

	var err error
	if cfg.DatabaseURL, err = required("DATABASE_URL"); err != nil {
		return nil, err
	}
	if cfg.JWTSecret, err = required("JWT_SECRET"); err != nil {
		return nil, err
	}
	if cfg.Razorpay.KeyID, err = required("RAZORPAY_KEY_ID"); err != nil {
		return nil, err
	}
	if cfg.Razorpay.KeySecret, err = required("RAZORPAY_KEY_SECRET"); err != nil {
		return nil, err
	}
	if cfg.Razorpay.WebhookSecret, err = required("RAZORPAY_WEBHOOK_SECRET"); err != nil {
		return nil, err
	}
	if cfg.Razorpay.CowPujaWebhookSecret, err = required("RAZORPAY_COW_PUJA_WEBHOOK_SECRET"); err != nil {
		return nil, err
	}

	if cfg.Mail.Workers, err = intOr("MAIL_WORKERS", 2); err != nil {
		return nil, err
	}
	if cfg.Mail.QueueSize, err = intOr("MAIL_QUEUE_SIZE", 256); err != nil {
		return nil, err
	}
	if cfg.SMTP.From == "" {
		cfg.SMTP.From = cfg.SMTP.Username
	}

	return cfg, nil
}

var ttlPattern = regexp.MustCompile(`^(\d+)([dhms])$`)

// ParseTTL turns strings such as "7d", "12h", "30m" or "45s" into a duration.
// Anything else yields DefaultTokenTTL.
func ParseTTL(s string) time.Duration {
	m := ttlPattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return DefaultTokenTTL
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n <= 0 {
		return DefaultTokenTTL
	}
	unit := map[string]time.Duration{
		"d": 24 * time.Hour,
		"h": time.Hour,
		"m": time.Minute,
		"s": time.Second,
	}[m[2]]
	return time.Duration(n) * unit
}

func required(key string) (string, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return "", fmt.Errorf("%s environment variable is required", key)
	}
	return v, nil
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func intOr(key string, def int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%s must be a positive integer", key)
	}
	return n, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

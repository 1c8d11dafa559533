// Package mail renders and delivers transactional emails.
package mail

import (
	"context"
	"strings"

	"go.uber.org/zap"
)

// Message is a rendered HTML email.
type Message struct {
	To      string
	Subject string
	HTML    string
}

// Mailer delivers a single message.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// LogMailer writes messages to the log instead of sending them. Used when SMTP is not configured.
type LogMailer struct {
	logger *zap.Logger
}

// NewLogMailer creates a LogMailer.
func NewLogMailer(logger *zap.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

// Send logs the envelope. The body is not logged since it may carry an OTP.
func (m *LogMailer) Send(_ context.Context, msg Message) error {
	m.logger.Info("mail (not sent, smtp disabled)",
		zap.String("to", MaskEmail(msg.To)),
		zap.String("subject", msg.Subject),
		zap.Int("body_bytes", len(msg.HTML)))
	return nil
}

// MaskEmail hides most of the local part, e.g. a***@example.com.
func MaskEmail(email string) string {
	at := strings.LastIndex(email, "@")
	if at <= 0 {
		return "****"
	}
	return email[:1] + "***" + email[at:]
}

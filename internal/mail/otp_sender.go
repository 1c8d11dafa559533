package mail

import (
	"context"
	"time"

	"github.com/kamdhenuseva/server/internal/model"
)

// CodeSender renders OTP emails and hands them to a Dispatcher.
type CodeSender struct {
	dispatcher *Dispatcher
}

// NewCodeSender creates a CodeSender on d.
func NewCodeSender(d *Dispatcher) *CodeSender {
	return &CodeSender{dispatcher: d}
}

// SendCode queues the code email. It returns ErrQueueFull or ErrClosed when the
// message could not be queued; it never waits for delivery.
func (s *CodeSender) SendCode(_ context.Context, to string, intent model.OTPIntent, code string, ttl time.Duration) error {
	msg, err := OTPMessage(to, intent, code, ttl)
	if err != nil {
		return err
	}
	return s.dispatcher.Enqueue(Job{Message: msg})
}

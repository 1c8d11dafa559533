// Package payment creates gateway orders and reconciles payment webhooks
// against donations and puja bookings.
package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kamdhenuseva/server/internal/metrics"
	"github.com/kamdhenuseva/server/internal/model"
	"github.com/kamdhenuseva/server/internal/repo"
)

// EventPaymentCaptured is the only event type that changes state.
const EventPaymentCaptured = "payment.captured"

var (
	ErrMissingSignature      = errors.New("missing signature header")
	ErrInvalidRawBody        = errors.New("invalid raw body")
	ErrSignatureInvalid      = errors.New("invalid signature")
	ErrMalformedEvent        = errors.New("invalid payload format")
	ErrMissingPaymentDetails = errors.New("missing payment details")
)

// IsRejection reports whether err means the delivery itself was bad (400)
// rather than a server-side failure.
func IsRejection(err error) bool {
	return errors.Is(err, ErrMissingSignature) ||
		errors.Is(err, ErrInvalidRawBody) ||
		errors.Is(err, ErrSignatureInvalid) ||
		errors.Is(err, ErrMalformedEvent) ||
		errors.Is(err, ErrMissingPaymentDetails)
}

// Outcome is what a verified webhook delivery did.
type Outcome string

const (
	OutcomeIgnored        Outcome = "ignored"
	OutcomeUnknownOrder   Outcome = "unknown_order"
	OutcomeAlreadySettled Outcome = "already_settled"
	OutcomeCaptured       Outcome = "captured"
)

// Event is the part of the gateway's webhook envelope we read.
type Event struct {
	Event   string `json:"event"`
	Payload struct {
		Payment *struct {
			Entity *struct {
				ID      string `json:"id"`
				OrderID string `json:"order_id"`
				Amount  int64  `json:"amount"`
				Status  string `json:"status"`
			} `json:"entity"`
		} `json:"payment"`
	} `json:"payload"`
}

// ids returns the order and payment ids, empty when absent.
func (e Event) ids() (orderID, paymentID string) {
	if e.Payload.Payment == nil || e.Payload.Payment.Entity == nil {
		return "", ""
	}
	return e.Payload.Payment.Entity.OrderID, e.Payload.Payment.Entity.ID
}

// Ledger is the order store a reconciler settles against.
type Ledger[T any] interface {
	// Lookup returns repo.ErrNotFound when the order is not tracked.
	Lookup(ctx context.Context, orderID string) (T, error)
	// Capturable reports whether the record may still move to its success state.
	Capturable(rec T) bool
	// Capture applies the success transition conditionally; a record that is no
	// longer capturable yields repo.ErrNoMatch.
	Capture(ctx context.Context, orderID, paymentID string, event model.TimelineEvent) (T, error)
}

// Notifier tells the customer about a captured payment. It must not block on delivery.
type Notifier[T any] interface {
	Notify(ctx context.Context, rec T) error
}

// WebhookHandler is the transport-facing side of a Reconciler.
type WebhookHandler interface {
	Handle(ctx context.Context, raw []byte, signature string) (Outcome, error)
}

// Reconciler verifies and applies payment.captured webhooks for one source.
type Reconciler[T any] struct {
	source   string
	secret   string
	ledger   Ledger[T]
	notifier Notifier[T]
	now      func() time.Time
	logger   *zap.Logger
}

// NewReconciler creates a reconciler; source labels logs and metrics.
func NewReconciler[T any](source, secret string, ledger Ledger[T], notifier Notifier[T], logger *zap.Logger) *Reconciler[T] {
	return &Reconciler[T]{
		source:   source,
		secret:   secret,
		ledger:   ledger,
		notifier: notifier,
		now:      time.Now,
		logger:   logger.With(zap.String("source", source)),
	}
}

// Handle processes one delivery. Any nil error means the gateway should get a 200.
func (r *Reconciler[T]) Handle(ctx context.Context, raw []byte, signature string) (Outcome, error) {
	outcome, err := r.handle(ctx, raw, signature)
	label := string(outcome)
	if err != nil {
		label = "rejected"
		if !IsRejection(err) {
			label = "error"
		}
	}
	metrics.WebhookEvents.WithLabelValues(r.source, label).Inc()
	return outcome, err
}

func (r *Reconciler[T]) handle(ctx context.Context, raw []byte, signature string) (Outcome, error) {
	if signature == "" {
		return "", ErrMissingSignature
	}
	if len(raw) == 0 {
		return "", ErrInvalidRawBody
	}
	if !VerifySignature(r.secret, raw, signature) {
		r.logger.Warn("webhook signature mismatch")
		return "", ErrSignatureInvalid
	}

	var ev Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if ev.Event != EventPaymentCaptured {
		r.logger.Debug("webhook event ignored", zap.String("event", ev.Event))
		return OutcomeIgnored, nil
	}
	orderID, paymentID := ev.ids()
	if orderID == "" || paymentID == "" {
		return "", ErrMissingPaymentDetails
	}

	log := r.logger.With(zap.String("order_id", orderID), zap.String("payment_id", paymentID))

	rec, err := r.ledger.Lookup(ctx, orderID)
	if errors.Is(err, repo.ErrNotFound) {
		log.Info("webhook for untracked order")
		return OutcomeUnknownOrder, nil
	}
	if err != nil {
		return "", fmt.Errorf("lookup order: %w", err)
	}
	if !r.ledger.Capturable(rec) {
		log.Info("order already settled")
		return OutcomeAlreadySettled, nil
	}

	rec, err = r.ledger.Capture(ctx, orderID, paymentID, model.TimelineEvent{
		Type: "payment_captured",
		By:   model.BySystem,
		At:   r.now().UTC(),
	})
	if errors.Is(err, repo.ErrNoMatch) {
		log.Info("order settled concurrently")
		return OutcomeAlreadySettled, nil
	}
	if err != nil {
		return "", fmt.Errorf("capture order: %w", err)
	}
	log.Info("payment captured")

	if err := r.notifier.Notify(ctx, rec); err != nil {
		log.Warn("capture notification not queued", zap.Error(err))
	}
	return OutcomeCaptured, nil
}

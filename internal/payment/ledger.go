package payment

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/kamdhenuseva/server/internal/mail"
	"github.com/kamdhenuseva/server/internal/model"
	"github.com/kamdhenuseva/server/internal/repo"
)

// MailQueue accepts outbound mail without blocking.
type MailQueue interface {
	Enqueue(job mail.Job) error
}

// DonationLedger settles donations: Pending -> Successful.
type DonationLedger struct {
	Donations repo.DonationRepo
}

func (l DonationLedger) Lookup(ctx context.Context, orderID string) (model.Donation, error) {
	return l.Donations.GetByProviderOrderID(ctx, orderID)
}

func (l DonationLedger) Capturable(d model.Donation) bool {
	return d.Status.CanTransition(model.DonationSuccessful)
}

func (l DonationLedger) Capture(ctx context.Context, orderID, paymentID string, event model.TimelineEvent) (model.Donation, error) {
	return l.Donations.Capture(ctx, orderID, paymentID, event)
}

// PujaLedger settles puja bookings: AwaitingPayment -> SuccessfulPayment.
type PujaLedger struct {
	Pujas repo.PujaRepo
}

func (l PujaLedger) Lookup(ctx context.Context, orderID string) (model.PujaOrder, error) {
	return l.Pujas.GetByProviderOrderID(ctx, orderID)
}

func (l PujaLedger) Capturable(o model.PujaOrder) bool {
	return o.Status.CanTransition(model.PujaSuccessfulPayment)
}

func (l PujaLedger) Capture(ctx context.Context, orderID, paymentID string, event model.TimelineEvent) (model.PujaOrder, error) {
	return l.Pujas.Transition(ctx, repo.PujaTransition{
		ProviderOrderID: orderID,
		To:              model.PujaSuccessfulPayment,
		PaymentID:       &paymentID,
		Event:           event,
	})
}

// DonationNotifier queues the donation receipt and flags the donation once it is sent.
type DonationNotifier struct {
	accounts  repo.AccountRepo
	donations repo.DonationRepo
	queue     MailQueue
	logger    *zap.Logger
}

// NewDonationNotifier creates a DonationNotifier.
func NewDonationNotifier(accounts repo.AccountRepo, donations repo.DonationRepo, queue MailQueue, logger *zap.Logger) *DonationNotifier {
	return &DonationNotifier{accounts: accounts, donations: donations, queue: queue, logger: logger}
}

func (n *DonationNotifier) Notify(ctx context.Context, d model.Donation) error {
	acct, err := n.accounts.GetByID(ctx, d.AccountID)
	if err != nil {
		return fmt.Errorf("load donor: %w", err)
	}
	msg, err := mail.DonationReceipt(acct.Email, acct.DisplayName("Donor"), d)
	if err != nil {
		return err
	}
	return n.queue.Enqueue(mail.Job{
		Message: msg,
		OnDone: func(ctx context.Context, err error) {
			if err != nil {
				return
			}
			if err := n.donations.MarkEmailSent(ctx, d.ID); err != nil {
				n.logger.Warn("mark donation email sent", zap.String("donation_id", d.ID.String()), zap.Error(err))
			}
		},
	})
}

// PujaNotifier queues the payment-received email to the booking contact.
type PujaNotifier struct {
	queue MailQueue
}

// NewPujaNotifier creates a PujaNotifier.
func NewPujaNotifier(queue MailQueue) *PujaNotifier {
	return &PujaNotifier{queue: queue}
}

func (n *PujaNotifier) Notify(_ context.Context, o model.PujaOrder) error {
	msg, err := mail.PujaPaymentReceived(o)
	if err != nil {
		return err
	}
	return n.queue.Enqueue(mail.Job{Message: msg})
}

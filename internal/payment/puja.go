package payment

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/kamdhenuseva/server/internal/auth"
	"github.com/kamdhenuseva/server/internal/model"
	"github.com/kamdhenuseva/server/internal/repo"
)

// MinPujaLeadTime is how far ahead a preferred puja date must be.
const MinPujaLeadTime = 72 * time.Hour

var indianMobile = regexp.MustCompile(`^\+91\d{10}$`)

// PujaInput is a booking request as submitted by the client.
type PujaInput struct {
	Customer model.PujaCustomer
	Details  model.PujaDetails
	// Amount in whole rupees; nil means the default price.
	Amount   *decimal.Decimal
	Currency string
}

// PujaCheckout is what the client needs to open the checkout widget.
type PujaCheckout struct {
	Order model.PujaOrder
	KeyID string
}

// PujaService books cow pujas and lets the customer follow them.
type PujaService struct {
	pujas     repo.PujaRepo
	gateway   Gateway
	keyID     string
	keySecret string
	validate  *validator.Validate
	now       func() time.Time
	logger    *zap.Logger
}

// NewPujaService creates a PujaService. keyID and keySecret are the gateway API credentials.
func NewPujaService(pujas repo.PujaRepo, gateway Gateway, keyID, keySecret string, logger *zap.Logger) *PujaService {
	return &PujaService{
		pujas:     pujas,
		gateway:   gateway,
		keyID:     keyID,
		keySecret: keySecret,
		validate:  validator.New(),
		now:       time.Now,
		logger:    logger,
	}
}

func (s *PujaService) check(in *PujaInput) error {
	var fields []auth.FieldError
	add := func(field, msg string) { fields = append(fields, auth.FieldError{Field: field, Message: msg}) }

	in.Customer.Name = strings.TrimSpace(in.Customer.Name)
	in.Customer.Email = strings.TrimSpace(in.Customer.Email)
	in.Customer.Phone = strings.TrimSpace(in.Customer.Phone)
	in.Details.Gotra = strings.TrimSpace(in.Details.Gotra)
	in.Details.Sankalpam = strings.TrimSpace(in.Details.Sankalpam)
	in.Details.NamesToInclude = strings.TrimSpace(in.Details.NamesToInclude)
	in.Details.AdditionalNotes = strings.TrimSpace(in.Details.AdditionalNotes)

	if len([]rune(in.Customer.Name)) < 2 {
		add("customer.name", "Name must be at least 2 characters")
	}
	if s.validate.Var(in.Customer.Email, "required,email") != nil {
		add("customer.email", "Email must be a valid email address")
	}
	if !indianMobile.MatchString(in.Customer.Phone) {
		add("customer.phone", "Phone must be in E.164 format: +91XXXXXXXXXX (10 digits)")
	}
	if len([]rune(in.Details.Gotra)) < 2 {
		add("pujaDetails.gotra", "Gotra must be at least 2 characters")
	}
	if len([]rune(in.Details.Sankalpam)) < 5 {
		add("pujaDetails.sankalpam", "Sankalpam must be at least 5 characters")
	}
	if d := in.Details.PreferredDate; d != nil && d.Sub(s.now()) < MinPujaLeadTime {
		add("pujaDetails.preferredDate", "preferredDate must be at least 3 full days (≥72 hours) from now")
	}
	if in.Amount == nil {
		amount := model.DefaultPujaAmount
		in.Amount = &amount
	}
	if !in.Amount.IsInteger() {
		add("amount", "Amount must be an integer (₹ in whole rupees)")
	} else if !in.Amount.IsPositive() {
		add("amount", "Amount must be greater than 0")
	}
	if in.Currency == "" {
		in.Currency = model.CurrencyINR
	}
	if in.Currency != model.CurrencyINR {
		add("currency", "Currency must be INR")
	}

	if len(fields) > 0 {
		return auth.NewError(auth.KindUnprocessable, fields[0].Message, fields...)
	}
	return nil
}

// Create validates the booking, opens a gateway order and stores the booking
// as AwaitingPayment. Name and email come from the account when it has them.
func (s *PujaService) Create(ctx context.Context, acct model.Account, in PujaInput) (PujaCheckout, error) {
	if acct.HasName() {
		in.Customer.Name = *acct.Name
	}
	if acct.Email != "" {
		in.Customer.Email = acct.Email
	}
	if err := s.check(&in); err != nil {
		return PujaCheckout{}, err
	}

	order, err := s.gateway.CreateOrder(ctx, OrderRequest{
		Amount:   model.ToPaise(*in.Amount),
		Currency: in.Currency,
		Notes:    map[string]string{"purpose": "cow_puja", "account_id": acct.ID.String()},
	})
	if err != nil {
		return PujaCheckout{}, fmt.Errorf("puja order: %w", err)
	}

	o, err := s.pujas.Create(ctx, model.PujaOrder{
		AccountID:       acct.ID,
		ProviderOrderID: order.ID,
		Status:          model.PujaAwaitingPayment,
		Amount:          *in.Amount,
		Currency:        in.Currency,
		Customer:        in.Customer,
		Details:         in.Details,
		Timeline: model.Timeline{{
			Type: "created",
			By:   model.ByUser(acct.ID),
			At:   s.now().UTC(),
		}},
	})
	if err != nil {
		return PujaCheckout{}, err
	}
	s.logger.Info("puja order created",
		zap.String("account_id", acct.ID.String()),
		zap.String("order_id", order.ID))
	return PujaCheckout{Order: o, KeyID: s.keyID}, nil
}

// VerifyCheckout checks the browser-side payment signature. It never changes
// state; the webhook remains the source of truth.
func (s *PujaService) VerifyCheckout(orderID, paymentID, signature string) error {
	orderID, paymentID, signature = strings.TrimSpace(orderID), strings.TrimSpace(paymentID), strings.TrimSpace(signature)
	if orderID == "" || paymentID == "" || signature == "" {
		return auth.NewError(auth.KindUnprocessable, "razorpay_order_id, razorpay_payment_id and razorpay_signature are required")
	}
	if !VerifyCheckout(s.keySecret, orderID, paymentID, signature) {
		return auth.NewError(auth.KindValidation, "Signature mismatch")
	}
	return nil
}

// MarkFailed fails the caller's newest booking still awaiting payment.
func (s *PujaService) MarkFailed(ctx context.Context, accountID uuid.UUID) (model.PujaOrder, error) {
	o, err := s.pujas.Transition(ctx, repo.PujaTransition{
		AccountID: &accountID,
		Latest:    true,
		To:        model.PujaFailed,
		Event:     model.TimelineEvent{Type: "failed", By: model.ByUser(accountID), At: s.now().UTC()},
	})
	if errors.Is(err, repo.ErrNoMatch) {
		return model.PujaOrder{}, auth.NewError(auth.KindNotFound, "No pending order found")
	}
	return o, err
}

// Abort cancels checkout for one of the caller's bookings. It only succeeds
// while the booking is still awaiting payment.
func (s *PujaService) Abort(ctx context.Context, accountID uuid.UUID, orderID string) (model.PujaOrder, error) {
	o, err := s.pujas.Transition(ctx, repo.PujaTransition{
		ProviderOrderID: orderID,
		AccountID:       &accountID,
		To:              model.PujaAborted,
		Event:           model.TimelineEvent{Type: "aborted", By: model.ByUser(accountID), At: s.now().UTC()},
	})
	if errors.Is(err, repo.ErrNoMatch) {
		return model.PujaOrder{}, auth.NewError(auth.KindNotFound, "No awaiting-payment order found or already finalized")
	}
	return o, err
}

// List returns the caller's bookings, newest first.
func (s *PujaService) List(ctx context.Context, accountID uuid.UUID, status *model.PujaStatus, page repo.Page) (ListPage[model.PujaOrder], error) {
	if status != nil && !status.Valid() {
		return ListPage[model.PujaOrder]{}, auth.NewError(auth.KindValidation, "Invalid status filter")
	}
	page = page.Normalize(20, maxPageSize)
	items, total, err := s.pujas.ListByAccount(ctx, accountID, status, page)
	if err != nil {
		return ListPage[model.PujaOrder]{}, err
	}
	return newListPage(items, page, total), nil
}

// Get returns one of the caller's bookings.
func (s *PujaService) Get(ctx context.Context, accountID, id uuid.UUID) (model.PujaOrder, error) {
	o, err := s.pujas.GetForAccount(ctx, accountID, id)
	if errors.Is(err, repo.ErrNotFound) {
		return model.PujaOrder{}, auth.NewError(auth.KindNotFound, "Not found")
	}
	return o, err
}

package payment

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/kamdhenuseva/server/internal/auth"
	"github.com/kamdhenuseva/server/internal/model"
	"github.com/kamdhenuseva/server/internal/repo"
)

const (
	defaultPageSize = 10
	maxPageSize     = 100
)

// ListPage is one page of a listing plus its totals.
type ListPage[T any] struct {
	Items []T
	Page  int
	Limit int
	Total int
	Pages int
}

func newListPage[T any](items []T, p repo.Page, total int) ListPage[T] {
	if items == nil {
		items = []T{}
	}
	return ListPage[T]{
		Items: items,
		Page:  p.Number,
		Limit: p.Limit,
		Total: total,
		Pages: int(math.Ceil(float64(total) / float64(p.Limit))),
	}
}

// DonationService creates donation orders and serves donation history.
type DonationService struct {
	accounts  repo.AccountRepo
	donations repo.DonationRepo
	gateway   Gateway
	now       func() time.Time
	logger    *zap.Logger
}

// NewDonationService creates a DonationService.
func NewDonationService(accounts repo.AccountRepo, donations repo.DonationRepo, gateway Gateway, logger *zap.Logger) *DonationService {
	return &DonationService{
		accounts:  accounts,
		donations: donations,
		gateway:   gateway,
		now:       time.Now,
		logger:    logger,
	}
}

// DonationInput is a request to give.
type DonationInput struct {
	Amount decimal.Decimal
	Kind   model.DonationKind
	CowID  string
}

func (in *DonationInput) normalize() error {
	if in.Kind == "" {
		in.Kind = model.DonationCow
	}
	in.CowID = strings.TrimSpace(in.CowID)
	if !in.Amount.IsPositive() {
		return auth.NewError(auth.KindValidation, "Amount is required.",
			auth.FieldError{Field: "amount", Message: "Amount must be greater than 0"})
	}
	if !in.Kind.Valid() {
		return auth.NewError(auth.KindValidation, "Invalid donation type.",
			auth.FieldError{Field: "type", Message: "Type must be cow or ashram"})
	}
	if in.Kind == model.DonationCow && in.CowID == "" {
		return auth.NewError(auth.KindValidation, "cowId is required for cow donation.",
			auth.FieldError{Field: "cowId", Message: "cowId is required for cow donation."})
	}
	if in.Kind == model.DonationAshram {
		in.CowID = ""
	}
	return nil
}

// Create opens a gateway order and records a Pending donation against it.
func (s *DonationService) Create(ctx context.Context, accountID uuid.UUID, in DonationInput) (model.Donation, error) {
	if err := in.normalize(); err != nil {
		return model.Donation{}, err
	}
	if _, err := s.accounts.GetByID(ctx, accountID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return model.Donation{}, auth.NewError(auth.KindNotFound, "User not found.")
		}
		return model.Donation{}, err
	}

	notes := map[string]string{"type": string(in.Kind), "account_id": accountID.String()}
	if in.CowID != "" {
		notes["cow_id"] = in.CowID
	}
	order, err := s.gateway.CreateOrder(ctx, OrderRequest{
		Amount:   model.ToPaise(in.Amount),
		Currency: model.CurrencyINR,
		Notes:    notes,
	})
	if err != nil {
		return model.Donation{}, fmt.Errorf("donation order: %w", err)
	}

	d := model.Donation{
		AccountID:       accountID,
		Kind:            in.Kind,
		Amount:          in.Amount,
		Currency:        model.CurrencyINR,
		Status:          model.DonationPending,
		ProviderOrderID: order.ID,
		Timeline: model.Timeline{{
			Type: "created",
			By:   model.ByUser(accountID),
			At:   s.now().UTC(),
		}},
	}
	if in.CowID != "" {
		d.CowID = &in.CowID
	}
	d, err = s.donations.Create(ctx, d)
	if err != nil {
		return model.Donation{}, err
	}
	s.logger.Info("donation order created",
		zap.String("account_id", accountID.String()),
		zap.String("order_id", order.ID),
		zap.String("kind", string(d.Kind)))
	return d, nil
}

// MarkFailed fails the caller's newest pending donation of the given kind after
// checkout was abandoned. Nothing pending yields NotFound.
func (s *DonationService) MarkFailed(ctx context.Context, accountID uuid.UUID, kind model.DonationKind, cowID string) (model.Donation, error) {
	if kind == "" {
		kind = model.DonationCow
	}
	if !kind.Valid() {
		return model.Donation{}, auth.NewError(auth.KindValidation, "Invalid donation type.")
	}
	var cow *string
	if kind == model.DonationCow {
		cowID = strings.TrimSpace(cowID)
		if cowID == "" {
			return model.Donation{}, auth.NewError(auth.KindValidation, "Missing cowId for cow donation")
		}
		cow = &cowID
	}
	d, err := s.donations.MarkFailed(ctx, accountID, kind, cow, model.TimelineEvent{
		Type: "failed",
		By:   model.ByUser(accountID),
		At:   s.now().UTC(),
	})
	if errors.Is(err, repo.ErrNoMatch) {
		return model.Donation{}, auth.NewError(auth.KindNotFound, "No pending donation found")
	}
	return d, err
}

// History lists the caller's donations, newest first.
func (s *DonationService) History(ctx context.Context, accountID uuid.UUID, f repo.DonationFilter) (ListPage[model.Donation], error) {
	if f.Status != nil && !f.Status.Valid() {
		return ListPage[model.Donation]{}, auth.NewError(auth.KindValidation, "Invalid status filter")
	}
	f.Page = f.Page.Normalize(defaultPageSize, maxPageSize)
	items, total, err := s.donations.ListByAccount(ctx, accountID, f)
	if err != nil {
		return ListPage[model.Donation]{}, err
	}
	return newListPage(items, f.Page, total), nil
}

package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/kamdhenuseva/server/internal/model"
	"github.com/kamdhenuseva/server/internal/payment"
	"github.com/kamdhenuseva/server/internal/repo"
)

// DonationView is a donation as shown to its donor.
type DonationView struct {
	ID        string               `json:"_id"`
	Type      model.DonationKind   `json:"type"`
	CowID     *string              `json:"cowId,omitempty"`
	Amount    decimal.Decimal      `json:"amount"`
	Currency  string               `json:"currency"`
	Status    model.DonationStatus `json:"status"`
	OrderID   string               `json:"razorpayOrderId"`
	PaymentID *string              `json:"razorpayPaymentId,omitempty"`
	Timeline  model.Timeline       `json:"timeline"`
	CreatedAt time.Time            `json:"createdAt"`
}

func donationView(d model.Donation) DonationView {
	return DonationView{
		ID:        d.ID.String(),
		Type:      d.Kind,
		CowID:     d.CowID,
		Amount:    d.Amount,
		Currency:  d.Currency,
		Status:    d.Status,
		OrderID:   d.ProviderOrderID,
		PaymentID: d.ProviderPaymentID,
		Timeline:  d.Timeline,
		CreatedAt: d.CreatedAt,
	}
}

type pageView[T any] struct {
	Items      []T `json:"items"`
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

func listView[S, T any](p payment.ListPage[S], view func(S) T) pageView[T] {
	items := make([]T, 0, len(p.Items))
	for _, it := range p.Items {
		items = append(items, view(it))
	}
	return pageView[T]{Items: items, Page: p.Page, Limit: p.Limit, Total: p.Total, TotalPages: p.Pages}
}

// pageFromQuery reads ?page= and ?limit=. Bad values fall back to defaults.
func pageFromQuery(r *http.Request) repo.Page {
	q := r.URL.Query()
	n, _ := strconv.Atoi(q.Get("page"))
	l, _ := strconv.Atoi(q.Get("limit"))
	return repo.Page{Number: n, Limit: l}
}

// DonationHandler serves donation checkout and history.
type DonationHandler struct {
	svc    *payment.DonationService
	logger *zap.Logger
}

// NewDonationHandler creates a new DonationHandler.
func NewDonationHandler(svc *payment.DonationService, logger *zap.Logger) *DonationHandler {
	return &DonationHandler{svc: svc, logger: logger}
}

type donateRequest struct {
	Amount decimal.Decimal    `json:"amount"`
	Type   model.DonationKind `json:"type"`
	CowID  string             `json:"cowId"`
}

// Donate handles POST /payments/donate.
func (h *DonationHandler) Donate(w http.ResponseWriter, r *http.Request) {
	acct, ok := currentAccount(w, r)
	if !ok {
		return
	}
	var req donateRequest
	if !decode(w, r, &req) {
		return
	}
	d, err := h.svc.Create(r.Context(), acct.ID, payment.DonationInput{Amount: req.Amount, Kind: req.Type, CowID: req.CowID})
	if err != nil {
		fail(w, h.logger, err)
		return
	}
	respond(w, http.StatusCreated, map[string]any{
		"orderId":    d.ProviderOrderID,
		"amount":     d.Amount,
		"currency":   d.Currency,
		"donationId": d.ID.String(),
	}, "Donation order created")
}

type markDonationFailedRequest struct {
	Type  model.DonationKind `json:"type"`
	CowID string             `json:"cowId"`
}

// MarkFailed handles POST /payments/mark-failed.
func (h *DonationHandler) MarkFailed(w http.ResponseWriter, r *http.Request) {
	acct, ok := currentAccount(w, r)
	if !ok {
		return
	}
	var req markDonationFailedRequest
	if !decode(w, r, &req) {
		return
	}
	d, err := h.svc.MarkFailed(r.Context(), acct.ID, req.Type, req.CowID)
	if err != nil {
		fail(w, h.logger, err)
		return
	}
	respond(w, http.StatusOK, donationView(d), "Donation marked as failed")
}

// History handles GET /donations/my with optional ?status= and ?type= filters.
func (h *DonationHandler) History(w http.ResponseWriter, r *http.Request) {
	h.history(w, r, nil)
}

// CowHistory handles GET /donations/my/cows.
func (h *DonationHandler) CowHistory(w http.ResponseWriter, r *http.Request) {
	kind := model.DonationCow
	h.history(w, r, &kind)
}

// AshramHistory handles GET /donations/my/ashram.
func (h *DonationHandler) AshramHistory(w http.ResponseWriter, r *http.Request) {
	kind := model.DonationAshram
	h.history(w, r, &kind)
}

func (h *DonationHandler) history(w http.ResponseWriter, r *http.Request, kind *model.DonationKind) {
	acct, ok := currentAccount(w, r)
	if !ok {
		return
	}
	f := repo.DonationFilter{Kind: kind, Page: pageFromQuery(r)}
	if kind == nil {
		if v := r.URL.Query().Get("type"); v != "" {
			k := model.DonationKind(v)
			if !k.Valid() {
				respondWithError(w, http.StatusBadRequest, "Invalid donation type.")
				return
			}
			f.Kind = &k
		}
	}
	if v := r.URL.Query().Get("status"); v != "" {
		s := model.DonationStatus(v)
		f.Status = &s
	}
	page, err := h.svc.History(r.Context(), acct.ID, f)
	if err != nil {
		fail(w, h.logger, err)
		return
	}
	respond(w, http.StatusOK, listView(page, donationView), "Donations fetched")
}

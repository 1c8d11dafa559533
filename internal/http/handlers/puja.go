package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/kamdhenuseva/server/internal/model"
	"github.com/kamdhenuseva/server/internal/payment"
)

// PujaOrderView is a puja booking as shown to its owner.
type PujaOrderView struct {
	ID            string             `json:"_id"`
	OrderID       string             `json:"razorpayOrderId"`
	PaymentID     *string            `json:"razorpayPaymentId,omitempty"`
	Status        model.PujaStatus   `json:"status"`
	Amount        decimal.Decimal    `json:"amount"`
	Currency      string             `json:"currency"`
	Customer      model.PujaCustomer `json:"customer"`
	PujaDetails   model.PujaDetails  `json:"pujaDetails"`
	ScheduledDate *time.Time         `json:"scheduledDate,omitempty"`
	Timeline      model.Timeline     `json:"timeline"`
	CreatedAt     time.Time          `json:"createdAt"`
	UpdatedAt     time.Time          `json:"updatedAt"`
}

func pujaView(o model.PujaOrder) PujaOrderView {
	return PujaOrderView{
		ID:            o.ID.String(),
		OrderID:       o.ProviderOrderID,
		PaymentID:     o.ProviderPaymentID,
		Status:        o.Status,
		Amount:        o.Amount,
		Currency:      o.Currency,
		Customer:      o.Customer,
		PujaDetails:   o.Details,
		ScheduledDate: o.ScheduledDate,
		Timeline:      o.Timeline,
		CreatedAt:     o.CreatedAt,
		UpdatedAt:     o.UpdatedAt,
	}
}

// PujaHandler serves cow puja bookings.
type PujaHandler struct {
	svc    *payment.PujaService
	logger *zap.Logger
}

// NewPujaHandler creates a new PujaHandler.
func NewPujaHandler(svc *payment.PujaService, logger *zap.Logger) *PujaHandler {
	return &PujaHandler{svc: svc, logger: logger}
}

type createPujaRequest struct {
	Customer    model.PujaCustomer `json:"customer"`
	PujaDetails model.PujaDetails  `json:"pujaDetails"`
	Amount      *decimal.Decimal   `json:"amount"`
	Currency    string             `json:"currency"`
}

// Create handles POST /cow-puja/orders.
func (h *PujaHandler) Create(w http.ResponseWriter, r *http.Request) {
	acct, ok := currentAccount(w, r)
	if !ok {
		return
	}
	var req createPujaRequest
	if !decode(w, r, &req) {
		return
	}
	checkout, err := h.svc.Create(r.Context(), acct, payment.PujaInput{
		Customer: req.Customer,
		Details:  req.PujaDetails,
		Amount:   req.Amount,
		Currency: req.Currency,
	})
	if err != nil {
		fail(w, h.logger, err)
		return
	}
	o := checkout.Order
	respond(w, http.StatusCreated, map[string]any{
		"orderId":  o.ProviderOrderID,
		"amount":   model.ToPaise(o.Amount),
		"currency": o.Currency,
		"keyId":    checkout.KeyID,
		"order":    pujaView(o),
	}, "Order created")
}

type verifyPujaRequest struct {
	OrderID   string `json:"razorpay_order_id"`
	PaymentID string `json:"razorpay_payment_id"`
	Signature string `json:"razorpay_signature"`
}

// Verify handles POST /cow-puja/verify. It only checks the checkout signature.
func (h *PujaHandler) Verify(w http.ResponseWriter, r *http.Request) {
	if _, ok := currentAccount(w, r); !ok {
		return
	}
	var req verifyPujaRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.svc.VerifyCheckout(req.OrderID, req.PaymentID, req.Signature); err != nil {
		fail(w, h.logger, err)
		return
	}
	respond(w, http.StatusOK, map[string]bool{"verified": true}, "Payment verified")
}

// MarkFailed handles POST /cow-puja/mark-failed.
func (h *PujaHandler) MarkFailed(w http.ResponseWriter, r *http.Request) {
	acct, ok := currentAccount(w, r)
	if !ok {
		return
	}
	o, err := h.svc.MarkFailed(r.Context(), acct.ID)
	if err != nil {
		fail(w, h.logger, err)
		return
	}
	respond(w, http.StatusOK, pujaView(o), "Order marked as failed")
}

// Abort handles POST /cow-puja/orders/{orderId}/abort.
func (h *PujaHandler) Abort(w http.ResponseWriter, r *http.Request) {
	acct, ok := currentAccount(w, r)
	if !ok {
		return
	}
	o, err := h.svc.Abort(r.Context(), acct.ID, chi.URLParam(r, "orderId"))
	if err != nil {
		fail(w, h.logger, err)
		return
	}
	respond(w, http.StatusOK, pujaView(o), "Order aborted")
}

// List handles GET /cow-puja/my/orders.
func (h *PujaHandler) List(w http.ResponseWriter, r *http.Request) {
	acct, ok := currentAccount(w, r)
	if !ok {
		return
	}
	var status *model.PujaStatus
	if v := r.URL.Query().Get("status"); v != "" {
		s := model.PujaStatus(v)
		status = &s
	}
	page, err := h.svc.List(r.Context(), acct.ID, status, pageFromQuery(r))
	if err != nil {
		fail(w, h.logger, err)
		return
	}
	respond(w, http.StatusOK, listView(page, pujaView), "Orders fetched")
}

// Get handles GET /cow-puja/my/orders/{id}.
func (h *PujaHandler) Get(w http.ResponseWriter, r *http.Request) {
	acct, ok := currentAccount(w, r)
	if !ok {
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondWithError(w, http.StatusNotFound, "Not found")
		return
	}
	o, err := h.svc.Get(r.Context(), acct.ID, id)
	if err != nil {
		fail(w, h.logger, err)
		return
	}
	respond(w, http.StatusOK, pujaView(o), "Order fetched")
}

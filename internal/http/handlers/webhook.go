package handlers

import (
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/kamdhenuseva/server/internal/payment"
)

// SignatureHeader carries the gateway's HMAC of the raw body.
const SignatureHeader = "X-Razorpay-Signature"

// rejections pairs each bad-delivery error with the fixed text sent back.
var rejections = []struct {
	err error
	msg string
}{
	{payment.ErrMissingSignature, "Missing signature"},
	{payment.ErrInvalidRawBody, "Invalid raw body"},
	{payment.ErrSignatureInvalid, "Invalid signature"},
	{payment.ErrMalformedEvent, "Invalid payload format"},
	{payment.ErrMissingPaymentDetails, "Missing payment details"},
}

func rejectionMessage(err error) string {
	for _, r := range rejections {
		if errors.Is(err, r.err) {
			return r.msg
		}
	}
	return "Invalid webhook"
}

type webhookResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// WebhookHandler acknowledges gateway deliveries. Verified events are always
// answered with 200 so the gateway stops retrying; only bad deliveries get 400.
type WebhookHandler struct {
	reconciler payment.WebhookHandler
	logger     *zap.Logger
}

// NewWebhookHandler creates a new WebhookHandler.
func NewWebhookHandler(reconciler payment.WebhookHandler, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{reconciler: reconciler, logger: logger}
}

// ServeHTTP reads the raw body untouched; the signature covers exact bytes.
func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, webhookResponse{Message: "Invalid raw body"})
		return
	}
	outcome, err := h.reconciler.Handle(r.Context(), raw, r.Header.Get(SignatureHeader))
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, webhookResponse{Success: true, Message: string(outcome)})
	case payment.IsRejection(err):
		h.logger.Warn("webhook rejected", zap.Error(err))
		writeJSON(w, http.StatusBadRequest, webhookResponse{Message: rejectionMessage(err)})
	default:
		h.logger.Error("webhook processing failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, webhookResponse{Message: "Webhook processing failed"})
	}
}

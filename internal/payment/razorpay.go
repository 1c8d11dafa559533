package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// OrderRequest asks the gateway for a new order. Amount is in paise.
type OrderRequest struct {
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Receipt  string            `json:"receipt,omitempty"`
	Notes    map[string]string `json:"notes,omitempty"`
	// PaymentCapture asks the gateway to capture on authorization.
	PaymentCapture int `json:"payment_capture"`
}

// Order is the gateway's view of a created order.
type Order struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	Status   string `json:"status"`
}

// Gateway creates payment orders.
type Gateway interface {
	CreateOrder(ctx context.Context, req OrderRequest) (Order, error)
}

// RazorpayClient talks to the Razorpay REST API with key-id/secret basic auth.
type RazorpayClient struct {
	keyID      string
	keySecret  string
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewRazorpayClient creates a client against baseURL (https://api.razorpay.com/v1 in production).
func NewRazorpayClient(keyID, keySecret, baseURL string, logger *zap.Logger) *RazorpayClient {
	return &RazorpayClient{
		keyID:      keyID,
		keySecret:  keySecret,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
	}
}

// KeyID is the public key the checkout widget needs.
func (c *RazorpayClient) KeyID() string {
	return c.keyID
}

// CreateOrder creates an auto-capture order.
func (c *RazorpayClient) CreateOrder(ctx context.Context, req OrderRequest) (Order, error) {
	req.PaymentCapture = 1
	var out Order
	if err := c.post(ctx, "/orders", req, &out); err != nil {
		return Order{}, fmt.Errorf("create order: %w", err)
	}
	if out.ID == "" {
		return Order{}, fmt.Errorf("create order: gateway returned no order id")
	}
	return out, nil
}

func (c *RazorpayClient) post(ctx context.Context, path string, payload, result any) error {
	return c.request(ctx, http.MethodPost, path, payload, result)
}

func (c *RazorpayClient) request(ctx context.Context, method, path string, payload, result any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.SetBasicAuth(c.keyID, c.keySecret)
	req.Header.Set("Content-Type", "application/json")

	c.logger.Debug("razorpay request", zap.String("method", method), zap.String("path", path))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		c.logger.Error("razorpay api error",
			zap.Int("status", resp.StatusCode),
			zap.String("response", string(respBody)))
		return fmt.Errorf("api error (%d)", resp.StatusCode)
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

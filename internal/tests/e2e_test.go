package tests

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kamdhenuseva/server/internal/app"
	"github.com/kamdhenuseva/server/internal/config"
	"github.com/kamdhenuseva/server/internal/mail"
	"github.com/kamdhenuseva/server/internal/payment"
)

const (
	e2eWebhookSecret = "whsec_e2e_donation"
	e2ePujaSecret    = "whsec_e2e_puja"
)

type outbox struct {
	mu   sync.Mutex
	sent []mail.Message
}

func (o *outbox) Send(_ context.Context, msg mail.Message) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sent = append(o.sent, msg)
	return nil
}

func (o *outbox) subjects() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]string, 0, len(o.sent))
	for _, m := range o.sent {
		out = append(out, m.Subject)
	}
	return out
}

type counterGateway struct {
	mu sync.Mutex
	n  int
}

func (g *counterGateway) CreateOrder(_ context.Context, req payment.OrderRequest) (payment.Order, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return payment.Order{ID: fmt.Sprintf("order_e2e_%d_%d", time.Now().UnixNano(), g.n), Amount: req.Amount, Currency: req.Currency}, nil
}

type e2e struct {
	t      *testing.T
	db     *sql.DB
	server *httptest.Server
	client *http.Client
	mail   *outbox
}

func newE2E(t *testing.T) *e2e {
	t.Helper()
	conn := OpenDB(t)
	cfg := &config.Config{
		APIVersion: "1",
		JWTSecret:  "e2e-jwt-secret",
		TokenTTL:   time.Hour,
		Mail:       config.MailConfig{Workers: 1, QueueSize: 64},
		Razorpay: config.RazorpayConfig{
			KeyID:                "rzp_test_e2e",
			KeySecret:            "e2e_key_secret",
			WebhookSecret:        e2eWebhookSecret,
			CowPujaWebhookSecret: e2ePujaSecret,
		},
	}
	box := &outbox{}
	application := app.New(cfg, conn, zap.NewNop(), app.Options{Mailer: box, Gateway: &counterGateway{}})
	// The session cookie is Secure, so the cookie jar needs TLS.
	srv := httptest.NewTLSServer(application.Handler)
	t.Cleanup(func() {
		srv.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = application.Close(ctx)
	})

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	client := srv.Client()
	client.Jar = jar
	return &e2e{t: t, db: conn, server: srv, client: client, mail: box}
}

func (e *e2e) post(path string, body any) (int, map[string]any) {
	e.t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(e.t, err)
	resp, err := e.client.Post(e.server.URL+"/api/v1"+path, "application/json", bytes.NewReader(raw))
	require.NoError(e.t, err)
	defer resp.Body.Close()
	var out map[string]any
	require.NoError(e.t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func (e *e2e) get(path string) (int, map[string]any) {
	e.t.Helper()
	resp, err := e.client.Get(e.server.URL + "/api/v1" + path)
	require.NoError(e.t, err)
	defer resp.Body.Close()
	var out map[string]any
	require.NoError(e.t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

// storedCode reads the live OTP; the mail body is HTML and not worth parsing.
func (e *e2e) storedCode(email string) string {
	e.t.Helper()
	var code sql.NullString
	require.NoError(e.t, e.db.QueryRow(`SELECT otp_code FROM accounts WHERE email = $1`, email).Scan(&code))
	require.True(e.t, code.Valid, "no live code for %s", email)
	return code.String
}

func TestE2E_AuthFlow(t *testing.T) {
	e := newE2E(t)
	const email = "e2e@example.com"

	status, body := e.post("/user/register/init", map[string]string{"email": email})
	require.Equal(t, http.StatusOK, status, body)

	status, body = e.post("/user/verify-email-otp", map[string]string{"email": email, "otp": e.storedCode(email)})
	require.Equal(t, http.StatusOK, status, body)

	status, body = e.post("/user/register/complete", map[string]string{
		"email": email, "name": "Kiran", "password": "secret1", "confirmPassword": "secret1",
	})
	require.Equal(t, http.StatusCreated, status, body)

	status, body = e.get("/user/validate-token")
	require.Equal(t, http.StatusOK, status, body)
	data := body["data"].(map[string]any)
	assert.Equal(t, email, data["email"])

	var sessions int
	require.NoError(t, e.db.QueryRow(`SELECT count(*) FROM sessions`).Scan(&sessions))
	assert.Equal(t, 1, sessions)

	status, body = e.post("/user/register/init", map[string]string{"email": email})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "User already exists", body["message"])

	status, _ = e.post("/user/logout", nil)
	require.Equal(t, http.StatusOK, status)
	status, _ = e.get("/user/profile")
	assert.Equal(t, http.StatusUnauthorized, status)

	status, body = e.post("/user/login", map[string]string{"email": email, "password": "secret1"})
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, "Login successful", body["message"])

	require.Eventually(t, func() bool { return len(e.mail.subjects()) >= 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestE2E_DonationWebhook(t *testing.T) {
	e := newE2E(t)
	const email = "giver@example.com"

	e.post("/user/register/init", map[string]string{"email": email})
	e.post("/user/verify-email-otp", map[string]string{"email": email, "otp": e.storedCode(email)})
	status, _ := e.post("/user/register/complete", map[string]string{
		"email": email, "name": "Giver", "password": "secret1", "confirmPassword": "secret1",
	})
	require.Equal(t, http.StatusCreated, status)

	status, body := e.post("/payments/donate", map[string]any{"amount": "1001", "type": "ashram"})
	require.Equal(t, http.StatusCreated, status, body)
	orderID := body["data"].(map[string]any)["orderId"].(string)

	payload := []byte(fmt.Sprintf(
		`{"event":"payment.captured","payload":{"payment":{"entity":{"id":"pay_e2e","order_id":%q,"amount":100100}}}}`, orderID))
	deliver := func() int {
		req, err := http.NewRequest(http.MethodPost, e.server.URL+"/api/v1/payments/webhook", bytes.NewReader(payload))
		require.NoError(t, err)
		req.Header.Set("X-Razorpay-Signature", payment.Sign(e2eWebhookSecret, payload))
		resp, err := e.client.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		return resp.StatusCode
	}

	// Redelivery is acknowledged without a second transition or receipt.
	require.Equal(t, http.StatusOK, deliver())
	require.Equal(t, http.StatusOK, deliver())

	var dbStatus string
	var emailSent bool
	require.Eventually(t, func() bool {
		err := e.db.QueryRow(`SELECT status, email_sent FROM donations WHERE provider_order_id = $1`, orderID).Scan(&dbStatus, &emailSent)
		return err == nil && emailSent
	}, 2*time.Second, 20*time.Millisecond)
	assert.Equal(t, "Successful", dbStatus)

	receipts := 0
	for _, s := range e.mail.subjects() {
		if strings.Contains(s, "Donation") {
			receipts++
		}
	}
	assert.Equal(t, 1, receipts)
}

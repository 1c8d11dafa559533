package payment

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kamdhenuseva/server/internal/auth"
	"github.com/kamdhenuseva/server/internal/mail"
	"github.com/kamdhenuseva/server/internal/model"
	"github.com/kamdhenuseva/server/internal/repo"
	"github.com/kamdhenuseva/server/internal/repo/repotest"
)

const webhookSecret = "whsec_test"

type fakeGateway struct {
	mu   sync.Mutex
	n    int
	last OrderRequest
	err  error
}

func (g *fakeGateway) CreateOrder(_ context.Context, req OrderRequest) (Order, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return Order{}, g.err
	}
	g.n++
	g.last = req
	return Order{ID: fmt.Sprintf("order_%03d", g.n), Amount: req.Amount, Currency: req.Currency, Status: "created"}, nil
}

type fakeQueue struct {
	mu   sync.Mutex
	jobs []mail.Job
	err  error
}

func (q *fakeQueue) Enqueue(job mail.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *fakeQueue) count() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

func capturedBody(orderID, paymentID string) []byte {
	return []byte(fmt.Sprintf(
		`{"event":"payment.captured","payload":{"payment":{"entity":{"id":%q,"order_id":%q,"amount":210000,"status":"captured"}}}}`,
		paymentID, orderID))
}

func pujaFixture(t *testing.T) (*repotest.Pujas, *fakeQueue, *Reconciler[model.PujaOrder], model.PujaOrder) {
	t.Helper()
	pujas := repotest.NewPujas()
	queue := &fakeQueue{}
	rec := NewReconciler[model.PujaOrder]("cow_puja", webhookSecret, PujaLedger{Pujas: pujas}, NewPujaNotifier(queue), zap.NewNop())
	o, err := pujas.Create(context.Background(), model.PujaOrder{
		AccountID:       uuid.New(),
		ProviderOrderID: "order_abc",
		Amount:          decimal.NewFromInt(2100),
		Customer:        model.PujaCustomer{Name: "Asha", Email: "asha@example.com", Phone: "+919876543210"},
		Details:         model.PujaDetails{Gotra: "Kashyap", Sankalpam: "For family health"},
	})
	require.NoError(t, err)
	return pujas, queue, rec, o
}

func TestVerifySignature(t *testing.T) {
	body := []byte(`{"a":1}`)
	sig := Sign("s3cret", body)
	assert.True(t, VerifySignature("s3cret", body, sig))
	assert.False(t, VerifySignature("other", body, sig))
	assert.False(t, VerifySignature("s3cret", []byte(`{"a":2}`), sig))
	assert.False(t, VerifySignature("s3cret", body, ""))
	assert.True(t, VerifyCheckout("key", "order_1", "pay_1", Sign("key", []byte("order_1|pay_1"))))
}

func TestReconciler_capturesOnceAndIsIdempotent(t *testing.T) {
	pujas, queue, rec, o := pujaFixture(t)
	ctx := context.Background()
	body := capturedBody(o.ProviderOrderID, "pay_1")

	outcome, err := rec.Handle(ctx, body, Sign(webhookSecret, body))
	require.NoError(t, err)
	assert.Equal(t, OutcomeCaptured, outcome)

	outcome, err = rec.Handle(ctx, body, Sign(webhookSecret, body))
	require.NoError(t, err)
	assert.Equal(t, OutcomeAlreadySettled, outcome)

	stored, err := pujas.GetByProviderOrderID(ctx, o.ProviderOrderID)
	require.NoError(t, err)
	assert.Equal(t, model.PujaSuccessfulPayment, stored.Status)
	require.NotNil(t, stored.ProviderPaymentID)
	assert.Equal(t, "pay_1", *stored.ProviderPaymentID)
	require.Len(t, stored.Timeline, 1)
	assert.Equal(t, "payment_captured", stored.Timeline[0].Type)
	assert.Equal(t, model.BySystem, stored.Timeline[0].By)

	assert.Equal(t, 1, queue.count(), "exactly one notification")
	assert.Equal(t, "asha@example.com", queue.jobs[0].Message.To)
}

func TestReconciler_rejectsBadDeliveries(t *testing.T) {
	pujas, queue, rec, o := pujaFixture(t)
	ctx := context.Background()
	body := capturedBody(o.ProviderOrderID, "pay_1")
	sig := Sign(webhookSecret, body)

	_, err := rec.Handle(ctx, body, "")
	assert.ErrorIs(t, err, ErrMissingSignature)

	_, err = rec.Handle(ctx, nil, sig)
	assert.ErrorIs(t, err, ErrInvalidRawBody)

	tampered := capturedBody(o.ProviderOrderID, "pay_2")
	_, err = rec.Handle(ctx, tampered, sig)
	assert.ErrorIs(t, err, ErrSignatureInvalid)
	assert.True(t, IsRejection(err))

	garbage := []byte(`not json`)
	_, err = rec.Handle(ctx, garbage, Sign(webhookSecret, garbage))
	assert.ErrorIs(t, err, ErrMalformedEvent)

	noIDs := []byte(`{"event":"payment.captured","payload":{}}`)
	_, err = rec.Handle(ctx, noIDs, Sign(webhookSecret, noIDs))
	assert.ErrorIs(t, err, ErrMissingPaymentDetails)

	stored, _ := pujas.GetByProviderOrderID(ctx, o.ProviderOrderID)
	assert.Equal(t, model.PujaAwaitingPayment, stored.Status)
	assert.Zero(t, queue.count())
}

func TestReconciler_ignoredAndUnknown(t *testing.T) {
	_, queue, rec, _ := pujaFixture(t)
	ctx := context.Background()

	failed := []byte(`{"event":"payment.failed","payload":{"payment":{"entity":{"id":"pay_1","order_id":"order_abc"}}}}`)
	outcome, err := rec.Handle(ctx, failed, Sign(webhookSecret, failed))
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, outcome)

	unknown := capturedBody("order_missing", "pay_9")
	outcome, err = rec.Handle(ctx, unknown, Sign(webhookSecret, unknown))
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnknownOrder, outcome)
	assert.Zero(t, queue.count())
}

func TestReconciler_notificationFailureStillAcks(t *testing.T) {
	pujas, queue, rec, o := pujaFixture(t)
	queue.err = mail.ErrQueueFull
	body := capturedBody(o.ProviderOrderID, "pay_1")

	outcome, err := rec.Handle(context.Background(), body, Sign(webhookSecret, body))
	require.NoError(t, err)
	assert.Equal(t, OutcomeCaptured, outcome)

	stored, _ := pujas.GetByProviderOrderID(context.Background(), o.ProviderOrderID)
	assert.Equal(t, model.PujaSuccessfulPayment, stored.Status)
}

type failingLedger struct{ PujaLedger }

func (failingLedger) Lookup(context.Context, string) (model.PujaOrder, error) {
	return model.PujaOrder{}, errors.New("connection refused")
}

func TestReconciler_storeErrorIsServerError(t *testing.T) {
	rec := NewReconciler[model.PujaOrder]("cow_puja", webhookSecret, failingLedger{}, NewPujaNotifier(&fakeQueue{}), zap.NewNop())
	body := capturedBody("order_abc", "pay_1")
	_, err := rec.Handle(context.Background(), body, Sign(webhookSecret, body))
	require.Error(t, err)
	assert.False(t, IsRejection(err))
}

func TestAbortAfterCaptureIsNotFound(t *testing.T) {
	pujas, _, rec, o := pujaFixture(t)
	svc := NewPujaService(pujas, &fakeGateway{}, "rzp_key", "key_secret", zap.NewNop())
	ctx := context.Background()
	body := capturedBody(o.ProviderOrderID, "pay_1")

	_, err := rec.Handle(ctx, body, Sign(webhookSecret, body))
	require.NoError(t, err)

	_, err = svc.Abort(ctx, o.AccountID, o.ProviderOrderID)
	e, ok := auth.AsError(err)
	require.True(t, ok)
	assert.Equal(t, auth.KindNotFound, e.Kind)
	assert.Equal(t, "No awaiting-payment order found or already finalized", e.Message)
}

// Abort and capture race on one order: exactly one wins and the result is one of the two.
func TestAbortRacesCapture(t *testing.T) {
	for i := 0; i < 20; i++ {
		pujas, queue, rec, o := pujaFixture(t)
		svc := NewPujaService(pujas, &fakeGateway{}, "rzp_key", "key_secret", zap.NewNop())
		ctx := context.Background()
		body := capturedBody(o.ProviderOrderID, "pay_1")

		var wg sync.WaitGroup
		var abortErr error
		var outcome Outcome
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, abortErr = svc.Abort(ctx, o.AccountID, o.ProviderOrderID)
		}()
		go func() {
			defer wg.Done()
			outcome, _ = rec.Handle(ctx, body, Sign(webhookSecret, body))
		}()
		wg.Wait()

		stored, _ := pujas.GetByProviderOrderID(ctx, o.ProviderOrderID)
		switch stored.Status {
		case model.PujaAborted:
			assert.NoError(t, abortErr)
			assert.Equal(t, OutcomeAlreadySettled, outcome)
			assert.Zero(t, queue.count())
		case model.PujaSuccessfulPayment:
			assert.True(t, auth.IsKind(abortErr, auth.KindNotFound))
			assert.Equal(t, OutcomeCaptured, outcome)
		default:
			t.Fatalf("unexpected status %s", stored.Status)
		}
		assert.Len(t, stored.Timeline, 1)
	}
}

func TestDonationFlow(t *testing.T) {
	ctx := context.Background()
	accounts := repotest.NewAccounts()
	donations := repotest.NewDonations()
	gateway := &fakeGateway{}
	queue := &fakeQueue{}
	acct := accounts.Put(model.Account{Email: "donor@example.com", Name: ptr("Donor"), IsVerified: true})

	svc := NewDonationService(accounts, donations, gateway, zap.NewNop())
	rec := NewReconciler[model.Donation]("donation", webhookSecret, DonationLedger{Donations: donations},
		NewDonationNotifier(accounts, donations, queue, zap.NewNop()), zap.NewNop())

	_, err := svc.Create(ctx, acct.ID, DonationInput{Amount: decimal.NewFromInt(500), Kind: model.DonationCow})
	assert.True(t, auth.IsKind(err, auth.KindValidation), "cow donation needs a cow id")

	_, err = svc.Create(ctx, acct.ID, DonationInput{Amount: decimal.Zero, Kind: model.DonationAshram})
	assert.True(t, auth.IsKind(err, auth.KindValidation))

	d, err := svc.Create(ctx, acct.ID, DonationInput{Amount: decimal.RequireFromString("501.50"), Kind: model.DonationAshram})
	require.NoError(t, err)
	assert.Equal(t, model.DonationPending, d.Status)
	assert.Equal(t, int64(50150), gateway.last.Amount)
	assert.Nil(t, d.CowID)

	body := capturedBody(d.ProviderOrderID, "pay_d1")
	outcome, err := rec.Handle(ctx, body, Sign(webhookSecret, body))
	require.NoError(t, err)
	assert.Equal(t, OutcomeCaptured, outcome)
	require.Equal(t, 1, queue.count())
	assert.Equal(t, "donor@example.com", queue.jobs[0].Message.To)

	// Delivery completion flags the donation.
	queue.jobs[0].OnDone(ctx, nil)
	stored, err := donations.GetByProviderOrderID(ctx, d.ProviderOrderID)
	require.NoError(t, err)
	assert.True(t, stored.EmailSent)
	assert.Equal(t, model.DonationSuccessful, stored.Status)

	// A captured donation can no longer be failed by the user.
	_, err = svc.MarkFailed(ctx, acct.ID, model.DonationAshram, "")
	assert.True(t, auth.IsKind(err, auth.KindNotFound))
}

func TestDonationMarkFailed_newestMatchingPending(t *testing.T) {
	ctx := context.Background()
	accounts := repotest.NewAccounts()
	donations := repotest.NewDonations()
	acct := accounts.Put(model.Account{Email: "d@example.com", IsVerified: true})
	svc := NewDonationService(accounts, donations, &fakeGateway{}, zap.NewNop())

	older, err := svc.Create(ctx, acct.ID, DonationInput{Amount: decimal.NewFromInt(100), CowID: "cow-1"})
	require.NoError(t, err)
	newer, err := svc.Create(ctx, acct.ID, DonationInput{Amount: decimal.NewFromInt(200), CowID: "cow-1"})
	require.NoError(t, err)
	_, err = svc.Create(ctx, acct.ID, DonationInput{Amount: decimal.NewFromInt(300), CowID: "cow-2"})
	require.NoError(t, err)

	failed, err := svc.MarkFailed(ctx, acct.ID, model.DonationCow, "cow-1")
	require.NoError(t, err)
	assert.Equal(t, newer.ID, failed.ID)
	assert.Equal(t, model.DonationFailed, failed.Status)

	still, _ := donations.GetByProviderOrderID(ctx, older.ProviderOrderID)
	assert.Equal(t, model.DonationPending, still.Status)

	_, err = svc.MarkFailed(ctx, acct.ID, model.DonationCow, "")
	assert.True(t, auth.IsKind(err, auth.KindValidation))

	page, err := svc.History(ctx, acct.ID, repo.DonationFilter{Page: repo.Page{Number: 1, Limit: 2}})
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
	assert.Equal(t, 2, page.Pages)
	assert.Len(t, page.Items, 2)
}

func TestPujaCreate_validation(t *testing.T) {
	svc := NewPujaService(repotest.NewPujas(), &fakeGateway{}, "rzp_key", "secret", zap.NewNop())
	now := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }
	acct := model.Account{ID: uuid.New()}

	tooSoon := now.Add(48 * time.Hour)
	fraction := decimal.RequireFromString("10.5")
	_, err := svc.Create(context.Background(), acct, PujaInput{
		Customer: model.PujaCustomer{Name: "A", Email: "bad", Phone: "9876543210"},
		Details:  model.PujaDetails{Gotra: "K", Sankalpam: "shrt", PreferredDate: &tooSoon},
		Amount:   &fraction,
		Currency: "USD",
	})
	e, ok := auth.AsError(err)
	require.True(t, ok)
	assert.Equal(t, auth.KindUnprocessable, e.Kind)
	fields := map[string]bool{}
	for _, f := range e.Fields {
		fields[f.Field] = true
	}
	for _, want := range []string{"customer.name", "customer.email", "customer.phone",
		"pujaDetails.gotra", "pujaDetails.sankalpam", "pujaDetails.preferredDate", "amount", "currency"} {
		assert.True(t, fields[want], want)
	}
}

func TestPujaCreate_usesAccountIdentity(t *testing.T) {
	pujas := repotest.NewPujas()
	gateway := &fakeGateway{}
	svc := NewPujaService(pujas, gateway, "rzp_key", "secret", zap.NewNop())
	acct := model.Account{ID: uuid.New(), Email: "me@example.com", Name: ptr("Meera")}

	out, err := svc.Create(context.Background(), acct, PujaInput{
		Customer: model.PujaCustomer{Name: "Someone Else", Email: "other@example.com", Phone: "+919876543210"},
		Details:  model.PujaDetails{Gotra: "Bharadwaj", Sankalpam: "Peace for all"},
	})
	require.NoError(t, err)
	assert.Equal(t, "rzp_key", out.KeyID)
	assert.Equal(t, "Meera", out.Order.Customer.Name)
	assert.Equal(t, "me@example.com", out.Order.Customer.Email)
	assert.True(t, out.Order.Amount.Equal(model.DefaultPujaAmount))
	assert.Equal(t, int64(210000), gateway.last.Amount)
	assert.Equal(t, model.PujaAwaitingPayment, out.Order.Status)

	_, err = svc.MarkFailed(context.Background(), acct.ID)
	require.NoError(t, err)
	_, err = svc.MarkFailed(context.Background(), acct.ID)
	assert.True(t, auth.IsKind(err, auth.KindNotFound))
}

func TestPujaVerifyCheckout(t *testing.T) {
	svc := NewPujaService(repotest.NewPujas(), &fakeGateway{}, "rzp_key", "secret", zap.NewNop())
	good := Sign("secret", []byte("order_1|pay_1"))
	assert.NoError(t, svc.VerifyCheckout("order_1", "pay_1", good))
	assert.True(t, auth.IsKind(svc.VerifyCheckout("order_1", "pay_2", good), auth.KindValidation))
	assert.True(t, auth.IsKind(svc.VerifyCheckout("", "pay_1", good), auth.KindUnprocessable))
}

func ptr[T any](v T) *T { return &v }

package tests

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kamdhenuseva/server/internal/model"
	"github.com/kamdhenuseva/server/internal/repo"
)

func TestAccountRepo_ConsumeOTPGuards(t *testing.T) {
	conn := OpenDB(t)
	ctx := context.Background()
	accounts := repo.NewAccountRepo(conn)

	acct, err := accounts.GetOrCreateByEmail(ctx, "Guard@Example.com")
	require.NoError(t, err)
	assert.Equal(t, "guard@example.com", acct.Email)
	assert.GreaterOrEqual(t, acct.PublicID, int64(1000000))

	again, err := accounts.GetOrCreateByEmail(ctx, "guard@example.com")
	require.NoError(t, err)
	assert.Equal(t, acct.ID, again.ID)

	now := time.Now().UTC()
	require.NoError(t, accounts.SetOTP(ctx, acct.ID, "123456", model.IntentEmailVerification, now.Add(time.Minute)))

	_, err = accounts.ConsumeOTP(ctx, acct.ID, "123456", model.IntentPasswordReset, now, model.OTPEffect{MarkVerified: true})
	assert.ErrorIs(t, err, repo.ErrNoMatch, "wrong intent")

	_, err = accounts.ConsumeOTP(ctx, acct.ID, "654321", model.IntentEmailVerification, now, model.OTPEffect{MarkVerified: true})
	assert.ErrorIs(t, err, repo.ErrNoMatch, "wrong code")

	_, err = accounts.ConsumeOTP(ctx, acct.ID, "123456", model.IntentEmailVerification, now.Add(2*time.Minute), model.OTPEffect{MarkVerified: true})
	assert.ErrorIs(t, err, repo.ErrNoMatch, "expired")

	got, err := accounts.ConsumeOTP(ctx, acct.ID, "123456", model.IntentEmailVerification, now, model.OTPEffect{MarkVerified: true})
	require.NoError(t, err)
	assert.True(t, got.IsVerified)
	assert.Nil(t, got.OTPCode)
	assert.Nil(t, got.OTPIntent)

	_, err = accounts.ConsumeOTP(ctx, acct.ID, "123456", model.IntentEmailVerification, now, model.OTPEffect{MarkVerified: true})
	assert.ErrorIs(t, err, repo.ErrNoMatch, "single use")
}

func TestAccountRepo_ConcurrentConsume(t *testing.T) {
	conn := OpenDB(t)
	ctx := context.Background()
	accounts := repo.NewAccountRepo(conn)

	acct, err := accounts.GetOrCreateByEmail(ctx, "race@example.com")
	require.NoError(t, err)
	now := time.Now().UTC()
	require.NoError(t, accounts.SetOTP(ctx, acct.ID, "111111", model.IntentEmailVerification, now.Add(time.Minute)))

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := accounts.ConsumeOTP(ctx, acct.ID, "111111", model.IntentEmailVerification, now, model.OTPEffect{MarkVerified: true})
			if err == nil {
				wins.Add(1)
			} else if !errors.Is(err, repo.ErrNoMatch) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
}

func TestAccountRepo_RegistrationAndProfile(t *testing.T) {
	conn := OpenDB(t)
	ctx := context.Background()
	accounts := repo.NewAccountRepo(conn)

	a, err := accounts.GetOrCreateByEmail(ctx, "a@example.com")
	require.NoError(t, err)
	b, err := accounts.GetOrCreateByEmail(ctx, "b@example.com")
	require.NoError(t, err)

	_, err = accounts.CompleteRegistration(ctx, a.ID, "Asha", "hash", nil)
	assert.ErrorIs(t, err, repo.ErrNoMatch, "unverified accounts cannot complete")

	now := time.Now().UTC()
	require.NoError(t, accounts.SetOTP(ctx, a.ID, "222222", model.IntentEmailVerification, now.Add(time.Minute)))
	_, err = accounts.ConsumeOTP(ctx, a.ID, "222222", model.IntentEmailVerification, now, model.OTPEffect{MarkVerified: true})
	require.NoError(t, err)

	dob := time.Date(1990, 4, 2, 0, 0, 0, 0, time.UTC)
	done, err := accounts.CompleteRegistration(ctx, a.ID, "Asha", "hash", &dob)
	require.NoError(t, err)
	require.NotNil(t, done.Name)
	assert.Equal(t, "Asha", *done.Name)

	_, err = accounts.CompleteRegistration(ctx, a.ID, "Mallory", "other", nil)
	assert.ErrorIs(t, err, repo.ErrNoMatch, "credentials are set only once")

	taken := "B@example.com"
	_, err = accounts.UpdateProfile(ctx, a.ID, &taken, nil)
	assert.ErrorIs(t, err, repo.ErrDuplicate)

	require.NoError(t, accounts.Delete(ctx, b.ID))
	_, err = accounts.GetByID(ctx, b.ID)
	assert.ErrorIs(t, err, repo.ErrNotFound)
}

func TestDonationRepo_CaptureOnce(t *testing.T) {
	conn := OpenDB(t)
	ctx := context.Background()
	accounts := repo.NewAccountRepo(conn)
	donations := repo.NewDonationRepo(conn)

	acct, err := accounts.GetOrCreateByEmail(ctx, "donor@example.com")
	require.NoError(t, err)
	cow := "cow-1"
	d, err := donations.Create(ctx, model.Donation{
		AccountID:       acct.ID,
		Kind:            model.DonationCow,
		CowID:           &cow,
		Amount:          decimal.RequireFromString("501.50"),
		ProviderOrderID: "order_repo_1",
		Timeline:        model.Timeline{{Type: "created", By: model.ByUser(acct.ID), At: time.Now().UTC()}},
	})
	require.NoError(t, err)
	assert.Equal(t, model.DonationPending, d.Status)
	assert.True(t, d.Amount.Equal(decimal.RequireFromString("501.5")))

	_, err = donations.Create(ctx, model.Donation{AccountID: acct.ID, Kind: model.DonationAshram, Amount: decimal.NewFromInt(1), ProviderOrderID: "order_repo_1"})
	assert.ErrorIs(t, err, repo.ErrDuplicate)

	ev := model.TimelineEvent{Type: "payment_captured", By: model.BySystem, At: time.Now().UTC()}
	captured, err := donations.Capture(ctx, "order_repo_1", "pay_1", ev)
	require.NoError(t, err)
	assert.Equal(t, model.DonationSuccessful, captured.Status)
	require.Len(t, captured.Timeline, 2)

	_, err = donations.Capture(ctx, "order_repo_1", "pay_2", ev)
	assert.ErrorIs(t, err, repo.ErrNoMatch)
	_, err = donations.MarkFailed(ctx, acct.ID, model.DonationCow, &cow, ev)
	assert.ErrorIs(t, err, repo.ErrNoMatch, "settled donations cannot fail")

	stored, err := donations.GetByProviderOrderID(ctx, "order_repo_1")
	require.NoError(t, err)
	require.NotNil(t, stored.ProviderPaymentID)
	assert.Equal(t, "pay_1", *stored.ProviderPaymentID)

	require.NoError(t, donations.MarkEmailSent(ctx, stored.ID))
	items, total, err := donations.ListByAccount(ctx, acct.ID, repo.DonationFilter{Page: repo.Page{Number: 1, Limit: 10}})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, items, 1)
	assert.True(t, items[0].EmailSent)
}

func TestPujaRepo_AbortRacesCapture(t *testing.T) {
	conn := OpenDB(t)
	ctx := context.Background()
	accounts := repo.NewAccountRepo(conn)
	pujas := repo.NewPujaRepo(conn)

	acct, err := accounts.GetOrCreateByEmail(ctx, "puja@example.com")
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		orderID := "order_race_" + uuid.NewString()
		_, err := pujas.Create(ctx, model.PujaOrder{
			AccountID:       acct.ID,
			ProviderOrderID: orderID,
			Amount:          model.DefaultPujaAmount,
			Customer:        model.PujaCustomer{Name: "Uma", Email: "puja@example.com", Phone: "+919876543210"},
			Details:         model.PujaDetails{Gotra: "Kashyap", Sankalpam: "Wellbeing"},
		})
		require.NoError(t, err)

		payID := "pay_race"
		var wg sync.WaitGroup
		var abortErr, captureErr error
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, abortErr = pujas.Transition(ctx, repo.PujaTransition{
				ProviderOrderID: orderID, AccountID: &acct.ID, To: model.PujaAborted,
				Event: model.TimelineEvent{Type: "aborted", By: model.ByUser(acct.ID), At: time.Now().UTC()},
			})
		}()
		go func() {
			defer wg.Done()
			_, captureErr = pujas.Transition(ctx, repo.PujaTransition{
				ProviderOrderID: orderID, To: model.PujaSuccessfulPayment, PaymentID: &payID,
				Event: model.TimelineEvent{Type: "payment_captured", By: model.BySystem, At: time.Now().UTC()},
			})
		}()
		wg.Wait()

		// Exactly one side wins; the loser sees no matching row.
		require.True(t, (abortErr == nil) != (captureErr == nil), "abort=%v capture=%v", abortErr, captureErr)
		stored, err := pujas.GetByProviderOrderID(ctx, orderID)
		require.NoError(t, err)
		if abortErr == nil {
			assert.ErrorIs(t, captureErr, repo.ErrNoMatch)
			assert.Equal(t, model.PujaAborted, stored.Status)
			assert.Nil(t, stored.ProviderPaymentID)
		} else {
			assert.ErrorIs(t, abortErr, repo.ErrNoMatch)
			assert.Equal(t, model.PujaSuccessfulPayment, stored.Status)
		}
		assert.Len(t, stored.Timeline, 1)
	}

	status := model.PujaAborted
	_, total, err := pujas.ListByAccount(ctx, acct.ID, nil, repo.Page{Number: 1, Limit: 20})
	require.NoError(t, err)
	assert.Equal(t, 10, total)
	_, _, err = pujas.ListByAccount(ctx, acct.ID, &status, repo.Page{Number: 1, Limit: 20})
	require.NoError(t, err)
}

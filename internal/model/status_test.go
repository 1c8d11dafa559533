package model

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPujaTransitions(t *testing.T) {
	assert.True(t, PujaAwaitingPayment.CanTransition(PujaSuccessfulPayment))
	assert.True(t, PujaAwaitingPayment.CanTransition(PujaAborted))
	assert.True(t, PujaSuccessfulPayment.CanTransition(PujaDateConfirmed))
	assert.True(t, PujaDateConfirmed.CanTransition(PujaCompleted))

	assert.False(t, PujaSuccessfulPayment.CanTransition(PujaAwaitingPayment))
	assert.False(t, PujaSuccessfulPayment.CanTransition(PujaAborted))
	assert.False(t, PujaAborted.CanTransition(PujaSuccessfulPayment))
	assert.False(t, PujaCompleted.CanTransition(PujaCancelled))

	for _, s := range []PujaStatus{PujaCompleted, PujaFailed, PujaAborted, PujaCancelled} {
		assert.True(t, s.Terminal(), "%s should be terminal", s)
	}
	assert.False(t, PujaAwaitingPayment.Terminal())
}

func TestPujaSources(t *testing.T) {
	assert.ElementsMatch(t, []PujaStatus{PujaAwaitingPayment}, PujaSources(PujaSuccessfulPayment))
	assert.ElementsMatch(t, []PujaStatus{PujaAwaitingPayment, PujaSuccessfulPayment, PujaDateConfirmed}, PujaSources(PujaCancelled))
	assert.Empty(t, PujaSources(PujaAwaitingPayment))
}

func TestDonationTransitions(t *testing.T) {
	assert.True(t, DonationPending.CanTransition(DonationSuccessful))
	assert.True(t, DonationPending.CanTransition(DonationFailed))
	assert.False(t, DonationSuccessful.CanTransition(DonationFailed))
	assert.False(t, DonationFailed.CanTransition(DonationSuccessful))
	assert.Equal(t, []DonationStatus{DonationPending}, DonationSources(DonationFailed))
	assert.False(t, DonationStatus("Refunded").Valid())
}

func TestTimelineScan(t *testing.T) {
	var tl Timeline
	require.NoError(t, tl.Scan([]byte(`[{"type":"created","by":"user:x","at":"2025-01-02T03:04:05Z"}]`)))
	require.Len(t, tl, 1)
	assert.Equal(t, "created", tl[0].Type)

	v, err := Timeline(nil).Value()
	require.NoError(t, err)
	assert.Equal(t, []byte("[]"), v)

	assert.Error(t, tl.Scan(42))
}

func TestToPaise(t *testing.T) {
	assert.Equal(t, int64(210000), ToPaise(DefaultPujaAmount))
	assert.Equal(t, int64(1050), ToPaise(decimal.RequireFromString("10.50")))
}

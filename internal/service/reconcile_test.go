package service

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/set-night/groupoffer/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReconcilePromotesOnAnyLiveSignal(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *domain.FulfillmentContract)
		live   bool
	}{
		{"untouched draft", func(*domain.FulfillmentContract) {}, false},
		{"confirmed", func(c *domain.FulfillmentContract) { c.Confirmed = true }, true},
		{"status live", func(c *domain.FulfillmentContract) { c.Status = "Live" }, true},
		{"stage three", func(c *domain.FulfillmentContract) { c.Stage = 3 }, false},
		{"stage four", func(c *domain.FulfillmentContract) { c.Stage = 4 }, true},
		{"published url", func(c *domain.FulfillmentContract) { c.LiveURL = strPtr("https://v.test/1") }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			alice := f.member()
			offer := f.postOffer(t, "100.00")
			f.accept(t, offer.ID, alice)
			f.store.UpdateContract(domain.ContractID(offer.ID, alice), tt.mutate)

			res, err := f.reconciler.ReconcileOffer(context.Background(), offer.ID)
			require.NoError(t, err)

			resp, _ := f.store.Response(offer.ID, alice)
			if tt.live {
				assert.Equal(t, 1, res.Promoted)
				assert.Equal(t, domain.ResponseCompleted, resp.Status)
				assert.NotNil(t, resp.CompletedAt)
			} else {
				assert.Equal(t, 1, res.Waiting)
				assert.Equal(t, domain.ResponseAccepted, resp.Status)
			}
		})
	}
}

func strPtr(s string) *string { return &s }

func TestReconcileCopiesLiveURL(t *testing.T) {
	f := newFixture(t)
	alice := f.member()
	offer := f.postOffer(t, "100.00")
	f.accept(t, offer.ID, alice)
	f.store.UpdateContract(domain.ContractID(offer.ID, alice), func(c *domain.FulfillmentContract) {
		c.LiveURL = strPtr(" https://v.test/alice ")
	})

	_, err := f.reconciler.ReconcileOffer(context.Background(), offer.ID)
	require.NoError(t, err)

	resp, _ := f.store.Response(offer.ID, alice)
	require.NotNil(t, resp.LiveURL)
	assert.Equal(t, "https://v.test/alice", *resp.LiveURL)
}

func TestReconcileIsIdempotentAndNeverRegresses(t *testing.T) {
	f := newFixture(t)
	alice := f.member()
	offer := f.postOffer(t, "100.00")
	f.accept(t, offer.ID, alice)
	f.goLive(t, offer.ID, alice)

	first, _ := f.store.Response(offer.ID, alice)

	// The contract later loses every live signal.
	f.store.UpdateContract(domain.ContractID(offer.ID, alice), func(c *domain.FulfillmentContract) {
		c.Confirmed = false
	})
	res, err := f.reconciler.ReconcileOffer(context.Background(), offer.ID)
	require.NoError(t, err)
	assert.Zero(t, res.Promoted)

	again, _ := f.store.Response(offer.ID, alice)
	assert.Equal(t, domain.ResponseCompleted, again.Status)
	assert.Equal(t, first.CompletedAt, again.CompletedAt)
}

func TestReconcileSkipsUnreadableContracts(t *testing.T) {
	f := newFixture(t)
	alice, bob := f.member(), f.member()
	offer := f.postOffer(t, "100.00")
	f.accept(t, offer.ID, alice)
	f.accept(t, offer.ID, bob)

	for _, m := range []uuid.UUID{alice, bob} {
		f.store.UpdateContract(domain.ContractID(offer.ID, m), func(c *domain.FulfillmentContract) { c.Stage = 5 })
	}
	f.store.FailContractRead(domain.ContractID(offer.ID, alice), errors.New("contract service timeout"))

	res, err := f.reconciler.ReconcileOffer(context.Background(), offer.ID)
	require.NoError(t, err)
	assert.Equal(t, ReconcileResult{Promoted: 1, Skipped: 1}, res)

	aliceResp, _ := f.store.Response(offer.ID, alice)
	bobResp, _ := f.store.Response(offer.ID, bob)
	assert.Equal(t, domain.ResponseAccepted, aliceResp.Status)
	assert.Equal(t, domain.ResponseCompleted, bobResp.Status)

	// The next pass picks the skipped member up.
	f.store.FailContractRead(domain.ContractID(offer.ID, alice), nil)
	res, err = f.reconciler.ReconcileOffer(context.Background(), offer.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Promoted)
}

func TestReconcileGroupSkipsClosedOffers(t *testing.T) {
	f := newFixture(t)
	alice := f.member()
	open := f.postOffer(t, "10")
	closed := f.postOffer(t, "20")
	f.accept(t, open.ID, alice)
	f.accept(t, closed.ID, alice)
	for _, o := range []*domain.GroupOffer{open, closed} {
		f.store.UpdateContract(domain.ContractID(o.ID, alice), func(c *domain.FulfillmentContract) { c.Confirmed = true })
	}
	_, err := f.offers.SetOfferStatus(context.Background(), Actor{UserID: f.admin}, closed.ID, "cancelled")
	require.NoError(t, err)

	res, err := f.reconciler.ReconcileGroup(context.Background(), f.group)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Promoted)

	resp, _ := f.store.Response(closed.ID, alice)
	assert.Equal(t, domain.ResponseAccepted, resp.Status)
}

func TestReconcileLeavesResponsesAfterDeadline(t *testing.T) {
	f := newFixture(t)
	alice := f.member()
	offer := f.postOffer(t, "100.00")
	f.accept(t, offer.ID, alice)
	f.store.UpdateContract(domain.ContractID(offer.ID, alice), func(c *domain.FulfillmentContract) { c.Confirmed = true })
	f.setNow(afterDue)

	res, err := f.reconciler.ReconcileOffer(context.Background(), offer.ID)
	require.NoError(t, err)
	assert.Equal(t, ReconcileResult{Late: 1}, res)

	resp, _ := f.store.Response(offer.ID, alice)
	assert.Equal(t, domain.ResponseAccepted, resp.Status)
}

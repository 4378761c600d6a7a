package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/set-night/groupoffer/internal/config"
	"github.com/set-night/groupoffer/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateOfferNotifiesMembersButNotSponsor(t *testing.T) {
	f := newFixture(t)
	alice, bob := f.member(), f.member()

	offer := f.postOffer(t, "100.00")

	assert.Equal(t, domain.OfferStatusPending, offer.Status)
	assert.Equal(t, f.sponsor, offer.SponsorID)

	var to []uuid.UUID
	for _, n := range f.notificationsTitled(config.TitleNewOffer) {
		to = append(to, n.ToUserID)
	}
	assert.ElementsMatch(t, []uuid.UUID{f.admin, alice, bob}, to)
}

func TestCreateOfferValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.offers.CreateOffer(ctx, Actor{UserID: f.sponsor}, domain.CreateOfferInput{
		GroupID:     f.group,
		Title:       "Bad",
		TotalAmount: decimal.NewFromInt(-5),
		Deadline:    testDeadline,
	})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = f.offers.CreateOffer(ctx, Actor{UserID: uuid.New()}, domain.CreateOfferInput{
		GroupID:     f.group,
		Title:       "Outsider",
		TotalAmount: decimal.NewFromInt(5),
		Deadline:    testDeadline,
	})
	assert.ErrorIs(t, err, domain.ErrPermission)
}

func TestAcceptOfferTwiceKeepsOneContract(t *testing.T) {
	f := newFixture(t)
	alice := f.member()
	offer := f.postOffer(t, "100.00")

	first := f.accept(t, offer.ID, alice)
	second := f.accept(t, offer.ID, alice)

	assert.Equal(t, *first.FulfillmentRef, *second.FulfillmentRef)
	assert.Equal(t, *first.AcceptedAt, *second.AcceptedAt)
	assert.Equal(t, 1, f.store.ContractCount())
	assert.Equal(t, 1, f.store.ResponseCount(offer.ID))
	assert.Len(t, f.notificationsTitled(config.TitleOfferAccepted), 1)
}

func TestConcurrentAcceptsConvergeOnOneContract(t *testing.T) {
	f := newFixture(t)
	alice := f.member()
	offer := f.postOffer(t, "100.00")

	var wg sync.WaitGroup
	refs := make([]uuid.UUID, 8)
	for i := range refs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp, err := f.offers.AcceptOffer(context.Background(), Actor{UserID: alice}, offer.ID, alice)
			if assert.NoError(t, err) && assert.NotNil(t, resp.FulfillmentRef) {
				refs[i] = *resp.FulfillmentRef
			}
		}(i)
	}
	wg.Wait()

	for _, ref := range refs {
		assert.Equal(t, domain.ContractID(offer.ID, alice), ref)
	}
	assert.Equal(t, 1, f.store.ContractCount())
	assert.Len(t, f.notificationsTitled(config.TitleOfferAccepted), 1)
}

func TestAcceptOfferRelinksMissingContract(t *testing.T) {
	f := newFixture(t)
	alice := f.member()
	offer := f.postOffer(t, "100.00")

	// An earlier accept stored the response but stopped before the contract.
	resp := domain.PendingResponse(offer.ID, alice)
	resp.Status = domain.ResponseAccepted
	f.store.PutResponse(resp)

	got := f.accept(t, offer.ID, alice)
	assert.Equal(t, domain.ContractID(offer.ID, alice), *got.FulfillmentRef)
	assert.Equal(t, 1, f.store.ContractCount())
	assert.Empty(t, f.notificationsTitled(config.TitleOfferAccepted))
}

func TestAcceptOfferPermissions(t *testing.T) {
	f := newFixture(t)
	alice := f.member()
	offer := f.postOffer(t, "100.00")
	ctx := context.Background()

	_, err := f.offers.AcceptOffer(ctx, Actor{UserID: f.admin}, offer.ID, alice)
	assert.ErrorIs(t, err, domain.ErrNotResponseOwner)

	outsider := uuid.New()
	_, err = f.offers.AcceptOffer(ctx, Actor{UserID: outsider}, offer.ID, outsider)
	assert.ErrorIs(t, err, domain.ErrNotGroupMember)
	assert.ErrorIs(t, err, domain.ErrPermission)

	_, err = f.offers.AcceptOffer(ctx, Actor{UserID: alice}, uuid.New(), alice)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	assert.Zero(t, f.store.ResponseCount(offer.ID))
}

func TestAcceptClosedOffer(t *testing.T) {
	f := newFixture(t)
	alice := f.member()
	offer := f.postOffer(t, "100.00")

	_, err := f.offers.SetOfferStatus(context.Background(), Actor{UserID: f.admin}, offer.ID, "cancelled")
	require.NoError(t, err)

	_, err = f.offers.AcceptOffer(context.Background(), Actor{UserID: alice}, offer.ID, alice)
	assert.ErrorIs(t, err, domain.ErrOfferClosed)
	assert.ErrorIs(t, err, domain.ErrInvalidState)
	assert.Zero(t, f.store.ContractCount())
}

func TestResponseTransitionsOnlyMoveForward(t *testing.T) {
	f := newFixture(t)
	alice, bob := f.member(), f.member()
	offer := f.postOffer(t, "100.00")
	ctx := context.Background()

	rejected, err := f.offers.RejectOffer(ctx, Actor{UserID: alice}, offer.ID, alice)
	require.NoError(t, err)
	assert.Equal(t, domain.ResponseRejected, rejected.Status)
	assert.NotNil(t, rejected.RejectedAt)
	assert.Nil(t, rejected.FulfillmentRef)

	_, err = f.offers.RejectOffer(ctx, Actor{UserID: alice}, offer.ID, alice)
	assert.ErrorIs(t, err, domain.ErrInvalidState)
	_, err = f.offers.AcceptOffer(ctx, Actor{UserID: alice}, offer.ID, alice)
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	f.accept(t, offer.ID, bob)
	_, err = f.offers.RejectOffer(ctx, Actor{UserID: bob}, offer.ID, bob)
	assert.ErrorIs(t, err, domain.ErrResponseFinal)

	f.goLive(t, offer.ID, bob)
	_, err = f.offers.AcceptOffer(ctx, Actor{UserID: bob}, offer.ID, bob)
	assert.ErrorIs(t, err, domain.ErrInvalidState)
	_, err = f.offers.RejectOffer(ctx, Actor{UserID: bob}, offer.ID, bob)
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	resp, _ := f.store.Response(offer.ID, bob)
	assert.Equal(t, domain.ResponseCompleted, resp.Status)
	assert.Len(t, f.notificationsTitled(config.TitleOfferRejected), 1)
	assert.Equal(t, 1, f.store.ContractCount())
}

func TestNotificationFailureDoesNotFailCommands(t *testing.T) {
	f := newFixture(t)
	alice := f.member()
	f.store.FailNotifications(errors.New("inbox down"))

	offer := f.postOffer(t, "100.00")
	resp := f.accept(t, offer.ID, alice)

	assert.Equal(t, domain.ResponseAccepted, resp.Status)
	assert.Empty(t, f.store.Notifications())
}

func TestSetOfferStatus(t *testing.T) {
	tests := []struct {
		name    string
		from    domain.OfferStatus
		to      string
		want    domain.OfferStatus
		wantErr error
	}{
		{"activate pending", domain.OfferStatusPending, "active", domain.OfferStatusActive, nil},
		{"cancel pending", domain.OfferStatusPending, "cancelled", domain.OfferStatusCancelled, nil},
		{"cancel active", domain.OfferStatusActive, "CANCELLED", domain.OfferStatusCancelled, nil},
		{"complete active", domain.OfferStatusActive, "completed", domain.OfferStatusCompleted, nil},
		{"same status", domain.OfferStatusActive, "active", domain.OfferStatusActive, nil},
		{"reactivate cancelled", domain.OfferStatusCancelled, "active", domain.OfferStatusCancelled, domain.ErrInvalidState},
		{"cancel completed", domain.OfferStatusCompleted, "cancelled", domain.OfferStatusCompleted, domain.ErrInvalidState},
		{"back to pending", domain.OfferStatusActive, "pending", domain.OfferStatusActive, domain.ErrValidation},
		{"unknown status", domain.OfferStatusActive, "archived", domain.OfferStatusActive, domain.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			offer := f.postOffer(t, "10")
			stored, _ := f.store.Offer(offer.ID)
			stored.Status = tt.from
			f.store.PutOffer(stored)

			_, err := f.offers.SetOfferStatus(context.Background(), Actor{UserID: f.admin}, offer.ID, tt.to)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.want, f.offerStatus(t, offer.ID))
		})
	}
}

func TestSetOfferStatusRequiresAdmin(t *testing.T) {
	f := newFixture(t)
	offer := f.postOffer(t, "10")

	_, err := f.offers.SetOfferStatus(context.Background(), Actor{UserID: f.sponsor}, offer.ID, "active")
	assert.ErrorIs(t, err, domain.ErrNotGroupAdmin)
	assert.Equal(t, domain.OfferStatusPending, f.offerStatus(t, offer.ID))
}

func TestCancelNotifiesAcceptedMembers(t *testing.T) {
	f := newFixture(t)
	alice, bob, carol := f.member(), f.member(), f.member()
	offer := f.postOffer(t, "100.00")
	ctx := context.Background()

	f.accept(t, offer.ID, alice)
	f.accept(t, offer.ID, bob)
	_, err := f.offers.RejectOffer(ctx, Actor{UserID: carol}, offer.ID, carol)
	require.NoError(t, err)

	_, err = f.offers.SetOfferStatus(ctx, Actor{UserID: f.admin}, offer.ID, "cancelled")
	require.NoError(t, err)

	var to []uuid.UUID
	for _, n := range f.notificationsTitled(config.TitleOfferCancelled) {
		to = append(to, n.ToUserID)
	}
	assert.ElementsMatch(t, []uuid.UUID{alice, bob}, to)
	assert.Equal(t, 1, f.audit.cancellations)
}

func TestOfferStatusSummary(t *testing.T) {
	f := newFixture(t)
	alice, bob, carol := f.member(), f.member(), f.member()
	offer := f.postOffer(t, "100.00")
	ctx := context.Background()

	f.accept(t, offer.ID, alice)
	_, err := f.offers.RejectOffer(ctx, Actor{UserID: bob}, offer.ID, bob)
	require.NoError(t, err)
	f.accept(t, offer.ID, carol)
	f.goLive(t, offer.ID, carol)
	f.store.RemoveMember(f.group, carol)

	summary, err := f.offers.OfferStatus(ctx, offer.ID)
	require.NoError(t, err)

	byMember := make(map[uuid.UUID]MemberStatus)
	for _, m := range summary.Members {
		byMember[m.MemberUserID] = m
	}
	require.Len(t, byMember, 5)
	assert.Equal(t, domain.ResponseAccepted, byMember[alice].Status)
	assert.Equal(t, domain.ResponseRejected, byMember[bob].Status)
	assert.Equal(t, domain.ResponseCompleted, byMember[carol].Status)
	assert.Equal(t, domain.ResponsePending, byMember[f.admin].Status)
	assert.Nil(t, byMember[f.admin].Response)

	assert.Equal(t, map[domain.ResponseStatus]int{
		domain.ResponsePending:   2,
		domain.ResponseAccepted:  1,
		domain.ResponseRejected:  1,
		domain.ResponseCompleted: 1,
	}, summary.Counts)
}

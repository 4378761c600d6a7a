package memstore

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/set-night/groupoffer/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpsertOnlyFromExpectedStatus(t *testing.T) {
	ctx := context.Background()
	repos := New().Repositories()
	offer, member := uuid.New(), uuid.New()
	first := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	ok, err := repos.Responses.Upsert(ctx, offer, member,
		[]domain.ResponseStatus{domain.ResponsePending}, domain.ResponseAccepted, first)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repos.Responses.Upsert(ctx, offer, member,
		[]domain.ResponseStatus{domain.ResponsePending}, domain.ResponseRejected, first.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, ok)

	resp, err := repos.Responses.Get(ctx, offer, member)
	require.NoError(t, err)
	assert.Equal(t, domain.ResponseAccepted, resp.Status)
	assert.Equal(t, first, *resp.AcceptedAt)
	assert.Nil(t, resp.RejectedAt)
}

func TestLinkFulfillmentIsWriteOnce(t *testing.T) {
	ctx := context.Background()
	repos := New().Repositories()
	offer, member := uuid.New(), uuid.New()
	_, err := repos.Responses.Upsert(ctx, offer, member,
		[]domain.ResponseStatus{domain.ResponsePending}, domain.ResponseAccepted, time.Now())
	require.NoError(t, err)

	first, second := uuid.New(), uuid.New()
	ok, _ := repos.Responses.LinkFulfillment(ctx, offer, member, first)
	assert.True(t, ok)
	ok, _ = repos.Responses.LinkFulfillment(ctx, offer, member, second)
	assert.False(t, ok)

	resp, _ := repos.Responses.Get(ctx, offer, member)
	assert.Equal(t, first, *resp.FulfillmentRef)
}

func TestMarkCompletedKeepsURLWhenNil(t *testing.T) {
	ctx := context.Background()
	s := New()
	repos := s.Repositories()
	offer, member := uuid.New(), uuid.New()
	url := "https://v.test/1"

	resp := domain.PendingResponse(offer, member)
	resp.Status = domain.ResponseAccepted
	resp.LiveURL = &url
	s.PutResponse(resp)

	ok, err := repos.Responses.MarkCompleted(ctx, offer, member, nil, time.Now())
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repos.Responses.MarkCompleted(ctx, offer, member, nil, time.Now())
	require.NoError(t, err)
	assert.False(t, ok)

	got, _ := s.Response(offer, member)
	assert.Equal(t, url, *got.LiveURL)
}

func TestPayoutTableShapeAndUniqueness(t *testing.T) {
	ctx := context.Background()
	table := NewPayoutTable(domain.ShapeSponsee, false)
	ref := uuid.New()
	payout := &domain.PayoutObligation{FulfillmentRef: ref, Amount: decimal.NewFromInt(5)}

	assert.ErrorIs(t, table.Insert(ctx, payout), domain.ErrSchemaMissing)
	_, err := table.ExistingRefs(ctx, []uuid.UUID{ref})
	assert.ErrorIs(t, err, domain.ErrSchemaMissing)

	table.SetPresent(true)
	require.NoError(t, table.Insert(ctx, payout))
	assert.Equal(t, domain.ShapeSponsee, payout.Shape)
	assert.ErrorIs(t, table.Insert(ctx, payout), domain.ErrConflict)

	found, err := table.ExistingRefs(ctx, []uuid.UUID{ref, uuid.New()})
	require.NoError(t, err)
	assert.Len(t, found, 1)
	assert.Contains(t, found, ref)
}

func TestListDueUsesCalendarDate(t *testing.T) {
	ctx := context.Background()
	s := New()
	deadline := time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC)
	s.PutOffer(domain.GroupOffer{ID: uuid.New(), Deadline: deadline, Status: domain.OfferStatusActive})
	s.PutOffer(domain.GroupOffer{ID: uuid.New(), Deadline: deadline, Status: domain.OfferStatusCompleted})
	repos := s.Repositories()

	due, err := repos.Offers.ListDue(ctx, time.Date(2026, 3, 5, 23, 0, 0, 0, time.UTC), 10)
	require.NoError(t, err)
	assert.Empty(t, due)

	due, err = repos.Offers.ListDue(ctx, time.Date(2026, 3, 6, 0, 0, 0, 0, time.UTC), 10)
	require.NoError(t, err)
	assert.Len(t, due, 1)
}

func TestListUpcomingPagesByID(t *testing.T) {
	ctx := context.Background()
	s := New()
	today := time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		s.PutOffer(domain.GroupOffer{ID: uuid.New(), Deadline: today, Status: domain.OfferStatusPending})
	}
	s.PutOffer(domain.GroupOffer{ID: uuid.New(), Deadline: today.AddDate(0, 0, -1), Status: domain.OfferStatusActive})
	s.PutOffer(domain.GroupOffer{ID: uuid.New(), Deadline: today, Status: domain.OfferStatusCancelled})
	repos := s.Repositories()

	first, err := repos.Offers.ListUpcoming(ctx, today.Add(20*time.Hour), uuid.Nil, 2)
	require.NoError(t, err)
	require.Len(t, first, 2)

	rest, err := repos.Offers.ListUpcoming(ctx, today.Add(20*time.Hour), first[1].ID, 2)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.NotContains(t, []uuid.UUID{first[0].ID, first[1].ID}, rest[0].ID)
}

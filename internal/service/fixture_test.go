package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/set-night/groupoffer/internal/domain"
	"github.com/set-night/groupoffer/internal/repository"
	"github.com/set-night/groupoffer/internal/repository/memstore"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var (
	testDeadline = time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC)
	beforeDue    = time.Date(2026, 3, 5, 12, 0, 0, 0, time.UTC)
	afterDue     = time.Date(2026, 3, 6, 0, 30, 0, 0, time.UTC)
)

type fixture struct {
	store   *memstore.Store
	primary *memstore.PayoutTable
	legacy  *memstore.PayoutTable
	repos   *repository.Repositories

	offers     *OfferService
	reconciler *Reconciler
	finalizer  *Finalizer
	audit      *recordingAuditor

	group   uuid.UUID
	admin   uuid.UUID
	sponsor uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := memstore.New()
	primary := memstore.NewPayoutTable(domain.ShapeSponsorship, true)
	legacy := memstore.NewPayoutTable(domain.ShapeSponsee, true)
	repos := store.Repositories(primary, legacy)

	dispatcher := NewDispatcher(time.Second)
	dispatcher.Register("inbox", InboxNotifier(repos.Notifications))
	audit := &recordingAuditor{}

	f := &fixture{
		store:      store,
		primary:    primary,
		legacy:     legacy,
		repos:      repos,
		offers:     NewOfferService(repos, dispatcher, audit),
		reconciler: NewReconciler(repos, time.UTC),
		finalizer:  NewFinalizer(repos, dispatcher, audit, time.UTC, 2),
		audit:      audit,
		group:      uuid.New(),
		admin:      uuid.New(),
		sponsor:    uuid.New(),
	}
	store.AddMember(f.group, f.admin, "admin")
	store.AddMember(f.group, f.sponsor, "member")
	f.setNow(beforeDue)
	return f
}

func (f *fixture) setNow(now time.Time) {
	clock := func() time.Time { return now }
	f.offers.nowFn = clock
	f.reconciler.nowFn = clock
	f.finalizer.nowFn = clock
}

func (f *fixture) member() uuid.UUID {
	id := uuid.New()
	f.store.AddMember(f.group, id, "member")
	return id
}

func (f *fixture) postOffer(t *testing.T, total string) *domain.GroupOffer {
	t.Helper()
	offer, err := f.offers.CreateOffer(context.Background(), Actor{UserID: f.sponsor}, domain.CreateOfferInput{
		GroupID:     f.group,
		Title:       "Spring launch",
		Description: "Post one short video about the launch.",
		TotalAmount: decimal.RequireFromString(total),
		Deadline:    testDeadline,
	})
	require.NoError(t, err)
	return offer
}

func (f *fixture) accept(t *testing.T, offerID, memberID uuid.UUID) *domain.MemberResponse {
	t.Helper()
	resp, err := f.offers.AcceptOffer(context.Background(), Actor{UserID: memberID}, offerID, memberID)
	require.NoError(t, err)
	require.NotNil(t, resp.FulfillmentRef)
	return resp
}

// goLive marks the member's contract live and reconciles the offer.
func (f *fixture) goLive(t *testing.T, offerID, memberID uuid.UUID) {
	t.Helper()
	require.True(t, f.store.UpdateContract(domain.ContractID(offerID, memberID), func(c *domain.FulfillmentContract) {
		c.Confirmed = true
	}))
	_, err := f.reconciler.ReconcileOffer(context.Background(), offerID)
	require.NoError(t, err)
	resp, ok := f.store.Response(offerID, memberID)
	require.True(t, ok)
	require.Equal(t, domain.ResponseCompleted, resp.Status)
}

func (f *fixture) offerStatus(t *testing.T, id uuid.UUID) domain.OfferStatus {
	t.Helper()
	o, ok := f.store.Offer(id)
	require.True(t, ok)
	return o.Status
}

func (f *fixture) payoutRows() []domain.PayoutObligation {
	return append(f.primary.Rows(), f.legacy.Rows()...)
}

func (f *fixture) notificationsTitled(title string) []domain.Notification {
	var out []domain.Notification
	for _, n := range f.store.Notifications() {
		if n.Title == title {
			out = append(out, n)
		}
	}
	return out
}

type recordingAuditor struct {
	mu            sync.Mutex
	settlements   int
	cancellations int
	errors        int
}

func (a *recordingAuditor) LogSettlement(*domain.GroupOffer, []domain.PayoutObligation, int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.settlements++
}

func (a *recordingAuditor) LogCancellation(*domain.GroupOffer, uuid.UUID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cancellations++
}

func (a *recordingAuditor) LogError(error, string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.errors++
}

package service

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/set-night/groupoffer/internal/changefeed"
	"github.com/set-night/groupoffer/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingReconciler struct {
	calls atomic.Int32
}

func (c *countingReconciler) ReconcileGroup(context.Context, uuid.UUID) (ReconcileResult, error) {
	c.calls.Add(1)
	return ReconcileResult{}, nil
}

func TestWatcherDebouncesHints(t *testing.T) {
	ctx := context.Background()
	feed := changefeed.NewLocalFeed()
	rec := &countingReconciler{}
	w := &Watcher{feed: feed, reconciler: rec, debounce: 50 * time.Millisecond}
	group := uuid.New()

	h, err := w.Watch(ctx, group)
	require.NoError(t, err)
	defer h.Close()

	assert.Eventually(t, func() bool { return rec.calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	for i := 0; i < 5; i++ {
		require.NoError(t, feed.Publish(ctx, changefeed.Hint{Table: "group_offer_responses", GroupID: group}))
	}
	require.NoError(t, feed.Publish(ctx, changefeed.Hint{Table: "group_offers", GroupID: uuid.New()}))

	assert.Eventually(t, func() bool { return rec.calls.Load() == 2 }, time.Second, 5*time.Millisecond)
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, int32(2), rec.calls.Load())
}

func TestWatchCloseStopsReconciling(t *testing.T) {
	ctx := context.Background()
	feed := changefeed.NewLocalFeed()
	rec := &countingReconciler{}
	w := &Watcher{feed: feed, reconciler: rec, debounce: time.Millisecond}
	group := uuid.New()

	h, err := w.Watch(ctx, group)
	require.NoError(t, err)
	assert.Eventually(t, func() bool { return rec.calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, h.Close())
	require.NoError(t, h.Close())

	require.NoError(t, feed.Publish(ctx, changefeed.Hint{GroupID: group}))
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), rec.calls.Load())
}

func TestWatcherReconcilesRealGroup(t *testing.T) {
	f := newFixture(t)
	alice := f.member()
	offer := f.postOffer(t, "100.00")
	f.accept(t, offer.ID, alice)

	feed := changefeed.NewLocalFeed()
	w := NewWatcher(feed, f.reconciler, 10*time.Millisecond)
	h, err := w.Watch(context.Background(), f.group)
	require.NoError(t, err)
	defer h.Close()

	f.store.UpdateContract(domain.ContractID(offer.ID, alice), func(c *domain.FulfillmentContract) { c.Status = "live" })
	require.NoError(t, feed.Publish(context.Background(), changefeed.Hint{Table: "group_offer_responses", GroupID: f.group}))

	assert.Eventually(t, func() bool {
		resp, _ := f.store.Response(offer.ID, alice)
		return resp.Status == domain.ResponseCompleted
	}, time.Second, 5*time.Millisecond)
}

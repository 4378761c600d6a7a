package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/set-night/groupoffer/internal/changefeed"
	"github.com/set-night/groupoffer/internal/config"
)

type groupReconciler interface {
	ReconcileGroup(ctx context.Context, groupID uuid.UUID) (ReconcileResult, error)
}

// Watcher re-reconciles a group whenever the change feed hints that one of
// its offers or responses moved. Bursts of hints collapse into one pass.
type Watcher struct {
	feed       changefeed.Feed
	reconciler groupReconciler
	debounce   time.Duration
}

func NewWatcher(feed changefeed.Feed, reconciler *Reconciler, debounce time.Duration) *Watcher {
	return &Watcher{feed: feed, reconciler: reconciler, debounce: debounce}
}

// Watch is the handle for one watched group.
type Watch struct {
	GroupID uuid.UUID
	sub     changefeed.Subscription
	cancel  context.CancelFunc
	done    chan struct{}
	once    sync.Once
}

// Watch subscribes to the group's hints and reconciles once right away. The
// caller owns the returned handle and must Close it.
func (w *Watcher) Watch(ctx context.Context, groupID uuid.UUID) (*Watch, error) {
	sub, err := w.feed.Subscribe(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("watch group %s: %w", groupID, err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	h := &Watch{GroupID: groupID, sub: sub, cancel: cancel, done: make(chan struct{})}
	go w.loop(runCtx, h)
	return h, nil
}

func (w *Watcher) loop(ctx context.Context, h *Watch) {
	defer close(h.done)

	w.reconcile(ctx, h.GroupID)

	var timer *time.Timer
	var fire <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	hints := h.sub.Hints()
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-hints:
			if !ok {
				slog.Warn("change feed ended", "group_id", h.GroupID)
				return
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C
		case <-fire:
			fire = nil
			w.reconcile(ctx, h.GroupID)
		}
	}
}

func (w *Watcher) reconcile(ctx context.Context, groupID uuid.UUID) {
	ctx, cancel := context.WithTimeout(ctx, config.ReconcileTimeout)
	defer cancel()

	res, err := w.reconciler.ReconcileGroup(ctx, groupID)
	if err != nil {
		slog.Error("group reconcile failed", "group_id", groupID, "error", err)
	}
	if res.Promoted > 0 || res.Skipped > 0 {
		slog.Info("group reconciled",
			"group_id", groupID, "promoted", res.Promoted, "waiting", res.Waiting, "skipped", res.Skipped, "late", res.Late)
	}
}

func (h *Watch) Close() error {
	var err error
	h.once.Do(func() {
		h.cancel()
		err = h.sub.Close()
		<-h.done
	})
	return err
}

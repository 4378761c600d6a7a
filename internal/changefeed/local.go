package changefeed

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/set-night/groupoffer/internal/config"
)

// LocalFeed delivers hints published in the same process.
type LocalFeed struct {
	mu   sync.Mutex
	subs map[*subscription]struct{}
}

func NewLocalFeed() *LocalFeed {
	return &LocalFeed{subs: make(map[*subscription]struct{})}
}

func (f *LocalFeed) Subscribe(_ context.Context, groupID uuid.UUID) (Subscription, error) {
	ctx, cancel := context.WithCancel(context.Background())
	sub := newSubscription(groupID, config.SubscriptionBuffer, cancel)

	f.mu.Lock()
	f.subs[sub] = struct{}{}
	f.mu.Unlock()

	go func() {
		<-ctx.Done()
		f.mu.Lock()
		delete(f.subs, sub)
		f.mu.Unlock()
		sub.finish()
	}()
	return sub, nil
}

func (f *LocalFeed) Publish(_ context.Context, h Hint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for sub := range f.subs {
		sub.offer(h)
	}
	return nil
}

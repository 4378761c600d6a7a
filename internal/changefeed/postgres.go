package changefeed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/set-night/groupoffer/internal/config"
)

// PGFeed listens on the channel fed by the offer and response triggers.
// Every subscription holds one pooled connection for its lifetime.
type PGFeed struct {
	pool    *pgxpool.Pool
	channel string
}

func NewPGFeed(pool *pgxpool.Pool) *PGFeed {
	return &PGFeed{pool: pool, channel: config.ChangeChannel}
}

func (f *PGFeed) Subscribe(ctx context.Context, groupID uuid.UUID) (Subscription, error) {
	conn, err := f.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire listen conn: %w", err)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{f.channel}.Sanitize()); err != nil {
		conn.Release()
		return nil, fmt.Errorf("listen %s: %w", f.channel, err)
	}

	// The connection leaves the pool so a cancelled wait never hands a
	// listening session to another caller.
	raw := conn.Hijack()

	listenCtx, cancel := context.WithCancel(context.Background())
	sub := newSubscription(groupID, config.SubscriptionBuffer, cancel)
	sub.onClose = func() error {
		return raw.Close(context.Background())
	}

	go func() {
		defer sub.finish()
		for {
			n, err := raw.WaitForNotification(listenCtx)
			if err != nil {
				if listenCtx.Err() == nil && !errors.Is(err, context.Canceled) {
					slog.Error("change feed wait failed", "channel", f.channel, "error", err)
				}
				return
			}
			h, err := ParseHint([]byte(n.Payload))
			if err != nil {
				slog.Warn("ignoring change notification", "channel", f.channel, "error", err)
				continue
			}
			sub.offer(h)
		}
	}()

	return sub, nil
}

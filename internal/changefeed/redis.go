package changefeed

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/set-night/groupoffer/internal/config"
)

func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	slog.Info("connected to redis", "addr", opt.Addr)
	return client, nil
}

// RedisFeed carries hints over Redis pub/sub, one channel per group, so
// several settler processes can share one Postgres listener.
type RedisFeed struct {
	client *redis.Client
	prefix string
}

func NewRedisFeed(client *redis.Client) *RedisFeed {
	return &RedisFeed{client: client, prefix: config.RedisChangeChannelPrefix}
}

func (f *RedisFeed) channel(groupID uuid.UUID) string {
	if groupID == uuid.Nil {
		return f.prefix + "*"
	}
	return f.prefix + groupID.String()
}

func (f *RedisFeed) Publish(ctx context.Context, h Hint) error {
	payload, err := h.Encode()
	if err != nil {
		return fmt.Errorf("encode hint: %w", err)
	}
	if err := f.client.Publish(ctx, f.channel(h.GroupID), payload).Err(); err != nil {
		return fmt.Errorf("publish hint: %w", err)
	}
	return nil
}

func (f *RedisFeed) Subscribe(ctx context.Context, groupID uuid.UUID) (Subscription, error) {
	var ps *redis.PubSub
	if groupID == uuid.Nil {
		ps = f.client.PSubscribe(ctx, f.channel(groupID))
	} else {
		ps = f.client.Subscribe(ctx, f.channel(groupID))
	}
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", f.channel(groupID), err)
	}

	listenCtx, cancel := context.WithCancel(context.Background())
	sub := newSubscription(groupID, config.SubscriptionBuffer, cancel)
	msgs := ps.Channel()

	go func() {
		defer sub.finish()
		for {
			select {
			case <-listenCtx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				h, err := ParseHint([]byte(msg.Payload))
				if err != nil {
					slog.Warn("ignoring change hint", "channel", msg.Channel, "error", err)
					continue
				}
				sub.offer(h)
			}
		}
	}()

	sub.onClose = ps.Close
	return sub, nil
}

// Relay republishes every hint from src onto the Redis feed until ctx ends.
func Relay(ctx context.Context, src Feed, dst *RedisFeed) error {
	sub, err := src.Subscribe(ctx, uuid.Nil)
	if err != nil {
		return err
	}
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		case h, ok := <-sub.Hints():
			if !ok {
				return fmt.Errorf("relay source closed")
			}
			if err := dst.Publish(ctx, h); err != nil {
				slog.Warn("relay publish failed", "group_id", h.GroupID, "error", err)
			}
		}
	}
}

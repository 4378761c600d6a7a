// Package changefeed delivers "something changed in this group" hints. A hint
// carries nothing the receiver should trust beyond the group id; receivers
// re-read authoritative state.
package changefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

type Hint struct {
	Table   string    `json:"table"`
	GroupID uuid.UUID `json:"group_id"`
}

// ParseHint decodes a trigger or relay payload.
func ParseHint(payload []byte) (Hint, error) {
	var h Hint
	if err := json.Unmarshal(payload, &h); err != nil {
		return Hint{}, fmt.Errorf("decode hint: %w", err)
	}
	if h.GroupID == uuid.Nil {
		return Hint{}, fmt.Errorf("decode hint: missing group_id")
	}
	return h, nil
}

func (h Hint) Encode() ([]byte, error) {
	return json.Marshal(h)
}

type Subscription interface {
	// Hints is closed once the subscription ends.
	Hints() <-chan Hint
	Close() error
}

type Feed interface {
	// Subscribe starts delivering hints for groupID. uuid.Nil subscribes to
	// every group.
	Subscribe(ctx context.Context, groupID uuid.UUID) (Subscription, error)
}

// subscription is the delivery half shared by the feed implementations.
// Hints that arrive while the buffer is full are dropped; one pending hint
// already causes a full re-read.
type subscription struct {
	groupID uuid.UUID
	ch      chan Hint
	cancel  context.CancelFunc
	done    chan struct{}
	once    sync.Once
	onClose func() error
	err     error
}

func newSubscription(groupID uuid.UUID, buffer int, cancel context.CancelFunc) *subscription {
	return &subscription{
		groupID: groupID,
		ch:      make(chan Hint, buffer),
		cancel:  cancel,
		done:    make(chan struct{}),
	}
}

func (s *subscription) Hints() <-chan Hint {
	return s.ch
}

func (s *subscription) wants(h Hint) bool {
	return s.groupID == uuid.Nil || s.groupID == h.GroupID
}

func (s *subscription) offer(h Hint) {
	if !s.wants(h) {
		return
	}
	select {
	case s.ch <- h:
	default:
	}
}

// finish is called by the delivery goroutine when it exits.
func (s *subscription) finish() {
	close(s.ch)
	close(s.done)
}

func (s *subscription) Close() error {
	s.once.Do(func() {
		s.cancel()
		<-s.done
		if s.onClose != nil {
			s.err = s.onClose()
		}
	})
	return s.err
}

package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/set-night/groupoffer/internal/domain"
	"github.com/set-night/groupoffer/internal/metrics"
	"github.com/set-night/groupoffer/internal/repository"
)

// Notifier delivers one message to one user.
type Notifier interface {
	Notify(ctx context.Context, n domain.Notification) error
}

type NotifierFunc func(ctx context.Context, n domain.Notification) error

func (f NotifierFunc) Notify(ctx context.Context, n domain.Notification) error {
	return f(ctx, n)
}

// InboxNotifier stores the message in the user's in-app inbox.
func InboxNotifier(repo repository.NotificationRepository) Notifier {
	return NotifierFunc(repo.Create)
}

type channel struct {
	name string
	n    Notifier
}

// Dispatcher fans a notification out to every registered channel. Delivery is
// best effort: failures are logged and counted, never returned.
type Dispatcher struct {
	channels []channel
	timeout  time.Duration
}

func NewDispatcher(timeout time.Duration) *Dispatcher {
	return &Dispatcher{timeout: timeout}
}

func (d *Dispatcher) Register(name string, n Notifier) {
	d.channels = append(d.channels, channel{name: name, n: n})
}

func (d *Dispatcher) Send(ctx context.Context, n domain.Notification) {
	if d == nil {
		return
	}
	// Delivery outlives a caller that stops waiting for it.
	ctx = context.WithoutCancel(ctx)
	for _, ch := range d.channels {
		if err := d.deliver(ctx, ch, n); err != nil {
			metrics.RecordNotifyFailure(ch.name)
			slog.Warn("notification dropped",
				"channel", ch.name, "to", n.ToUserID, "offer_id", n.OfferID, "error", err)
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, ch channel, n domain.Notification) (err error) {
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %s panicked: %v", domain.ErrExternalService, ch.name, r)
		}
	}()
	if err := ch.n.Notify(ctx, n); err != nil {
		return fmt.Errorf("%w: %s: %w", domain.ErrExternalService, ch.name, err)
	}
	return nil
}

func (d *Dispatcher) sendAll(ctx context.Context, users []uuid.UUID, offerID uuid.UUID, title, message string) {
	for _, u := range users {
		d.Send(ctx, domain.Notification{ToUserID: u, OfferID: offerID, Title: title, Message: message})
	}
}

// Auditor receives operator-facing records of settlement events.
type Auditor interface {
	LogSettlement(offer *domain.GroupOffer, payouts []domain.PayoutObligation, completed int)
	LogCancellation(offer *domain.GroupOffer, by uuid.UUID)
	LogError(err error, context string)
}

type nopAuditor struct{}

func (nopAuditor) LogSettlement(*domain.GroupOffer, []domain.PayoutObligation, int) {}

func (nopAuditor) LogCancellation(*domain.GroupOffer, uuid.UUID) {}

func (nopAuditor) LogError(error, string) {}

func auditorOrNop(a Auditor) Auditor {
	if a == nil {
		return nopAuditor{}
	}
	return a
}

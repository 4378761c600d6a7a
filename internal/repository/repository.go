package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/set-night/groupoffer/internal/domain"
)

type OfferRepository interface {
	Create(ctx context.Context, offer *domain.GroupOffer) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.GroupOffer, error)
	ListByGroup(ctx context.Context, groupID uuid.UUID) ([]domain.GroupOffer, error)
	// ListDue returns open offers whose deadline date is before asOf, oldest first.
	ListDue(ctx context.Context, asOf time.Time, limit int) ([]domain.GroupOffer, error)
	// ListUpcoming returns open offers whose deadline date is asOf or later,
	// ordered by id and starting after the given id.
	ListUpcoming(ctx context.Context, asOf time.Time, after uuid.UUID, limit int) ([]domain.GroupOffer, error)
	// UpdateStatus moves the offer to status only if its stored status is one
	// of from. It reports whether the row changed.
	UpdateStatus(ctx context.Context, id uuid.UUID, from []domain.OfferStatus, to domain.OfferStatus) (bool, error)
}

type ResponseRepository interface {
	Get(ctx context.Context, offerID, memberID uuid.UUID) (*domain.MemberResponse, error)
	ListByOffer(ctx context.Context, offerID uuid.UUID) ([]domain.MemberResponse, error)
	// Upsert writes status to for the member only if the stored status is one of
	// from; a missing row counts as pending. The first accepted_at and
	// rejected_at stamps are kept.
	Upsert(ctx context.Context, offerID, memberID uuid.UUID, from []domain.ResponseStatus, to domain.ResponseStatus, at time.Time) (bool, error)
	// LinkFulfillment sets fulfillment_ref only while it is still null.
	LinkFulfillment(ctx context.Context, offerID, memberID, ref uuid.UUID) (bool, error)
	// MarkCompleted promotes an accepted response. It is a no-op for any other
	// stored status. A nil liveURL keeps the stored value.
	MarkCompleted(ctx context.Context, offerID, memberID uuid.UUID, liveURL *string, at time.Time) (bool, error)
}

type ContractRepository interface {
	// CreateIfAbsent inserts the contract unless one with the same id exists.
	CreateIfAbsent(ctx context.Context, contract *domain.FulfillmentContract) (bool, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.FulfillmentContract, error)
}

// PayoutStore is one physical shape of the payout relation.
type PayoutStore interface {
	Shape() domain.PayoutShape
	// Supports reports whether the relation exists in the connected schema.
	Supports(ctx context.Context) (bool, error)
	// ExistingRefs returns the subset of refs that already have an obligation.
	ExistingRefs(ctx context.Context, refs []uuid.UUID) (map[uuid.UUID]struct{}, error)
	Insert(ctx context.Context, payout *domain.PayoutObligation) error
}

type MembershipReader interface {
	IsMember(ctx context.Context, groupID, userID uuid.UUID) (bool, error)
	IsAdmin(ctx context.Context, groupID, userID uuid.UUID) (bool, error)
	ListMembers(ctx context.Context, groupID uuid.UUID) ([]uuid.UUID, error)
}

type NotificationRepository interface {
	Create(ctx context.Context, n domain.Notification) error
}

type ChannelRepository interface {
	// TelegramChatID returns 0 when the user has no linked chat.
	TelegramChatID(ctx context.Context, userID uuid.UUID) (int64, error)
}

type Repositories struct {
	Offers        OfferRepository
	Responses     ResponseRepository
	Contracts     ContractRepository
	Payouts       []PayoutStore // priority order
	Members       MembershipReader
	Notifications NotificationRepository
	Channels      ChannelRepository
}

func NewRepositories(pool *pgxpool.Pool) *Repositories {
	return &Repositories{
		Offers:    NewOfferRepository(pool),
		Responses: NewResponseRepository(pool),
		Contracts: NewContractRepository(pool),
		Payouts: []PayoutStore{
			NewSponsorshipPayoutStore(pool),
			NewSponseePayoutStore(pool),
		},
		Members:       NewMembershipReader(pool),
		Notifications: NewNotificationRepository(pool),
		Channels:      NewChannelRepository(pool),
	}
}

package config

import "time"

const (
	// Upper bound for PAYOUT_SCALE; NUMERIC(18, 6) columns hold six fraction digits.
	MaxPayoutScale = 6

	// Connection pool
	PoolMaxConns = 20
	PoolMinConns = 5

	// Per-operation timeouts for jobs that run outside a request
	SweepTimeout     = 2 * time.Minute
	ReconcileTimeout = 30 * time.Second

	// Telegram limits
	MaxTelegramMessageLen = 4096

	// Postgres channel fed by the change-notification triggers
	ChangeChannel = "group_offer_changes"

	// Redis pub/sub channel prefix; the group id is appended
	RedisChangeChannelPrefix = "groupoffer:changes:"

	// Buffered hints per subscription before new ones are dropped
	SubscriptionBuffer = 16
)

// Notification titles
const (
	TitleNewOffer       = "New group offer"
	TitleOfferAccepted  = "Offer accepted"
	TitleOfferRejected  = "Offer declined"
	TitleOfferCancelled = "Offer cancelled"
	TitlePayoutQueued   = "Payout queued"
	TitleOfferSettled   = "Offer settled"
	TitleOfferNoPayouts = "Offer closed"
)

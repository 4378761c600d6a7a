package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type PayoutStatus string

const (
	PayoutPending PayoutStatus = "pending"
	PayoutPaid    PayoutStatus = "paid"
)

// PayoutShape names a physical payout relation.
type PayoutShape string

const (
	ShapeSponsorship PayoutShape = "sponsorship_payouts"
	ShapeSponsee     PayoutShape = "sponsee_payouts"
)

// PayoutObligation is money owed to one member after settlement. It is keyed by
// the fulfillment contract so a member is paid at most once per offer.
type PayoutObligation struct {
	ID             uuid.UUID
	FulfillmentRef uuid.UUID
	GroupOfferID   uuid.UUID
	UserID         uuid.UUID
	Amount         decimal.Decimal
	Status         PayoutStatus
	Shape          PayoutShape
	CreatedAt      time.Time
}

package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// LiveStage is the numeric stage at which a contract counts as live.
const LiveStage = 4

var contractNamespace = uuid.MustParse("6f1c2a7e-3b4d-5e6f-8a9b-0c1d2e3f4a5b")

// ContractID derives the fulfillment contract id for one member on one offer.
// Concurrent creators compute the same id, so at most one contract can exist.
func ContractID(offerID, memberID uuid.UUID) uuid.UUID {
	name := make([]byte, 0, 32)
	name = append(name, offerID[:]...)
	name = append(name, memberID[:]...)
	return uuid.NewSHA1(contractNamespace, name)
}

type FulfillmentContract struct {
	ID           uuid.UUID
	OfferID      uuid.UUID
	SponsorID    uuid.UUID
	MemberUserID uuid.UUID
	Title        string
	Terms        string
	Confirmed    bool
	Status       string
	Stage        int
	LiveURL      *string
	CreatedAt    time.Time
}

// NewContractForOffer builds the initial contract for a member accepting o.
func NewContractForOffer(o *GroupOffer, memberID uuid.UUID, now time.Time) *FulfillmentContract {
	return &FulfillmentContract{
		ID:           ContractID(o.ID, memberID),
		OfferID:      o.ID,
		SponsorID:    o.SponsorID,
		MemberUserID: memberID,
		Title:        o.Title,
		Terms:        o.Description,
		Status:       "draft",
		CreatedAt:    now,
	}
}

type LiveSignal string

const (
	SignalConfirmed LiveSignal = "confirmed"
	SignalStatus    LiveSignal = "status"
	SignalStage     LiveSignal = "stage"
	SignalURL       LiveSignal = "url"
)

// LiveSignals lists every liveness signal the contract currently shows.
// The signals are alternatives; none takes precedence over another.
func (c *FulfillmentContract) LiveSignals() []LiveSignal {
	var out []LiveSignal
	if c.Confirmed {
		out = append(out, SignalConfirmed)
	}
	if strings.EqualFold(strings.TrimSpace(c.Status), "live") {
		out = append(out, SignalStatus)
	}
	if c.Stage >= LiveStage {
		out = append(out, SignalStage)
	}
	if c.PublishedURL() != "" {
		out = append(out, SignalURL)
	}
	return out
}

func (c *FulfillmentContract) IsLive() bool {
	return len(c.LiveSignals()) > 0
}

func (c *FulfillmentContract) PublishedURL() string {
	if c.LiveURL == nil {
		return ""
	}
	return strings.TrimSpace(*c.LiveURL)
}

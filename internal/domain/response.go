package domain

import (
	"time"

	"github.com/google/uuid"
)

type ResponseStatus string

const (
	ResponsePending   ResponseStatus = "pending"
	ResponseAccepted  ResponseStatus = "accepted"
	ResponseRejected  ResponseStatus = "rejected"
	ResponseCompleted ResponseStatus = "completed"
)

// Terminal states never change again for that member on that offer.
func (s ResponseStatus) Terminal() bool {
	return s == ResponseRejected || s == ResponseCompleted
}

// CanTransition reports whether a stored response may move from s to next.
// Only forward moves exist: pending to accepted or rejected, accepted to completed.
func (s ResponseStatus) CanTransition(next ResponseStatus) bool {
	switch s {
	case ResponsePending:
		return next == ResponseAccepted || next == ResponseRejected
	case ResponseAccepted:
		return next == ResponseCompleted
	}
	return false
}

// MemberResponse is one member's record against a group offer. A member with
// no stored row is treated as pending.
type MemberResponse struct {
	OfferID        uuid.UUID
	MemberUserID   uuid.UUID
	Status         ResponseStatus
	AcceptedAt     *time.Time
	RejectedAt     *time.Time
	CompletedAt    *time.Time
	FulfillmentRef *uuid.UUID
	LiveURL        *string
}

// PendingResponse is the virtual row for a member who has not responded.
func PendingResponse(offerID, memberID uuid.UUID) MemberResponse {
	return MemberResponse{OfferID: offerID, MemberUserID: memberID, Status: ResponsePending}
}

// Settleable reports whether the response qualifies for a payout share: it
// completed before cutoff and has a fulfillment ref. A completed row without a
// timestamp predates stamping and counts.
func (r *MemberResponse) Settleable(cutoff time.Time) bool {
	if r.Status != ResponseCompleted || r.FulfillmentRef == nil {
		return false
	}
	return r.CompletedAt == nil || r.CompletedAt.Before(cutoff)
}

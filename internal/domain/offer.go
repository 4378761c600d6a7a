package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type OfferStatus string

const (
	OfferStatusPending   OfferStatus = "pending"
	OfferStatusActive    OfferStatus = "active"
	OfferStatusCompleted OfferStatus = "completed"
	OfferStatusCancelled OfferStatus = "cancelled"
)

// ParseOfferStatus accepts any of the four offer states, case-insensitively.
func ParseOfferStatus(s string) (OfferStatus, error) {
	switch st := OfferStatus(strings.ToLower(strings.TrimSpace(s))); st {
	case OfferStatusPending, OfferStatusActive, OfferStatusCompleted, OfferStatusCancelled:
		return st, nil
	}
	return "", ErrInvalidStatus
}

// Open reports whether members may still respond.
func (s OfferStatus) Open() bool {
	return s == OfferStatusPending || s == OfferStatusActive
}

// AdminTransitionFrom returns the prior states an admin may move an offer out
// of to reach target. Terminal states have no way out.
func AdminTransitionFrom(target OfferStatus) ([]OfferStatus, error) {
	switch target {
	case OfferStatusActive:
		return []OfferStatus{OfferStatusPending}, nil
	case OfferStatusCompleted, OfferStatusCancelled:
		return []OfferStatus{OfferStatusPending, OfferStatusActive}, nil
	}
	return nil, ErrInvalidStatus
}

type GroupOffer struct {
	ID          uuid.UUID
	GroupID     uuid.UUID
	SponsorID   uuid.UUID
	Title       string
	Description string
	TotalAmount decimal.Decimal
	Deadline    time.Time // calendar date, time of day ignored
	Status      OfferStatus
	CreatedAt   time.Time
}

// DeadlineEnd is the first instant after the deadline day in loc.
func (o *GroupOffer) DeadlineEnd(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := o.Deadline.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc).AddDate(0, 0, 1)
}

// DeadlinePassed reports whether the whole deadline day has elapsed in loc.
func (o *GroupOffer) DeadlinePassed(now time.Time, loc *time.Location) bool {
	return !now.Before(o.DeadlineEnd(loc))
}

// CreateOfferInput is what a sponsor supplies when posting an offer.
type CreateOfferInput struct {
	GroupID     uuid.UUID
	Title       string
	Description string
	TotalAmount decimal.Decimal
	Deadline    time.Time
}

func (in CreateOfferInput) Validate() error {
	if in.GroupID == uuid.Nil {
		return ErrValidation
	}
	if strings.TrimSpace(in.Title) == "" {
		return ErrEmptyTitle
	}
	if in.TotalAmount.IsNegative() {
		return ErrInvalidAmount
	}
	if in.Deadline.IsZero() {
		return ErrMissingDeadline
	}
	return nil
}

package domain

import (
	"bytes"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Share is one member's slice of a settled pot.
type Share struct {
	FulfillmentRef uuid.UUID
	UserID         uuid.UUID
	Amount         decimal.Decimal
}

// SplitEvenly divides total among the responses settleable at cutoff, in
// integer minor units of the given scale. The remainder goes one minor unit at
// a time to members ordered by fulfillment ref, so the shares always sum to
// total (rounded to scale) and the same inputs always yield the same amounts.
// Completions stamped at or after cutoff never join the split, which keeps the
// set fixed across retries.
func SplitEvenly(total decimal.Decimal, responses []MemberResponse, cutoff time.Time, scale int32) []Share {
	settled := make([]MemberResponse, 0, len(responses))
	for _, r := range responses {
		if r.Settleable(cutoff) {
			settled = append(settled, r)
		}
	}
	if len(settled) == 0 {
		return nil
	}
	sort.Slice(settled, func(i, j int) bool {
		a, b := *settled[i].FulfillmentRef, *settled[j].FulfillmentRef
		return bytes.Compare(a[:], b[:]) < 0
	})

	minor := total.Round(scale).Shift(scale).IntPart()
	n := int64(len(settled))
	base, rem := minor/n, minor%n

	shares := make([]Share, len(settled))
	for i, r := range settled {
		units := base
		if int64(i) < rem {
			units++
		}
		shares[i] = Share{
			FulfillmentRef: *r.FulfillmentRef,
			UserID:         r.MemberUserID,
			Amount:         decimal.New(units, -scale),
		}
	}
	return shares
}

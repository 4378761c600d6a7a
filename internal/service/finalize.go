package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/set-night/groupoffer/internal/config"
	"github.com/set-night/groupoffer/internal/domain"
	"github.com/set-night/groupoffer/internal/metrics"
	"github.com/set-night/groupoffer/internal/repository"
	"github.com/shopspring/decimal"
)

type FinalizeOutcome string

const (
	OutcomeNotDue     FinalizeOutcome = "not_due"
	OutcomeClosed     FinalizeOutcome = "already_closed"
	OutcomeNoPayouts  FinalizeOutcome = "no_payouts"
	OutcomeSettled    FinalizeOutcome = "settled"
	OutcomeIncomplete FinalizeOutcome = "incomplete"
	outcomeError      FinalizeOutcome = "error"
)

type FinalizeResult struct {
	Outcome   FinalizeOutcome
	Completed int                       // settleable responses at this call
	Created   []domain.PayoutObligation // rows written by this call
	Existing  int                       // shares already paid by an earlier call
	Failed    int                       // rows left for a retry

	// ClosedHere is true only for the call whose status write closed the offer.
	ClosedHere bool
}

// Finalizer settles offers whose deadline has passed. Each step re-reads the
// ledgers, so a call interrupted at any point can simply be repeated.
type Finalizer struct {
	repos  *repository.Repositories
	notify *Dispatcher
	audit  Auditor
	loc    *time.Location
	scale  int32
	nowFn  func() time.Time
}

func NewFinalizer(repos *repository.Repositories, notify *Dispatcher, audit Auditor, loc *time.Location, scale int32) *Finalizer {
	if loc == nil {
		loc = time.UTC
	}
	return &Finalizer{
		repos:  repos,
		notify: notify,
		audit:  auditorOrNop(audit),
		loc:    loc,
		scale:  scale,
		nowFn:  time.Now,
	}
}

func (f *Finalizer) FinalizeOffer(ctx context.Context, offerID uuid.UUID) (res FinalizeResult, err error) {
	start := time.Now()
	defer func() {
		outcome := res.Outcome
		if err != nil && outcome == "" {
			outcome = outcomeError
		}
		metrics.RecordFinalize(string(outcome), time.Since(start).Seconds())
	}()

	offer, err := f.repos.Offers.GetByID(ctx, offerID)
	if err != nil {
		return res, err
	}
	if !offer.Status.Open() {
		res.Outcome = OutcomeClosed
		return res, nil
	}
	if !offer.DeadlinePassed(f.nowFn(), f.loc) {
		res.Outcome = OutcomeNotDue
		return res, nil
	}

	responses, err := f.repos.Responses.ListByOffer(ctx, offerID)
	if err != nil {
		return res, fmt.Errorf("list responses: %w", err)
	}
	shares := domain.SplitEvenly(offer.TotalAmount, responses, offer.DeadlineEnd(f.loc), f.scale)
	res.Completed = len(shares)

	if len(shares) == 0 {
		closed, err := f.close(ctx, offer)
		if err != nil {
			return res, err
		}
		res.Outcome, res.ClosedHere = OutcomeNoPayouts, closed
		if closed {
			f.audit.LogSettlement(offer, nil, 0)
			f.notify.Send(ctx, domain.Notification{
				ToUserID: offer.SponsorID,
				OfferID:  offer.ID,
				Title:    config.TitleOfferNoPayouts,
				Message:  fmt.Sprintf("%q closed with no completed members. Nothing was paid out.", offer.Title),
			})
		}
		return res, nil
	}

	stores := f.availableStores(ctx, offerID)
	existing := f.existingRefs(ctx, offerID, stores, shares)

	var rowErrs []error
	for _, share := range shares {
		if _, ok := existing[share.FulfillmentRef]; ok {
			res.Existing++
			continue
		}
		payout := &domain.PayoutObligation{
			ID:             uuid.New(),
			FulfillmentRef: share.FulfillmentRef,
			GroupOfferID:   offerID,
			UserID:         share.UserID,
			Amount:         share.Amount,
			Status:         domain.PayoutPending,
			CreatedAt:      f.nowFn().UTC(),
		}
		created, err := f.insert(ctx, stores, payout)
		if err != nil {
			slog.Error("payout row failed",
				"offer_id", offerID, "member_id", share.UserID, "fulfillment_ref", share.FulfillmentRef, "error", err)
			metrics.RecordPayoutFailure()
			res.Failed++
			rowErrs = append(rowErrs, fmt.Errorf("payout for %s: %w", share.FulfillmentRef, err))
			continue
		}
		if !created {
			res.Existing++
			continue
		}
		metrics.RecordPayout(string(payout.Shape))
		res.Created = append(res.Created, *payout)
	}

	if len(rowErrs) > 0 {
		res.Outcome = OutcomeIncomplete
		err := fmt.Errorf("finalize offer %s: %w", offerID, errors.Join(rowErrs...))
		f.audit.LogError(err, "finalize "+offer.Title)
		return res, err
	}

	closed, err := f.close(ctx, offer)
	if err != nil {
		return res, err
	}
	res.Outcome, res.ClosedHere = OutcomeSettled, closed
	if closed {
		f.announce(ctx, offer, shares, res.Created)
	}
	return res, nil
}

func (f *Finalizer) close(ctx context.Context, offer *domain.GroupOffer) (bool, error) {
	closed, err := f.repos.Offers.UpdateStatus(ctx, offer.ID,
		[]domain.OfferStatus{domain.OfferStatusPending, domain.OfferStatusActive}, domain.OfferStatusCompleted)
	if err != nil {
		return false, fmt.Errorf("close offer: %w", err)
	}
	if closed {
		offer.Status = domain.OfferStatusCompleted
		slog.Info("offer settled", "offer_id", offer.ID, "group_id", offer.GroupID)
	}
	return closed, nil
}

// availableStores returns the payout relations present in the schema, in
// priority order. A store whose probe fails stays in the list: only a missing
// relation reported by its own reads and inserts moves settlement past it.
func (f *Finalizer) availableStores(ctx context.Context, offerID uuid.UUID) []repository.PayoutStore {
	var out []repository.PayoutStore
	for _, s := range f.repos.Payouts {
		ok, err := s.Supports(ctx)
		if err != nil {
			slog.Warn("payout relation probe failed, keeping it", "offer_id", offerID, "shape", s.Shape(), "error", err)
			out = append(out, s)
			continue
		}
		if ok {
			out = append(out, s)
		}
	}
	return out
}

// existingRefs unions the already-paid refs across every available shape, so
// rows written through a fallback are seen after the primary comes back. A
// read failure counts as "none found"; the unique key on the primary relation
// still rejects a duplicate insert there.
func (f *Finalizer) existingRefs(ctx context.Context, offerID uuid.UUID, stores []repository.PayoutStore, shares []domain.Share) map[uuid.UUID]struct{} {
	refs := make([]uuid.UUID, len(shares))
	for i, s := range shares {
		refs[i] = s.FulfillmentRef
	}

	existing := make(map[uuid.UUID]struct{})
	for _, s := range stores {
		found, err := s.ExistingRefs(ctx, refs)
		if err != nil {
			slog.Warn("payout existence check failed, assuming none",
				"offer_id", offerID, "shape", s.Shape(), "error", err)
			continue
		}
		for ref := range found {
			existing[ref] = struct{}{}
		}
	}
	return existing
}

// insert writes the row to the first shape that accepts it. Only a missing
// relation moves on to the next shape; a conflict means the row is already
// there.
func (f *Finalizer) insert(ctx context.Context, stores []repository.PayoutStore, p *domain.PayoutObligation) (bool, error) {
	for _, s := range stores {
		err := s.Insert(ctx, p)
		switch {
		case err == nil:
			return true, nil
		case errors.Is(err, domain.ErrConflict):
			return false, nil
		case errors.Is(err, domain.ErrSchemaMissing):
			slog.Warn("payout relation missing, falling back", "shape", s.Shape(), "error", err)
			continue
		default:
			return false, err
		}
	}
	return false, domain.ErrNoPayoutShape
}

func (f *Finalizer) announce(ctx context.Context, offer *domain.GroupOffer, shares []domain.Share, created []domain.PayoutObligation) {
	f.audit.LogSettlement(offer, created, len(shares))

	total := decimal.Zero
	for _, s := range shares {
		total = total.Add(s.Amount)
		f.notify.Send(ctx, domain.Notification{
			ToUserID: s.UserID,
			OfferID:  offer.ID,
			Title:    config.TitlePayoutQueued,
			Message:  fmt.Sprintf("Your share of %q is %s. It is queued for payout.", offer.Title, s.Amount.StringFixed(f.scale)),
		})
	}
	f.notify.Send(ctx, domain.Notification{
		ToUserID: offer.SponsorID,
		OfferID:  offer.ID,
		Title:    config.TitleOfferSettled,
		Message: fmt.Sprintf("%q settled: %d completed members share %s.",
			offer.Title, len(shares), total.StringFixed(f.scale)),
	})
}

package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/set-night/groupoffer/internal/domain"
	"github.com/set-night/groupoffer/internal/metrics"
	"github.com/set-night/groupoffer/internal/repository"
)

type ReconcileResult struct {
	Promoted int // moved from accepted to completed by this call
	Waiting  int // contract not live yet
	Skipped  int // contract unreadable or write failed; retried next time
	Late     int // accepted but the deadline day is over
}

func (r *ReconcileResult) add(o ReconcileResult) {
	r.Promoted += o.Promoted
	r.Waiting += o.Waiting
	r.Skipped += o.Skipped
	r.Late += o.Late
}

// Reconciler promotes accepted responses whose fulfillment contract has gone
// live. Every promotion is a conditional write from accepted, so repeated or
// concurrent runs never move a response twice. Once an offer's deadline day
// is over its responses are frozen for settlement and nothing is promoted.
type Reconciler struct {
	repos *repository.Repositories
	loc   *time.Location
	nowFn func() time.Time
}

func NewReconciler(repos *repository.Repositories, loc *time.Location) *Reconciler {
	if loc == nil {
		loc = time.UTC
	}
	return &Reconciler{
		repos: repos,
		loc:   loc,
		nowFn: func() time.Time { return time.Now().UTC() },
	}
}

func (r *Reconciler) ReconcileOffer(ctx context.Context, offerID uuid.UUID) (ReconcileResult, error) {
	var res ReconcileResult

	offer, err := r.repos.Offers.GetByID(ctx, offerID)
	if err != nil {
		return res, err
	}
	if !offer.Status.Open() {
		return res, nil
	}
	frozen := offer.DeadlinePassed(r.nowFn(), r.loc)

	responses, err := r.repos.Responses.ListByOffer(ctx, offerID)
	if err != nil {
		return res, fmt.Errorf("list responses: %w", err)
	}

	var writeErrs []error
	for _, resp := range responses {
		if resp.Status != domain.ResponseAccepted || resp.FulfillmentRef == nil {
			continue
		}
		if frozen {
			metrics.RecordReconcile("late")
			res.Late++
			continue
		}
		ref := *resp.FulfillmentRef

		contract, err := r.repos.Contracts.GetByID(ctx, ref)
		if err != nil {
			slog.Warn("skipping unreadable contract",
				"offer_id", offerID, "member_id", resp.MemberUserID, "fulfillment_ref", ref, "error", err)
			metrics.RecordReconcile("skipped")
			res.Skipped++
			continue
		}
		if !contract.IsLive() {
			metrics.RecordReconcile("waiting")
			res.Waiting++
			continue
		}

		var liveURL *string
		if u := contract.PublishedURL(); u != "" {
			liveURL = &u
		}
		changed, err := r.repos.Responses.MarkCompleted(ctx, offerID, resp.MemberUserID, liveURL, r.nowFn())
		if err != nil {
			slog.Error("promote response",
				"offer_id", offerID, "member_id", resp.MemberUserID, "error", err)
			metrics.RecordReconcile("skipped")
			res.Skipped++
			writeErrs = append(writeErrs, fmt.Errorf("complete member %s: %w", resp.MemberUserID, err))
			continue
		}
		if changed {
			slog.Info("response completed",
				"offer_id", offerID, "member_id", resp.MemberUserID, "signals", contract.LiveSignals())
			metrics.RecordReconcile("promoted")
			res.Promoted++
		}
	}

	return res, errors.Join(writeErrs...)
}

// ReconcileGroup reconciles every open offer of the group.
func (r *Reconciler) ReconcileGroup(ctx context.Context, groupID uuid.UUID) (ReconcileResult, error) {
	var total ReconcileResult

	offers, err := r.repos.Offers.ListByGroup(ctx, groupID)
	if err != nil {
		return total, fmt.Errorf("list group offers: %w", err)
	}

	var errs []error
	for _, o := range offers {
		if !o.Status.Open() {
			continue
		}
		res, err := r.ReconcileOffer(ctx, o.ID)
		total.add(res)
		if err != nil {
			errs = append(errs, fmt.Errorf("offer %s: %w", o.ID, err))
		}
	}
	return total, errors.Join(errs...)
}

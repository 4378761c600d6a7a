package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/set-night/groupoffer/internal/config"
	"github.com/set-night/groupoffer/internal/metrics"
	"github.com/set-night/groupoffer/internal/repository"
	"github.com/set-night/groupoffer/internal/service"
)

type offerReconciler interface {
	ReconcileOffer(ctx context.Context, offerID uuid.UUID) (service.ReconcileResult, error)
}

type offerFinalizer interface {
	FinalizeOffer(ctx context.Context, offerID uuid.UUID) (service.FinalizeResult, error)
}

// Scheduler periodically reconciles open offers and settles those whose
// deadline has passed. It is one more opportunistic caller of the reconciler
// and the finalizer: a missed or overlapping tick is harmless because every
// step is idempotent.
type Scheduler struct {
	cron       *cron.Cron
	offers     repository.OfferRepository
	reconciler offerReconciler
	finalizer  offerFinalizer
	loc        *time.Location
	batchSize  int
	nowFn      func() time.Time
}

func NewScheduler(offers repository.OfferRepository, reconciler *service.Reconciler, finalizer *service.Finalizer, loc *time.Location, batchSize int) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	if batchSize <= 0 {
		batchSize = 50
	}
	return &Scheduler{
		cron:       cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger))),
		offers:     offers,
		reconciler: reconciler,
		finalizer:  finalizer,
		loc:        loc,
		batchSize:  batchSize,
		nowFn:      time.Now,
	}
}

// Start registers the sweep on the given cron spec and starts the scheduler.
func (s *Scheduler) Start(spec string) error {
	if _, err := s.cron.AddFunc(spec, s.tick); err != nil {
		return fmt.Errorf("schedule sweep %q: %w", spec, err)
	}
	s.cron.Start()
	slog.Info("settlement sweep scheduled", "schedule", spec)
	return nil
}

// Stop waits for a running sweep to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	slog.Info("settlement sweep stopped")
}

func (s *Scheduler) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), config.SweepTimeout)
	defer cancel()

	res, err := s.Sweep(ctx)
	if err != nil {
		slog.Error("settlement sweep failed", "error", err)
		return
	}
	slog.Info("settlement sweep done",
		"reconciled", res.Reconciled, "promoted", res.Promoted,
		"due", res.Due, "settled", res.Settled, "failed", res.Failed)
}

type SweepResult struct {
	Reconciled int // open offers still before their deadline
	Promoted   int
	Due        int
	Settled    int // finalize returned without error
	Failed     int // left open, retried on a later tick
}

// Sweep reconciles every open offer whose deadline day has not ended, then
// finalizes every due offer, batch by batch. Due offers are not reconciled:
// their responses are frozen once the deadline day is over. An offer that
// fails stays due; it is not retried within the same sweep.
func (s *Scheduler) Sweep(ctx context.Context) (SweepResult, error) {
	var res SweepResult
	asOf := s.nowFn().In(s.loc)

	if err := s.reconcileUpcoming(ctx, asOf, &res); err != nil {
		return res, err
	}

	seen := make(map[uuid.UUID]struct{})
	for {
		// Offers already handled in this sweep may be listed again, so the
		// window grows to leave room for them.
		limit := s.batchSize + len(seen)
		due, err := s.offers.ListDue(ctx, asOf, limit)
		if err != nil {
			return res, fmt.Errorf("list due offers: %w", err)
		}

		fresh := 0
		for _, o := range due {
			if _, ok := seen[o.ID]; ok {
				continue
			}
			seen[o.ID] = struct{}{}
			fresh++
			res.Due++
			if s.settle(ctx, o.ID) {
				res.Settled++
			} else {
				res.Failed++
			}
			if err := ctx.Err(); err != nil {
				return res, err
			}
		}
		if fresh == 0 || len(due) < limit {
			return res, nil
		}
	}
}

func (s *Scheduler) reconcileUpcoming(ctx context.Context, asOf time.Time, res *SweepResult) error {
	after := uuid.Nil
	for {
		offers, err := s.offers.ListUpcoming(ctx, asOf, after, s.batchSize)
		if err != nil {
			return fmt.Errorf("list upcoming offers: %w", err)
		}
		for _, o := range offers {
			r, err := s.reconciler.ReconcileOffer(ctx, o.ID)
			if err != nil {
				slog.Warn("reconcile open offer", "offer_id", o.ID, "error", err)
			}
			res.Reconciled++
			res.Promoted += r.Promoted
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		if len(offers) < s.batchSize {
			return nil
		}
		after = offers[len(offers)-1].ID
	}
}

func (s *Scheduler) settle(ctx context.Context, offerID uuid.UUID) bool {
	res, err := s.finalizer.FinalizeOffer(ctx, offerID)
	if err != nil {
		metrics.RecordSweep("failed")
		slog.Error("finalize due offer", "offer_id", offerID, "outcome", res.Outcome, "error", err)
		return false
	}
	metrics.RecordSweep(string(res.Outcome))
	return true
}

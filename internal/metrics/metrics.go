package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FinalizeDuration tracks how long one finalize call takes, by outcome
	FinalizeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "groupoffer_finalize_duration_seconds",
			Help: "Duration of group offer finalize calls in seconds",
			Buckets: []float64{
				0.005, // 5ms
				0.01,  // 10ms
				0.025, // 25ms
				0.05,  // 50ms
				0.1,   // 100ms
				0.25,  // 250ms
				0.5,   // 500ms
				1.0,   // 1s
				2.5,   // 2.5s
				5.0,   // 5s
			},
		},
		[]string{"outcome"},
	)

	FinalizeTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "groupoffer_finalize_total",
			Help: "Finalize calls by outcome",
		},
		[]string{"outcome"},
	)

	PayoutsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "groupoffer_payouts_created_total",
			Help: "Payout obligations written, by storage shape",
		},
		[]string{"shape"},
	)

	PayoutFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "groupoffer_payout_failures_total",
			Help: "Payout rows that could not be written and were left for a retry",
		},
	)

	// ReconcileResults counts per-response reconcile results: promoted, skipped or pending
	ReconcileResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "groupoffer_reconcile_responses_total",
			Help: "Accepted responses examined by the reconciler, by result",
		},
		[]string{"result"},
	)

	NotifyFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "groupoffer_notify_failures_total",
			Help: "Notification deliveries that failed and were swallowed, by channel",
		},
		[]string{"channel"},
	)

	SweepOffers = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "groupoffer_sweep_offers_total",
			Help: "Due offers handled by the settlement sweep, by result",
		},
		[]string{"result"},
	)
)

func RecordFinalize(outcome string, duration float64) {
	FinalizeTotal.WithLabelValues(outcome).Inc()
	FinalizeDuration.WithLabelValues(outcome).Observe(duration)
}

func RecordPayout(shape string) {
	PayoutsCreated.WithLabelValues(shape).Inc()
}

func RecordPayoutFailure() {
	PayoutFailures.Inc()
}

func RecordReconcile(result string) {
	ReconcileResults.WithLabelValues(result).Inc()
}

func RecordNotifyFailure(channel string) {
	NotifyFailures.WithLabelValues(channel).Inc()
}

func RecordSweep(result string) {
	SweepOffers.WithLabelValues(result).Inc()
}

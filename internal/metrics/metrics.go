package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "bookflow"

var (
	once sync.Once

	slotFetches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "slot_fetch_total",
			Help:      "Count of slot queries by outcome.",
		},
		[]string{"outcome"},
	)

	slotFetchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "slot_fetch_duration_seconds",
			Help:      "Latency of slot queries against the availability endpoint.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2, 5},
		},
	)

	staleSlotResponses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "slot_stale_responses_total",
			Help:      "Count of slot responses discarded because a newer query superseded them.",
		},
	)

	apiRetries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_retries_total",
			Help:      "Count of retried API calls by operation.",
		},
		[]string{"operation"},
	)

	bookingSubmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_submitted_total",
			Help:      "Count of reservation submissions by status.",
		},
		[]string{"status"},
	)

	cancellationCleanups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cancellation_cleanup_total",
			Help:      "Count of aborted-payment cleanups by status.",
		},
		[]string{"status"},
	)

	wizardTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "wizard_transition_total",
			Help:      "Count of booking wizard step transitions.",
		},
		[]string{"from", "to"},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			slotFetches,
			slotFetchDuration,
			staleSlotResponses,
			apiRetries,
			bookingSubmitted,
			cancellationCleanups,
			wizardTransitions,
		)
	})
}

func ObserveSlotFetch(outcome string, seconds float64) {
	slotFetches.WithLabelValues(outcome).Inc()
	slotFetchDuration.Observe(seconds)
}

func IncStaleSlotResponse() {
	staleSlotResponses.Inc()
}

func IncAPIRetry(operation string) {
	apiRetries.WithLabelValues(operation).Inc()
}

func IncBookingSubmitted(status string) {
	bookingSubmitted.WithLabelValues(status).Inc()
}

func IncCancellationCleanup(status string) {
	cancellationCleanups.WithLabelValues(status).Inc()
}

func IncWizardTransition(from, to string) {
	wizardTransitions.WithLabelValues(from, to).Inc()
}

// Package metrics exposes Prometheus instrumentation for the feedback
// pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "eventpulse"

// Metrics holds all Prometheus collectors for the service.
type Metrics struct {
	FeedbackProcessed *prometheus.CounterVec
	FeedbackFailed    prometheus.Counter
	ClassifierMethod  *prometheus.CounterVec
	QueueDepth        *prometheus.GaugeVec
	QueueRetries      prometheus.Counter
	QueueFallbacks    prometheus.Counter
	SocialDeduped     prometheus.Counter
	AlertsRaised      *prometheus.CounterVec
	AlertsAutoResolve prometheus.Counter
	SweepDuration     *prometheus.HistogramVec
	ProcessDuration   prometheus.Histogram
}

// New registers all collectors on the given registerer. Pass
// prometheus.DefaultRegisterer in production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		FeedbackProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feedback_processed_total",
			Help:      "Feedback items fully processed, by sentiment label.",
		}, []string{"sentiment"}),
		FeedbackFailed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feedback_failed_total",
			Help:      "Feedback items that exhausted their processing retries.",
		}),
		ClassifierMethod: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "classifier_method_total",
			Help:      "Classification results by chain stage that produced them.",
		}, []string{"classifier", "method"}),
		QueueDepth: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Queued feedback jobs by priority class.",
		}, []string{"priority"}),
		QueueRetries: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queue_retries_total",
			Help:      "Job processing retries.",
		}),
		QueueFallbacks: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queue_sync_fallbacks_total",
			Help:      "Submissions processed synchronously because the queue was unavailable.",
		}),
		SocialDeduped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "social_deduped_total",
			Help:      "Social posts dropped as duplicates of an already-seen source id.",
		}),
		AlertsRaised: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_raised_total",
			Help:      "Alerts created, by type and severity.",
		}, []string{"type", "severity"}),
		AlertsAutoResolve: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_auto_resolved_total",
			Help:      "Alerts closed by the auto-resolve sweep.",
		}),
		SweepDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sweep_duration_seconds",
			Help:      "Duration of periodic sweeps.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"sweep"}),
		ProcessDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "feedback_process_duration_seconds",
			Help:      "End-to-end processing time for one feedback item.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

// NewNop returns metrics registered on a throwaway registry, for tests.
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}

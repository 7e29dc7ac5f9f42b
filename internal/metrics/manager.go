package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Manager struct {
	// counters
	CounterRequests          *prometheus.CounterVec
	CounterFrames            prometheus.Counter
	CounterReps              *prometheus.CounterVec
	CounterFeedbackQueued    prometheus.Counter
	CounterFeedbackDropped   prometheus.Counter
	CounterFeedbackFailed    prometheus.Counter
	CounterFeedbackDelivered prometheus.Counter
	CounterHandlePanic       prometheus.Counter

	// gauges
	GaugeFeedbackQueue prometheus.Gauge

	// histograms
	HistRequestDuration  prometheus.Histogram
	HistFeedbackDuration prometheus.Histogram
}

// SetupPrometheus returns a registry with the Go runtime and process
// collectors already registered.
func SetupPrometheus() *prometheus.Registry {
	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(
		collectors.NewBuildInfoCollector(),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return promRegistry
}

func NewTestManager() *Manager {
	return NewManager("repcoach", "test", prometheus.NewRegistry())
}

func NewTestManagerAndRegistry() (*Manager, *prometheus.Registry) {
	reg := prometheus.NewRegistry()
	return NewManager("repcoach", "test", reg), reg
}

func NewManager(namespace, subsystem string, reg prometheus.Registerer) *Manager {
	factory := promauto.With(reg)

	return &Manager{
		CounterRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "request",
			Help:      "The total number of incoming HTTP requests",
		}, []string{"method", "status"}),
		CounterFrames: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "frames_processed",
			Help:      "The total number of feature frames run through the engine",
		}),
		CounterReps: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "reps_completed",
			Help:      "Completed repetitions by exercise and track",
		}, []string{"exercise", "track"}),
		CounterFeedbackQueued: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "feedback_queued",
			Help:      "Rep summaries accepted into the feedback queue",
		}),
		CounterFeedbackDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "feedback_dropped",
			Help:      "Rep summaries dropped because the feedback queue was full or closed",
		}),
		CounterFeedbackFailed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "feedback_failed",
			Help:      "Feedback requests that failed or returned an unusable response",
		}),
		CounterFeedbackDelivered: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "feedback_delivered",
			Help:      "Coaching messages received from the feedback service",
		}),
		CounterHandlePanic: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "handle_request_panic",
			Help:      "The total number of serve request panics",
		}),
		GaugeFeedbackQueue: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "feedback_queue_depth",
			Help:      "Rep summaries waiting for a feedback worker",
		}),
		HistRequestDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "request_duration_seconds",
			Help:      "Total duration of HTTP requests in seconds",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}),
		HistFeedbackDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "feedback_duration_seconds",
			Help:      "Round-trip time of feedback requests in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 1.5, 2, 3, 5},
		}),
	}
}

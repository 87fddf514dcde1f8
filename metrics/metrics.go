package metrics

import (
	"net/http"
	"time"

	"robot-console/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects Prometheus counters and histograms for the console.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry                  *prometheus.Registry
	submissionsTotal          *prometheus.CounterVec
	submissionDurationSeconds *prometheus.HistogramVec
	payloadFields             *prometheus.HistogramVec
	cacheLookupsTotal         *prometheus.CounterVec
	downloadsTotal            *prometheus.CounterVec
	eventsTotal               *prometheus.CounterVec
}

// NewMetrics constructs a metrics registry and registers all collectors.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	submissionsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "robot_console",
			Subsystem: "submission",
			Name:      "total",
			Help:      "Total robot submissions by kind and outcome.",
		},
		[]string{"kind", "outcome"},
	)
	submissionDurationSeconds := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "robot_console",
			Subsystem: "submission",
			Name:      "duration_seconds",
			Help:      "Time from encoding to a normalized robot API response.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"kind", "outcome"},
	)
	payloadFields := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "robot_console",
			Subsystem: "submission",
			Name:      "payload_fields",
			Help:      "Number of multipart fields per submitted payload.",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 250},
		},
		[]string{"kind"},
	)
	cacheLookupsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "robot_console",
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Robot cache lookups by resource and result.",
		},
		[]string{"resource", "result"},
	)
	downloadsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "robot_console",
			Subsystem: "download",
			Name:      "total",
			Help:      "File downloads by delivery mode.",
		},
		[]string{"mode"},
	)
	eventsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "robot_console",
			Subsystem: "events",
			Name:      "published_total",
			Help:      "Robot change events by type and result.",
		},
		[]string{"event", "result"},
	)

	registry.MustRegister(
		submissionsTotal,
		submissionDurationSeconds,
		payloadFields,
		cacheLookupsTotal,
		downloadsTotal,
		eventsTotal,
	)

	return &Metrics{
		registry:                  registry,
		submissionsTotal:          submissionsTotal,
		submissionDurationSeconds: submissionDurationSeconds,
		payloadFields:             payloadFields,
		cacheLookupsTotal:         cacheLookupsTotal,
		downloadsTotal:            downloadsTotal,
		eventsTotal:               eventsTotal,
	}
}

// Handler returns an HTTP handler that serves the metrics registry.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveSubmission(kind models.IntentKind, outcome models.SubmissionOutcome, duration time.Duration) {
	if m == nil {
		return
	}
	m.submissionsTotal.WithLabelValues(string(kind), string(outcome)).Inc()
	seconds := duration.Seconds()
	if seconds < 0 {
		return
	}
	m.submissionDurationSeconds.WithLabelValues(string(kind), string(outcome)).Observe(seconds)
}

func (m *Metrics) ObservePayloadFields(kind models.IntentKind, fields int) {
	if m == nil {
		return
	}
	m.payloadFields.WithLabelValues(string(kind)).Observe(float64(fields))
}

func (m *Metrics) IncCacheLookup(resource string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookupsTotal.WithLabelValues(resource, result).Inc()
}

func (m *Metrics) IncDownload(mode string) {
	if m == nil {
		return
	}
	if mode == "" {
		mode = "unknown"
	}
	m.downloadsTotal.WithLabelValues(mode).Inc()
}

func (m *Metrics) IncEvent(event models.RobotEventType, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.eventsTotal.WithLabelValues(string(event), result).Inc()
}

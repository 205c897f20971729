package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the trellis Prometheus collectors
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Extension metrics
	ExtensionsListed             *prometheus.GaugeVec
	ExtensionRealizationsTotal   *prometheus.CounterVec
	ExtensionRealizationDuration *prometheus.HistogramVec
	ExtensionMessagesTotal       *prometheus.CounterVec

	// Update metrics
	UpdateOutcomesTotal *prometheus.CounterVec
	UpdateCheckDuration prometheus.Histogram
}

// NewMetrics creates the collectors and registers them on registry. A nil
// registry gets a fresh one.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	m := &Metrics{
		registry: registry,

		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trellis_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "trellis_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		ExtensionsListed: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "trellis_extensions",
				Help: "Extensions currently listed per kind and state",
			},
			[]string{"kind", "state"},
		),
		ExtensionRealizationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trellis_extension_realizations_total",
				Help: "Extension instances constructed and injected",
			},
			[]string{"kind", "outcome"},
		),
		ExtensionRealizationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "trellis_extension_realization_duration_seconds",
				Help:    "Time from first access to a ready or failed instance",
				Buckets: []float64{.001, .01, .05, .1, .5, 1, 5, 30},
			},
			[]string{"kind"},
		),
		ExtensionMessagesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trellis_extension_messages_total",
				Help: "Messages published on the global message channel",
			},
			[]string{"level"},
		),

		UpdateOutcomesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trellis_update_outcomes_total",
				Help: "Per-extension update check outcomes",
			},
			[]string{"kind", "outcome"},
		),
		UpdateCheckDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "trellis_update_check_duration_seconds",
				Help:    "Duration of a full update check run",
				Buckets: []float64{.1, .5, 1, 5, 30, 60, 300},
			},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.ExtensionsListed,
		m.ExtensionRealizationsTotal,
		m.ExtensionRealizationDuration,
		m.ExtensionMessagesTotal,
		m.UpdateOutcomesTotal,
		m.UpdateCheckDuration,
	)

	return m
}

// Registry returns the registry the collectors live on
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordHTTPRequest records one served request
func (m *Metrics) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordRealization records one extension realization
func (m *Metrics) RecordRealization(kind, outcome string, duration time.Duration) {
	m.ExtensionRealizationsTotal.WithLabelValues(kind, outcome).Inc()
	m.ExtensionRealizationDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// SetListed publishes the per-state entry counts of one kind
func (m *Metrics) SetListed(kind string, enabled, disabled, failed int) {
	m.ExtensionsListed.WithLabelValues(kind, "enabled").Set(float64(enabled))
	m.ExtensionsListed.WithLabelValues(kind, "disabled").Set(float64(disabled))
	m.ExtensionsListed.WithLabelValues(kind, "failed").Set(float64(failed))
}

// RecordMessage counts one bus message
func (m *Metrics) RecordMessage(level string) {
	m.ExtensionMessagesTotal.WithLabelValues(level).Inc()
}

// RecordUpdateOutcome counts one extension's update outcome
func (m *Metrics) RecordUpdateOutcome(kind, outcome string) {
	m.UpdateOutcomesTotal.WithLabelValues(kind, outcome).Inc()
}

// RecordUpdateCheck records the duration of a check run
func (m *Metrics) RecordUpdateCheck(duration time.Duration) {
	m.UpdateCheckDuration.Observe(duration.Seconds())
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

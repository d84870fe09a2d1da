// Package metrics exposes Prometheus metrics for the calendar, the store
// and the reminder pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
)

// Metrics holds all Prometheus metrics of the process.
type Metrics struct {
	// Registry owns these metrics; a private one per Metrics keeps
	// repeated construction in tests from panicking.
	Registry *prometheus.Registry

	composeDuration prometheus.Histogram
	composeTotal    prometheus.Counter
	highlights      *prometheus.CounterVec
	cacheHits       *prometheus.CounterVec
	cacheMisses     *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	documentWrites  *prometheus.CounterVec
	remindersSent   *prometheus.CounterVec
	activeWatches   prometheus.Gauge
	externalErrors  *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		composeDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "cuzdan_compose_duration_seconds",
			Help:    "Time spent composing highlights.",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5},
		}),
		composeTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "cuzdan_compose_total",
			Help: "Highlight compositions run.",
		}),
		highlights: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cuzdan_highlights_total",
			Help: "Highlights produced, by type.",
		}, []string{"type"}),
		cacheHits: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cuzdan_cache_hits_total",
			Help: "Total cache hits.",
		}, []string{"cache"}),
		cacheMisses: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cuzdan_cache_misses_total",
			Help: "Total cache misses.",
		}, []string{"cache"}),
		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cuzdan_http_request_duration_seconds",
			Help:    "Duration of HTTP requests by route and status class.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "status"}),
		documentWrites: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cuzdan_document_writes_total",
			Help: "Document upserts and removals, by collection and operation.",
		}, []string{"collection", "operation"}),
		remindersSent: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cuzdan_reminders_total",
			Help: "Reminders handled, by outcome.",
		}, []string{"outcome"}),
		activeWatches: factory.NewGauge(prometheus.GaugeOpts{
			Name: "cuzdan_active_watches",
			Help: "Open calendar watches.",
		}),
		externalErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cuzdan_external_errors_total",
			Help: "Total errors from external services.",
		}, []string{"service"}),
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}

// ObserveCompose records one composition and the highlights it produced.
func (m *Metrics) ObserveCompose(d time.Duration, byType map[string]int) {
	if m == nil {
		return
	}
	m.composeTotal.Inc()
	m.composeDuration.Observe(d.Seconds())
	for t, n := range byType {
		m.highlights.WithLabelValues(t).Add(float64(n))
	}
}

func (m *Metrics) IncrCacheHit(cache string) {
	if m != nil {
		m.cacheHits.WithLabelValues(cache).Inc()
	}
}

func (m *Metrics) IncrCacheMiss(cache string) {
	if m != nil {
		m.cacheMisses.WithLabelValues(cache).Inc()
	}
}

// RecordRequest records one HTTP request.
func (m *Metrics) RecordRequest(route string, status int, d time.Duration) {
	if m != nil {
		m.requestDuration.WithLabelValues(route, statusClass(status)).Observe(d.Seconds())
	}
}

func (m *Metrics) IncrDocumentWrite(collection, operation string) {
	if m != nil {
		m.documentWrites.WithLabelValues(collection, operation).Inc()
	}
}

// IncrReminder counts a reminder outcome: sent, skipped or failed.
func (m *Metrics) IncrReminder(outcome string) {
	if m != nil {
		m.remindersSent.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) WatchStarted() {
	if m != nil {
		m.activeWatches.Inc()
	}
}

func (m *Metrics) WatchStopped() {
	if m != nil {
		m.activeWatches.Dec()
	}
}

func (m *Metrics) IncrExternalError(service string) {
	if m != nil {
		m.externalErrors.WithLabelValues(service).Inc()
	}
}

// CounterValue reads the current value of a labelled counter; 0 when unknown.
func (m *Metrics) CounterValue(name string, labels ...string) float64 {
	if m == nil {
		return 0
	}
	var cv *prometheus.CounterVec
	switch name {
	case "highlights":
		cv = m.highlights
	case "cache_hits":
		cv = m.cacheHits
	case "cache_misses":
		cv = m.cacheMisses
	case "document_writes":
		cv = m.documentWrites
	case "reminders":
		cv = m.remindersSent
	case "external_errors":
		cv = m.externalErrors
	default:
		return 0
	}
	counter, err := cv.GetMetricWithLabelValues(labels...)
	if err != nil {
		return 0
	}
	return readCounter(counter)
}

// ComposeCount is the number of compositions recorded.
func (m *Metrics) ComposeCount() float64 {
	if m == nil {
		return 0
	}
	return readCounter(m.composeTotal)
}

func readCounter(c prometheus.Counter) float64 {
	out := &dto.Metric{}
	if err := c.Write(out); err != nil {
		return 0
	}
	if out.Counter != nil && out.Counter.Value != nil {
		return *out.Counter.Value
	}
	return 0
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}

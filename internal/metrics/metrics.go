package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "tickstream"

// Metrics holds all collectors.
type Metrics struct {
	ticksPublished prometheus.Counter
	publishErrors  prometheus.Counter

	fillerPersisted *prometheus.CounterVec
	fillerDropped   *prometheus.CounterVec
	fillerErrors    *prometheus.CounterVec
	persistLatency  *prometheus.HistogramVec

	latestSource *prometheus.CounterVec
	tailSessions prometheus.Gauge

	scrapeDuration prometheus.Histogram
	scrapeErrors   prometheus.Counter
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ticksPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_published_total",
			Help:      "Ticks fanned out to every topic.",
		}),
		publishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_errors_total",
			Help:      "Failed single-topic publishes.",
		}),
		fillerPersisted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "filler_persisted_total",
			Help:      "Ticks appended to a store.",
		}, []string{"sink"}),
		fillerDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "filler_dropped_total",
			Help:      "Malformed bus payloads dropped by a filler.",
		}, []string{"sink"}),
		fillerErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "filler_errors_total",
			Help:      "Failed appends that stopped a filler.",
		}, []string{"sink"}),
		persistLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "filler_persist_seconds",
			Help:      "Store append latency.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		}, []string{"sink"}),
		latestSource: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "latest_reads_total",
			Help:      "Latest-price reads by the store that answered.",
		}, []string{"source"}),
		tailSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tail_sessions",
			Help:      "Open live-tail sessions.",
		}),
		scrapeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scrape_cycle_seconds",
			Help:      "Duration of one scrape cycle over all instruments.",
			Buckets:   prometheus.DefBuckets,
		}),
		scrapeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scrape_errors_total",
			Help:      "Instruments that failed to produce a tick in a cycle.",
		}),
	}

	reg.MustRegister(
		m.ticksPublished,
		m.publishErrors,
		m.fillerPersisted,
		m.fillerDropped,
		m.fillerErrors,
		m.persistLatency,
		m.latestSource,
		m.tailSessions,
		m.scrapeDuration,
		m.scrapeErrors,
	)
	return m
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// NewServer returns an HTTP server exposing g on path at :port.
func NewServer(port int, path string, g prometheus.Gatherer) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(path, Handler(g))
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// TickPublished counts a completed fan-out.
func (m *Metrics) TickPublished(string) {
	if m == nil {
		return
	}
	m.ticksPublished.Inc()
}

// PublishFailed counts a failed single-topic publish.
func (m *Metrics) PublishFailed(string) {
	if m == nil {
		return
	}
	m.publishErrors.Inc()
}

// Persisted records one successful append.
func (m *Metrics) Persisted(sink string, took time.Duration) {
	if m == nil {
		return
	}
	m.fillerPersisted.WithLabelValues(sink).Inc()
	m.persistLatency.WithLabelValues(sink).Observe(took.Seconds())
}

// Dropped counts a malformed payload.
func (m *Metrics) Dropped(sink string) {
	if m == nil {
		return
	}
	m.fillerDropped.WithLabelValues(sink).Inc()
}

// PersistFailed counts a failed append.
func (m *Metrics) PersistFailed(sink string) {
	if m == nil {
		return
	}
	m.fillerErrors.WithLabelValues(sink).Inc()
}

// LatestServed counts a latest-price read answered by source ("warm" or "cold").
func (m *Metrics) LatestServed(source string) {
	if m == nil {
		return
	}
	m.latestSource.WithLabelValues(source).Inc()
}

// TailOpened increments the open session gauge.
func (m *Metrics) TailOpened() {
	if m == nil {
		return
	}
	m.tailSessions.Inc()
}

// TailClosed decrements the open session gauge.
func (m *Metrics) TailClosed() {
	if m == nil {
		return
	}
	m.tailSessions.Dec()
}

// ScrapeCycle records one scrape cycle.
func (m *Metrics) ScrapeCycle(took time.Duration, failed int) {
	if m == nil {
		return
	}
	m.scrapeDuration.Observe(took.Seconds())
	m.scrapeErrors.Add(float64(failed))
}

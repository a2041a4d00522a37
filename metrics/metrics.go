// Package metrics holds the Prometheus collectors shared by the coordinators, the aggregator, and the server.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is a set of collectors registered with one registry.
type Metrics struct {
	publishes     *prometheus.CounterVec
	votes         *prometheus.CounterVec
	placeholders  prometheus.Counter
	contentFetch  *prometheus.HistogramVec
	httpRequests  *prometheus.CounterVec
	httpLatency   *prometheus.HistogramVec
	ledgerEntries prometheus.Gauge
}

// New creates and registers the collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		publishes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "posts_publish_total",
				Help: "publish attempts by outcome stage",
			},
			[]string{"stage"},
		),
		votes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "posts_vote_total",
				Help: "vote attempts by outcome",
			},
			[]string{"outcome"},
		),
		placeholders: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "posts_placeholder_total",
				Help: "merged posts served with placeholder content",
			},
		),
		contentFetch: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "posts_content_fetch_seconds",
				Help:    "content store lookups made while merging posts",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		),
		httpRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "posts_http_requests_total",
				Help: "HTTP requests by route and status code",
			},
			[]string{"route", "code"},
		),
		httpLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "posts_http_request_seconds",
				Help:    "HTTP request latency by route",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route"},
		),
		ledgerEntries: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "posts_ledger_entries",
				Help: "ledger entries seen by the most recent listing",
			},
		),
	}
}

// Publish counts a publish outcome.
// Stage is "ok" for a confirmed publish.
func (m *Metrics) Publish(stage string) {
	if m == nil {
		return
	}
	m.publishes.WithLabelValues(stage).Inc()
}

// Vote counts a vote outcome.
func (m *Metrics) Vote(outcome string) {
	if m == nil {
		return
	}
	m.votes.WithLabelValues(outcome).Inc()
}

// Placeholder counts a merged post served without its content.
func (m *Metrics) Placeholder() {
	if m == nil {
		return
	}
	m.placeholders.Inc()
}

// ContentFetch records one content lookup.
func (m *Metrics) ContentFetch(d time.Duration, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.contentFetch.WithLabelValues(result).Observe(d.Seconds())
}

// LedgerEntries records the size of a ledger listing.
func (m *Metrics) LedgerEntries(n int) {
	if m == nil {
		return
	}
	m.ledgerEntries.Set(float64(n))
}

// HTTPRequest records one served request.
func (m *Metrics) HTTPRequest(route, code string, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, code).Inc()
	m.httpLatency.WithLabelValues(route).Observe(d.Seconds())
}

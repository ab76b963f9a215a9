package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the client's Prometheus collectors on a private registry.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	Registry *prometheus.Registry

	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	pages    prometheus.Counter
	tokens   prometheus.Counter
}

// Request outcomes used for the outcome label.
const (
	OutcomeOK          = "ok"
	OutcomeTransport   = "transport_error"
	OutcomeApplication = "application_error"
)

// NewMetrics creates and registers the client collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "automarket_gateway_requests_total",
				Help: "Total number of gateway requests by outcome.",
			},
			[]string{"method", "path", "outcome"},
		),
		latency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "automarket_gateway_request_duration_seconds",
				Help:    "Duration of gateway requests in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		pages: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "automarket_pages_delivered_total",
			Help: "Pages delivered by the list synchronizer.",
		}),
		tokens: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "automarket_stream_tokens_total",
			Help: "Tokens folded into streamed transcripts.",
		}),
	}
	m.Registry.MustRegister(m.requests, m.latency, m.pages, m.tokens)
	return m
}

// ObserveRequest records one finished gateway request. path must already be
// a bounded route label.
func (m *Metrics) ObserveRequest(method, path, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(method, path, outcome).Inc()
	m.latency.WithLabelValues(method, path).Observe(d.Seconds())
}

// PageDelivered counts one delivered page.
func (m *Metrics) PageDelivered() {
	if m == nil {
		return
	}
	m.pages.Inc()
}

// StreamToken counts one folded stream token.
func (m *Metrics) StreamToken() {
	if m == nil {
		return
	}
	m.tokens.Inc()
}

// WriteTextfile dumps the registry in the node-exporter textfile format.
// An empty path is a no-op.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.Registry)
}

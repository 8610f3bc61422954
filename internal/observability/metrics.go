package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the client and the dev backend.
type Metrics struct {
	// client side
	Submissions       *prometheus.CounterVec
	TransportLatency  prometheus.Histogram
	TransportFailures *prometheus.CounterVec
	Awaiting          prometheus.Gauge

	// dev backend
	ChatRequests   *prometheus.CounterVec
	ActiveSessions prometheus.Gauge
	SessionEvents  *prometheus.CounterVec
	WSMessages     *prometheus.CounterVec
	RateLimited    prometheus.Counter

	stages *LatencyWindow
	gather prometheus.Gatherer
}

// NewMetrics registers instruments on the default registry.
func NewMetrics(namespace string) *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer, prometheus.DefaultGatherer, namespace)
}

// NewMetricsWith registers instruments on reg. Tests pass a fresh registry so
// repeated construction does not collide.
func NewMetricsWith(reg prometheus.Registerer, gather prometheus.Gatherer, namespace string) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Submissions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_submissions_total",
			Help:      "Chat submissions by outcome.",
		}, []string{"outcome"}),
		TransportLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "chat_transport_latency_ms",
			Help:      "Round trip latency of backend chat exchanges in milliseconds.",
			Buckets:   []float64{50, 100, 250, 500, 1000, 2000, 4000, 8000, 16000},
		}),
		TransportFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_transport_failures_total",
			Help:      "Failed backend exchanges by failure class.",
		}, []string{"class"}),
		Awaiting: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "chat_awaiting_response",
			Help:      "1 while a chat request is in flight.",
		}),
		ChatRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_chat_requests_total",
			Help:      "Chat turns answered by agent and source type.",
		}, []string{"agent", "source_type"}),
		ActiveSessions: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "backend_active_sessions",
			Help:      "Number of active conversation sessions.",
		}),
		SessionEvents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_session_events_total",
			Help:      "Session events by type.",
		}, []string{"event"}),
		WSMessages: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_ws_messages_total",
			Help:      "WebSocket messages by direction and type.",
		}, []string{"direction", "type"}),
		RateLimited: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_rate_limited_total",
			Help:      "Chat requests rejected by the per-session limiter.",
		}),
		stages: NewLatencyWindow(256),
		gather: gather,
	}
}

// ObserveSubmission records a controller outcome.
func (m *Metrics) ObserveSubmission(outcome string) {
	m.Submissions.WithLabelValues(outcome).Inc()
}

// ObserveExchange records a finished backend round trip. failureClass is empty on success.
func (m *Metrics) ObserveExchange(d time.Duration, failureClass string) {
	m.TransportLatency.Observe(float64(d.Milliseconds()))
	if failureClass != "" {
		m.TransportFailures.WithLabelValues(failureClass).Inc()
	}
}

// SetAwaiting mirrors the controller's awaiting-response flag.
func (m *Metrics) SetAwaiting(awaiting bool) {
	if awaiting {
		m.Awaiting.Set(1)
		return
	}
	m.Awaiting.Set(0)
}

// ObserveStage feeds the rolling per-stage latency window served on /v1/perf/latency.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	m.stages.Observe(stage, float64(d.Microseconds())/1000)
}

func (m *Metrics) SnapshotStages() LatencySnapshot {
	return m.stages.Snapshot()
}

// Handler serves the registry the metrics were registered on.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.gather == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gather, promhttp.HandlerOpts{})
}

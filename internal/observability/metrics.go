package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Latency window stage names.
const (
	StageWebhookCall = "webhook_call"
	StageRoundTrip   = "round_trip"
)

// Metrics groups all Prometheus instruments used by the service. Each
// instance owns its registry.
type Metrics struct {
	registry *prometheus.Registry

	ActiveSessions   prometheus.Gauge
	SessionEvents    *prometheus.CounterVec
	WSMessages       *prometheus.CounterVec
	ChatSubmissions  *prometheus.CounterVec
	WebhookRequests  *prometheus.CounterVec
	WebhookLatency   prometheus.Histogram
	RoundTripLatency prometheus.Histogram
	DispatchQueued   prometheus.Gauge
	DispatchRunning  prometheus.Gauge
	TranscriptErrors prometheus.Counter

	latency *latencyWindow
}

var latencyBuckets = []float64{250, 500, 1000, 2000, 5000, 10000, 20000, 30000, 45000, 60000}

func NewMetrics(namespace string, webhookTimeout time.Duration) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Number of live chat sessions.",
		}),
		SessionEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_events_total",
			Help:      "Session events by type.",
		}, []string{"event"}),
		WSMessages: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_messages_total",
			Help:      "WebSocket messages by direction and type.",
		}, []string{"direction", "type"}),
		ChatSubmissions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_submissions_total",
			Help:      "Chat message submissions by outcome.",
		}, []string{"outcome"}),
		WebhookRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_requests_total",
			Help:      "Webhook calls by resulting status code.",
		}, []string{"status"}),
		WebhookLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "webhook_latency_ms",
			Help:      "Webhook call latency in milliseconds.",
			Buckets:   latencyBuckets,
		}),
		RoundTripLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "round_trip_latency_ms",
			Help:      "Time from message submission to the rendered answer in milliseconds.",
			Buckets:   latencyBuckets,
		}),
		DispatchQueued: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "dispatch_queued",
			Help:      "Webhook jobs waiting for a worker slot.",
		}),
		DispatchRunning: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "dispatch_running",
			Help:      "Webhook jobs currently running.",
		}),
		TranscriptErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcript_errors_total",
			Help:      "Failed transcript writes.",
		}),
		latency: newLatencyWindow(256, map[string]float64{
			StageWebhookCall: float64(webhookTimeout.Milliseconds()),
			StageRoundTrip:   float64(webhookTimeout.Milliseconds()),
		}),
	}
}

func (m *Metrics) ObserveWebhook(status int, latency time.Duration) {
	ms := float64(latency.Milliseconds())
	m.WebhookRequests.WithLabelValues(strconv.Itoa(status)).Inc()
	m.WebhookLatency.Observe(ms)
	m.latency.Observe(StageWebhookCall, ms)
	m.latency.ObserveIndicator(statusIndicator(status))
}

func (m *Metrics) ObserveDispatch(queued, running int64) {
	m.DispatchQueued.Set(float64(queued))
	m.DispatchRunning.Set(float64(running))
}

func (m *Metrics) ObserveSubmit(outcome string) {
	m.ChatSubmissions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveRoundTrip(_ int, d time.Duration) {
	ms := float64(d.Milliseconds())
	m.RoundTripLatency.Observe(ms)
	m.latency.Observe(StageRoundTrip, ms)
}

func (m *Metrics) ObserveSessionEvent(event string, active int) {
	m.SessionEvents.WithLabelValues(event).Inc()
	m.ActiveSessions.Set(float64(active))
}

func (m *Metrics) ObserveWSMessage(direction, msgType string) {
	m.WSMessages.WithLabelValues(direction, msgType).Inc()
}

func (m *Metrics) ObserveTranscriptError(error) {
	m.TranscriptErrors.Inc()
}

// SnapshotLatency returns rolling percentiles for /v1/perf/latency.
func (m *Metrics) SnapshotLatency() LatencySnapshot {
	return m.latency.Snapshot()
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func statusIndicator(status int) string {
	switch {
	case status == http.StatusRequestTimeout:
		return "webhook_timeout"
	case status >= 200 && status < 300:
		return "webhook_ok"
	case status >= 500:
		return "webhook_server_error"
	default:
		return "webhook_client_error"
	}
}

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/saturnino-fabrica-de-software/clientpulse/internal/domain"
	"github.com/saturnino-fabrica-de-software/clientpulse/internal/webhook"
)

const namespace = "clientpulse"

// DispatchMetrics records webhook dispatcher activity. A nil or unregistered
// value is a no-op.
type DispatchMetrics struct {
	deliveries  *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	claimed     prometheus.Counter
	circuitOpen prometheus.Counter
	queueDepth  *prometheus.GaugeVec
}

// NewDispatchMetrics registers the dispatcher metrics on the provided registerer.
func NewDispatchMetrics(reg prometheus.Registerer) *DispatchMetrics {
	if reg == nil {
		return &DispatchMetrics{}
	}
	deliveries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "webhook",
		Name:      "deliveries_total",
		Help:      "Claimed webhook events by cycle outcome.",
	}, []string{"outcome"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "webhook",
		Name:      "delivery_duration_seconds",
		Help:      "Duration of webhook delivery attempts in seconds.",
		Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
	}, []string{"outcome"})
	claimed := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "webhook",
		Name:      "cycle_claimed_total",
		Help:      "Webhook events claimed by dispatch cycles.",
	})
	circuitOpen := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "webhook",
		Name:      "circuit_open_total",
		Help:      "Events failed without delivery because the webhook circuit was open.",
	})
	queueDepth := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "webhook",
		Name:      "queue_events",
		Help:      "Webhook queue rows by status.",
	}, []string{"status"})
	reg.MustRegister(deliveries, duration, claimed, circuitOpen, queueDepth)
	return &DispatchMetrics{
		deliveries:  deliveries,
		duration:    duration,
		claimed:     claimed,
		circuitOpen: circuitOpen,
		queueDepth:  queueDepth,
	}
}

func (m *DispatchMetrics) ObserveClaimed(n int) {
	if m == nil || m.claimed == nil {
		return
	}
	m.claimed.Add(float64(n))
}

// ObserveDelivery counts the outcome. Duration is only recorded for events
// that reached the network.
func (m *DispatchMetrics) ObserveDelivery(state webhook.OutcomeState, duration time.Duration) {
	if m == nil || m.deliveries == nil {
		return
	}
	outcome := normalizeLabel(string(state))
	m.deliveries.WithLabelValues(outcome).Inc()
	if duration > 0 {
		m.duration.WithLabelValues(outcome).Observe(duration.Seconds())
	}
}

func (m *DispatchMetrics) IncCircuitOpen() {
	if m == nil || m.circuitOpen == nil {
		return
	}
	m.circuitOpen.Inc()
}

// SetQueueDepth replaces the queue gauge. Statuses missing from counts are
// reported as zero.
func (m *DispatchMetrics) SetQueueDepth(counts map[domain.EventStatus]int64) {
	if m == nil || m.queueDepth == nil {
		return
	}
	for _, status := range []domain.EventStatus{
		domain.EventPending, domain.EventProcessing, domain.EventCompleted, domain.EventFailed,
	} {
		m.queueDepth.WithLabelValues(string(status)).Set(float64(counts[status]))
	}
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}

var _ webhook.Recorder = (*DispatchMetrics)(nil)

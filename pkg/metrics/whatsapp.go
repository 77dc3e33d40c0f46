package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// WhatsAppMetrics tracks delivery attempts against the messaging provider.
type WhatsAppMetrics struct {
	outcomes *prometheus.CounterVec
	latency  prometheus.Histogram
	queued   *prometheus.CounterVec
}

func NewWhatsAppMetrics(reg prometheus.Registerer) *WhatsAppMetrics {
	if reg == nil {
		return &WhatsAppMetrics{}
	}
	m := &WhatsAppMetrics{
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "whatsapp",
			Name:      "send_outcomes_total",
			Help:      "WhatsApp send attempts by resulting status.",
		}, []string{"kind", "status"}),
		latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "whatsapp",
			Name:      "send_duration_seconds",
			Help:      "Provider call latency.",
			Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30},
		}),
		queued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "whatsapp",
			Name:      "queued_total",
			Help:      "Messages queued for delivery.",
		}, []string{"kind"}),
	}
	reg.MustRegister(m.outcomes, m.latency, m.queued)
	return m
}

func (m *WhatsAppMetrics) ObserveSend(kind, status string, took time.Duration) {
	if m == nil || m.outcomes == nil {
		return
	}
	m.outcomes.WithLabelValues(normalizeLabel(kind), normalizeLabel(status)).Inc()
	m.latency.Observe(took.Seconds())
}

func (m *WhatsAppMetrics) AddQueued(kind string, n int) {
	if m == nil || m.queued == nil || n <= 0 {
		return
	}
	m.queued.WithLabelValues(normalizeLabel(kind)).Add(float64(n))
}

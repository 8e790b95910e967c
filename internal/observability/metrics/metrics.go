package metrics

import "github.com/prometheus/client_golang/prometheus"

// WebhookMetrics exposes counters/histograms for webhook intake.
type WebhookMetrics struct {
	deliveriesTotal *prometheus.CounterVec
	itemsTotal      *prometheus.CounterVec
	latency         *prometheus.HistogramVec
}

func NewWebhookMetrics(reg prometheus.Registerer) *WebhookMetrics {
	m := &WebhookMetrics{
		deliveriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "autolead",
			Subsystem: "webhook",
			Name:      "deliveries_total",
			Help:      "Webhook deliveries by channel and final log status",
		}, []string{"channel", "status"}),
		itemsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "autolead",
			Subsystem: "webhook",
			Name:      "items_total",
			Help:      "Webhook sub-items by kind and outcome",
		}, []string{"channel", "kind", "outcome"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "autolead",
			Subsystem: "webhook",
			Name:      "processing_seconds",
			Help:      "Time from log append to final status",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30},
		}, []string{"channel"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.deliveriesTotal, m.itemsTotal, m.latency)
	return m
}

func (m *WebhookMetrics) ObserveDelivery(channel, status string, seconds float64) {
	if m == nil {
		return
	}
	m.deliveriesTotal.WithLabelValues(channel, status).Inc()
	m.latency.WithLabelValues(channel).Observe(seconds)
}

// ObserveItem counts one sub-item. outcome is "succeeded", "failed",
// "duplicate" or "completed".
func (m *WebhookMetrics) ObserveItem(channel, kind, outcome string) {
	if m == nil {
		return
	}
	m.itemsTotal.WithLabelValues(channel, kind, outcome).Inc()
}

// ConversationMetrics covers orchestrated turns.
type ConversationMetrics struct {
	turnsTotal        *prometheus.CounterVec
	generationLatency prometheus.Histogram
	escalationsTotal  prometheus.Counter
	transitionsTotal  *prometheus.CounterVec
}

func NewConversationMetrics(reg prometheus.Registerer) *ConversationMetrics {
	m := &ConversationMetrics{
		turnsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "autolead",
			Subsystem: "conversation",
			Name:      "turns_total",
			Help:      "Conversation turns by outcome",
		}, []string{"outcome"}),
		generationLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "autolead",
			Subsystem: "conversation",
			Name:      "generation_seconds",
			Help:      "Latency of reply generation",
			Buckets:   prometheus.DefBuckets,
		}),
		escalationsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "autolead",
			Subsystem: "conversation",
			Name:      "escalations_total",
			Help:      "Leads handed to a manager",
		}),
		transitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "autolead",
			Subsystem: "conversation",
			Name:      "status_transitions_total",
			Help:      "Funnel status changes",
		}, []string{"from", "to"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.turnsTotal, m.generationLatency, m.escalationsTotal, m.transitionsTotal)
	return m
}

func (m *ConversationMetrics) ObserveTurn(outcome string) {
	if m == nil {
		return
	}
	m.turnsTotal.WithLabelValues(outcome).Inc()
}

func (m *ConversationMetrics) ObserveGeneration(seconds float64) {
	if m == nil {
		return
	}
	m.generationLatency.Observe(seconds)
}

func (m *ConversationMetrics) ObserveTransition(from, to string) {
	if m == nil {
		return
	}
	m.transitionsTotal.WithLabelValues(from, to).Inc()
}

func (m *ConversationMetrics) ObserveEscalation() {
	if m == nil {
		return
	}
	m.escalationsTotal.Inc()
}

package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "concierge"

// ConversationMetrics exposes counters/histograms for the WhatsApp conversation flow.
type ConversationMetrics struct {
	inboundTotal    *prometheus.CounterVec
	handledTotal    *prometheus.CounterVec
	duplicateTotal  prometheus.Counter
	transitionTotal *prometheus.CounterVec
	outboundTotal   *prometheus.CounterVec
	handleLatency   *prometheus.HistogramVec
}

// NewConversationMetrics registers the conversation collectors on reg.
func NewConversationMetrics(reg prometheus.Registerer) *ConversationMetrics {
	m := &ConversationMetrics{
		inboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "webhook",
			Name:      "inbound_total",
			Help:      "Total inbound WhatsApp webhook messages",
		}, []string{"message_type", "status"}),
		handledTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "conversation",
			Name:      "events_handled_total",
			Help:      "Inbound events handled by the orchestrator, by outcome",
		}, []string{"outcome"}),
		duplicateTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "conversation",
			Name:      "duplicate_events_total",
			Help:      "Inbound events rejected by the deduplicator",
		}),
		transitionTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "conversation",
			Name:      "transitions_total",
			Help:      "Persisted state transitions by phase and target state",
		}, []string{"phase", "state"}),
		outboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "delivery",
			Name:      "outbound_total",
			Help:      "Outbound WhatsApp sends",
		}, []string{"status"}),
		handleLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "conversation",
			Name:      "handle_latency_seconds",
			Help:      "Latency of handling one inbound event",
			Buckets:   prometheus.DefBuckets,
		}, []string{"phase"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.inboundTotal, m.handledTotal, m.duplicateTotal, m.transitionTotal, m.outboundTotal, m.handleLatency)
	return m
}

func (m *ConversationMetrics) ObserveInbound(messageType, status string) {
	if m == nil {
		return
	}
	m.inboundTotal.WithLabelValues(messageType, status).Inc()
}

func (m *ConversationMetrics) ObserveHandled(outcome string) {
	if m == nil {
		return
	}
	m.handledTotal.WithLabelValues(outcome).Inc()
}

func (m *ConversationMetrics) ObserveDuplicate() {
	if m == nil {
		return
	}
	m.duplicateTotal.Inc()
}

func (m *ConversationMetrics) ObserveTransition(phase, state string) {
	if m == nil {
		return
	}
	m.transitionTotal.WithLabelValues(phase, state).Inc()
}

func (m *ConversationMetrics) ObserveOutbound(status string) {
	if m == nil {
		return
	}
	m.outboundTotal.WithLabelValues(status).Inc()
}

func (m *ConversationMetrics) ObserveHandleLatency(phase string, seconds float64) {
	if m == nil {
		return
	}
	m.handleLatency.WithLabelValues(phase).Observe(seconds)
}

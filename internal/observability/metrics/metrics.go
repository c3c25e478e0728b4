package metrics

import "github.com/prometheus/client_golang/prometheus"

// CRMMetrics exposes counters/histograms for intake, inbox, calls and AI flows.
// All observers are safe to call on a nil receiver.
type CRMMetrics struct {
	webhookTotal    *prometheus.CounterVec
	webhookLatency  *prometheus.HistogramVec
	leadIntakeTotal *prometheus.CounterVec
	outboundTotal   *prometheus.CounterVec
	callTransitions *prometheus.CounterVec
	aiProviderTotal *prometheus.CounterVec
	accountHealth   *prometheus.GaugeVec
}

func NewCRMMetrics(reg prometheus.Registerer) *CRMMetrics {
	m := &CRMMetrics{
		webhookTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "estatecrm",
			Subsystem: "intake",
			Name:      "webhook_total",
			Help:      "Total inbound channel webhooks",
		}, []string{"channel", "status"}),
		webhookLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "estatecrm",
			Subsystem: "intake",
			Name:      "webhook_latency_seconds",
			Help:      "Latency of channel webhook processing",
			Buckets:   prometheus.DefBuckets,
		}, []string{"channel"}),
		leadIntakeTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "estatecrm",
			Subsystem: "leads",
			Name:      "intake_total",
			Help:      "Lead intake outcomes by source",
		}, []string{"source", "outcome"}),
		outboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "estatecrm",
			Subsystem: "inbox",
			Name:      "outbound_total",
			Help:      "Outbound channel sends",
		}, []string{"channel", "status"}),
		callTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "estatecrm",
			Subsystem: "calls",
			Name:      "transitions_total",
			Help:      "Applied call state transitions",
		}, []string{"from", "to"}),
		aiProviderTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "estatecrm",
			Subsystem: "assistant",
			Name:      "provider_attempts_total",
			Help:      "AI provider attempts by outcome",
		}, []string{"provider", "outcome"}),
		accountHealth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "estatecrm",
			Subsystem: "accounts",
			Name:      "healthy",
			Help:      "1 when the connected account passed its last health check",
		}, []string{"channel", "account"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.webhookTotal, m.webhookLatency, m.leadIntakeTotal, m.outboundTotal,
		m.callTransitions, m.aiProviderTotal, m.accountHealth)
	return m
}

func (m *CRMMetrics) ObserveWebhook(channel, status string) {
	if m == nil {
		return
	}
	m.webhookTotal.WithLabelValues(channel, status).Inc()
}

func (m *CRMMetrics) ObserveWebhookLatency(channel string, seconds float64) {
	if m == nil {
		return
	}
	m.webhookLatency.WithLabelValues(channel).Observe(seconds)
}

func (m *CRMMetrics) ObserveLeadIntake(source string, isNew bool) {
	if m == nil {
		return
	}
	outcome := "merged"
	if isNew {
		outcome = "created"
	}
	m.leadIntakeTotal.WithLabelValues(source, outcome).Inc()
}

func (m *CRMMetrics) ObserveOutbound(channel, status string) {
	if m == nil {
		return
	}
	m.outboundTotal.WithLabelValues(channel, status).Inc()
}

func (m *CRMMetrics) ObserveCallTransition(from, to string) {
	if m == nil {
		return
	}
	m.callTransitions.WithLabelValues(from, to).Inc()
}

func (m *CRMMetrics) ObserveProviderAttempt(provider, outcome string) {
	if m == nil {
		return
	}
	m.aiProviderTotal.WithLabelValues(provider, outcome).Inc()
}

func (m *CRMMetrics) SetAccountHealth(channel, account string, healthy bool) {
	if m == nil {
		return
	}
	v := 0.0
	if healthy {
		v = 1
	}
	m.accountHealth.WithLabelValues(channel, account).Set(v)
}

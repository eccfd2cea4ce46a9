package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "callrelay"

// RelayMetrics exposes counters/histograms for webhook handling and the
// conversation engine.
type RelayMetrics struct {
	webhookTotal     *prometheus.CounterVec
	webhookLatency   *prometheus.HistogramVec
	completionTotal  *prometheus.CounterVec
	completionTime   prometheus.Histogram
	linksTotal       prometheus.Counter
	prunedTotal      prometheus.Counter
	handoffTotal     *prometheus.CounterVec
	telephonyTotal   *prometheus.CounterVec
	signatureRejects *prometheus.CounterVec
	throttled        *prometheus.CounterVec
}

// NewRelayMetrics registers the relay collectors on reg, or on the default
// registerer when reg is nil.
func NewRelayMetrics(reg prometheus.Registerer) *RelayMetrics {
	m := &RelayMetrics{
		webhookTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "webhook",
			Name:      "events_total",
			Help:      "Total inbound call events by provider, kind and outcome",
		}, []string{"provider", "kind", "outcome"}),
		webhookLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "webhook",
			Name:      "latency_seconds",
			Help:      "Latency of call event processing",
			Buckets:   prometheus.DefBuckets,
		}, []string{"provider", "kind"}),
		completionTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ai",
			Name:      "completions_total",
			Help:      "Total AI completions by outcome",
		}, []string{"outcome"}),
		completionTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ai",
			Name:      "completion_seconds",
			Help:      "Latency of AI completions",
			Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 16, 30},
		}),
		linksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "conversation",
			Name:      "links_total",
			Help:      "Total call legs joined to an existing conversation",
		}),
		prunedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "conversation",
			Name:      "pruned_total",
			Help:      "Total idle conversations removed by the sweeper",
		}),
		handoffTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "handoff",
			Name:      "saved_total",
			Help:      "Total handoff records by outcome",
		}, []string{"outcome"}),
		telephonyTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "telephony",
			Name:      "actions_total",
			Help:      "Total telephony actions by provider, action and outcome",
		}, []string{"provider", "action", "outcome"}),
		signatureRejects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "webhook",
			Name:      "rejected_total",
			Help:      "Webhooks rejected for failed authentication",
		}, []string{"provider"}),
		throttled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "webhook",
			Name:      "throttled_total",
			Help:      "Webhooks answered with a neutral reply after hitting the rate limit",
		}, []string{"provider"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(
		m.webhookTotal,
		m.webhookLatency,
		m.completionTotal,
		m.completionTime,
		m.linksTotal,
		m.prunedTotal,
		m.handoffTotal,
		m.telephonyTotal,
		m.signatureRejects,
		m.throttled,
	)
	return m
}

// RegisterActiveConversations exports a gauge that reads the live
// conversation count at scrape time.
func RegisterActiveConversations(reg prometheus.Registerer, count func() int) {
	if count == nil {
		return
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "conversation",
		Name:      "active",
		Help:      "Live conversations held in memory",
	}, func() float64 { return float64(count()) }))
}

func (m *RelayMetrics) ObserveWebhook(provider, kind, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.webhookTotal.WithLabelValues(provider, kind, outcome).Inc()
	m.webhookLatency.WithLabelValues(provider, kind).Observe(seconds)
}

func (m *RelayMetrics) ObserveCompletion(fallback bool, seconds float64) {
	if m == nil {
		return
	}
	outcome := "ok"
	if fallback {
		outcome = "fallback"
	}
	m.completionTotal.WithLabelValues(outcome).Inc()
	m.completionTime.Observe(seconds)
}

func (m *RelayMetrics) IncLinks() {
	if m == nil {
		return
	}
	m.linksTotal.Inc()
}

func (m *RelayMetrics) AddPruned(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.prunedTotal.Add(float64(n))
}

func (m *RelayMetrics) ObserveHandoff(err error) {
	if m == nil {
		return
	}
	outcome := "saved"
	if err != nil {
		outcome = "failed"
	}
	m.handoffTotal.WithLabelValues(outcome).Inc()
}

func (m *RelayMetrics) ObserveTelephony(provider, action string, success bool) {
	if m == nil {
		return
	}
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	m.telephonyTotal.WithLabelValues(provider, action, outcome).Inc()
}

func (m *RelayMetrics) IncRejected(provider string) {
	if m == nil {
		return
	}
	m.signatureRejects.WithLabelValues(provider).Inc()
}

func (m *RelayMetrics) IncThrottled(provider string) {
	if m == nil {
		return
	}
	m.throttled.WithLabelValues(provider).Inc()
}

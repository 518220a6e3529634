package metrics

import "github.com/prometheus/client_golang/prometheus"

// RoutingMetrics exposes counters/histograms for inbound message routing.
type RoutingMetrics struct {
	routedTotal   *prometheus.CounterVec
	outboundTotal *prometheus.CounterVec
	routeLatency  *prometheus.HistogramVec
}

func NewRoutingMetrics(reg prometheus.Registerer) *RoutingMetrics {
	m := &RoutingMetrics{
		routedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "parlo",
			Subsystem: "routing",
			Name:      "messages_total",
			Help:      "Total routed inbound messages",
		}, []string{"decision", "status"}),
		outboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "parlo",
			Subsystem: "routing",
			Name:      "outbound_total",
			Help:      "Total outbound WhatsApp sends",
		}, []string{"status"}),
		routeLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "parlo",
			Subsystem: "routing",
			Name:      "route_latency_seconds",
			Help:      "Latency of routing one inbound message",
			Buckets:   prometheus.DefBuckets,
		}, []string{"decision"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.routedTotal, m.outboundTotal, m.routeLatency)
	return m
}

func (m *RoutingMetrics) ObserveRouted(decision, status string) {
	if m == nil {
		return
	}
	m.routedTotal.WithLabelValues(decision, status).Inc()
}

func (m *RoutingMetrics) ObserveOutbound(status string) {
	if m == nil {
		return
	}
	m.outboundTotal.WithLabelValues(status).Inc()
}

func (m *RoutingMetrics) ObserveRouteLatency(decision string, seconds float64) {
	if m == nil {
		return
	}
	m.routeLatency.WithLabelValues(decision).Observe(seconds)
}

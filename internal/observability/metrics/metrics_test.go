package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestRoutingMetricsObserve(t *testing.T) {
	m := NewRoutingMetrics(prometheus.NewRegistry())
	m.ObserveRouted("customer", "ok")
	m.ObserveOutbound("sent")
	m.ObserveRouteLatency("customer", 0.5)
}

func TestRoutingMetricsCustomRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewRoutingMetrics(reg)
	m.ObserveRouted("duplicate", "duplicate")
}

func TestRoutingMetricsNilSafe(t *testing.T) {
	var m *RoutingMetrics
	m.ObserveRouted("customer", "ok")
	m.ObserveOutbound("sent")
	m.ObserveRouteLatency("customer", 0.1)
}

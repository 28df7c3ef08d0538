package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestConversationMetricsObserve(t *testing.T) {
	m := NewConversationMetrics(prometheus.NewRegistry())
	m.ObserveInbound("text", "enqueued")
	m.ObserveHandled("ok")
	m.ObserveDuplicate()
	m.ObserveTransition("registration", "lastName")
	m.ObserveOutbound("sent")
	m.ObserveHandleLatency("router", 0.25)

	if got := testutil.ToFloat64(m.duplicateTotal); got != 1 {
		t.Fatalf("expected 1 duplicate, got %v", got)
	}
	if got := testutil.ToFloat64(m.handledTotal.WithLabelValues("ok")); got != 1 {
		t.Fatalf("expected 1 handled event, got %v", got)
	}
	if got := testutil.ToFloat64(m.transitionTotal.WithLabelValues("registration", "lastName")); got != 1 {
		t.Fatalf("expected 1 transition, got %v", got)
	}
}

func TestConversationMetricsCustomRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewConversationMetrics(reg)
	m.ObserveOutbound("failed")

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	found := false
	for _, mf := range families {
		if mf.GetName() == "concierge_delivery_outbound_total" {
			found = true
			if v := mf.GetMetric()[0].GetCounter().GetValue(); v != 1 {
				t.Fatalf("expected counter 1, got %v", v)
			}
		}
	}
	if !found {
		t.Fatal("expected outbound counter to be registered")
	}
}

func TestConversationMetricsNilSafe(t *testing.T) {
	var m *ConversationMetrics
	m.ObserveInbound("text", "status")
	m.ObserveHandled("ok")
	m.ObserveDuplicate()
	m.ObserveTransition("router", "MENU")
	m.ObserveOutbound("sent")
	m.ObserveHandleLatency("router", 0.1)
}

package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// findMetric は指定名・ラベルに一致するメトリクスを返す。
func findMetric(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) *dto.Metric {
	t.Helper()

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if labelsMatch(m, labels) {
				return m
			}
		}
	}
	t.Fatalf("metric %s%v not found", name, labels)
	return nil
}

func labelsMatch(m *dto.Metric, want map[string]string) bool {
	got := make(map[string]string, len(m.GetLabel()))
	for _, lp := range m.GetLabel() {
		got[lp.GetName()] = lp.GetValue()
	}
	for k, v := range want {
		if got[k] != v {
			return false
		}
	}
	return true
}

// TestNewCollector_ReturnsNonNil はCollectorが正常に生成されることを検証する。
func TestNewCollector_ReturnsNonNil(t *testing.T) {
	reg := prometheus.NewRegistry()
	if c := NewCollector(reg); c == nil {
		t.Fatal("expected non-nil Collector")
	}
}

func TestRecordWebhook_CountsByProviderAndOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordWebhook("stripe", "processed")
	c.RecordWebhook("stripe", "processed")
	c.RecordWebhook("clerk", "rejected")

	m := findMetric(t, reg, "ticketbox_webhook_deliveries_total", map[string]string{"provider": "stripe", "outcome": "processed"})
	if v := m.GetCounter().GetValue(); v != 2 {
		t.Errorf("stripe processed = %v, want 2", v)
	}
	m = findMetric(t, reg, "ticketbox_webhook_deliveries_total", map[string]string{"provider": "clerk", "outcome": "rejected"})
	if v := m.GetCounter().GetValue(); v != 1 {
		t.Errorf("clerk rejected = %v, want 1", v)
	}
}

func TestRecordActionFailure_CountsByKind(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordActionFailure("createOrder", "duplicate_key")

	m := findMetric(t, reg, "ticketbox_action_failures_total", map[string]string{"operation": "createOrder", "kind": "duplicate_key"})
	if v := m.GetCounter().GetValue(); v != 1 {
		t.Errorf("action failures = %v, want 1", v)
	}
}

func TestObserveAction_RecordsHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.ObserveAction("getAllEvents", 120*time.Millisecond)

	m := findMetric(t, reg, "ticketbox_action_duration_seconds", map[string]string{"operation": "getAllEvents"})
	if n := m.GetHistogram().GetSampleCount(); n != 1 {
		t.Errorf("sample count = %d, want 1", n)
	}
}

func TestRecordOrderCreatedAndCheckout(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordOrderCreated()
	c.RecordCheckoutSession("created")
	c.RecordRevalidation("ok")

	if v := findMetric(t, reg, "ticketbox_orders_created_total", nil).GetCounter().GetValue(); v != 1 {
		t.Errorf("orders created = %v, want 1", v)
	}
	if v := findMetric(t, reg, "ticketbox_checkout_sessions_total", map[string]string{"outcome": "created"}).GetCounter().GetValue(); v != 1 {
		t.Errorf("checkout sessions = %v, want 1", v)
	}
	if v := findMetric(t, reg, "ticketbox_revalidations_total", map[string]string{"outcome": "ok"}).GetCounter().GetValue(); v != 1 {
		t.Errorf("revalidations = %v, want 1", v)
	}
}

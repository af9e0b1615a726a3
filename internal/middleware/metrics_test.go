package middleware

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func getCounterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.(prometheus.Metric).Write(&m); err != nil {
		t.Fatalf("failed to read counter: %v", err)
	}
	return m.GetCounter().GetValue()
}

func TestNewMetrics(t *testing.T) {
	m := NewMetrics()
	if got := len(m.Collectors()); got != 5 {
		t.Errorf("expected 5 collectors, got %d", got)
	}
}

func TestMetrics_Register(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics()
	if err := m.Register(reg); err != nil {
		t.Fatalf("Register() returned error: %v", err)
	}

	m.ObserveHTTPRequest("GET", "/feed", "200", 0.02, 0, 512)
	m.IncAuthFailures(AuthReasonMissing)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() returned error: %v", err)
	}
	found := make(map[string]bool)
	for _, f := range families {
		found[f.GetName()] = true
	}
	for _, name := range []string{
		MetricHTTPRequestDuration,
		MetricHTTPRequestsTotal,
		MetricHTTPRequestSizeBytes,
		MetricHTTPResponseSizeBytes,
		MetricAuthFailures,
	} {
		if !found[name] {
			t.Errorf("metric %s not gathered", name)
		}
	}

	if err := NewMetrics().Register(reg); err == nil {
		t.Error("duplicate registration should fail")
	}
}

func TestMetrics_IncAuthFailures(t *testing.T) {
	m := NewMetrics()
	m.IncAuthFailures(AuthReasonExpired)
	m.IncAuthFailures(AuthReasonExpired)

	if got := getCounterValue(t, m.authFailures.WithLabelValues(AuthReasonExpired)); got != 2 {
		t.Errorf("expected 2 expired failures, got %v", got)
	}

	var nilMetrics *Metrics
	nilMetrics.IncAuthFailures(AuthReasonInvalid)
}

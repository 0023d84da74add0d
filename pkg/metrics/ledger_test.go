package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestLedgerMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewLedgerMetrics(reg)

	m.CreditsConsumed("description", 1)
	m.CreditsConsumed("description", 2)
	m.CreditsConsumed("image", 0)
	m.UsageRejected(ReasonInsufficientCredits)
	m.AuthEvent("login", true)
	m.AuthEvent("login", false)
	m.AuthEvent("login", false)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	if got, err := fetchCounterValue(mfs, "cp_credits_consumed_total", "capability", "description"); err != nil || got != 3 {
		t.Fatalf("expected 3 credits consumed, got %f err=%v", got, err)
	}
	if _, err := fetchCounterValue(mfs, "cp_credits_consumed_total", "capability", "image"); err == nil {
		t.Fatalf("zero-credit events must not create a series")
	}
	if got, err := fetchCounterValue(mfs, "cp_usage_rejected_total", "reason", ReasonInsufficientCredits); err != nil || got != 1 {
		t.Fatalf("expected one rejection, got %f err=%v", got, err)
	}
	if got := authCount(t, mfs, "login", OutcomeFailure); got != 2 {
		t.Fatalf("expected 2 login failures, got %f", got)
	}
	if got := authCount(t, mfs, "login", OutcomeSuccess); got != 1 {
		t.Fatalf("expected 1 login success, got %f", got)
	}
}

func authCount(t *testing.T, mfs []*dto.MetricFamily, event, outcome string) float64 {
	t.Helper()
	mf := findMetricFamily(mfs, "cp_auth_events_total")
	if mf == nil {
		t.Fatal("auth metric missing")
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), "event", event) && matchesLabel(metric.GetLabel(), "outcome", outcome) {
			return metric.GetCounter().GetValue()
		}
	}
	return 0
}

func TestHTTPMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewHTTPMetrics(reg)
	m.Observe("GET", "/api/user", 401, 5*time.Millisecond)
	m.Observe("GET", "/api/user", 200, 5*time.Millisecond)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got, err := fetchCounterValue(mfs, "cp_http_requests_total", "status", "401"); err != nil || got != 1 {
		t.Fatalf("expected one 401, got %f err=%v", got, err)
	}
	if got, err := fetchHistogramSum(mfs, "cp_http_request_duration_seconds", "route", "/api/user"); err != nil || got <= 0 {
		t.Fatalf("expected latency recorded, got %f err=%v", got, err)
	}
}

func TestNilMetricsAreNoops(t *testing.T) {
	var l *LedgerMetrics
	l.CreditsConsumed("x", 1)
	l.UsageRejected("x")
	l.AuthEvent("x", true)
	var h *HTTPMetrics
	h.Observe("GET", "/", 200, time.Millisecond)

	if reg := NewRegistry(); reg == nil {
		t.Fatal("expected registry")
	}
}

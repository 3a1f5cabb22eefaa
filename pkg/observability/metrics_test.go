package observability

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)

	if metrics == nil {
		t.Fatal("NewMetrics returned nil")
	}
	if metrics.HTTPRequestsTotal == nil {
		t.Error("HTTPRequestsTotal is nil")
	}
	if metrics.EvaluationsTotal == nil {
		t.Error("EvaluationsTotal is nil")
	}
	if metrics.ProvisioningTotal == nil {
		t.Error("ProvisioningTotal is nil")
	}
	if metrics.GrantsTotal == nil {
		t.Error("GrantsTotal is nil")
	}
}

func TestNewMetrics_NilRegistry(t *testing.T) {
	metrics := NewMetrics(nil)
	if metrics == nil {
		t.Fatal("NewMetrics returned nil")
	}
	if metrics.Handler() == nil {
		t.Error("Handler is nil")
	}
}

func TestGrantsTotal_ResultLabels(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())

	// the grant handler emits exactly these two results
	metrics.GrantsTotal.WithLabelValues("created").Inc()
	metrics.GrantsTotal.WithLabelValues("existing").Inc()

	expected := `
		# HELP gatehouse_grants_total Role grants by result (created, existing)
		# TYPE gatehouse_grants_total counter
		gatehouse_grants_total{result="created"} 1
		gatehouse_grants_total{result="existing"} 1
	`
	if err := testutil.CollectAndCompare(metrics.GrantsTotal, strings.NewReader(expected)); err != nil {
		t.Errorf("unexpected grants metric output: %v", err)
	}
}

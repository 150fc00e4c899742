package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

func TestObserveGatewayCall(t *testing.T) {
	m := newPipelineMetrics(prometheus.NewRegistry(), Config{ServiceName: "mrrlab", Environment: "test"})

	m.ObserveGatewayCall("customers.create", 10*time.Millisecond, nil)
	m.ObserveGatewayCall("customers.create", 10*time.Millisecond, errors.New("boom"))
	m.ObserveGatewayCall("customers.create", 10*time.Millisecond, nil)

	if got := testutil.ToFloat64(m.gatewayCalls.WithLabelValues("customers.create", OutcomeOK)); got != 2 {
		t.Fatalf("expected 2 ok calls, got %v", got)
	}
	if got := testutil.ToFloat64(m.gatewayCalls.WithLabelValues("customers.create", OutcomeError)); got != 1 {
		t.Fatalf("expected 1 failed call, got %v", got)
	}
}

func TestObserveSinkLoad(t *testing.T) {
	m := newPipelineMetrics(prometheus.NewRegistry(), Config{})

	m.ObserveSinkLoad("customers", 42, time.Second, nil)
	m.ObserveSinkLoad("customers", 7, time.Second, errors.New("boom"))

	if got := testutil.ToFloat64(m.sinkRows.WithLabelValues("customers")); got != 42 {
		t.Fatalf("expected 42 rows, got %v", got)
	}
	if got := testutil.ToFloat64(m.sinkFailures.WithLabelValues("customers")); got != 1 {
		t.Fatalf("expected 1 failure, got %v", got)
	}
}

func TestConstLabels(t *testing.T) {
	m := newPipelineMetrics(prometheus.NewRegistry(), Config{ServiceName: "gen", Environment: "ci"})
	m.IncGroup(OutcomeOK)

	families, err := m.Registry().Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	var found *dto.MetricFamily
	for _, family := range families {
		if family.GetName() == "mrrlab_simulator_groups_total" {
			found = family
		}
	}
	if found == nil {
		t.Fatal("expected simulator groups family")
	}
	labels := map[string]string{}
	for _, pair := range found.GetMetric()[0].GetLabel() {
		labels[pair.GetName()] = pair.GetValue()
	}
	if labels["service"] != "gen" || labels["env"] != "ci" || labels["outcome"] != OutcomeOK {
		t.Fatalf("unexpected labels %v", labels)
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *PipelineMetrics
	m.IncGroup(OutcomeOK)
	m.ObserveGatewayCall("op", time.Second, nil)
	m.AddSkipped("missing_start", 3)
	if err := m.Push(context.Background(), "http://localhost:9091", "job"); err != nil {
		t.Fatalf("expected nil push on nil metrics, got %v", err)
	}
}

func TestSingletonReset(t *testing.T) {
	ResetPipelineMetricsForTest()
	first := Pipeline()
	if Pipeline() != first {
		t.Fatal("expected singleton")
	}
	ResetPipelineMetricsForTest()
	if Pipeline() == first {
		t.Fatal("expected fresh registry after reset")
	}
}

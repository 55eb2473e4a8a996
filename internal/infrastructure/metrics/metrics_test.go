package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewWithRegistererRegistersMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()

	m := NewWithRegisterer(registry)

	if m.PaymentsApplied == nil || m.SweepTransitions == nil || m.SessionsClosed == nil {
		t.Fatalf("expected key metrics to be initialized: %+v", m)
	}

	m.PaymentsApplied.WithLabelValues("efectivo").Inc()
	m.SessionsClosed.WithLabelValues("normal").Inc()

	metricFamilies, err := registry.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	if len(metricFamilies) == 0 {
		t.Fatalf("expected registered metrics, got none")
	}

	if got := testutil.ToFloat64(m.PaymentsApplied.WithLabelValues("efectivo")); got != 1 {
		t.Fatalf("expected 1 collection, got %v", got)
	}
}

func TestNewWithRegistererIsolatesRegistries(t *testing.T) {
	// two registries must not collide on metric names
	_ = NewWithRegisterer(prometheus.NewRegistry())
	_ = NewWithRegisterer(prometheus.NewRegistry())
}

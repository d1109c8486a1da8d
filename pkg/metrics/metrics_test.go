package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewRegistersCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.DocsIndexedTotal.Add(3)
	m.SegmentationPairs.WithLabelValues("AllAll").Add(225)

	if got := testutil.ToFloat64(m.DocsIndexedTotal); got != 3 {
		t.Errorf("docs_indexed_total = %v, want 3", got)
	}
	if got := testutil.ToFloat64(m.SegmentationPairs.WithLabelValues("AllAll")); got != 225 {
		t.Errorf("segmentation_pairs_total = %v, want 225", got)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	if len(families) == 0 {
		t.Fatal("expected registered metric families")
	}
}

func TestNewWithoutRegistry(t *testing.T) {
	m := New(nil)
	m.IndexBuildsTotal.WithLabelValues("ok").Inc()
	if got := testutil.ToFloat64(m.IndexBuildsTotal.WithLabelValues("ok")); got != 1 {
		t.Errorf("index_builds_total = %v, want 1", got)
	}
}

package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewClusterMetricsDisabledReturnsNil(t *testing.T) {
	registry = nil
	if m := NewClusterMetrics(); m != nil {
		t.Fatal("expected nil ClusterMetrics when metrics are disabled")
	}
	// Nil-receiver methods must be safe no-ops.
	var m *ClusterMetrics
	m.RecordBlockOp("read", "ok")
	m.RecordDeviceError("5")
	m.ObserveRPCDuration("GET_BLOCK", time.Millisecond)
	m.SetCacheHitRatio("default", 0.5)
}

func TestClusterMetricsRecordsObservations(t *testing.T) {
	InitRegistry()
	defer func() { registry = nil }()

	m := NewClusterMetrics()
	if m == nil {
		t.Fatal("NewClusterMetrics returned nil once enabled")
	}

	m.RecordBlockOp("read", "cache_hit")
	m.RecordBlockOp("read", "cache_hit")
	m.RecordDeviceError("5")
	m.SetCacheHitRatio("default", 0.75)

	if got := testutil.ToFloat64(m.blockOps.WithLabelValues("read", "cache_hit")); got != 2 {
		t.Errorf("blockOps: got %v want 2", got)
	}
	if got := testutil.ToFloat64(m.deviceErrors.WithLabelValues("5")); got != 1 {
		t.Errorf("deviceErrors: got %v want 1", got)
	}
	if got := testutil.ToFloat64(m.cacheHitRate.WithLabelValues("default")); got != 0.75 {
		t.Errorf("cacheHitRate: got %v want 0.75", got)
	}
}

func TestClientMetricsDirtyChunksGauge(t *testing.T) {
	InitRegistry()
	defer func() { registry = nil }()

	m := NewClientMetrics()
	if m == nil {
		t.Fatal("NewClientMetrics returned nil once enabled")
	}

	m.SetDirtyChunks(42)
	if got := testutil.ToFloat64(m.dirtyChunks); got != 42 {
		t.Errorf("dirtyChunks: got %v want 42", got)
	}

	m.RecordShortWrite()
	if got := testutil.ToFloat64(m.shortWrites); got != 1 {
		t.Errorf("shortWrites: got %v want 1", got)
	}
}

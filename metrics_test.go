package falcomAuth

import (
	"sync"
	"testing"
	"time"
)

func TestMetricsDisabledNoIncrement(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: false})
	m.Inc(MetricLoginSuccess)

	if got := m.Value(MetricLoginSuccess); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
	if snap := m.Snapshot(); len(snap.Counters) != 0 {
		t.Fatalf("expected empty snapshot, got %v", snap.Counters)
	}
}

func TestMetricsNilIsNoOp(t *testing.T) {
	var m *Metrics
	m.Inc(MetricTokenIssued)
	m.Observe(MetricValidateLatency, time.Millisecond)
	if m.Value(MetricTokenIssued) != 0 || m.Enabled() {
		t.Fatal("expected nil metrics to be inert")
	}
}

func TestMetricsConcurrentIncrementSafe(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})

	const goroutines = 16
	const perG = 2000

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < perG; j++ {
				m.Inc(MetricMFAFailure)
			}
		}()
	}
	wg.Wait()

	if got, want := m.Value(MetricMFAFailure), uint64(goroutines*perG); got != want {
		t.Fatalf("expected %d, got %d", want, got)
	}
}

func TestMetricsHistogramBucketEdges(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true, EnableLatencyHistograms: true})

	for _, d := range []time.Duration{
		5 * time.Millisecond,
		10 * time.Millisecond,
		25 * time.Millisecond,
		50 * time.Millisecond,
		100 * time.Millisecond,
		250 * time.Millisecond,
		500 * time.Millisecond,
		2 * time.Second,
	} {
		m.Observe(MetricValidateLatency, d)
	}
	m.Observe(MetricLoginSuccess, time.Millisecond)

	snap := m.Snapshot()
	buckets := snap.Histograms[MetricValidateLatency]
	if len(buckets) != 8 {
		t.Fatalf("expected 8 buckets, got %d", len(buckets))
	}
	for i, v := range buckets {
		if v != 1 {
			t.Fatalf("bucket %d expected 1, got %d", i, v)
		}
	}
	if _, ok := snap.Histograms[MetricLoginSuccess]; ok {
		t.Fatal("expected no histogram for a counter metric")
	}
}

func TestMetricsSnapshotCoversEveryCounter(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})
	m.Inc(MetricPasswordResetLocked)

	snap := m.Snapshot()
	if want := int(metricIDCount) - len(histogramIDs); len(snap.Counters) != want {
		t.Fatalf("expected %d counters, got %d", want, len(snap.Counters))
	}
	if _, ok := snap.Counters[MetricLoginLatency]; ok {
		t.Fatal("latency metrics must not appear as counters")
	}
	if snap.Counters[MetricPasswordResetLocked] != 1 {
		t.Fatalf("expected reset locked = 1, got %d", snap.Counters[MetricPasswordResetLocked])
	}
	if len(snap.Histograms) != 0 {
		t.Fatal("expected no histograms with latency disabled")
	}
}

func TestMetricsLatencyHistogramsAreIndependent(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true, EnableLatencyHistograms: true})
	m.Observe(MetricLoginLatency, 180*time.Millisecond)
	m.Observe(MetricLoginLatency, 3*time.Second)

	snap := m.Snapshot()
	login := snap.Histograms[MetricLoginLatency]
	if login[5] != 1 || login[7] != 1 {
		t.Fatalf("unexpected login buckets %v", login)
	}
	for i, v := range snap.Histograms[MetricValidateLatency] {
		if v != 0 {
			t.Fatalf("validate bucket %d picked up a login sample", i)
		}
	}
}

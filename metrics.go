package falcomAuth

import (
	"sync/atomic"
	"time"
)

// MetricID names one engine counter or histogram.
type MetricID uint16

const (
	MetricRegistrationRequested MetricID = iota
	MetricRegistrationConflict
	MetricRegistrationConfirmed
	MetricRegistrationConfirmFailure
	MetricRegistrationOTPResent
	MetricLoginSuccess
	MetricLoginFailure
	MetricLoginLocked
	MetricCaptchaRejected
	MetricMFAIssued
	MetricMFASuccess
	MetricMFAFailure
	MetricMFALocked
	MetricPasswordResetRequest
	MetricPasswordResetThrottled
	MetricPasswordResetConfirmSuccess
	MetricPasswordResetConfirmFailure
	MetricPasswordResetLocked
	MetricTokenIssued
	MetricTokenRefreshed
	MetricTokenRejected
	MetricDependencyFailure
	MetricRateLimitHit
	MetricPasswordHashUpgraded
	MetricValidateLatency
	MetricLoginLatency
	metricIDCount
)

const (
	histBucketCount = 8
	cacheLineSize   = 64
)

// latencyBounds are the inclusive upper edges of the first seven buckets;
// the eighth takes everything slower.
var latencyBounds = [histBucketCount - 1]time.Duration{
	5 * time.Millisecond,
	10 * time.Millisecond,
	25 * time.Millisecond,
	50 * time.Millisecond,
	100 * time.Millisecond,
	250 * time.Millisecond,
	500 * time.Millisecond,
}

// histogramIDs lists the metrics that record latency instead of a count.
var histogramIDs = [...]MetricID{MetricValidateLatency, MetricLoginLatency}

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics holds lock-free counters and latency histograms. A nil *Metrics
// is a valid no-op.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [len(histogramIDs)][histBucketCount]uint64
}

// MetricsSnapshot is a point-in-time copy of every counter and histogram.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.enableLatency
}

func (m *Metrics) Inc(id MetricID) {
	if !m.Enabled() || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Observe records d when id is a latency metric. Other IDs are ignored.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if !m.LatencyEnabled() {
		return
	}
	slot, ok := histogramSlot(id)
	if !ok {
		return
	}
	atomic.AddUint64(&m.histograms[slot][bucketIndex(d)], 1)
}

func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	s := MetricsSnapshot{
		Counters:   map[MetricID]uint64{},
		Histograms: map[MetricID][]uint64{},
	}
	if !m.Enabled() {
		return s
	}
	for id := MetricID(0); id < metricIDCount; id++ {
		if _, hist := histogramSlot(id); !hist {
			s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
		}
	}
	if !m.enableLatency {
		return s
	}
	for slot, id := range histogramIDs {
		buckets := make([]uint64, histBucketCount)
		for i := range buckets {
			buckets[i] = atomic.LoadUint64(&m.histograms[slot][i])
		}
		s.Histograms[id] = buckets
	}
	return s
}

func histogramSlot(id MetricID) (int, bool) {
	for slot, h := range histogramIDs {
		if h == id {
			return slot, true
		}
	}
	return 0, false
}

func bucketIndex(d time.Duration) int {
	for i, bound := range latencyBounds {
		if d <= bound {
			return i
		}
	}
	return histBucketCount - 1
}

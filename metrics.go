package fedAuth

import (
	"sync/atomic"
	"time"
)

// MetricID identifies a facade counter or histogram.
type MetricID uint16

const (
	// MetricLoginSuccess counts login-success events applied to the session.
	MetricLoginSuccess MetricID = iota
	// MetricLoginFailureEvent counts login-failure events observed on the broadcast stream.
	MetricLoginFailureEvent
	// MetricLogoutSuccess counts logout-success events that cleared the session.
	MetricLogoutSuccess
	// MetricLoginRedirectStarted counts redirect logins initiated through the facade.
	MetricLoginRedirectStarted
	// MetricLogoutStarted counts redirect logouts initiated through the facade.
	MetricLogoutStarted
	// MetricPopupSuccess counts popup logins that produced an account.
	MetricPopupSuccess
	// MetricPopupFailure counts rejected popup logins.
	MetricPopupFailure
	// MetricTokenAcquired counts acquire-token-success events from the provider.
	MetricTokenAcquired
	// MetricTokenSilentFailure counts silent acquisitions that failed.
	MetricTokenSilentFailure
	// MetricTokenNoAccount counts AccessToken calls made without an active account.
	MetricTokenNoAccount
	// MetricRedirectResult counts non-empty redirect results.
	MetricRedirectResult
	// MetricRedirectError counts redirect-result failures.
	MetricRedirectError
	// MetricInteractionSettled counts qualifying interaction-settle notifications.
	MetricInteractionSettled
	// MetricReconcile counts completed reconciliation passes.
	MetricReconcile
	// MetricReconcileError counts reconciliation passes aborted by a provider error.
	MetricReconcileError
	// MetricSessionChanged counts session snapshots that differed from the previous one.
	MetricSessionChanged
	// MetricProviderError counts any other provider call failure.
	MetricProviderError
	// MetricTokenLatency is the histogram of silent token acquisition latency.
	MetricTokenLatency
	metricIDCount
)

const (
	histBucketCount = 8
	cacheLineSize   = 64
)

type metricHistogram struct {
	buckets [histBucketCount]uint64
	sumNs   uint64
}

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics holds lock-free counters. The zero value is disabled; a nil
// *Metrics is safe to use.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]metricHistogram
}

// MetricsSnapshot is a copy of all counters and histograms. Sums holds the
// total observed duration of each histogram.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
	Sums       map[MetricID]time.Duration
}

// NewMetrics returns a metrics set configured by cfg.
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

// Inc adds one to the counter id.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Observe records d in the histogram for id. Only [MetricTokenLatency] has a
// histogram; other ids are ignored.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enabled || !m.enableLatency || id >= metricIDCount {
		return
	}
	if id != MetricTokenLatency {
		return
	}

	b := bucketIndex(d)
	atomic.AddUint64(&m.histograms[id].buckets[b], 1)
	if d > 0 {
		atomic.AddUint64(&m.histograms[id].sumNs, uint64(d))
	}
}

func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot copies the current values. Disabled metrics yield empty maps.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil || !m.enabled {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
			Sums:       map[MetricID]time.Duration{},
		}
	}

	s := MetricsSnapshot{
		Counters:   make(map[MetricID]uint64, int(metricIDCount)),
		Histograms: make(map[MetricID][]uint64, 1),
		Sums:       make(map[MetricID]time.Duration, 1),
	}

	for id := MetricID(0); id < metricIDCount; id++ {
		if id == MetricTokenLatency {
			continue
		}
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}

	if m.enableLatency {
		buckets := make([]uint64, histBucketCount)
		for i := 0; i < histBucketCount; i++ {
			buckets[i] = atomic.LoadUint64(&m.histograms[MetricTokenLatency].buckets[i])
		}
		s.Histograms[MetricTokenLatency] = buckets
		s.Sums[MetricTokenLatency] = time.Duration(atomic.LoadUint64(&m.histograms[MetricTokenLatency].sumNs))
	}

	return s
}

// bucketIndex maps d onto the upper bounds 5ms, 10ms, 25ms, 50ms, 100ms,
// 250ms, 500ms and +Inf.
func bucketIndex(d time.Duration) int {
	ms := d.Milliseconds()

	switch {
	case ms <= 5:
		return 0
	case ms <= 10:
		return 1
	case ms <= 25:
		return 2
	case ms <= 50:
		return 3
	case ms <= 100:
		return 4
	case ms <= 250:
		return 5
	case ms <= 500:
		return 6
	default:
		return 7
	}
}

package otel

import (
	"context"
	"sync"
	"testing"
	"time"

	fedAuth "github.com/MrEthical07/fedAuth"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

type fakeSource struct {
	mu       sync.RWMutex
	snapshot fedAuth.MetricsSnapshot
	dropped  uint64
	session  fedAuth.Session
}

func (f *fakeSource) MetricsSnapshot() fedAuth.MetricsSnapshot {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := fedAuth.MetricsSnapshot{
		Counters:   make(map[fedAuth.MetricID]uint64, len(f.snapshot.Counters)),
		Histograms: make(map[fedAuth.MetricID][]uint64, len(f.snapshot.Histograms)),
		Sums:       make(map[fedAuth.MetricID]time.Duration, len(f.snapshot.Sums)),
	}
	for k, v := range f.snapshot.Sums {
		out.Sums[k] = v
	}
	for k, v := range f.snapshot.Counters {
		out.Counters[k] = v
	}
	for k, buckets := range f.snapshot.Histograms {
		next := make([]uint64, len(buckets))
		copy(next, buckets)
		out.Histograms[k] = next
	}
	return out
}

func (f *fakeSource) Session() fedAuth.Session {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.session
}

func (f *fakeSource) AuditDropped() uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.dropped
}

func TestExporterRegistersAndCollects(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	meter := provider.Meter("fedauth-test")

	src := &fakeSource{
		snapshot: fedAuth.MetricsSnapshot{
			Counters: map[fedAuth.MetricID]uint64{
				fedAuth.MetricLoginSuccess: 3,
			},
			Histograms: map[fedAuth.MetricID][]uint64{
				fedAuth.MetricTokenLatency: {1, 1, 1, 1, 1, 1, 1, 1},
			},
		},
		dropped: 1,
	}

	exp, err := NewOTelExporterFromSource(meter, src)
	if err != nil {
		t.Fatalf("NewOTelExporterFromSource failed: %v", err)
	}
	defer func() {
		if err := exp.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
	}()

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	if len(rm.ScopeMetrics) == 0 {
		t.Fatal("expected collected metrics, got none")
	}
}

func TestExporterRejectsNilSource(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	meter := provider.Meter("fedauth-test")

	if _, err := NewOTelExporterFromSource(meter, nil); err == nil {
		t.Fatal("expected error for nil source")
	}
}

func TestExporterConcurrentCollectNoPanic(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	meter := provider.Meter("fedauth-test")

	src := &fakeSource{
		snapshot: fedAuth.MetricsSnapshot{
			Counters: map[fedAuth.MetricID]uint64{
				fedAuth.MetricLoginSuccess: 1,
			},
			Histograms: map[fedAuth.MetricID][]uint64{
				fedAuth.MetricTokenLatency: {1, 0, 0, 0, 0, 0, 0, 0},
			},
		},
	}

	exp, err := NewOTelExporterFromSource(meter, src)
	if err != nil {
		t.Fatalf("NewOTelExporterFromSource failed: %v", err)
	}
	defer func() {
		if err := exp.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(v uint64) {
			defer wg.Done()
			src.mu.Lock()
			src.snapshot.Counters[fedAuth.MetricLoginSuccess] = v
			src.mu.Unlock()

			var rm metricdata.ResourceMetrics
			_ = reader.Collect(context.Background(), &rm)
		}(uint64(i + 1))
	}
	wg.Wait()
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Aggregation {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	out := make(map[string]metricdata.Aggregation)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m.Data
		}
	}
	return out
}

func floatGauge(t *testing.T, data map[string]metricdata.Aggregation, name string) float64 {
	t.Helper()
	g, ok := data[name].(metricdata.Gauge[float64])
	if !ok || len(g.DataPoints) != 1 {
		t.Fatalf("expected one float gauge point for %s, got %#v", name, data[name])
	}
	return g.DataPoints[0].Value
}

func TestExporterObservesSessionAndLatencySum(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	src := &fakeSource{
		snapshot: fedAuth.MetricsSnapshot{
			Counters: map[fedAuth.MetricID]uint64{fedAuth.MetricLoginSuccess: 2},
			Histograms: map[fedAuth.MetricID][]uint64{
				fedAuth.MetricTokenLatency: {2, 0, 0, 0, 0, 0, 0, 0},
			},
			Sums: map[fedAuth.MetricID]time.Duration{fedAuth.MetricTokenLatency: 6 * time.Millisecond},
		},
		session: fedAuth.Session{IsLoading: true},
	}
	exp, err := NewOTelExporterFromSource(provider.Meter("fedauth-test"), src)
	if err != nil {
		t.Fatalf("NewOTelExporterFromSource failed: %v", err)
	}
	defer exp.Close()

	data := collect(t, reader)
	if got := floatGauge(t, data, "fedauth_session_loading"); got != 1 {
		t.Fatalf("session_loading = %v, want 1", got)
	}
	if got := floatGauge(t, data, "fedauth_session_authenticated"); got != 0 {
		t.Fatalf("session_authenticated = %v, want 0", got)
	}
	if got := floatGauge(t, data, "fedauth_token_latency_seconds_sum"); got != 0.006 {
		t.Fatalf("latency sum = %v, want 0.006", got)
	}

	src.mu.Lock()
	src.session = fedAuth.Session{
		IsAuthenticated: true,
		User:            &fedAuth.UserProfile{Name: "Alice", Roles: []string{"Orders.Read"}},
	}
	src.mu.Unlock()

	data = collect(t, reader)
	if got := floatGauge(t, data, "fedauth_session_authenticated"); got != 1 {
		t.Fatalf("session_authenticated = %v, want 1", got)
	}
	if got := floatGauge(t, data, "fedauth_session_roles"); got != 1 {
		t.Fatalf("session_roles = %v, want 1", got)
	}
}

func TestExporterSkipsCountersWhenMetricsDisabled(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	exp, err := NewOTelExporterFromSource(provider.Meter("fedauth-test"), &fakeSource{})
	if err != nil {
		t.Fatalf("NewOTelExporterFromSource failed: %v", err)
	}
	defer exp.Close()

	data := collect(t, reader)
	if _, ok := data["fedauth_login_success_total"]; ok {
		t.Fatal("expected no counters while metrics are disabled")
	}
	if _, ok := data["fedauth_session_loading"]; !ok {
		t.Fatal("expected session gauges while metrics are disabled")
	}
}

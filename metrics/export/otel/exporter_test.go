package otel

import (
	"context"
	"sync"
	"testing"

	"github.com/MrEthical07/lmsauth"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

type fakeSource struct {
	mu       sync.RWMutex
	counters map[lmsauth.MetricID]uint64
	latency  []uint64
	dropped  uint64
}

func (f *fakeSource) MetricsSnapshot() lmsauth.MetricsSnapshot {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := lmsauth.MetricsSnapshot{
		Counters:   make(map[lmsauth.MetricID]uint64, len(f.counters)),
		Histograms: map[lmsauth.MetricID][]uint64{},
	}
	for k, v := range f.counters {
		out.Counters[k] = v
	}
	if f.latency != nil {
		out.Histograms[lmsauth.MetricAuthenticateLatency] = append([]uint64(nil), f.latency...)
	}
	return out
}

func (f *fakeSource) AuditDropped() uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.dropped
}

func newReader(t *testing.T, src Source) (*sdkmetric.ManualReader, *Exporter) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	exp, err := NewFromSource(provider.Meter("lmsauth-test"), src)
	if err != nil {
		t.Fatalf("NewFromSource: %v", err)
	}
	t.Cleanup(func() {
		if err := exp.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}
	})
	return reader, exp
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Aggregation {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	out := map[string]metricdata.Aggregation{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m.Data
		}
	}
	return out
}

func pointValue(t *testing.T, points []metricdata.DataPoint[int64], key attribute.Key, want string) int64 {
	t.Helper()
	for _, p := range points {
		if v, ok := p.Attributes.Value(key); ok && v.AsString() == want {
			return p.Value
		}
	}
	t.Fatalf("no data point with %s=%s", key, want)
	return 0
}

func TestExporterPublishesEventsByAttribute(t *testing.T) {
	src := &fakeSource{
		counters: map[lmsauth.MetricID]uint64{
			lmsauth.MetricLoginSuccess:   3,
			lmsauth.MetricSessionEvicted: 2,
		},
		dropped: 1,
	}
	reader, _ := newReader(t, src)
	data := collect(t, reader)

	events, ok := data[EventsName].(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("%s has type %T", EventsName, data[EventsName])
	}
	if !events.IsMonotonic {
		t.Fatal("events must be a monotonic sum")
	}
	if got := pointValue(t, events.DataPoints, EventKey, "login_success"); got != 3 {
		t.Fatalf("login_success = %d, want 3", got)
	}
	if got := pointValue(t, events.DataPoints, EventKey, "session_evicted"); got != 2 {
		t.Fatalf("session_evicted = %d, want 2", got)
	}
	if got := pointValue(t, events.DataPoints, EventKey, "logout"); got != 0 {
		t.Fatalf("logout = %d, want 0", got)
	}

	dropped, ok := data[AuditDroppedName].(metricdata.Sum[int64])
	if !ok || len(dropped.DataPoints) != 1 || dropped.DataPoints[0].Value != 1 {
		t.Fatalf("audit dropped = %+v", data[AuditDroppedName])
	}
}

func TestExporterPublishesCumulativeLatencyBuckets(t *testing.T) {
	src := &fakeSource{latency: []uint64{2, 1, 0, 0, 0, 0, 0, 1}}
	reader, _ := newReader(t, src)
	data := collect(t, reader)

	buckets, ok := data[LatencyBucketsName].(metricdata.Gauge[int64])
	if !ok {
		t.Fatalf("%s has type %T", LatencyBucketsName, data[LatencyBucketsName])
	}
	if got := pointValue(t, buckets.DataPoints, LeKey, "0.005"); got != 2 {
		t.Fatalf("le=0.005 = %d, want 2", got)
	}
	if got := pointValue(t, buckets.DataPoints, LeKey, "0.01"); got != 3 {
		t.Fatalf("le=0.01 = %d, want 3", got)
	}
	if got := pointValue(t, buckets.DataPoints, LeKey, "+Inf"); got != 4 {
		t.Fatalf("le=+Inf = %d, want 4", got)
	}

	count, ok := data[LatencyCountName].(metricdata.Gauge[int64])
	if !ok || len(count.DataPoints) != 1 || count.DataPoints[0].Value != 4 {
		t.Fatalf("latency count = %+v", data[LatencyCountName])
	}
}

func TestExporterRejectsNilArguments(t *testing.T) {
	provider := sdkmetric.NewMeterProvider()
	if _, err := NewFromSource(provider.Meter("x"), nil); err != ErrNilSource {
		t.Fatalf("nil source err = %v", err)
	}
	if _, err := NewFromSource(nil, &fakeSource{}); err != ErrNilMeter {
		t.Fatalf("nil meter err = %v", err)
	}
	if _, err := New(provider.Meter("x"), nil); err != ErrNilSource {
		t.Fatalf("nil authority err = %v", err)
	}
}

func TestExporterCloseNilSafe(t *testing.T) {
	var exp *Exporter
	if err := exp.Close(); err != nil {
		t.Fatalf("nil Close: %v", err)
	}
}

func TestExporterConcurrentCollect(t *testing.T) {
	src := &fakeSource{counters: map[lmsauth.MetricID]uint64{lmsauth.MetricLoginSuccess: 1}}
	reader, _ := newReader(t, src)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(v uint64) {
			defer wg.Done()
			src.mu.Lock()
			src.counters[lmsauth.MetricLoginSuccess] = v
			src.mu.Unlock()

			var rm metricdata.ResourceMetrics
			_ = reader.Collect(context.Background(), &rm)
		}(uint64(i + 1))
	}
	wg.Wait()
}

package prometheus

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MrEthical07/lmsauth"
)

type fakeSource struct {
	snapshot lmsauth.MetricsSnapshot
	dropped  uint64
}

func (f fakeSource) MetricsSnapshot() lmsauth.MetricsSnapshot { return f.snapshot }
func (f fakeSource) AuditDropped() uint64                    { return f.dropped }

func TestRenderEmptyWhenMetricsDisabled(t *testing.T) {
	exp := NewFromSource(fakeSource{
		snapshot: lmsauth.MetricsSnapshot{
			Counters:   map[lmsauth.MetricID]uint64{},
			Histograms: map[lmsauth.MetricID][]uint64{},
		},
		dropped: 0,
	})

	if got := exp.Render(); got != "" {
		t.Fatalf("expected empty output for disabled metrics, got:\n%s", got)
	}
}

func TestRenderDeterministicIncludesCounterAndHistogram(t *testing.T) {
	exp := NewFromSource(fakeSource{
		snapshot: lmsauth.MetricsSnapshot{
			Counters: map[lmsauth.MetricID]uint64{
				lmsauth.MetricLoginSuccess: 7,
			},
			Histograms: map[lmsauth.MetricID][]uint64{
				lmsauth.MetricAuthenticateLatency: {1, 2, 3, 4, 5, 6, 7, 8},
			},
		},
		dropped: 2,
	})

	out := exp.Render()
	if !strings.Contains(out, "lmsauth_login_success_total 7") {
		t.Fatalf("expected login_success counter in output, got:\n%s", out)
	}
	if !strings.Contains(out, "lmsauth_authenticate_latency_seconds_bucket{le=\"0.005\"} 1") {
		t.Fatalf("expected first histogram bucket in output, got:\n%s", out)
	}
	if !strings.Contains(out, "lmsauth_authenticate_latency_seconds_bucket{le=\"+Inf\"} 36") {
		t.Fatalf("expected +Inf cumulative bucket in output, got:\n%s", out)
	}
	if !strings.Contains(out, "lmsauth_audit_dropped_total 2") {
		t.Fatalf("expected audit dropped counter in output, got:\n%s", out)
	}
}

func TestHandlerWritesPrometheusContentType(t *testing.T) {
	exp := NewFromSource(fakeSource{
		snapshot: lmsauth.MetricsSnapshot{
			Counters:   map[lmsauth.MetricID]uint64{lmsauth.MetricLoginSuccess: 1},
			Histograms: map[lmsauth.MetricID][]uint64{},
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	exp.Handler().ServeHTTP(rec, req)

	if got := rec.Header().Get("Content-Type"); !strings.Contains(got, "text/plain") {
		t.Fatalf("expected prometheus content type, got %q", got)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestHistogramCountMatchesInfBucket(t *testing.T) {
	exp := NewFromSource(fakeSource{
		snapshot: lmsauth.MetricsSnapshot{
			Counters: map[lmsauth.MetricID]uint64{},
			Histograms: map[lmsauth.MetricID][]uint64{
				lmsauth.MetricAuthenticateLatency: {3, 0, 1},
			},
		},
	})

	out := exp.Render()
	if !strings.Contains(out, "lmsauth_authenticate_latency_seconds_count 4\n") {
		t.Fatalf("expected count of 4, got:\n%s", out)
	}
	if strings.Contains(out, "_sum") {
		t.Fatalf("histogram must not report a sum it does not track:\n%s", out)
	}
	if !strings.Contains(out, "# TYPE lmsauth_authenticate_latency_seconds histogram\n") {
		t.Fatalf("missing histogram type line:\n%s", out)
	}
}

func TestEscapeHelp(t *testing.T) {
	if got := escapeHelp("a\\b\nc"); got != `a\\b\nc` {
		t.Fatalf("escapeHelp = %q", got)
	}
}

func BenchmarkRender(b *testing.B) {
	exp := NewFromSource(fakeSource{
		snapshot: lmsauth.MetricsSnapshot{
			Counters: map[lmsauth.MetricID]uint64{
				lmsauth.MetricLoginSuccess:        1000,
				lmsauth.MetricLoginFailure:        40,
				lmsauth.MetricSessionCreated:      800,
				lmsauth.MetricSessionEvicted:      120,
				lmsauth.MetricAuthenticateSuccess: 90000,
				lmsauth.MetricSessionInvalidated:  20,
			},
			Histograms: map[lmsauth.MetricID][]uint64{
				lmsauth.MetricAuthenticateLatency: {10, 20, 30, 40, 50, 60, 70, 80},
			},
		},
	})

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = exp.Render()
	}
}

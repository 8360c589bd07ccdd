package prometheus

import (
	"net/http/httptest"
	"strings"
	"testing"

	authcore "github.com/powertrading/authcore"
)

type fakeSource struct {
	snapshot authcore.MetricsSnapshot
	dropped  uint64
}

func (f *fakeSource) MetricsSnapshot() authcore.MetricsSnapshot { return f.snapshot }
func (f *fakeSource) AuditDropped() uint64                      { return f.dropped }

func TestRenderCounters(t *testing.T) {
	source := &fakeSource{
		snapshot: authcore.MetricsSnapshot{
			Counters: map[authcore.MetricID]uint64{
				authcore.MetricAuthSuccess: 7,
				authcore.MetricAuthFailure: 2,
			},
			Histograms: map[authcore.MetricID][]uint64{},
		},
		dropped: 3,
	}

	out := NewPrometheusExporterFromSource(source).Render()

	for _, want := range []string{
		"# TYPE authcore_auth_success_total counter",
		"authcore_auth_success_total 7",
		"authcore_auth_failure_total 2",
		"authcore_audit_dropped_total 3",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("render output missing %q:\n%s", want, out)
		}
	}
}

func TestRenderHistogramIsCumulative(t *testing.T) {
	source := &fakeSource{
		snapshot: authcore.MetricsSnapshot{
			Counters: map[authcore.MetricID]uint64{},
			Histograms: map[authcore.MetricID][]uint64{
				authcore.MetricAuthLatency: {1, 2, 0, 0, 0, 0, 0, 1},
			},
		},
	}

	out := NewPrometheusExporterFromSource(source).Render()

	for _, want := range []string{
		`authcore_auth_latency_seconds_bucket{le="0.005"} 1`,
		`authcore_auth_latency_seconds_bucket{le="0.01"} 3`,
		`authcore_auth_latency_seconds_bucket{le="+Inf"} 4`,
		"authcore_auth_latency_seconds_count 4",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("render output missing %q:\n%s", want, out)
		}
	}
}

func TestRenderEmptySnapshot(t *testing.T) {
	source := &fakeSource{
		snapshot: authcore.MetricsSnapshot{
			Counters:   map[authcore.MetricID]uint64{},
			Histograms: map[authcore.MetricID][]uint64{},
		},
	}

	if out := NewPrometheusExporterFromSource(source).Render(); out != "" {
		t.Fatalf("empty snapshot rendered output:\n%s", out)
	}
}

func TestHandlerContentType(t *testing.T) {
	source := &fakeSource{
		snapshot: authcore.MetricsSnapshot{
			Counters:   map[authcore.MetricID]uint64{authcore.MetricAuthSuccess: 1},
			Histograms: map[authcore.MetricID][]uint64{},
		},
	}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	NewPrometheusExporterFromSource(source).Handler().ServeHTTP(rec, req)

	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Fatalf("content type = %q", ct)
	}
	if !strings.Contains(rec.Body.String(), "authcore_auth_success_total 1") {
		t.Fatalf("body missing counter:\n%s", rec.Body.String())
	}
}

package prometheus

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	authsentry "github.com/MrEthical07/authsentry"
)

type fakeSource struct {
	snapshot authsentry.MetricsSnapshot
	dropped  uint64
}

func (f fakeSource) MetricsSnapshot() authsentry.MetricsSnapshot { return f.snapshot }
func (f fakeSource) AuditDropped() uint64                        { return f.dropped }

func TestRenderEmptyWhenMetricsDisabled(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: authsentry.MetricsSnapshot{
			Counters: map[authsentry.MetricID]uint64{},
		},
		dropped: 0,
	})

	if got := exp.Render(); got != "" {
		t.Fatalf("expected empty output for disabled metrics, got:\n%s", got)
	}
}

func TestRenderIncludesCountersAndDropped(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: authsentry.MetricsSnapshot{
			Counters: map[authsentry.MetricID]uint64{
				authsentry.MetricLoginSuccess:   7,
				authsentry.MetricSessionCreated: 7,
				authsentry.MetricAccountLocked:  1,
			},
		},
		dropped: 2,
	})

	out := exp.Render()
	if !strings.Contains(out, "authsentry_login_success_total 7") {
		t.Fatalf("expected login success counter in output, got:\n%s", out)
	}
	if !strings.Contains(out, "authsentry_account_locked_total 1") {
		t.Fatalf("expected lockout counter in output, got:\n%s", out)
	}
	if !strings.Contains(out, "# TYPE authsentry_login_success_total counter") {
		t.Fatalf("expected TYPE line in output, got:\n%s", out)
	}
	if !strings.Contains(out, "authsentry_audit_dropped_total 2") {
		t.Fatalf("expected audit dropped counter in output, got:\n%s", out)
	}
	// Unset counters still render as zero so scrape series stay continuous.
	if !strings.Contains(out, "authsentry_logout_total 0") {
		t.Fatalf("expected zero-valued counter in output, got:\n%s", out)
	}
}

func TestHandlerServesTextFormat(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: authsentry.MetricsSnapshot{
			Counters: map[authsentry.MetricID]uint64{
				authsentry.MetricLoginSuccess: 3,
			},
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	exp.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Fatalf("unexpected content type %q", ct)
	}
	if !strings.Contains(rec.Body.String(), "authsentry_login_success_total 3") {
		t.Fatalf("expected counter in body, got:\n%s", rec.Body.String())
	}
}

func TestNilExporterRendersEmpty(t *testing.T) {
	var exp *PrometheusExporter
	if got := exp.Render(); got != "" {
		t.Fatalf("expected empty render from nil exporter, got %q", got)
	}
}

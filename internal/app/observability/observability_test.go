package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNormalizedPath(t *testing.T) {
	got := normalizedPath("/api/v1/tests/123/questions/9")
	want := "/api/v1/tests/{id}/questions/{id}"
	if got != want {
		t.Fatalf("normalizedPath mismatch got=%s want=%s", got, want)
	}
}

func TestExtractTestID(t *testing.T) {
	if id := extractTestID("/api/v1/tests/456/submit"); id != 456 {
		t.Fatalf("expected 456, got %d", id)
	}
	if id := extractTestID("/api/v1/admin/users/1"); id != 0 {
		t.Fatalf("expected 0 for non-test path, got %d", id)
	}
}

func TestMetricsHandlerCountsRequests(t *testing.T) {
	c := NewCollector(nil)
	handler := c.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/tests/7/submit", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	rec := httptest.NewRecorder()
	c.MetricsHandler(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	body := rec.Body.String()
	if !strings.Contains(body, `examportal_http_requests_total{method="POST",path="/api/v1/tests/{id}/submit",status="201"} 1`) {
		t.Fatalf("metrics missing request counter:\n%s", body)
	}
	if !strings.Contains(body, "examportal_uptime_seconds") {
		t.Fatalf("metrics missing uptime gauge:\n%s", body)
	}
}

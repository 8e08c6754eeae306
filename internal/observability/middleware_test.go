package observability

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

func TestRequestLoggerRecordsRoutePattern(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	r := chi.NewRouter()
	r.Use(RequestLogger(logger), RequestMetricsMiddleware)
	r.Get("/units/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/units/42", nil))
	if rec.Code != http.StatusTeapot {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	out := buf.String()
	if !strings.Contains(out, `"path":"/units/{id}"`) || !strings.Contains(out, `"status":418`) || !strings.Contains(out, `"level":"warn"`) {
		t.Fatalf("unexpected log line: %s", out)
	}
	if got := counterValue(t, "clangipc_admin_requests_total", map[string]string{"method": "GET", "path": "/units/{id}", "status": "418"}); got != 1 {
		t.Fatalf("unexpected admin request count: %v", got)
	}
}

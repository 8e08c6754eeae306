package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/danmuck/clangipc/internal/testutil/testlog"
	"github.com/rs/zerolog"
)

func TestHealthReportsActiveConnections(t *testing.T) {
	testlog.Start(t)
	a := NewAdmin(Options{Version: "1.2.3", Transport: "tcp", Active: func() int64 { return 3 }, Logger: zerolog.Nop()})

	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	var got Status
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Status != "ok" || got.Service != "clangipcd" || got.Version != "1.2.3" || got.ActiveConnections != 3 {
		t.Fatalf("unexpected status body: %+v", got)
	}
}

func TestMetricsAndMount(t *testing.T) {
	testlog.Start(t)
	a := NewAdmin(Options{Logger: zerolog.Nop()})
	a.Mount("/ipc", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))

	a.Handler().ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))
	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "clangipc_admin_requests_total") {
		t.Fatalf("unexpected metrics response: %d\n%s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ipc", nil))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("mounted handler not reached: %d", rec.Code)
	}
}

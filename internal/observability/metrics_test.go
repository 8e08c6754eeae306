package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog/log"
)

func counterValue(t *testing.T, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := Registry().Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
	next:
		for _, m := range fam.GetMetric() {
			for _, lp := range m.GetLabel() {
				if labels[lp.GetName()] != lp.GetValue() {
					continue next
				}
			}
			return m.GetCounter().GetValue()
		}
	}
	return 0
}

func TestRegisterMetricsAndRecordersAreSafe(t *testing.T) {
	RegisterMetrics()
	RegisterMetrics()

	RecordFrame("client", "out", "Alive")
	RecordFrame("client", "out", "Alive")
	RecordFrameError("client", "unknown_message_type")
	RecordConnectionError("backend", "frame_too_large")
	RecordDispatch("backend", "CompleteCode", 3*time.Millisecond)
	RecordRebind("client")
	RecordAdminRequest("GET", "/healthz", 200)

	if got := counterValue(t, "clangipc_channel_frames_total", map[string]string{"role": "client", "direction": "out", "type": "Alive"}); got != 2 {
		t.Fatalf("unexpected frame count: %v", got)
	}
	if got := counterValue(t, "clangipc_proxy_rebinds_total", map[string]string{"role": "client"}); got != 1 {
		t.Fatalf("unexpected rebind count: %v", got)
	}

	log.Debug().Msg("observability/metrics: registration idempotent and recording paths executed")
}

func TestHandlerServesTextFormat(t *testing.T) {
	RecordConnectionError("client", "stream_closed")
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "clangipc_proxy_connection_errors_total") {
		t.Fatalf("metrics output missing connection errors:\n%s", rec.Body.String())
	}
}

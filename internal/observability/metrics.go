package observability

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registerOnce sync.Once
	registry     = prometheus.NewRegistry()

	framesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clangipc",
			Subsystem: "channel",
			Name:      "frames_total",
			Help:      "Frames written or read per direction.",
		},
		[]string{"role", "direction", "type"},
	)
	frameErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clangipc",
			Subsystem: "proxy",
			Name:      "frame_errors_total",
			Help:      "Per-frame errors that were reported and skipped.",
		},
		[]string{"role", "kind"},
	)
	connectionErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clangipc",
			Subsystem: "proxy",
			Name:      "connection_errors_total",
			Help:      "Connection-fatal errors that moved a proxy to unbound.",
		},
		[]string{"role", "kind"},
	)
	dispatchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "clangipc",
			Subsystem: "dispatch",
			Name:      "handler_duration_seconds",
			Help:      "Handler run time per message type.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"role", "type"},
	)
	rebinds = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clangipc",
			Subsystem: "proxy",
			Name:      "rebinds_total",
			Help:      "Stream replacements.",
		},
		[]string{"role"},
	)
	adminRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clangipc",
			Subsystem: "admin",
			Name:      "requests_total",
			Help:      "Admin HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		registry.MustRegister(framesTotal, frameErrors, connectionErrors, dispatchDuration, rebinds, adminRequests)
	})
}

// Registry exposes the process registry for tests and custom handlers.
func Registry() *prometheus.Registry {
	RegisterMetrics()
	return registry
}

// Handler serves the metrics registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry(), promhttp.HandlerOpts{})
}

func RecordFrame(role, direction, msgType string) {
	RegisterMetrics()
	framesTotal.WithLabelValues(role, direction, msgType).Inc()
}

func RecordFrameError(role, kind string) {
	RegisterMetrics()
	frameErrors.WithLabelValues(role, kind).Inc()
}

func RecordConnectionError(role, kind string) {
	RegisterMetrics()
	connectionErrors.WithLabelValues(role, kind).Inc()
}

func RecordDispatch(role, msgType string, duration time.Duration) {
	RegisterMetrics()
	dispatchDuration.WithLabelValues(role, msgType).Observe(duration.Seconds())
}

func RecordRebind(role string) {
	RegisterMetrics()
	rebinds.WithLabelValues(role).Inc()
}

func RecordAdminRequest(method, path string, status int) {
	RegisterMetrics()
	adminRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
}

package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/danmuck/clangipc/internal/observability"
)

type Status struct {
	Status            string `json:"status"`
	Service           string `json:"service"`
	Version           string `json:"version"`
	Transport         string `json:"transport,omitempty"`
	Uptime            string `json:"uptime"`
	ActiveConnections int64  `json:"active_connections"`
}

func (a *Admin) registerRoutes() {
	a.router.Get("/healthz", a.health)
	a.router.Method(http.MethodGet, "/metrics", observability.Handler())
}

func (a *Admin) health(w http.ResponseWriter, _ *http.Request) {
	var active int64
	if a.opts.Active != nil {
		active = a.opts.Active()
	}
	writeJSON(w, http.StatusOK, Status{
		Status:            "ok",
		Service:           a.opts.Service,
		Version:           a.opts.Version,
		Transport:         a.opts.Transport,
		Uptime:            time.Since(a.started).Truncate(time.Second).String(),
		ActiveConnections: active,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

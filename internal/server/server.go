package server

import (
	"net/http"
	"time"

	"github.com/danmuck/clangipc/internal/observability"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

type Options struct {
	Service   string
	Version   string
	Transport string
	// Active reports live IPC connections; nil reports zero.
	Active func() int64
	Logger zerolog.Logger
}

// Admin is the HTTP surface beside the IPC listener: health, metrics, and
// optionally the websocket IPC endpoint.
type Admin struct {
	opts    Options
	started time.Time
	router  chi.Router
}

func NewAdmin(opts Options) *Admin {
	if opts.Service == "" {
		opts.Service = "clangipcd"
	}
	if opts.Version == "" {
		opts.Version = "dev"
	}
	a := &Admin{opts: opts, started: time.Now(), router: chi.NewRouter()}
	a.router.Use(middleware.Recoverer)
	a.router.Use(observability.RequestLogger(opts.Logger))
	a.router.Use(observability.RequestMetricsMiddleware)
	a.registerRoutes()
	return a
}

func (a *Admin) Handler() http.Handler {
	return a.router
}

// Mount attaches h under pattern, e.g. the websocket IPC handler.
func (a *Admin) Mount(pattern string, h http.Handler) {
	a.router.Handle(pattern, h)
}

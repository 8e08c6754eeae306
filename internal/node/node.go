package node

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/danmuck/clangipc/internal/auth"
	"github.com/danmuck/clangipc/internal/backend"
	"github.com/danmuck/clangipc/internal/config"
	"github.com/danmuck/clangipc/internal/server"
	"github.com/danmuck/clangipc/internal/transport"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

var ErrAlreadyRunning = errors.New("node: already running")

// Node is one clangipcd process: the IPC listener serving a backend worker per
// connection, plus the admin router.
type Node struct {
	cfg    config.Config
	ipc    *transport.Server
	admin  *server.Admin
	logger zerolog.Logger

	mu        sync.Mutex
	running   bool
	ipcAddr   net.Addr
	adminAddr net.Addr
	ready     chan struct{}
}

func New(cfg config.Config, version string) (*Node, error) {
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	n := &Node{
		cfg:    cfg,
		logger: log.Logger.With().Str("component", "node").Logger(),
		ready:  make(chan struct{}),
	}
	n.ipc = transport.NewServer(n.serveBackend)
	n.admin = server.NewAdmin(server.Options{
		Version:   version,
		Transport: cfg.Transport,
		Active:    n.ipc.Active,
		Logger:    n.logger,
	})
	return n, nil
}

func (n *Node) HTTPRouter() http.Handler {
	return n.admin.Handler()
}

// Ready is closed once every listener is bound.
func (n *Node) Ready() <-chan struct{} {
	return n.ready
}

func (n *Node) IPCAddr() net.Addr {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.ipcAddr
}

// AdminAddr is nil when the admin router is disabled or shares the IPC listener.
func (n *Node) AdminAddr() net.Addr {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.adminAddr
}

// Run binds the listeners and serves until ctx is cancelled or a listener fails.
// A websocket node whose admin_listen equals listen serves both on one port.
func (n *Node) Run(ctx context.Context) error {
	n.mu.Lock()
	if n.running {
		n.mu.Unlock()
		return ErrAlreadyRunning
	}
	n.running = true
	n.mu.Unlock()

	shared := n.cfg.Transport == transport.KindWebsocket && n.cfg.AdminListen == n.cfg.Listen
	ipcLn, err := transport.ListenTCP(n.cfg.Listen)
	if err != nil {
		return fmt.Errorf("listen %s: %w", n.cfg.Listen, err)
	}
	var adminLn net.Listener
	if n.cfg.AdminListen != "" && !shared {
		adminLn, err = transport.ListenTCP(n.cfg.AdminListen)
		if err != nil {
			_ = ipcLn.Close()
			return fmt.Errorf("listen admin %s: %w", n.cfg.AdminListen, err)
		}
	}

	n.mu.Lock()
	n.ipcAddr = ipcLn.Addr()
	if adminLn != nil {
		n.adminAddr = adminLn.Addr()
	}
	n.mu.Unlock()
	close(n.ready)

	n.logger.Info().
		Str("transport", n.cfg.Transport).
		Str("listen", ipcLn.Addr().String()).
		Bool("admin", adminLn != nil || shared).
		Msg("node started")

	g, gctx := errgroup.WithContext(ctx)
	switch n.cfg.Transport {
	case transport.KindWebsocket:
		var ws http.Handler = transport.WebsocketHandler(gctx, n.ipc)
		if n.cfg.AuthToken != "" {
			ws = auth.Require(auth.StaticToken{Token: n.cfg.AuthToken})(ws)
		}
		if shared {
			n.admin.Mount(n.cfg.WebsocketPath, ws)
			g.Go(func() error { return serveHTTP(gctx, ipcLn, n.admin.Handler()) })
		} else {
			r := chi.NewRouter()
			r.Handle(n.cfg.WebsocketPath, ws)
			g.Go(func() error { return serveHTTP(gctx, ipcLn, r) })
		}
	default:
		g.Go(func() error { return n.ipc.Serve(gctx, ipcLn) })
	}
	if adminLn != nil {
		g.Go(func() error { return serveHTTP(gctx, adminLn, n.admin.Handler()) })
	}

	err = g.Wait()
	n.ipc.CloseAll()
	n.ipc.Wait()
	n.logger.Info().Err(err).Msg("node stopped")
	return err
}

func (n *Node) serveBackend(ctx context.Context, conn transport.Conn) {
	cfg := backend.DefaultConfig()
	cfg.Proxy.Limits = n.cfg.Limits
	err := backend.Serve(ctx, conn, cfg)
	switch {
	case err == nil:
		n.logger.Debug().Msg("session ended by client")
	case errors.Is(err, context.Canceled):
	default:
		n.logger.Warn().Err(err).Msg("session lost")
	}
}

// serveHTTP serves h on ln and shuts down gracefully when ctx is cancelled.
// Hijacked websocket connections are not tracked by http.Server; their
// handlers stop on ctx.
func serveHTTP(ctx context.Context, ln net.Listener, h http.Handler) error {
	srv := &http.Server{Handler: h, ReadHeaderTimeout: 5 * time.Second}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		<-errCh
		return err
	}
}

package transport

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"

	"github.com/danmuck/clangipc/internal/protocol/channel"
	"github.com/rs/zerolog/log"
)

var ErrUnknownTransport = errors.New("transport: unknown transport")

const (
	KindTCP       = "tcp"
	KindWebsocket = "websocket"
)

// Conn is a stream the transport owns and closes.
type Conn interface {
	channel.Stream
	io.Closer
}

// Handler serves one accepted connection. The connection is closed when it returns.
type Handler func(ctx context.Context, conn Conn)

// Server runs an accept loop and tracks live connections so shutdown can close them.
type Server struct {
	handle Handler
	active atomic.Int64

	mu    sync.Mutex
	conns map[Conn]struct{}
	wg    sync.WaitGroup
}

func NewServer(handle Handler) *Server {
	return &Server{handle: handle, conns: make(map[Conn]struct{})}
}

// Active returns the number of connections being served.
func (s *Server) Active() int64 {
	return s.active.Load()
}

// Serve accepts on ln until ctx is cancelled, then closes every live connection
// and waits for their handlers.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	defer s.wg.Wait()
	defer ln.Close()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			s.CloseAll()
			_ = ln.Close()
		case <-stop:
		}
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		s.ServeConn(ctx, conn)
	}
}

// ServeConn runs the handler for conn on a new goroutine.
func (s *Server) ServeConn(ctx context.Context, conn Conn) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(ctx, conn)
	}()
}

func (s *Server) run(ctx context.Context, conn Conn) {
	s.track(conn)
	defer s.untrack(conn)
	defer conn.Close()
	remote := ""
	if ra, ok := conn.(interface{ RemoteAddr() net.Addr }); ok {
		remote = ra.RemoteAddr().String()
	}
	n := s.active.Add(1)
	log.Info().Str("component", "transport").Str("remote", remote).Int64("active", n).Msg("client connected")
	defer func() {
		n := s.active.Add(-1)
		log.Info().Str("component", "transport").Str("remote", remote).Int64("active", n).Msg("client disconnected")
	}()
	s.handle(ctx, conn)
}

// Wait blocks until every handler started by ServeConn has returned.
func (s *Server) Wait() {
	s.wg.Wait()
}

func (s *Server) track(c Conn) {
	s.mu.Lock()
	s.conns[c] = struct{}{}
	s.mu.Unlock()
}

func (s *Server) untrack(c Conn) {
	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
}

// CloseAll closes every live connection; their handlers see stream loss.
func (s *Server) CloseAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.conns {
		_ = c.Close()
	}
}

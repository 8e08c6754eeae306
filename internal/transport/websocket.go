package transport

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/danmuck/clangipc/internal/protocol/channel"
	"github.com/danmuck/clangipc/internal/supervisor"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const wsCloseWait = time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  32 * 1024,
	WriteBufferSize: 32 * 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// WSConn carries the byte stream in binary websocket messages. Each Write is
// one message; Read concatenates messages and skips non-binary ones.
type WSConn struct {
	ws *websocket.Conn

	// rmu guards reader; gorilla allows one concurrent reader.
	rmu    sync.Mutex
	reader io.Reader

	wmu sync.Mutex

	closeOnce sync.Once
	closeErr  error
}

func NewWSConn(ws *websocket.Conn) *WSConn {
	return &WSConn{ws: ws}
}

func (c *WSConn) Read(p []byte) (int, error) {
	c.rmu.Lock()
	defer c.rmu.Unlock()
	for {
		if c.reader == nil {
			typ, r, err := c.ws.NextReader()
			if err != nil {
				return 0, err
			}
			if typ != websocket.BinaryMessage {
				continue
			}
			c.reader = r
		}
		n, err := c.reader.Read(p)
		if errors.Is(err, io.EOF) {
			c.reader = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

func (c *WSConn) Write(p []byte) (int, error) {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if err := c.ws.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (c *WSConn) RemoteAddr() net.Addr {
	return c.ws.RemoteAddr()
}

// Close sends a normal-closure control frame and closes the socket.
func (c *WSConn) Close() error {
	c.closeOnce.Do(func() {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(wsCloseWait))
		c.closeErr = c.ws.Close()
	})
	return c.closeErr
}

// WebsocketHandler upgrades each request and hands the connection to s. The
// request goroutine blocks until the handler returns.
func WebsocketHandler(ctx context.Context, s *Server) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Warn().Str("component", "transport").Err(err).Msg("websocket upgrade failed")
			return
		}
		s.wg.Add(1)
		defer s.wg.Done()
		s.run(ctx, NewWSConn(ws))
	})
}

// DialWebsocket opens url; header is sent with the upgrade request and may be nil.
func DialWebsocket(ctx context.Context, url string, header http.Header, timeout time.Duration) (*WSConn, error) {
	if timeout <= 0 {
		timeout = DefaultDialTimeout
	}
	d := websocket.Dialer{HandshakeTimeout: timeout}
	ws, resp, err := d.DialContext(ctx, url, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	return NewWSConn(ws), nil
}

func WebsocketDialer(url string, header http.Header, timeout time.Duration) supervisor.Dialer {
	return supervisor.DialerFunc(func(ctx context.Context) (channel.Stream, error) {
		return DialWebsocket(ctx, url, header, timeout)
	})
}

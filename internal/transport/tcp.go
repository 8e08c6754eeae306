package transport

import (
	"context"
	"net"
	"time"

	"github.com/danmuck/clangipc/internal/protocol/channel"
	"github.com/danmuck/clangipc/internal/supervisor"
)

const DefaultDialTimeout = 5 * time.Second

func ListenTCP(addr string) (net.Listener, error) {
	return net.Listen("tcp", addr)
}

func DialTCP(ctx context.Context, addr string, timeout time.Duration) (net.Conn, error) {
	if timeout <= 0 {
		timeout = DefaultDialTimeout
	}
	d := net.Dialer{Timeout: timeout}
	return d.DialContext(ctx, "tcp", addr)
}

// TCPDialer dials addr each time the supervisor needs a fresh stream.
func TCPDialer(addr string, timeout time.Duration) supervisor.Dialer {
	return supervisor.DialerFunc(func(ctx context.Context) (channel.Stream, error) {
		return DialTCP(ctx, addr, timeout)
	})
}

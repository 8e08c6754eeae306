package node

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/danmuck/clangipc/internal/config"
	"github.com/danmuck/clangipc/internal/editor"
	"github.com/danmuck/clangipc/internal/server"
	"github.com/danmuck/clangipc/internal/testutil/testlog"
	"github.com/danmuck/clangipc/internal/transport"
)

func runNode(t *testing.T, cfg config.Config) *Node {
	t.Helper()
	n, err := New(cfg, "1.0.0-test")
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- n.Run(ctx) }()
	select {
	case <-n.Ready():
	case err := <-done:
		cancel()
		t.Fatalf("run: %v", err)
	case <-time.After(2 * time.Second):
		cancel()
		t.Fatalf("node not ready")
	}
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("run returned %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Errorf("node did not stop")
		}
	})
	return n
}

func getStatus(t *testing.T, url string) server.Status {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("get %s: %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.StatusCode)
	}
	var st server.Status
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return st
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	testlog.Start(t)
	cfg := config.Default()
	cfg.Transport = "udp"
	if _, err := New(cfg, ""); !errors.Is(err, transport.ErrUnknownTransport) {
		t.Fatalf("expected ErrUnknownTransport, got %v", err)
	}
}

func TestAdminReportsActiveConnections(t *testing.T) {
	testlog.Start(t)
	cfg := config.Default()
	cfg.Listen = "127.0.0.1:0"
	cfg.AdminListen = "127.0.0.1:0"
	n := runNode(t, cfg)
	if n.AdminAddr() == nil {
		t.Fatalf("expected a separate admin listener")
	}
	adminURL := "http://" + n.AdminAddr().String() + "/healthz"

	client := cfg
	client.Listen = n.IPCAddr().String()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	s, err := editor.Open(ctx, client)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()
	if _, err := s.Ping(ctx); err != nil {
		t.Fatalf("ping: %v", err)
	}

	st := getStatus(t, adminURL)
	if st.Version != "1.0.0-test" || st.Transport != transport.KindTCP || st.ActiveConnections != 1 {
		t.Fatalf("unexpected status: %+v", st)
	}
}

func TestWebsocketSharesAdminListener(t *testing.T) {
	testlog.Start(t)
	cfg := config.Default()
	cfg.Transport = transport.KindWebsocket
	cfg.Listen = "127.0.0.1:0"
	cfg.AdminListen = cfg.Listen
	n := runNode(t, cfg)
	if n.AdminAddr() != nil {
		t.Fatalf("shared node should not open a second listener")
	}

	st := getStatus(t, "http://"+n.IPCAddr().String()+"/healthz")
	if st.Transport != transport.KindWebsocket {
		t.Fatalf("unexpected status: %+v", st)
	}

	client := cfg
	client.Listen = n.IPCAddr().String()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	s, err := editor.Open(ctx, client)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()
	if _, err := s.Ping(ctx); err != nil {
		t.Fatalf("ping: %v", err)
	}
}

func TestRunTwiceIsRejected(t *testing.T) {
	testlog.Start(t)
	cfg := config.Default()
	cfg.Listen = "127.0.0.1:0"
	cfg.AdminListen = ""
	n := runNode(t, cfg)
	if err := n.Run(context.Background()); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}
}

func TestWebsocketRequiresToken(t *testing.T) {
	testlog.Start(t)
	cfg := config.Default()
	cfg.Transport = transport.KindWebsocket
	cfg.Listen = "127.0.0.1:0"
	cfg.AdminListen = ""
	cfg.AuthToken = "s3cret"
	n := runNode(t, cfg)

	client := cfg
	client.Listen = n.IPCAddr().String()
	client.MaxConnectAttempts = 1
	client.AuthToken = ""
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if s, err := editor.Open(ctx, client); err == nil {
		s.Close()
		t.Fatalf("expected handshake without token to fail")
	}

	client.AuthToken = "s3cret"
	s, err := editor.Open(ctx, client)
	if err != nil {
		t.Fatalf("open with token: %v", err)
	}
	defer s.Close()
	if _, err := s.Ping(ctx); err != nil {
		t.Fatalf("ping: %v", err)
	}
}

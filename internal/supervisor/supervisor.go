package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"sync"
	"time"

	"github.com/danmuck/clangipc/internal/protocol/channel"
	"github.com/danmuck/clangipc/internal/protocol/proxy"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	ErrDialerRequired   = errors.New("supervisor: dialer required")
	ErrAttemptsExceeded = errors.New("supervisor: connect attempts exhausted")
)

// Dialer produces a fresh stream to the peer. Streams that implement io.Closer are
// closed by the supervisor once replaced.
type Dialer interface {
	Dial(ctx context.Context) (channel.Stream, error)
}

type DialerFunc func(ctx context.Context) (channel.Stream, error)

func (f DialerFunc) Dial(ctx context.Context) (channel.Stream, error) {
	return f(ctx)
}

// Target is the proxy being kept connected.
type Target interface {
	Rebind(stream channel.Stream) error
}

type Config struct {
	Backoff BackoffConfig
	// MaxConnectAttempts bounds each reconnect; zero retries forever.
	MaxConnectAttempts int
	// Next receives every report after the supervisor has seen it.
	Next proxy.Reporter
}

func DefaultConfig() Config {
	return Config{Backoff: DefaultBackoff()}
}

// Supervisor redials and rebinds a proxy after connection-fatal errors. It acts on
// streams only and never starts processes.
type Supervisor struct {
	cfg    Config
	dialer Dialer
	rng    *rand.Rand
	lost   chan error
	logger zerolog.Logger

	mu         sync.Mutex
	current    channel.Stream
	reconnects int
}

func New(dialer Dialer, cfg Config) (*Supervisor, error) {
	if dialer == nil {
		return nil, ErrDialerRequired
	}
	if err := cfg.Backoff.Validate(); err != nil {
		return nil, err
	}
	return &Supervisor{
		cfg:    cfg,
		dialer: dialer,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
		lost:   make(chan error, 1),
		logger: log.Logger.With().Str("component", "supervisor").Logger(),
	}, nil
}

// FrameError forwards to Config.Next; skipped frames do not trigger a reconnect.
func (s *Supervisor) FrameError(err error) {
	if s.cfg.Next != nil {
		s.cfg.Next.FrameError(err)
	}
}

// ConnectionError schedules a reconnect. Reports arriving while one is pending
// are coalesced.
func (s *Supervisor) ConnectionError(err error) {
	select {
	case s.lost <- err:
	default:
	}
	if s.cfg.Next != nil {
		s.cfg.Next.ConnectionError(err)
	}
}

// Connect dials with backoff and binds target to the first stream obtained.
func (s *Supervisor) Connect(ctx context.Context, target Target) error {
	var attempt int
	for {
		attempt++
		stream, err := s.dialer.Dial(ctx)
		if err == nil {
			if err = target.Rebind(stream); err == nil {
				s.swap(stream)
				s.logger.Info().Int("attempt", attempt).Msg("connected")
				return nil
			}
			closeStream(stream)
		}
		s.logger.Warn().Err(err).Int("attempt", attempt).Msg("connect failed")
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !s.shouldRetry(attempt) {
			return fmt.Errorf("%w after %d: %w", ErrAttemptsExceeded, attempt, err)
		}
		if err := s.sleepBackoff(ctx, attempt); err != nil {
			return err
		}
	}
}

// Run reconnects target each time a connection error is reported, until ctx is
// cancelled or a reconnect gives up. The last stream is closed on return.
func (s *Supervisor) Run(ctx context.Context, target Target) error {
	defer s.swap(nil)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case cause := <-s.lost:
			s.logger.Warn().Err(cause).Msg("connection lost, redialing")
			s.swap(nil)
			if err := s.Connect(ctx, target); err != nil {
				return err
			}
			s.mu.Lock()
			s.reconnects++
			s.mu.Unlock()
		}
	}
}

// Reconnects returns the number of successful reconnects performed by Run.
func (s *Supervisor) Reconnects() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reconnects
}

// swap records next as the live stream and closes the previous one so its
// read pump exits.
func (s *Supervisor) swap(next channel.Stream) {
	s.mu.Lock()
	prev := s.current
	s.current = next
	s.mu.Unlock()
	if prev != nil {
		closeStream(prev)
	}
}

func (s *Supervisor) shouldRetry(attempt int) bool {
	if s.cfg.MaxConnectAttempts <= 0 {
		return true
	}
	return attempt < s.cfg.MaxConnectAttempts
}

func (s *Supervisor) sleepBackoff(ctx context.Context, attempt int) error {
	delay := NextBackoffDelay(s.cfg.Backoff, attempt, s.rng)
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func closeStream(stream channel.Stream) {
	if c, ok := stream.(io.Closer); ok {
		_ = c.Close()
	}
}

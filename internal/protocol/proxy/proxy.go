package proxy

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/clangipc/internal/observability"
	"github.com/danmuck/clangipc/internal/protocol/channel"
	"github.com/danmuck/clangipc/internal/protocol/dispatch"
	"github.com/danmuck/clangipc/internal/protocol/frame"
	"github.com/danmuck/clangipc/internal/protocol/message"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/danmuck/clangipc/internal/protocol/proxy"

var (
	ErrNotConnected = errors.New("proxy: not connected")
	ErrWriteFailed  = errors.New("proxy: write failed")
	ErrClosed       = errors.New("proxy: closed")
)

type State int32

const (
	StateUnbound State = iota
	StateBound
)

func (s State) String() string {
	switch s {
	case StateBound:
		return "bound"
	default:
		return "unbound"
	}
}

// Reporter receives errors the reactor does not return to a caller.
type Reporter interface {
	// FrameError is called for a frame that was skipped.
	FrameError(err error)
	// ConnectionError is called once per binding when the proxy becomes unbound.
	ConnectionError(err error)
}

// ReporterFuncs adapts plain functions to Reporter. Nil fields are ignored.
type ReporterFuncs struct {
	OnFrameError      func(error)
	OnConnectionError func(error)
}

func (r ReporterFuncs) FrameError(err error) {
	if r.OnFrameError != nil {
		r.OnFrameError(err)
	}
}

func (r ReporterFuncs) ConnectionError(err error) {
	if r.OnConnectionError != nil {
		r.OnConnectionError(err)
	}
}

type Config struct {
	// Role labels logs and metrics, e.g. "client" or "backend".
	Role     string
	Limits   frame.Limits
	Reporter Reporter
	Tracer   trace.Tracer
}

func DefaultConfig(role string) Config {
	return Config{
		Role:   role,
		Limits: frame.DefaultLimits(),
	}
}

// Proxy pairs a Channel with a dispatch Table. Send may be called from any
// goroutine; Run is the single consumer of readable events.
type Proxy struct {
	id       uuid.UUID
	role     string
	ch       *channel.Channel
	table    *dispatch.Table
	reporter Reporter
	tracer   trace.Tracer
	logger   zerolog.Logger

	mu      sync.Mutex
	state   State
	binding uint64

	running   atomic.Bool
	closeOnce sync.Once
	closed    chan struct{}
}

// New creates a proxy over stream. A nil stream starts Unbound.
func New(stream channel.Stream, table *dispatch.Table, cfg Config) *Proxy {
	if table == nil {
		table = dispatch.NewTable()
	}
	if cfg.Role == "" {
		cfg.Role = "proxy"
	}
	if cfg.Tracer == nil {
		cfg.Tracer = otel.Tracer(tracerName)
	}
	id := uuid.New()
	p := &Proxy{
		id:       id,
		role:     cfg.Role,
		ch:       channel.New(stream, cfg.Limits),
		table:    table,
		reporter: cfg.Reporter,
		tracer:   cfg.Tracer,
		logger: log.Logger.With().
			Str("component", "proxy").
			Str("role", cfg.Role).
			Str("conn_id", id.String()).
			Logger(),
		closed: make(chan struct{}),
	}
	if stream != nil {
		p.state = StateBound
	}
	return p
}

func (p *Proxy) ID() uuid.UUID          { return p.id }
func (p *Proxy) Role() string           { return p.role }
func (p *Proxy) Table() *dispatch.Table { return p.table }

func (p *Proxy) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Counters returns the channel's write and read counters.
func (p *Proxy) Counters() (write, read uint32) {
	return p.ch.Counters()
}

func (p *Proxy) ResetCounters() {
	p.ch.ResetCounters()
}

// Send encodes m and writes it as one frame. A write failure unbinds the proxy.
func (p *Proxy) Send(m message.Message) error {
	p.mu.Lock()
	state, binding := p.state, p.binding
	p.mu.Unlock()
	if state != StateBound {
		return ErrNotConnected
	}

	payload, err := message.Encode(m)
	if err != nil {
		return err
	}
	if err := p.ch.Write(payload); err != nil {
		switch {
		case errors.Is(err, channel.ErrNotBound):
			return ErrNotConnected
		case errors.Is(err, channel.ErrFrameTooLarge):
			// Nothing reached the stream.
			return err
		}
		werr := fmt.Errorf("%w: %w", ErrWriteFailed, err)
		p.connectionLost(binding, werr)
		return werr
	}
	observability.RecordFrame(p.role, "out", m.Type().String())
	p.logger.Debug().Str("type", m.Type().String()).Int("payload_len", len(payload)).Msg("sent")
	return nil
}

// Run consumes readable events and dispatches decoded messages in order until ctx
// is cancelled or Close is called. Only one Run may be active.
func (p *Proxy) Run(ctx context.Context) error {
	if !p.running.CompareAndSwap(false, true) {
		return errors.New("proxy: already running")
	}
	defer p.running.Store(false)

	handled := p.table.Registered()
	names := make([]string, len(handled))
	for i, typ := range handled {
		names[i] = typ.String()
	}
	p.logger.Info().Strs("handlers", names).Msg("reactor started")
	defer p.logger.Info().Msg("reactor stopped")
	events := p.ch.Events()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.closed:
			return nil
		case ev := <-events:
			p.onReadable(ctx, ev)
		}
	}
}

func (p *Proxy) onReadable(ctx context.Context, ev channel.ReadEvent) {
	p.mu.Lock()
	state, binding := p.state, p.binding
	p.mu.Unlock()
	if state != StateBound {
		return
	}

	frames, err := p.ch.OnReadable(ev)
	for _, f := range frames {
		if ferr := p.deliver(ctx, f); ferr != nil {
			p.connectionLost(binding, ferr)
			return
		}
	}
	if err != nil {
		if errors.Is(err, channel.ErrBroken) {
			return
		}
		p.connectionLost(binding, err)
	}
}

// deliver decodes and dispatches one frame. It returns only connection-fatal errors.
func (p *Proxy) deliver(ctx context.Context, f frame.Frame) error {
	m, err := message.Decode(f.Payload)
	if err != nil {
		if errors.Is(err, message.ErrFraming) {
			return err
		}
		p.frameError(f, err)
		return nil
	}
	typ := m.Type().String()
	observability.RecordFrame(p.role, "in", typ)

	_, span := p.tracer.Start(ctx, "clangipc.dispatch "+typ,
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("clangipc.role", p.role),
			attribute.String("clangipc.conn_id", p.id.String()),
			attribute.String("clangipc.message_type", typ),
			attribute.Int64("clangipc.counter", int64(f.Header.Counter)),
			attribute.Int("clangipc.payload_len", len(f.Payload)),
		),
	)
	defer span.End()

	start := time.Now()
	if err := p.table.Dispatch(m); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		p.frameError(f, err)
		return nil
	}
	observability.RecordDispatch(p.role, typ, time.Since(start))
	span.SetStatus(codes.Ok, "")
	return nil
}

func (p *Proxy) frameError(f frame.Frame, err error) {
	kind := errorKind(err)
	observability.RecordFrameError(p.role, kind)
	p.logger.Warn().Err(err).Str("kind", kind).Uint32("counter", f.Header.Counter).Msg("frame skipped")
	if p.reporter != nil {
		p.reporter.FrameError(err)
	}
}

// connectionLost unbinds the proxy if binding is still current.
func (p *Proxy) connectionLost(binding uint64, err error) {
	p.mu.Lock()
	if p.binding != binding || p.state != StateBound {
		p.mu.Unlock()
		return
	}
	p.state = StateUnbound
	p.ch.Close()
	p.mu.Unlock()

	kind := errorKind(err)
	observability.RecordConnectionError(p.role, kind)
	p.logger.Error().Err(err).Str("kind", kind).Msg("connection lost")
	if p.reporter != nil {
		p.reporter.ConnectionError(err)
	}
}

// Rebind installs a fresh stream and zeroes both counters. Messages lost with the
// previous stream are not resent.
func (p *Proxy) Rebind(stream channel.Stream) error {
	select {
	case <-p.closed:
		return ErrClosed
	default:
	}
	if stream == nil {
		return fmt.Errorf("%w: nil stream", ErrNotConnected)
	}
	p.mu.Lock()
	p.binding++
	p.ch.Rebind(stream)
	p.ch.ResetCounters()
	p.state = StateBound
	p.mu.Unlock()

	observability.RecordRebind(p.role)
	p.logger.Info().Msg("rebound")
	return nil
}

// Close stops Run and cancels the stream subscription. A handler already running
// completes. Close is final.
func (p *Proxy) Close() {
	p.closeOnce.Do(func() {
		close(p.closed)
		p.mu.Lock()
		p.binding++
		p.state = StateUnbound
		p.ch.Close()
		p.mu.Unlock()
	})
}

// IsConnectionFatal reports whether err leaves the connection unusable until rebind.
func IsConnectionFatal(err error) bool {
	for _, target := range []error{
		channel.ErrFraming,
		channel.ErrFrameTooLarge,
		channel.ErrStreamClosed,
		channel.ErrBroken,
		message.ErrFraming,
		ErrWriteFailed,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, channel.ErrFrameTooLarge):
		return "frame_too_large"
	case errors.Is(err, channel.ErrFraming), errors.Is(err, message.ErrFraming):
		return "framing"
	case errors.Is(err, channel.ErrStreamClosed):
		return "stream_closed"
	case errors.Is(err, ErrWriteFailed):
		return "write_failed"
	case errors.Is(err, message.ErrUnknownMessageType):
		return "unknown_message_type"
	case errors.Is(err, message.ErrMalformedPayload):
		return "malformed_payload"
	case errors.Is(err, dispatch.ErrUnhandledMessageType):
		return "unhandled_message_type"
	default:
		return "other"
	}
}

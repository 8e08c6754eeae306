package channel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/danmuck/clangipc/internal/protocol/frame"
	"github.com/rs/zerolog/log"
)

const (
	readChunkSize = 32 * 1024
	eventBacklog  = 64
)

var (
	ErrFraming       = errors.New("channel: framing error")
	ErrFrameTooLarge = errors.New("channel: frame too large")
	ErrBroken        = errors.New("channel: connection unusable until rebind")
	ErrStreamClosed  = errors.New("channel: stream closed")
	ErrNotBound      = errors.New("channel: no stream bound")
)

// Stream is the raw duplex handle supplied by the process-lifecycle owner.
type Stream interface {
	io.Reader
	io.Writer
}

// ReadEvent is one readable notification from a stream subscription.
type ReadEvent struct {
	Generation uint64
	Data       []byte
	Err        error
}

// Channel turns a byte stream into ordered envelopes and back.
type Channel struct {
	limits frame.Limits
	events chan ReadEvent

	// wmu serializes whole-frame writes.
	wmu sync.Mutex

	mu           sync.Mutex
	stream       Stream
	gen          uint64
	cancel       context.CancelFunc
	writeCounter uint32
	readCounter  uint32
	readBuf      []byte
	broken       error
}

// New binds a channel to stream and subscribes to it. A nil stream leaves the
// channel unbound until Rebind.
func New(stream Stream, limits frame.Limits) *Channel {
	c := &Channel{
		limits: limits.WithDefaults(),
		events: make(chan ReadEvent, eventBacklog),
	}
	c.mu.Lock()
	c.bindLocked(stream)
	c.mu.Unlock()
	return c
}

// Events delivers readable notifications for the current and past subscriptions.
// OnReadable discards events from replaced streams.
func (c *Channel) Events() <-chan ReadEvent {
	return c.events
}

func (c *Channel) Limits() frame.Limits {
	return c.limits
}

// Write frames payload with the next write counter and submits it in one Write call.
func (c *Channel) Write(payload []byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()

	c.mu.Lock()
	stream := c.stream
	gen := c.gen
	counter := c.writeCounter
	broken := c.broken
	c.mu.Unlock()

	if stream == nil {
		return ErrNotBound
	}
	if broken != nil {
		return fmt.Errorf("%w: %w", ErrBroken, broken)
	}
	buf, err := frame.Marshal(counter, payload, c.limits)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrFrameTooLarge, err)
	}
	n, err := stream.Write(buf)
	if err == nil && n != len(buf) {
		err = io.ErrShortWrite
	}
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.gen == gen {
		c.writeCounter++
	}
	c.mu.Unlock()
	log.Trace().Str("component", "channel").Uint32("counter", counter).Int("payload_len", len(payload)).Msg("frame written")
	return nil
}

// OnReadable handles one readable notification and returns every frame completed by it.
// Frames assembled before a connection-fatal error are returned together with that error.
func (c *Channel) OnReadable(ev ReadEvent) ([]frame.Frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ev.Generation != c.gen || c.stream == nil {
		return nil, nil
	}
	if c.broken != nil {
		return nil, fmt.Errorf("%w: %w", ErrBroken, c.broken)
	}
	if ev.Err != nil {
		c.broken = fmt.Errorf("%w: %w", ErrStreamClosed, ev.Err)
		return nil, c.broken
	}
	return c.feedLocked(ev.Data)
}

// feed appends bytes delivered outside the subscription, then extracts frames.
func (c *Channel) feed(data []byte) ([]frame.Frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.broken != nil {
		return nil, fmt.Errorf("%w: %w", ErrBroken, c.broken)
	}
	return c.feedLocked(data)
}

func (c *Channel) feedLocked(data []byte) ([]frame.Frame, error) {
	c.readBuf = append(c.readBuf, data...)

	var frames []frame.Frame
	consumed := 0
	var fatal error
	for {
		pending := c.readBuf[consumed:]
		if len(pending) < int(frame.HeaderLen) {
			break
		}
		h, err := frame.DecodeHeader(pending)
		if err != nil {
			break
		}
		if fatal = c.checkHeader(h); fatal != nil {
			break
		}
		total := int(frame.HeaderLen) + int(h.PayloadLen)
		if len(pending) < total {
			break
		}
		payload := make([]byte, h.PayloadLen)
		copy(payload, pending[frame.HeaderLen:total])
		frames = append(frames, frame.Frame{Header: h, Payload: payload})
		consumed += total
		c.readCounter++
	}
	c.readBuf = append(c.readBuf[:0], c.readBuf[consumed:]...)

	if fatal != nil {
		c.broken = fatal
		log.Warn().Str("component", "channel").Err(fatal).Int("frames_before", len(frames)).Msg("connection-fatal header")
		return frames, fatal
	}
	return frames, nil
}

func (c *Channel) checkHeader(h frame.Header) error {
	if h.Magic != frame.Magic {
		return fmt.Errorf("%w: %w: got %#08x", ErrFraming, frame.ErrInvalidMagic, h.Magic)
	}
	if h.PayloadLen > c.limits.MaxPayloadBytes {
		return fmt.Errorf("%w: %w: %d > %d", ErrFrameTooLarge, frame.ErrPayloadTooLarge, h.PayloadLen, c.limits.MaxPayloadBytes)
	}
	if h.Counter != c.readCounter {
		return fmt.Errorf("%w: counter gap: got %d want %d", ErrFraming, h.Counter, c.readCounter)
	}
	return nil
}

// ResetCounters zeroes both counters and keeps buffered partial data.
func (c *Channel) ResetCounters() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writeCounter = 0
	c.readCounter = 0
}

// Rebind swaps the underlying stream. The old subscription is cancelled, the read
// buffer and broken state are cleared, counters are left to the caller.
func (c *Channel) Rebind(stream Stream) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.unbindLocked()
	c.bindLocked(stream)
}

// Close cancels the subscription and unbinds the stream. The stream itself is
// owned by the caller and is not closed.
func (c *Channel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.unbindLocked()
}

// Counters returns the write and read counters.
func (c *Channel) Counters() (write, read uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writeCounter, c.readCounter
}

func (c *Channel) Bound() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stream != nil
}

// Err returns the connection-fatal error, if any, recorded since the last bind.
func (c *Channel) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.broken
}

// Buffered returns the number of bytes held for an incomplete frame.
func (c *Channel) Buffered() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.readBuf)
}

func (c *Channel) unbindLocked() {
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.stream = nil
	c.gen++
	c.readBuf = nil
	c.broken = nil
}

func (c *Channel) bindLocked(stream Stream) {
	if stream == nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.stream = stream
	c.cancel = cancel
	c.readBuf = nil
	c.broken = nil
	go pump(ctx, c.gen, stream, c.events)
}

// pump forwards stream reads as events until the stream fails or ctx is cancelled.
// A Read already blocked when ctx is cancelled returns only once the owner closes the stream.
func pump(ctx context.Context, gen uint64, r io.Reader, out chan<- ReadEvent) {
	buf := make([]byte, readChunkSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			select {
			case out <- ReadEvent{Generation: gen, Data: data}:
			case <-ctx.Done():
				return
			}
		}
		if err != nil {
			select {
			case out <- ReadEvent{Generation: gen, Err: err}:
			case <-ctx.Done():
			}
			return
		}
		if ctx.Err() != nil {
			return
		}
	}
}

package dispatch

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/danmuck/clangipc/internal/protocol/message"
)

var (
	ErrUnhandledMessageType = errors.New("dispatch: unhandled message type")
	ErrHandlerNil           = errors.New("dispatch: handler is nil")
)

// Handler consumes one decoded message. It runs on the reactor goroutine and must
// return promptly; long work belongs on another goroutine.
type Handler func(message.Message)

// Table routes messages to exactly one handler per tag.
type Table struct {
	mu       sync.RWMutex
	handlers map[message.Type]Handler
}

// NewTable creates an empty dispatch table.
func NewTable() *Table {
	return &Table{handlers: make(map[message.Type]Handler)}
}

// Register installs h for t. A later registration for the same tag replaces it.
func (t *Table) Register(typ message.Type, h Handler) error {
	if h == nil {
		return ErrHandlerNil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handlers[typ] = h
	return nil
}

func (t *Table) Unregister(typ message.Type) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.handlers, typ)
}

// Dispatch invokes the handler for m's tag synchronously.
func (t *Table) Dispatch(m message.Message) error {
	if m == nil {
		return fmt.Errorf("%w: nil message", ErrUnhandledMessageType)
	}
	t.mu.RLock()
	h, ok := t.handlers[m.Type()]
	t.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnhandledMessageType, m.Type())
	}
	h(m)
	return nil
}

// Registered returns the tags with a handler, in tag order.
func (t *Table) Registered() []message.Type {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]message.Type, 0, len(t.handlers))
	for typ := range t.handlers {
		out = append(out, typ)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// On registers a handler typed to one variant: On(table, func(m message.CodeCompleted) {...}).
func On[M message.Message](t *Table, fn func(M)) error {
	if fn == nil {
		return ErrHandlerNil
	}
	var zero M
	return t.Register(zero.Type(), func(m message.Message) {
		if v, ok := m.(M); ok {
			fn(v)
		}
	})
}

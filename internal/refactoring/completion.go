package refactoring

import (
	"context"
	"errors"
	"sync"

	"github.com/danmuck/clangipc/internal/protocol/dispatch"
	"github.com/danmuck/clangipc/internal/protocol/message"
	"github.com/rs/zerolog/log"
)

var ErrCompletionSenderRequired = errors.New("refactoring: completion sender required")

type CompletionSender interface {
	CompleteCode(message.CompleteCode) error
}

type completionResult struct {
	completions []message.CodeCompletion
	err         error
}

type pendingCompletion struct {
	path  string
	reply chan completionResult
}

// Completions correlates CompleteCode requests with CodeCompleted replies by
// ticket number.
type Completions struct {
	server CompletionSender

	mu      sync.Mutex
	next    uint64
	pending map[uint64]pendingCompletion
}

func NewCompletions(server CompletionSender) (*Completions, error) {
	if server == nil {
		return nil, ErrCompletionSenderRequired
	}
	return &Completions{server: server, pending: make(map[uint64]pendingCompletion)}, nil
}

func (c *Completions) Register(table *dispatch.Table) error {
	return dispatch.On(table, c.CodeCompleted)
}

// Complete sends a request for the one-based position and waits for its reply.
func (c *Completions) Complete(ctx context.Context, filePath string, line, column uint32, projectPartID string) ([]message.CodeCompletion, error) {
	reply := make(chan completionResult, 1)
	c.mu.Lock()
	c.next++
	ticket := c.next
	c.pending[ticket] = pendingCompletion{path: filePath, reply: reply}
	c.mu.Unlock()
	defer c.forget(ticket)

	err := c.server.CompleteCode(message.CompleteCode{
		FilePath:      filePath,
		Line:          line,
		Column:        column,
		ProjectPartID: projectPartID,
		TicketNumber:  ticket,
	})
	if err != nil {
		return nil, err
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case got := <-reply:
		return got.completions, got.err
	}
}

func (c *Completions) CodeCompleted(m message.CodeCompleted) {
	c.mu.Lock()
	p, ok := c.pending[m.TicketNumber]
	delete(c.pending, m.TicketNumber)
	c.mu.Unlock()
	if !ok {
		log.Debug().Str("component", "refactoring").Uint64("ticket", m.TicketNumber).Msg("stale completion reply")
		return
	}
	p.reply <- completionResult{completions: m.CodeCompletions}
}

// FailPath ends every request waiting on filePath with err and returns how
// many there were. Replies are matched by ticket, so a reply that names only
// the file fails all of its requests.
func (c *Completions) FailPath(filePath string, err error) int {
	return c.fail(func(p pendingCompletion) bool { return p.path == filePath }, err)
}

// FailAll ends every waiting request with err.
func (c *Completions) FailAll(err error) int {
	return c.fail(func(pendingCompletion) bool { return true }, err)
}

func (c *Completions) fail(match func(pendingCompletion) bool, err error) int {
	c.mu.Lock()
	var failed []pendingCompletion
	for ticket, p := range c.pending {
		if match(p) {
			failed = append(failed, p)
			delete(c.pending, ticket)
		}
	}
	c.mu.Unlock()
	for _, p := range failed {
		p.reply <- completionResult{err: err}
	}
	return len(failed)
}

// Pending returns the number of requests awaiting a reply.
func (c *Completions) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

func (c *Completions) forget(ticket uint64) {
	c.mu.Lock()
	delete(c.pending, ticket)
	c.mu.Unlock()
}

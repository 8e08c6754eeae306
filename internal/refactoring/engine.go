package refactoring

import (
	"errors"
	"sync"

	"github.com/danmuck/clangipc/internal/protocol/dispatch"
	"github.com/danmuck/clangipc/internal/protocol/message"
	"github.com/rs/zerolog/log"
)

var (
	ErrBusy           = errors.New("refactoring: renaming already in progress")
	ErrServerRequired = errors.New("refactoring: server required")
	ErrCallbackNil    = errors.New("refactoring: rename callback is nil")
)

// Cursor is the editor position a rename starts from. Line and Column are
// zero-based, the way editor document models report them.
type Cursor struct {
	FilePath string
	Line     uint32
	Column   uint32
	Content  string
	Revision uint32
}

// ProjectPart supplies the toolchain arguments used to parse a file.
type ProjectPart interface {
	CommandLine(filePath string) []string
}

type ProjectPartFunc func(filePath string) []string

func (f ProjectPartFunc) CommandLine(filePath string) []string {
	return f(filePath)
}

// RenameCallback receives the occurrences of the symbol under the cursor.
type RenameCallback func(symbolName string, locations []message.SourceLocation, revision uint32)

type Sender interface {
	RequestSourceLocationsForRenaming(message.RequestSourceLocationsForRenaming) error
}

// Engine drives local renaming over a backend connection. One request is in
// flight at a time; the engine is unusable until the reply arrives.
type Engine struct {
	server Sender

	mu       sync.Mutex
	usable   bool
	callback RenameCallback
}

func NewEngine(server Sender) (*Engine, error) {
	if server == nil {
		return nil, ErrServerRequired
	}
	return &Engine{server: server, usable: true}, nil
}

// Register routes SourceLocationsForRenaming replies on table to the engine.
func (e *Engine) Register(table *dispatch.Table) error {
	return dispatch.On(table, e.SourceLocationsForRenaming)
}

func (e *Engine) IsUsable() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.usable
}

func (e *Engine) SetUsable(usable bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.usable = usable
}

// StartLocalRenaming asks the backend for every occurrence of the symbol under
// cur. The file path is appended to the project part's command line.
func (e *Engine) StartLocalRenaming(cur Cursor, part ProjectPart, cb RenameCallback) error {
	if cb == nil {
		return ErrCallbackNil
	}
	e.mu.Lock()
	if !e.usable {
		e.mu.Unlock()
		return ErrBusy
	}
	e.usable = false
	e.callback = cb
	e.mu.Unlock()

	var args []string
	if part != nil {
		args = append(args, part.CommandLine(cur.FilePath)...)
	}
	args = append(args, cur.FilePath)

	req := message.RequestSourceLocationsForRenaming{
		FilePath:             cur.FilePath,
		Line:                 cur.Line + 1,
		Column:               cur.Column + 1,
		UnsavedContent:       cur.Content,
		CommandLine:          args,
		TextDocumentRevision: cur.Revision,
	}
	if err := e.server.RequestSourceLocationsForRenaming(req); err != nil {
		e.mu.Lock()
		e.usable = true
		e.callback = nil
		e.mu.Unlock()
		return err
	}
	log.Debug().Str("component", "refactoring").Str("file", cur.FilePath).
		Uint32("line", req.Line).Uint32("column", req.Column).Msg("renaming requested")
	return nil
}

// SourceLocationsForRenaming completes the pending rename and makes the engine
// usable again. Replies with nothing pending are dropped.
func (e *Engine) SourceLocationsForRenaming(m message.SourceLocationsForRenaming) {
	e.mu.Lock()
	cb := e.callback
	e.callback = nil
	e.usable = true
	e.mu.Unlock()

	if cb == nil {
		log.Warn().Str("component", "refactoring").Str("symbol", m.SymbolName).Msg("renaming reply without request")
		return
	}
	cb(m.SymbolName, m.SourceLocations, m.TextDocumentRevision)
}

// Cancel abandons the pending rename and makes the engine usable again. A
// reply that arrives afterwards is dropped. It reports whether a rename was
// pending.
func (e *Engine) Cancel() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	pending := e.callback != nil
	e.callback = nil
	e.usable = true
	return pending
}

package backend

import (
	"context"
	"errors"
	"os"
	"sort"
	"sync"

	"github.com/danmuck/clangipc/internal/protocol/channel"
	"github.com/danmuck/clangipc/internal/protocol/dispatch"
	"github.com/danmuck/clangipc/internal/protocol/message"
	"github.com/danmuck/clangipc/internal/protocol/proxy"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var errEnded = errors.New("backend: end requested")

// Client is the reply side of a connection, normally a *proxy.ClientProxy.
type Client interface {
	Alive() error
	DocumentAnnotationsChanged(message.DocumentAnnotationsChanged) error
	SourceLocationsForRenaming(message.SourceLocationsForRenaming) error
	CodeCompleted(message.CodeCompleted) error
	TranslationUnitDoesNotExist(message.FileContainer) error
}

type Config struct {
	Proxy proxy.Config
	// ReadFile loads files that arrive without unsaved content. Defaults to os.ReadFile.
	ReadFile func(path string) ([]byte, error)
}

func DefaultConfig() Config {
	return Config{Proxy: proxy.DefaultConfig("backend"), ReadFile: os.ReadFile}
}

type unitKey struct {
	path          string
	projectPartID string
}

type unit struct {
	container message.FileContainer
	content   string
}

// Worker answers client requests from an in-memory translation-unit store.
// Handlers run on the proxy reactor.
type Worker struct {
	readFile func(string) ([]byte, error)
	logger   zerolog.Logger

	client Client

	mu    sync.RWMutex
	units map[unitKey]unit

	doneOnce sync.Once
	done     chan struct{}
}

func NewWorker(cfg Config) *Worker {
	if cfg.ReadFile == nil {
		cfg.ReadFile = os.ReadFile
	}
	return &Worker{
		readFile: cfg.ReadFile,
		logger:   log.Logger.With().Str("component", "backend").Logger(),
		units:    make(map[unitKey]unit),
		done:     make(chan struct{}),
	}
}

// Attach sets the reply side. Call it before any message is dispatched.
func (w *Worker) Attach(c Client) {
	w.client = c
}

// Done is closed once End has been received.
func (w *Worker) Done() <-chan struct{} {
	return w.done
}

// Units returns the paths currently held, sorted.
func (w *Worker) Units() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]string, 0, len(w.units))
	for k := range w.units {
		out = append(out, k.path)
	}
	sort.Strings(out)
	return out
}

func (w *Worker) End() {
	w.doneOnce.Do(func() {
		w.logger.Info().Msg("end received")
		close(w.done)
	})
}

func (w *Worker) Alive() {
	w.reply("Alive", w.client.Alive())
}

// UpdateTranslationUnitsForEditor stores each container and publishes its annotations.
func (w *Worker) UpdateTranslationUnitsForEditor(m message.UpdateTranslationUnitsForEditor) {
	for _, fc := range m.FileContainers {
		content, err := w.contentOf(fc)
		if err != nil {
			w.logger.Warn().Err(err).Str("file", fc.FilePath).Msg("read translation unit")
		}
		w.mu.Lock()
		w.units[unitKey{fc.FilePath, fc.ProjectPartID}] = unit{container: fc, content: content}
		w.mu.Unlock()
		w.logger.Debug().Str("file", fc.FilePath).Uint32("revision", fc.Revision).Msg("translation unit updated")

		w.reply("DocumentAnnotationsChanged", w.client.DocumentAnnotationsChanged(message.DocumentAnnotationsChanged{
			FileContainer: fc,
			Diagnostics:   diagnose(fc.FilePath, content),
		}))
	}
}

func (w *Worker) RemoveTranslationUnitsForEditor(m message.RemoveTranslationUnitsForEditor) {
	for _, fc := range m.FileContainers {
		key := unitKey{fc.FilePath, fc.ProjectPartID}
		w.mu.Lock()
		_, ok := w.units[key]
		delete(w.units, key)
		w.mu.Unlock()
		if !ok {
			w.reply("TranslationUnitDoesNotExist", w.client.TranslationUnitDoesNotExist(fc))
		}
	}
}

func (w *Worker) RequestDocumentAnnotations(m message.RequestDocumentAnnotations) {
	fc := m.FileContainer
	w.mu.RLock()
	u, ok := w.units[unitKey{fc.FilePath, fc.ProjectPartID}]
	w.mu.RUnlock()
	if !ok {
		w.reply("TranslationUnitDoesNotExist", w.client.TranslationUnitDoesNotExist(fc))
		return
	}
	w.reply("DocumentAnnotationsChanged", w.client.DocumentAnnotationsChanged(message.DocumentAnnotationsChanged{
		FileContainer: u.container,
		Diagnostics:   diagnose(u.container.FilePath, u.content),
	}))
}

// RequestSourceLocationsForRenaming lists every token spelling the identifier
// under the cursor. Unsaved content in the request wins over the store.
func (w *Worker) RequestSourceLocationsForRenaming(m message.RequestSourceLocationsForRenaming) {
	content := m.UnsavedContent
	if content == "" {
		if u, ok := w.lookupPath(m.FilePath); ok {
			content = u.content
		} else if data, err := w.readFile(m.FilePath); err == nil {
			content = string(data)
		}
	}
	toks, _ := lex(content)
	reply := message.SourceLocationsForRenaming{TextDocumentRevision: m.TextDocumentRevision}
	if t, ok := identifierAt(toks, m.Line, m.Column); ok && !keywordSet[t.text] {
		reply.SymbolName = t.text
		reply.SourceLocations = occurrences(toks, m.FilePath, t.text)
	}
	w.reply("SourceLocationsForRenaming", w.client.SourceLocationsForRenaming(reply))
}

func (w *Worker) CompleteCode(m message.CompleteCode) {
	u, ok := w.lookup(m.FilePath, m.ProjectPartID)
	if !ok {
		w.reply("TranslationUnitDoesNotExist", w.client.TranslationUnitDoesNotExist(message.FileContainer{
			FilePath:      m.FilePath,
			ProjectPartID: m.ProjectPartID,
		}))
		return
	}
	w.reply("CodeCompleted", w.client.CodeCompleted(message.CodeCompleted{
		CodeCompletions: complete(u.content, m.Line, m.Column),
		TicketNumber:    m.TicketNumber,
	}))
}

func (w *Worker) lookup(path, projectPartID string) (unit, bool) {
	w.mu.RLock()
	u, ok := w.units[unitKey{path, projectPartID}]
	w.mu.RUnlock()
	if ok {
		return u, true
	}
	if projectPartID == "" {
		return w.lookupPath(path)
	}
	return unit{}, false
}

func (w *Worker) lookupPath(path string) (unit, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	for k, u := range w.units {
		if k.path == path {
			return u, true
		}
	}
	return unit{}, false
}

func (w *Worker) contentOf(fc message.FileContainer) (string, error) {
	if fc.HasUnsavedContent {
		return fc.UnsavedContent, nil
	}
	data, err := w.readFile(fc.FilePath)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (w *Worker) reply(kind string, err error) {
	if err != nil {
		w.logger.Warn().Err(err).Str("reply", kind).Msg("reply not sent")
	}
}

// stopOnEnd replaces the End handler on table so that End drops every other
// handler before stopping w. Requests queued behind End in the same read are
// then reported as unhandled instead of being served.
func stopOnEnd(table *dispatch.Table, w *Worker) {
	_ = dispatch.On(table, func(message.End) {
		for _, typ := range table.Registered() {
			if typ != message.TypeEnd {
				table.Unregister(typ)
			}
		}
		w.End()
	})
}

// Serve runs a worker on stream until End is received, the connection is lost,
// or ctx is cancelled. End yields a nil error.
func Serve(ctx context.Context, stream channel.Stream, cfg Config) error {
	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	next := cfg.Proxy.Reporter
	cfg.Proxy.Reporter = proxy.ReporterFuncs{
		OnFrameError: func(err error) {
			if next != nil {
				next.FrameError(err)
			}
		},
		OnConnectionError: func(err error) {
			if next != nil {
				next.ConnectionError(err)
			}
			cancel(err)
		},
	}

	w := NewWorker(cfg)
	cp := proxy.NewClientProxy(stream, w, cfg.Proxy)
	w.Attach(cp)
	stopOnEnd(cp.Table(), w)
	defer cp.Close()

	go func() {
		select {
		case <-w.Done():
			cancel(errEnded)
		case <-runCtx.Done():
		}
	}()

	_ = cp.Run(runCtx)
	cause := context.Cause(runCtx)
	switch {
	case errors.Is(cause, errEnded):
		return nil
	case ctx.Err() != nil:
		return ctx.Err()
	default:
		return cause
	}
}

package editor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/danmuck/clangipc/internal/auth"
	"github.com/danmuck/clangipc/internal/config"
	"github.com/danmuck/clangipc/internal/protocol/message"
	"github.com/danmuck/clangipc/internal/protocol/proxy"
	"github.com/danmuck/clangipc/internal/refactoring"
	"github.com/danmuck/clangipc/internal/supervisor"
	"github.com/danmuck/clangipc/internal/transport"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	ErrNoTranslationUnit = errors.New("editor: translation unit does not exist")
	ErrAnnotationPending = errors.New("editor: annotations already awaited for file")
	ErrConnectionLost    = errors.New("editor: connection lost")
)

// Rename is the reply to one local renaming request.
type Rename struct {
	SymbolName string
	Locations  []message.SourceLocation
	Revision   uint32
}

type renameReply struct {
	rename Rename
	err    error
}

type annotationReply struct {
	changed message.DocumentAnnotationsChanged
	err     error
}

// Session is the editor end of one backend connection. It keeps the connection
// alive through the supervisor and turns the asynchronous replies into calls
// that wait.
type Session struct {
	sp          *proxy.ServerProxy
	sup         *supervisor.Supervisor
	engine      *refactoring.Engine
	completions *refactoring.Completions
	logger      zerolog.Logger

	renameMu sync.Mutex

	mu          sync.Mutex
	alive       []chan struct{}
	annotations map[string]chan annotationReply
	renaming    chan renameReply

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// DialerFor picks the transport dialer named by cfg.
func DialerFor(cfg config.Config) (supervisor.Dialer, error) {
	switch cfg.Transport {
	case transport.KindTCP:
		return transport.TCPDialer(cfg.Listen, cfg.DialTimeout), nil
	case transport.KindWebsocket:
		return transport.WebsocketDialer("ws://"+cfg.Listen+cfg.WebsocketPath, auth.Header(cfg.AuthToken), cfg.DialTimeout), nil
	default:
		return nil, fmt.Errorf("%w: %q", transport.ErrUnknownTransport, cfg.Transport)
	}
}

// Open connects to the backend described by cfg and starts the reactor and the
// reconnect loop.
func Open(ctx context.Context, cfg config.Config) (*Session, error) {
	dialer, err := DialerFor(cfg)
	if err != nil {
		return nil, err
	}
	return OpenWith(ctx, dialer, cfg)
}

// OpenWith is Open over an explicit dialer.
func OpenWith(ctx context.Context, dialer supervisor.Dialer, cfg config.Config) (*Session, error) {
	sup, err := supervisor.New(dialer, supervisor.Config{
		Backoff:            cfg.Backoff,
		MaxConnectAttempts: cfg.MaxConnectAttempts,
	})
	if err != nil {
		return nil, err
	}

	s := &Session{
		sup:         sup,
		logger:      log.Logger.With().Str("component", "editor").Logger(),
		annotations: make(map[string]chan annotationReply),
	}
	pcfg := proxy.DefaultConfig("client")
	pcfg.Limits = cfg.Limits
	pcfg.Reporter = proxy.ReporterFuncs{
		OnFrameError:      sup.FrameError,
		OnConnectionError: func(err error) {
			s.connectionLost(err)
			sup.ConnectionError(err)
		},
	}
	s.sp = proxy.NewServerProxy(nil, s, pcfg)
	if s.engine, err = refactoring.NewEngine(s.sp); err != nil {
		return nil, err
	}
	if s.completions, err = refactoring.NewCompletions(s.sp); err != nil {
		return nil, err
	}

	if err := sup.Connect(ctx, s.sp); err != nil {
		s.sp.Close()
		return nil, err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		_ = s.sp.Run(runCtx)
	}()
	go func() {
		defer s.wg.Done()
		if err := sup.Run(runCtx, s.sp); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error().Err(err).Msg("reconnect gave up")
		}
	}()
	return s, nil
}

func (s *Session) Proxy() *proxy.ServerProxy {
	return s.sp
}

func (s *Session) Reconnects() int {
	return s.sup.Reconnects()
}

// Ping sends Alive and waits for the backend's echo.
func (s *Session) Ping(ctx context.Context) (time.Duration, error) {
	reply := make(chan struct{})
	s.mu.Lock()
	s.alive = append(s.alive, reply)
	s.mu.Unlock()

	start := time.Now()
	if err := s.sp.Alive(); err != nil {
		s.dropAlive(reply)
		return 0, err
	}
	select {
	case <-ctx.Done():
		s.dropAlive(reply)
		return 0, ctx.Err()
	case <-reply:
		return time.Since(start), nil
	}
}

// Annotate sends fc as the editor's current view of the file and waits for the
// diagnostics published in response.
func (s *Session) Annotate(ctx context.Context, fc message.FileContainer) (message.DocumentAnnotationsChanged, error) {
	reply, err := s.awaitAnnotations(fc.FilePath)
	if err != nil {
		return message.DocumentAnnotationsChanged{}, err
	}
	defer s.dropAnnotations(fc.FilePath, reply)

	if err := s.sp.UpdateTranslationUnitsForEditor([]message.FileContainer{fc}); err != nil {
		return message.DocumentAnnotationsChanged{}, err
	}
	return waitAnnotations(ctx, reply)
}

// Annotations asks for the diagnostics of a file the backend already holds.
func (s *Session) Annotations(ctx context.Context, fc message.FileContainer) (message.DocumentAnnotationsChanged, error) {
	reply, err := s.awaitAnnotations(fc.FilePath)
	if err != nil {
		return message.DocumentAnnotationsChanged{}, err
	}
	defer s.dropAnnotations(fc.FilePath, reply)

	if err := s.sp.RequestDocumentAnnotations(fc); err != nil {
		return message.DocumentAnnotationsChanged{}, err
	}
	return waitAnnotations(ctx, reply)
}

func (s *Session) Forget(fc message.FileContainer) error {
	return s.sp.RemoveTranslationUnitsForEditor([]message.FileContainer{fc})
}

// Rename runs one local renaming request and waits for its reply. A call made
// while another is waiting returns refactoring.ErrBusy. When ctx ends first the
// request is abandoned and its late reply is dropped.
func (s *Session) Rename(ctx context.Context, cur refactoring.Cursor, part refactoring.ProjectPart) (Rename, error) {
	if !s.renameMu.TryLock() {
		return Rename{}, refactoring.ErrBusy
	}
	defer s.renameMu.Unlock()

	reply := make(chan renameReply, 1)
	s.mu.Lock()
	s.renaming = reply
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.renaming = nil
		s.mu.Unlock()
	}()

	err := s.engine.StartLocalRenaming(cur, part, func(symbol string, locs []message.SourceLocation, revision uint32) {
		reply <- renameReply{rename: Rename{SymbolName: symbol, Locations: locs, Revision: revision}}
	})
	if err != nil {
		return Rename{}, err
	}
	select {
	case <-ctx.Done():
		s.engine.Cancel()
		return Rename{}, ctx.Err()
	case r := <-reply:
		return r.rename, r.err
	}
}

// Complete asks for completions at the one-based position.
func (s *Session) Complete(ctx context.Context, path string, line, column uint32, projectPartID string) ([]message.CodeCompletion, error) {
	return s.completions.Complete(ctx, path, line, column, projectPartID)
}

// Close sends End, stops the reactor and the reconnect loop, and closes the
// stream. It is safe to call more than once.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		if err := s.sp.End(); err != nil {
			s.logger.Debug().Err(err).Msg("end not sent")
		}
		s.cancel()
		s.wg.Wait()
		s.sp.Close()
	})
}

func (s *Session) Alive() {
	s.mu.Lock()
	waiting := s.alive
	s.alive = nil
	s.mu.Unlock()
	for _, ch := range waiting {
		close(ch)
	}
}

func (s *Session) DocumentAnnotationsChanged(m message.DocumentAnnotationsChanged) {
	s.resolveAnnotations(m.FileContainer.FilePath, annotationReply{changed: m})
}

func (s *Session) SourceLocationsForRenaming(m message.SourceLocationsForRenaming) {
	s.engine.SourceLocationsForRenaming(m)
}

func (s *Session) CodeCompleted(m message.CodeCompleted) {
	s.completions.CodeCompleted(m)
}

func (s *Session) TranslationUnitDoesNotExist(m message.TranslationUnitDoesNotExist) {
	path := m.FileContainer.FilePath
	missing := fmt.Errorf("%w: %s", ErrNoTranslationUnit, path)
	annotated := s.resolveAnnotations(path, annotationReply{err: missing})
	completed := s.completions.FailPath(path, missing)
	if !annotated && completed == 0 {
		s.logger.Debug().Str("file", path).Msg("translation unit does not exist")
	}
}

// connectionLost ends every call waiting on the lost stream. Their replies
// cannot arrive on the next one.
func (s *Session) connectionLost(cause error) {
	lost := fmt.Errorf("%w: %w", ErrConnectionLost, cause)

	cancelled := s.engine.Cancel()
	s.mu.Lock()
	renaming := s.renaming
	annotations := s.annotations
	s.annotations = make(map[string]chan annotationReply)
	s.mu.Unlock()

	if cancelled && renaming != nil {
		select {
		case renaming <- renameReply{err: lost}:
		default:
		}
	}
	for _, reply := range annotations {
		reply <- annotationReply{err: lost}
	}
	failed := s.completions.FailAll(lost)
	s.logger.Debug().
		Err(cause).
		Int("annotations", len(annotations)).
		Int("completions", failed).
		Msg("waiting calls failed")
}

func (s *Session) awaitAnnotations(path string) (chan annotationReply, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.annotations[path]; ok {
		return nil, fmt.Errorf("%w: %s", ErrAnnotationPending, path)
	}
	reply := make(chan annotationReply, 1)
	s.annotations[path] = reply
	return reply, nil
}

func (s *Session) resolveAnnotations(path string, r annotationReply) bool {
	s.mu.Lock()
	reply, ok := s.annotations[path]
	delete(s.annotations, path)
	s.mu.Unlock()
	if ok {
		reply <- r
	}
	return ok
}

func (s *Session) dropAnnotations(path string, reply chan annotationReply) {
	s.mu.Lock()
	if s.annotations[path] == reply {
		delete(s.annotations, path)
	}
	s.mu.Unlock()
}

func (s *Session) dropAlive(reply chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, ch := range s.alive {
		if ch == reply {
			s.alive = append(s.alive[:i], s.alive[i+1:]...)
			return
		}
	}
}

func waitAnnotations(ctx context.Context, reply <-chan annotationReply) (message.DocumentAnnotationsChanged, error) {
	select {
	case <-ctx.Done():
		return message.DocumentAnnotationsChanged{}, ctx.Err()
	case r := <-reply:
		return r.changed, r.err
	}
}

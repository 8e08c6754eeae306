package backend

import (
	"context"
	"errors"
	"io/fs"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/danmuck/clangipc/internal/protocol/dispatch"
	"github.com/danmuck/clangipc/internal/protocol/message"
	"github.com/danmuck/clangipc/internal/protocol/proxy"
	"github.com/danmuck/clangipc/internal/testutil/testlog"
	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type recordingClient struct {
	mu          sync.Mutex
	alive       int
	annotations []message.DocumentAnnotationsChanged
	renames     []message.SourceLocationsForRenaming
	completions []message.CodeCompleted
	missing     []message.FileContainer
}

func (c *recordingClient) Alive() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.alive++
	return nil
}

func (c *recordingClient) DocumentAnnotationsChanged(m message.DocumentAnnotationsChanged) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.annotations = append(c.annotations, m)
	return nil
}

func (c *recordingClient) SourceLocationsForRenaming(m message.SourceLocationsForRenaming) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.renames = append(c.renames, m)
	return nil
}

func (c *recordingClient) CodeCompleted(m message.CodeCompleted) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.completions = append(c.completions, m)
	return nil
}

func (c *recordingClient) TranslationUnitDoesNotExist(fc message.FileContainer) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.missing = append(c.missing, fc)
	return nil
}

func newTestWorker(files map[string]string) (*Worker, *recordingClient) {
	w := NewWorker(Config{ReadFile: func(path string) ([]byte, error) {
		if s, ok := files[path]; ok {
			return []byte(s), nil
		}
		return nil, fs.ErrNotExist
	}})
	c := &recordingClient{}
	w.Attach(c)
	return w, c
}

func TestUpdatePublishesAnnotationsAndStoresUnit(t *testing.T) {
	testlog.Start(t)
	w, c := newTestWorker(map[string]string{"/src/disk.cpp": "int f( {"})

	saved := message.NewFileContainer("/src/disk.cpp", "part", []string{"-Wall"}, 1)
	edited := message.NewFileContainer("/src/edit.cpp", "part", nil, 4).WithUnsavedContent("int ok() { return 0; }")
	w.UpdateTranslationUnitsForEditor(message.UpdateTranslationUnitsForEditor{FileContainers: []message.FileContainer{saved, edited}})

	if diff := cmp.Diff([]string{"/src/disk.cpp", "/src/edit.cpp"}, w.Units()); diff != "" {
		t.Fatalf("units mismatch (-want +got):\n%s", diff)
	}
	if len(c.annotations) != 2 {
		t.Fatalf("expected two annotation replies, got %d", len(c.annotations))
	}
	if len(c.annotations[0].Diagnostics) != 2 {
		t.Fatalf("expected diagnostics for unbalanced disk file, got %+v", c.annotations[0].Diagnostics)
	}
	if len(c.annotations[1].Diagnostics) != 0 || c.annotations[1].FileContainer.Revision != 4 {
		t.Fatalf("unexpected edited annotations: %+v", c.annotations[1])
	}
}

func TestAnnotationsForUnknownUnitReportDoesNotExist(t *testing.T) {
	testlog.Start(t)
	w, c := newTestWorker(nil)
	fc := message.NewFileContainer("/nope.cpp", "part", nil, 0)
	w.RequestDocumentAnnotations(message.RequestDocumentAnnotations{FileContainer: fc})
	w.RemoveTranslationUnitsForEditor(message.RemoveTranslationUnitsForEditor{FileContainers: []message.FileContainer{fc}})
	if diff := cmp.Diff([]message.FileContainer{fc, fc}, c.missing); diff != "" {
		t.Fatalf("missing mismatch (-want +got):\n%s", diff)
	}
	if len(c.annotations) != 0 {
		t.Fatalf("unexpected annotations: %+v", c.annotations)
	}
}

func TestRemoveThenRequestAnnotations(t *testing.T) {
	testlog.Start(t)
	w, c := newTestWorker(nil)
	fc := message.NewFileContainer("/a.cpp", "p", nil, 1).WithUnsavedContent("int a;")
	w.UpdateTranslationUnitsForEditor(message.UpdateTranslationUnitsForEditor{FileContainers: []message.FileContainer{fc}})
	w.RequestDocumentAnnotations(message.RequestDocumentAnnotations{FileContainer: fc})
	if len(c.annotations) != 2 {
		t.Fatalf("expected update and request annotations, got %d", len(c.annotations))
	}
	w.RemoveTranslationUnitsForEditor(message.RemoveTranslationUnitsForEditor{FileContainers: []message.FileContainer{fc}})
	if len(c.missing) != 0 || len(w.Units()) != 0 {
		t.Fatalf("remove of stored unit misbehaved: missing=%d units=%v", len(c.missing), w.Units())
	}
	w.RequestDocumentAnnotations(message.RequestDocumentAnnotations{FileContainer: fc})
	if len(c.missing) != 1 {
		t.Fatalf("expected TranslationUnitDoesNotExist after remove")
	}
}

func TestRenamingUsesUnsavedContentFirst(t *testing.T) {
	testlog.Start(t)
	w, c := newTestWorker(nil)
	w.RequestSourceLocationsForRenaming(message.RequestSourceLocationsForRenaming{
		FilePath:             "/r.cpp",
		Line:                 2,
		Column:               3,
		UnsavedContent:       "int total;\ntotal = total + 1;\n",
		TextDocumentRevision: 9,
	})
	want := []message.SourceLocationsForRenaming{{
		SymbolName: "total",
		SourceLocations: []message.SourceLocation{
			{FilePath: "/r.cpp", Line: 1, Column: 5},
			{FilePath: "/r.cpp", Line: 2, Column: 1},
			{FilePath: "/r.cpp", Line: 2, Column: 9},
		},
		TextDocumentRevision: 9,
	}}
	if diff := cmp.Diff(want, c.renames); diff != "" {
		t.Fatalf("rename mismatch (-want +got):\n%s", diff)
	}
}

func TestRenamingOnKeywordOrSpaceFindsNothing(t *testing.T) {
	testlog.Start(t)
	w, c := newTestWorker(map[string]string{"/k.cpp": "return  x;"})
	w.RequestSourceLocationsForRenaming(message.RequestSourceLocationsForRenaming{FilePath: "/k.cpp", Line: 1, Column: 2})
	w.RequestSourceLocationsForRenaming(message.RequestSourceLocationsForRenaming{FilePath: "/k.cpp", Line: 1, Column: 8})
	if len(c.renames) != 2 {
		t.Fatalf("expected two replies, got %d", len(c.renames))
	}
	for _, r := range c.renames {
		if r.SymbolName != "" || len(r.SourceLocations) != 0 {
			t.Fatalf("expected empty reply, got %+v", r)
		}
	}
}

func TestCompleteCodeEchoesTicket(t *testing.T) {
	testlog.Start(t)
	w, c := newTestWorker(nil)
	fc := message.NewFileContainer("/c.cpp", "p", nil, 1).WithUnsavedContent("int value;\nva")
	w.UpdateTranslationUnitsForEditor(message.UpdateTranslationUnitsForEditor{FileContainers: []message.FileContainer{fc}})
	w.CompleteCode(message.CompleteCode{FilePath: "/c.cpp", Line: 2, Column: 3, ProjectPartID: "p", TicketNumber: 42})
	w.CompleteCode(message.CompleteCode{FilePath: "/c.cpp", Line: 2, Column: 3, TicketNumber: 43})
	w.CompleteCode(message.CompleteCode{FilePath: "/missing.cpp", Line: 1, Column: 1, TicketNumber: 44})

	if len(c.completions) != 2 {
		t.Fatalf("expected two completion replies, got %d", len(c.completions))
	}
	for i, ticket := range []uint64{42, 43} {
		got := c.completions[i]
		if got.TicketNumber != ticket || len(got.CodeCompletions) == 0 || got.CodeCompletions[0].Text != "value" {
			t.Fatalf("unexpected completion %d: %+v", i, got)
		}
	}
	if len(c.missing) != 1 || c.missing[0].FilePath != "/missing.cpp" {
		t.Fatalf("expected missing unit reply, got %+v", c.missing)
	}
}

func TestAliveEchoAndEnd(t *testing.T) {
	testlog.Start(t)
	w, c := newTestWorker(nil)
	w.Alive()
	if c.alive != 1 {
		t.Fatalf("expected alive echo")
	}
	w.End()
	w.End()
	select {
	case <-w.Done():
	default:
		t.Fatalf("done not closed after End")
	}
}

type annotationsClient struct {
	proxy.NopClient
	alive chan struct{}
	ann   chan message.DocumentAnnotationsChanged
}

func (a *annotationsClient) Alive() { a.alive <- struct{}{} }

func (a *annotationsClient) DocumentAnnotationsChanged(m message.DocumentAnnotationsChanged) {
	a.ann <- m
}

func TestEndDropsRemainingHandlers(t *testing.T) {
	testlog.Start(t)
	w := NewWorker(DefaultConfig())
	table := dispatch.NewTable()
	served := 0
	_ = dispatch.On(table, func(message.Alive) { served++ })
	_ = dispatch.On(table, func(message.CompleteCode) { served++ })
	stopOnEnd(table, w)

	if err := table.Dispatch(message.End{}); err != nil {
		t.Fatalf("dispatch end: %v", err)
	}
	select {
	case <-w.Done():
	default:
		t.Fatalf("worker not stopped by End")
	}
	if err := table.Dispatch(message.Alive{}); !errors.Is(err, dispatch.ErrUnhandledMessageType) {
		t.Fatalf("expected alive after End to be unhandled, got %v", err)
	}
	if served != 0 {
		t.Fatalf("handlers ran after End: %d", served)
	}
	if diff := cmp.Diff([]message.Type{message.TypeEnd}, table.Registered()); diff != "" {
		t.Fatalf("registered mismatch (-want +got):\n%s", diff)
	}
}

func TestServeOverPipeUntilEnd(t *testing.T) {
	testlog.Start(t)
	clientEnd, backendEnd := net.Pipe()
	t.Cleanup(func() {
		_ = clientEnd.Close()
		_ = backendEnd.Close()
	})

	served := make(chan error, 1)
	go func() { served <- Serve(context.Background(), backendEnd, DefaultConfig()) }()

	rec := &annotationsClient{alive: make(chan struct{}, 1), ann: make(chan message.DocumentAnnotationsChanged, 1)}
	sp := proxy.NewServerProxy(clientEnd, rec, proxy.DefaultConfig("client"))
	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		_ = sp.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-runDone
		sp.Close()
	})

	if err := sp.Alive(); err != nil {
		t.Fatalf("alive: %v", err)
	}
	select {
	case <-rec.alive:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for alive echo")
	}

	fc := message.NewFileContainer("/s.cpp", "p", nil, 3).WithUnsavedContent("int main() {}")
	if err := sp.UpdateTranslationUnitsForEditor([]message.FileContainer{fc}); err != nil {
		t.Fatalf("update: %v", err)
	}
	select {
	case got := <-rec.ann:
		if diff := cmp.Diff(fc, got.FileContainer); diff != "" {
			t.Fatalf("container mismatch (-want +got):\n%s", diff)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for annotations")
	}

	if err := sp.End(); err != nil {
		t.Fatalf("end: %v", err)
	}
	select {
	case err := <-served:
		if err != nil {
			t.Fatalf("serve returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("serve did not stop after End")
	}
}

func TestServeReturnsConnectionError(t *testing.T) {
	testlog.Start(t)
	clientEnd, backendEnd := net.Pipe()
	t.Cleanup(func() { _ = backendEnd.Close() })

	served := make(chan error, 1)
	go func() { served <- Serve(context.Background(), backendEnd, DefaultConfig()) }()
	_ = clientEnd.Close()

	select {
	case err := <-served:
		if !proxy.IsConnectionFatal(err) {
			t.Fatalf("expected connection-fatal error, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("serve did not stop after stream loss")
	}
}

func TestServeStopsOnContextCancel(t *testing.T) {
	testlog.Start(t)
	clientEnd, backendEnd := net.Pipe()
	t.Cleanup(func() {
		_ = clientEnd.Close()
		_ = backendEnd.Close()
	})
	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- Serve(ctx, backendEnd, DefaultConfig()) }()
	cancel()
	select {
	case err := <-served:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("serve did not stop after cancel")
	}
}

package message

import "github.com/danmuck/clangipc/internal/protocol/wire"

// FileContainer is a snapshot of one source file as the sender knew it.
type FileContainer struct {
	FilePath          string
	ProjectPartID     string
	UnsavedContent    string
	HasUnsavedContent bool
	Arguments         []string
	Revision          uint32
}

// NewFileContainer copies args so later mutation by the caller cannot leak into
// a container that was already handed to a proxy.
func NewFileContainer(path, projectPartID string, args []string, revision uint32) FileContainer {
	return FileContainer{
		FilePath:      path,
		ProjectPartID: projectPartID,
		Arguments:     cloneStrings(args),
		Revision:      revision,
	}
}

// WithUnsavedContent returns a copy carrying in-memory editor content.
func (f FileContainer) WithUnsavedContent(content string) FileContainer {
	f.UnsavedContent = content
	f.HasUnsavedContent = true
	f.Arguments = cloneStrings(f.Arguments)
	return f
}

// SourceLocation is a one-based line/column inside a file.
type SourceLocation struct {
	FilePath string
	Line     uint32
	Column   uint32
}

type Severity uint8

const (
	SeverityIgnored Severity = iota
	SeverityNote
	SeverityWarning
	SeverityError
	SeverityFatal
)

type Diagnostic struct {
	Text     string
	Category string
	Severity Severity
	Location SourceLocation
}

type CompletionKind uint8

const (
	CompletionOther CompletionKind = iota
	CompletionFunction
	CompletionVariable
	CompletionClass
	CompletionKeyword
)

type CodeCompletion struct {
	Text     string
	Priority uint32
	Kind     CompletionKind
}

func cloneStrings(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func putFileContainer(w *wire.Writer, f FileContainer) {
	w.PutString(f.FilePath)
	w.PutString(f.ProjectPartID)
	w.PutBool(f.HasUnsavedContent)
	w.PutString(f.UnsavedContent)
	w.PutStrings(f.Arguments)
	w.PutU32(f.Revision)
}

// path, part id, flag, content, args count, revision
const minFileContainerSize = 4 + 4 + 1 + 4 + 4 + 4

func readFileContainer(r *wire.Reader) (FileContainer, error) {
	var f FileContainer
	var err error
	if f.FilePath, err = r.String(); err != nil {
		return FileContainer{}, err
	}
	if f.ProjectPartID, err = r.String(); err != nil {
		return FileContainer{}, err
	}
	if f.HasUnsavedContent, err = r.Bool(); err != nil {
		return FileContainer{}, err
	}
	if f.UnsavedContent, err = r.String(); err != nil {
		return FileContainer{}, err
	}
	if f.Arguments, err = r.Strings(); err != nil {
		return FileContainer{}, err
	}
	if f.Revision, err = r.U32(); err != nil {
		return FileContainer{}, err
	}
	return f, nil
}

func putFileContainers(w *wire.Writer, list []FileContainer) {
	w.PutU32(uint32(len(list)))
	for _, f := range list {
		putFileContainer(w, f)
	}
}

func readFileContainers(r *wire.Reader) ([]FileContainer, error) {
	n, err := r.Count(minFileContainerSize)
	if err != nil || n == 0 {
		return nil, err
	}
	out := make([]FileContainer, 0, n)
	for i := 0; i < n; i++ {
		f, err := readFileContainer(r)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

const minSourceLocationSize = 4 + 4 + 4

func putSourceLocation(w *wire.Writer, l SourceLocation) {
	w.PutString(l.FilePath)
	w.PutU32(l.Line)
	w.PutU32(l.Column)
}

func readSourceLocation(r *wire.Reader) (SourceLocation, error) {
	var l SourceLocation
	var err error
	if l.FilePath, err = r.String(); err != nil {
		return SourceLocation{}, err
	}
	if l.Line, err = r.U32(); err != nil {
		return SourceLocation{}, err
	}
	if l.Column, err = r.U32(); err != nil {
		return SourceLocation{}, err
	}
	return l, nil
}

func putSourceLocations(w *wire.Writer, list []SourceLocation) {
	w.PutU32(uint32(len(list)))
	for _, l := range list {
		putSourceLocation(w, l)
	}
}

func readSourceLocations(r *wire.Reader) ([]SourceLocation, error) {
	n, err := r.Count(minSourceLocationSize)
	if err != nil || n == 0 {
		return nil, err
	}
	out := make([]SourceLocation, 0, n)
	for i := 0; i < n; i++ {
		l, err := readSourceLocation(r)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, nil
}

const minDiagnosticSize = 4 + 4 + 1 + minSourceLocationSize

func putDiagnostics(w *wire.Writer, list []Diagnostic) {
	w.PutU32(uint32(len(list)))
	for _, d := range list {
		w.PutString(d.Text)
		w.PutString(d.Category)
		w.PutU8(uint8(d.Severity))
		putSourceLocation(w, d.Location)
	}
}

func readDiagnostics(r *wire.Reader) ([]Diagnostic, error) {
	n, err := r.Count(minDiagnosticSize)
	if err != nil || n == 0 {
		return nil, err
	}
	out := make([]Diagnostic, 0, n)
	for i := 0; i < n; i++ {
		var d Diagnostic
		if d.Text, err = r.String(); err != nil {
			return nil, err
		}
		if d.Category, err = r.String(); err != nil {
			return nil, err
		}
		sev, err := r.U8()
		if err != nil {
			return nil, err
		}
		d.Severity = Severity(sev)
		if d.Location, err = readSourceLocation(r); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

const minCodeCompletionSize = 4 + 4 + 1

func putCodeCompletions(w *wire.Writer, list []CodeCompletion) {
	w.PutU32(uint32(len(list)))
	for _, c := range list {
		w.PutString(c.Text)
		w.PutU32(c.Priority)
		w.PutU8(uint8(c.Kind))
	}
}

func readCodeCompletions(r *wire.Reader) ([]CodeCompletion, error) {
	n, err := r.Count(minCodeCompletionSize)
	if err != nil || n == 0 {
		return nil, err
	}
	out := make([]CodeCompletion, 0, n)
	for i := 0; i < n; i++ {
		var c CodeCompletion
		if c.Text, err = r.String(); err != nil {
			return nil, err
		}
		if c.Priority, err = r.U32(); err != nil {
			return nil, err
		}
		kind, err := r.U8()
		if err != nil {
			return nil, err
		}
		c.Kind = CompletionKind(kind)
		out = append(out, c)
	}
	return out, nil
}

package message

import (
	"errors"
	"testing"

	"github.com/danmuck/clangipc/internal/protocol/wire"
	"github.com/danmuck/clangipc/internal/testutil/testlog"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func sampleMessages() []Message {
	fc := NewFileContainer("/src/a.cpp", "part.1", []string{"-std=c++14", "-I/usr/include"}, 3).
		WithUnsavedContent("int main(){}")
	return []Message{
		End{},
		Alive{},
		UpdateTranslationUnitsForEditor{FileContainers: []FileContainer{fc, NewFileContainer("/src/b.h", "", nil, 0)}},
		RemoveTranslationUnitsForEditor{FileContainers: []FileContainer{NewFileContainer("/src/a.cpp", "part.1", nil, 4)}},
		RequestDocumentAnnotations{FileContainer: fc},
		DocumentAnnotationsChanged{
			FileContainer: NewFileContainer("/src/a.cpp", "part.1", nil, 3),
			Diagnostics: []Diagnostic{{
				Text:     "unused variable 'x'",
				Category: "Semantic Issue",
				Severity: SeverityWarning,
				Location: SourceLocation{FilePath: "/src/a.cpp", Line: 1, Column: 16},
			}},
		},
		RequestSourceLocationsForRenaming{
			FilePath:             "/src/a.cpp",
			Line:                 2,
			Column:               5,
			UnsavedContent:       "int x;\nint y = x;\n",
			CommandLine:          []string{"clang++", "-std=c++14", "/src/a.cpp"},
			TextDocumentRevision: 9,
		},
		SourceLocationsForRenaming{
			SymbolName: "x",
			SourceLocations: []SourceLocation{
				{FilePath: "/src/a.cpp", Line: 1, Column: 5},
				{FilePath: "/src/a.cpp", Line: 2, Column: 9},
			},
			TextDocumentRevision: 9,
		},
		CompleteCode{FilePath: "/src/a.cpp", Line: 3, Column: 1, ProjectPartID: "part.1", TicketNumber: 1 << 33},
		CodeCompleted{CodeCompletions: []CodeCompletion{{Text: "main", Priority: 50, Kind: CompletionFunction}}, TicketNumber: 1 << 33},
		TranslationUnitDoesNotExist{FileContainer: NewFileContainer("/src/missing.cpp", "", nil, 0)},
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	testlog.Start(t)
	seen := make(map[Type]bool)
	for _, in := range sampleMessages() {
		b, err := Encode(in)
		if err != nil {
			t.Fatalf("encode %s: %v", in.Type(), err)
		}
		if Type(b[0]) != in.Type() {
			t.Fatalf("tag mismatch: got %d want %d", b[0], in.Type())
		}
		out, err := Decode(b)
		if err != nil {
			t.Fatalf("decode %s: %v", in.Type(), err)
		}
		if diff := cmp.Diff(in, out); diff != "" {
			t.Fatalf("%s round-trip mismatch (-in +out):\n%s", in.Type(), diff)
		}
		seen[in.Type()] = true
	}
	for _, typ := range Types() {
		if !seen[typ] {
			t.Fatalf("no round-trip sample for %s", typ)
		}
	}
}

func TestFileContainerRoundTripFieldForField(t *testing.T) {
	testlog.Start(t)
	in := RequestDocumentAnnotations{
		FileContainer: NewFileContainer("/a.cpp", "", []string{"-std=c++14"}, 3).WithUnsavedContent("int main(){}"),
	}
	b, err := Encode(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	out, err := Decode(b)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	got := out.(RequestDocumentAnnotations).FileContainer
	if got.FilePath != "/a.cpp" {
		t.Fatalf("path: %q", got.FilePath)
	}
	if !got.HasUnsavedContent || got.UnsavedContent != "int main(){}" {
		t.Fatalf("content: %v %q", got.HasUnsavedContent, got.UnsavedContent)
	}
	if len(got.Arguments) != 1 || got.Arguments[0] != "-std=c++14" {
		t.Fatalf("args: %v", got.Arguments)
	}
	if got.Revision != 3 {
		t.Fatalf("revision: %d", got.Revision)
	}
}

func TestFileContainerIsASnapshot(t *testing.T) {
	args := []string{"-O0"}
	fc := NewFileContainer("/a.cpp", "", args, 1)
	args[0] = "-O3"
	if fc.Arguments[0] != "-O0" {
		t.Fatalf("container aliased caller args: %v", fc.Arguments)
	}
}

func TestEmptyOptionalFieldsRoundTrip(t *testing.T) {
	in := DocumentAnnotationsChanged{FileContainer: FileContainer{}, Diagnostics: []Diagnostic{}}
	b, err := Encode(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	out, err := Decode(b)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !Equal(in, out) {
		t.Fatalf("expected structural equality: in=%+v out=%+v", in, out)
	}
}

func TestDecodeUnknownMessageType(t *testing.T) {
	_, err := Decode([]byte{0xEE})
	if !errors.Is(err, ErrUnknownMessageType) {
		t.Fatalf("expected ErrUnknownMessageType, got %v", err)
	}
	var de *DecodeError
	if !errors.As(err, &de) || de.Type != Type(0xEE) {
		t.Fatalf("expected DecodeError carrying the tag, got %v", err)
	}
}

func TestDecodeMalformedPayload(t *testing.T) {
	w := wire.NewWriter(16)
	w.PutU8(uint8(TypeRequestDocumentAnnotations))
	w.PutU32(100) // file path length beyond the buffer
	w.PutU8('x')
	_, err := Decode(w.Bytes())
	if !errors.Is(err, ErrMalformedPayload) {
		t.Fatalf("expected ErrMalformedPayload, got %v", err)
	}

	if _, err := Decode(nil); !errors.Is(err, ErrMalformedPayload) {
		t.Fatalf("expected ErrMalformedPayload for empty payload, got %v", err)
	}
}

func TestDecodeTruncatedPayload(t *testing.T) {
	b, err := Encode(CompleteCode{FilePath: "/a.cpp", Line: 1, Column: 1, TicketNumber: 7})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	_, err = Decode(b[:len(b)-3])
	if !errors.Is(err, ErrMalformedPayload) {
		t.Fatalf("expected ErrMalformedPayload, got %v", err)
	}
}

func TestDecodeTrailingBytesIsFramingError(t *testing.T) {
	b, err := Encode(Alive{})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	_, err = Decode(append(b, 0x00))
	if !errors.Is(err, ErrFraming) {
		t.Fatalf("expected ErrFraming, got %v", err)
	}
}

type foreign struct{}

func (foreign) Type() Type { return Type(200) }

func TestEncodeRejectsForeignVariant(t *testing.T) {
	if _, err := Encode(foreign{}); !errors.Is(err, ErrUnknownMessageType) {
		t.Fatalf("expected ErrUnknownMessageType, got %v", err)
	}
	if _, err := Encode(nil); !errors.Is(err, ErrUnknownMessageType) {
		t.Fatalf("expected ErrUnknownMessageType for nil, got %v", err)
	}
}

func TestTypeString(t *testing.T) {
	if TypeCodeCompleted.String() != "CodeCompleted" {
		t.Fatalf("unexpected name: %s", TypeCodeCompleted)
	}
	if Type(99).String() != "Type(99)" {
		t.Fatalf("unexpected name: %s", Type(99))
	}
}

func TestEmptySequencesDecodeAsNil(t *testing.T) {
	testlog.Start(t)
	in := CodeCompleted{CodeCompletions: []CodeCompletion{}, TicketNumber: 7}
	b, err := Encode(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	out, err := Decode(b)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got := out.(CodeCompleted).CodeCompletions; got != nil {
		t.Fatalf("expected nil completions, got %#v", got)
	}
	if !Equal(in, out) {
		t.Fatalf("Equal should treat empty and nil sequences alike")
	}
	if diff := cmp.Diff(in, out, cmpopts.EquateEmpty()); diff != "" {
		t.Fatalf("mismatch with EquateEmpty (-in +out):\n%s", diff)
	}
}

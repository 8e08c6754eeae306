package message

import (
	"errors"
	"fmt"

	"github.com/danmuck/clangipc/internal/protocol/wire"
)

// Encode serializes m as one tag byte followed by its fields in declaration order.
func Encode(m Message) ([]byte, error) {
	if m == nil {
		return nil, fmt.Errorf("%w: nil message", ErrUnknownMessageType)
	}
	w := wire.NewWriter(64)
	w.PutU8(uint8(m.Type()))
	switch v := m.(type) {
	case End, Alive:
	case UpdateTranslationUnitsForEditor:
		putFileContainers(w, v.FileContainers)
	case RemoveTranslationUnitsForEditor:
		putFileContainers(w, v.FileContainers)
	case RequestDocumentAnnotations:
		putFileContainer(w, v.FileContainer)
	case DocumentAnnotationsChanged:
		putFileContainer(w, v.FileContainer)
		putDiagnostics(w, v.Diagnostics)
	case RequestSourceLocationsForRenaming:
		w.PutString(v.FilePath)
		w.PutU32(v.Line)
		w.PutU32(v.Column)
		w.PutString(v.UnsavedContent)
		w.PutStrings(v.CommandLine)
		w.PutU32(v.TextDocumentRevision)
	case SourceLocationsForRenaming:
		w.PutString(v.SymbolName)
		putSourceLocations(w, v.SourceLocations)
		w.PutU32(v.TextDocumentRevision)
	case CompleteCode:
		w.PutString(v.FilePath)
		w.PutU32(v.Line)
		w.PutU32(v.Column)
		w.PutString(v.ProjectPartID)
		w.PutU64(v.TicketNumber)
	case CodeCompleted:
		putCodeCompletions(w, v.CodeCompletions)
		w.PutU64(v.TicketNumber)
	case TranslationUnitDoesNotExist:
		putFileContainer(w, v.FileContainer)
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownMessageType, m)
	}
	return w.Bytes(), nil
}

// Decode parses exactly one message from payload. Every byte must be consumed.
// Empty sequences decode as nil slices, so an encoded []T{} comes back as nil;
// compare decoded messages with Equal or cmpopts.EquateEmpty.
func Decode(payload []byte) (Message, error) {
	r := wire.NewReader(payload)
	tag, err := r.U8()
	if err != nil {
		return nil, &DecodeError{Err: fmt.Errorf("%w: missing tag", ErrMalformedPayload)}
	}
	t := Type(tag)
	if !t.Known() {
		return nil, &DecodeError{Type: t, Err: ErrUnknownMessageType}
	}

	m, err := decodeBody(t, r)
	if err != nil {
		var de *DecodeError
		if errors.As(err, &de) {
			return nil, err
		}
		return nil, malformed(t, err)
	}
	if r.Remaining() != 0 {
		return nil, &DecodeError{Type: t, Err: fmt.Errorf("%w: %d trailing bytes", ErrFraming, r.Remaining())}
	}
	return m, nil
}

func decodeBody(t Type, r *wire.Reader) (Message, error) {
	switch t {
	case TypeEnd:
		return End{}, nil
	case TypeAlive:
		return Alive{}, nil
	case TypeUpdateTranslationUnitsForEditor:
		list, err := readFileContainers(r)
		if err != nil {
			return nil, err
		}
		return UpdateTranslationUnitsForEditor{FileContainers: list}, nil
	case TypeRemoveTranslationUnitsForEditor:
		list, err := readFileContainers(r)
		if err != nil {
			return nil, err
		}
		return RemoveTranslationUnitsForEditor{FileContainers: list}, nil
	case TypeRequestDocumentAnnotations:
		f, err := readFileContainer(r)
		if err != nil {
			return nil, err
		}
		return RequestDocumentAnnotations{FileContainer: f}, nil
	case TypeDocumentAnnotationsChanged:
		f, err := readFileContainer(r)
		if err != nil {
			return nil, err
		}
		diags, err := readDiagnostics(r)
		if err != nil {
			return nil, err
		}
		return DocumentAnnotationsChanged{FileContainer: f, Diagnostics: diags}, nil
	case TypeRequestSourceLocationsForRenaming:
		return decodeRenamingRequest(r)
	case TypeSourceLocationsForRenaming:
		var m SourceLocationsForRenaming
		var err error
		if m.SymbolName, err = r.String(); err != nil {
			return nil, err
		}
		if m.SourceLocations, err = readSourceLocations(r); err != nil {
			return nil, err
		}
		if m.TextDocumentRevision, err = r.U32(); err != nil {
			return nil, err
		}
		return m, nil
	case TypeCompleteCode:
		var m CompleteCode
		var err error
		if m.FilePath, err = r.String(); err != nil {
			return nil, err
		}
		if m.Line, err = r.U32(); err != nil {
			return nil, err
		}
		if m.Column, err = r.U32(); err != nil {
			return nil, err
		}
		if m.ProjectPartID, err = r.String(); err != nil {
			return nil, err
		}
		if m.TicketNumber, err = r.U64(); err != nil {
			return nil, err
		}
		return m, nil
	case TypeCodeCompleted:
		list, err := readCodeCompletions(r)
		if err != nil {
			return nil, err
		}
		ticket, err := r.U64()
		if err != nil {
			return nil, err
		}
		return CodeCompleted{CodeCompletions: list, TicketNumber: ticket}, nil
	case TypeTranslationUnitDoesNotExist:
		f, err := readFileContainer(r)
		if err != nil {
			return nil, err
		}
		return TranslationUnitDoesNotExist{FileContainer: f}, nil
	default:
		return nil, &DecodeError{Type: t, Err: ErrUnknownMessageType}
	}
}

func decodeRenamingRequest(r *wire.Reader) (Message, error) {
	var m RequestSourceLocationsForRenaming
	var err error
	if m.FilePath, err = r.String(); err != nil {
		return nil, err
	}
	if m.Line, err = r.U32(); err != nil {
		return nil, err
	}
	if m.Column, err = r.U32(); err != nil {
		return nil, err
	}
	if m.UnsavedContent, err = r.String(); err != nil {
		return nil, err
	}
	if m.CommandLine, err = r.Strings(); err != nil {
		return nil, err
	}
	if m.TextDocumentRevision, err = r.U32(); err != nil {
		return nil, err
	}
	return m, nil
}

// Equal reports structural equality of two messages.
func Equal(a, b Message) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.Type() != b.Type() {
		return false
	}
	ea, errA := Encode(a)
	eb, errB := Encode(b)
	if errA != nil || errB != nil {
		return false
	}
	return string(ea) == string(eb)
}

package message

// End asks the peer to shut down its side of the session.
type End struct{}

// Alive is a liveness probe; the backend answers with Alive.
type Alive struct{}

type UpdateTranslationUnitsForEditor struct {
	FileContainers []FileContainer
}

type RemoveTranslationUnitsForEditor struct {
	FileContainers []FileContainer
}

type RequestDocumentAnnotations struct {
	FileContainer FileContainer
}

type DocumentAnnotationsChanged struct {
	FileContainer FileContainer
	Diagnostics   []Diagnostic
}

// RequestSourceLocationsForRenaming asks for every occurrence of the symbol under
// the one-based cursor position in FilePath.
type RequestSourceLocationsForRenaming struct {
	FilePath             string
	Line                 uint32
	Column               uint32
	UnsavedContent       string
	CommandLine          []string
	TextDocumentRevision uint32
}

type SourceLocationsForRenaming struct {
	SymbolName           string
	SourceLocations      []SourceLocation
	TextDocumentRevision uint32
}

// CompleteCode is correlated with its CodeCompleted reply by TicketNumber.
type CompleteCode struct {
	FilePath      string
	Line          uint32
	Column        uint32
	ProjectPartID string
	TicketNumber  uint64
}

type CodeCompleted struct {
	CodeCompletions []CodeCompletion
	TicketNumber    uint64
}

type TranslationUnitDoesNotExist struct {
	FileContainer FileContainer
}

func (End) Type() Type                               { return TypeEnd }
func (Alive) Type() Type                             { return TypeAlive }
func (UpdateTranslationUnitsForEditor) Type() Type   { return TypeUpdateTranslationUnitsForEditor }
func (RemoveTranslationUnitsForEditor) Type() Type   { return TypeRemoveTranslationUnitsForEditor }
func (RequestDocumentAnnotations) Type() Type        { return TypeRequestDocumentAnnotations }
func (DocumentAnnotationsChanged) Type() Type        { return TypeDocumentAnnotationsChanged }
func (RequestSourceLocationsForRenaming) Type() Type { return TypeRequestSourceLocationsForRenaming }
func (SourceLocationsForRenaming) Type() Type        { return TypeSourceLocationsForRenaming }
func (CompleteCode) Type() Type                      { return TypeCompleteCode }
func (CodeCompleted) Type() Type                     { return TypeCodeCompleted }
func (TranslationUnitDoesNotExist) Type() Type       { return TypeTranslationUnitDoesNotExist }

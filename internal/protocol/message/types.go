package message

import "fmt"

// Type is the wire tag of a message variant. The set is closed per protocol version.
type Type uint8

const (
	TypeEnd                               Type = 1
	TypeAlive                             Type = 2
	TypeUpdateTranslationUnitsForEditor   Type = 3
	TypeRemoveTranslationUnitsForEditor   Type = 4
	TypeRequestDocumentAnnotations        Type = 5
	TypeDocumentAnnotationsChanged        Type = 6
	TypeRequestSourceLocationsForRenaming Type = 7
	TypeSourceLocationsForRenaming        Type = 8
	TypeCompleteCode                      Type = 9
	TypeCodeCompleted                     Type = 10
	TypeTranslationUnitDoesNotExist       Type = 11
)

var typeNames = map[Type]string{
	TypeEnd:                               "End",
	TypeAlive:                             "Alive",
	TypeUpdateTranslationUnitsForEditor:   "UpdateTranslationUnitsForEditor",
	TypeRemoveTranslationUnitsForEditor:   "RemoveTranslationUnitsForEditor",
	TypeRequestDocumentAnnotations:        "RequestDocumentAnnotations",
	TypeDocumentAnnotationsChanged:        "DocumentAnnotationsChanged",
	TypeRequestSourceLocationsForRenaming: "RequestSourceLocationsForRenaming",
	TypeSourceLocationsForRenaming:        "SourceLocationsForRenaming",
	TypeCompleteCode:                      "CompleteCode",
	TypeCodeCompleted:                     "CodeCompleted",
	TypeTranslationUnitDoesNotExist:       "TranslationUnitDoesNotExist",
}

func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Type(%d)", uint8(t))
}

// Known reports whether t belongs to the closed set.
func (t Type) Known() bool {
	_, ok := typeNames[t]
	return ok
}

// Types lists the closed set in tag order.
func Types() []Type {
	out := make([]Type, 0, len(typeNames))
	for t := TypeEnd; t <= TypeTranslationUnitDoesNotExist; t++ {
		out = append(out, t)
	}
	return out
}

// Message is one variant of the closed protocol union.
type Message interface {
	Type() Type
}

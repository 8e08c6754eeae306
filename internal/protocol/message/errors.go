package message

import (
	"errors"
	"fmt"
)

var (
	ErrMalformedPayload   = errors.New("message: malformed payload")
	ErrUnknownMessageType = errors.New("message: unknown message type")
	// ErrFraming marks a payload whose length disagrees with its schema.
	ErrFraming = errors.New("message: framing error")
)

// DecodeError reports which variant failed and why. Err is one of the package
// sentinels, optionally wrapping the low-level cause.
type DecodeError struct {
	Type Type
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("message: decode %s: %v", e.Type, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

func malformed(t Type, cause error) error {
	return &DecodeError{Type: t, Err: fmt.Errorf("%w: %w", ErrMalformedPayload, cause)}
}

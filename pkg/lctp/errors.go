package lctp

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyRequest indicates a blank request line.
	ErrEmptyRequest = errors.New("empty request")
	// ErrUnknownPath indicates the path addresses nothing.
	ErrUnknownPath = errors.New("unknown path")
	// ErrClosed indicates the client was closed.
	ErrClosed = errors.New("client closed")
)

// ProtocolError is a malformed request line.
type ProtocolError struct {
	Line   string
	Reason string
}

// Error implements error.
func (e *ProtocolError) Error() string {
	return fmt.Sprintf("%s: %q", e.Reason, e.Line)
}

// PathError reports a path that addresses nothing.
type PathError struct {
	Path string
}

// Error implements error.
func (e *PathError) Error() string {
	return ErrUnknownPath.Error() + " " + e.Path
}

// Is matches ErrUnknownPath.
func (e *PathError) Is(target error) bool {
	return target == ErrUnknownPath
}

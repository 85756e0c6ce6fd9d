package types

import (
	"errors"
	"fmt"
)

// PtyErrorCode classifies backend failures
type PtyErrorCode string

const (
	CodeSpawnFailed     PtyErrorCode = "SpawnFailed"
	CodeSessionNotFound PtyErrorCode = "SessionNotFound"
	CodeWriteFailed     PtyErrorCode = "WriteFailed"
	CodeResizeFailed    PtyErrorCode = "ResizeFailed"
	CodeKillFailed      PtyErrorCode = "KillFailed"
	CodeInvalidRequest  PtyErrorCode = "InvalidRequest"
	// CodeInternal covers transport and server faults outside the PTY domain
	CodeInternal PtyErrorCode = "Internal"
)

// PtyError is a backend failure that survives the round trip to a client
type PtyError struct {
	Code    PtyErrorCode `json:"code"`
	Message string       `json:"message"`
}

func (e *PtyError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is matches any PtyError with the same code, so callers can compare
// against the sentinel values below.
func (e *PtyError) Is(target error) bool {
	t, ok := target.(*PtyError)
	if !ok {
		return false
	}
	return t.Code == e.Code && (t.Message == "" || t.Message == e.Message)
}

// Sentinels for errors.Is
var (
	ErrSpawnFailed     = &PtyError{Code: CodeSpawnFailed}
	ErrSessionNotFound = &PtyError{Code: CodeSessionNotFound}
	ErrWriteFailed     = &PtyError{Code: CodeWriteFailed}
	ErrResizeFailed    = &PtyError{Code: CodeResizeFailed}
	ErrKillFailed      = &PtyError{Code: CodeKillFailed}
	ErrInvalidRequest  = &PtyError{Code: CodeInvalidRequest}
)

// NewPtyError builds a PtyError with a formatted message
func NewPtyError(code PtyErrorCode, format string, args ...interface{}) *PtyError {
	return &PtyError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// SessionNotFound builds the canonical not-found error for id
func SessionNotFound(id SessionID) *PtyError {
	return NewPtyError(CodeSessionNotFound, "session %d not found", id)
}

// AsPtyError extracts a PtyError from err, if any
func AsPtyError(err error) (*PtyError, bool) {
	var pe *PtyError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// IsSessionNotFound reports whether err is a SessionNotFound failure
func IsSessionNotFound(err error) bool {
	return errors.Is(err, ErrSessionNotFound)
}

// ToPtyError returns err as a PtyError, wrapping foreign errors as Internal
func ToPtyError(err error) *PtyError {
	if pe, ok := AsPtyError(err); ok {
		return pe
	}
	return &PtyError{Code: CodeInternal, Message: err.Error()}
}

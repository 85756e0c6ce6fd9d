package orchestrator

import (
	"errors"
	"fmt"

	"github.com/GriffinCanCode/maestro/backend/internal/shared/types"
)

var (
	// ErrScopeCancelled is returned when the owning scope was torn down
	// while a spawn was in flight; the late session has been killed
	ErrScopeCancelled = errors.New("workspace scope cancelled")
	// ErrAtCapacity is returned when the session cap is already reached
	ErrAtCapacity = errors.New("session limit reached")
	// ErrNotMounted is returned by operations that need a mounted scope
	ErrNotMounted = errors.New("workspace not mounted")
	// ErrAlreadyMounted is returned by Mount on a live scope
	ErrAlreadyMounted = errors.New("workspace already mounted")
)

// State is the orchestrator lifecycle state
type State int

const (
	StateEmpty State = iota
	StateStarting
	StatePopulated
	StateError
)

// String returns the state name
func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateStarting:
		return "starting"
	case StatePopulated:
		return "populated"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Snapshot is a consistent view of the orchestrator
type Snapshot struct {
	State  State
	IDs    []types.SessionID
	Layout Layout
	Err    error

	version uint64
}

// Message returns the user-facing error text, or "" outside StateError
func (s Snapshot) Message() string {
	if s.State != StateError || s.Err == nil {
		return ""
	}
	return fmt.Sprintf("Failed to start terminal: %v", s.Err)
}

// Contains reports whether id is live in the snapshot
func (s Snapshot) Contains(id types.SessionID) bool {
	for _, cur := range s.IDs {
		if cur == id {
			return true
		}
	}
	return false
}

package types

import (
	"fmt"
	"strconv"
)

// SessionID is the opaque handle the backend assigns on spawn
type SessionID uint32

// String returns the decimal form of the id
func (id SessionID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// ParseSessionID parses a decimal session id
func ParseSessionID(s string) (SessionID, error) {
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid session id %q: %w", s, err)
	}
	return SessionID(v), nil
}

// Mode selects which assistant (if any) runs inside a session
type Mode string

const (
	ModeClaude Mode = "claude"
	ModeGemini Mode = "gemini"
	ModeCodex  Mode = "codex"
	ModePlain  Mode = "plain"
)

// Valid reports whether m is a known mode
func (m Mode) Valid() bool {
	switch m {
	case ModeClaude, ModeGemini, ModeCodex, ModePlain:
		return true
	}
	return false
}

// Status mirrors the backend-owned session state
type Status string

const (
	StatusStarting   Status = "starting"
	StatusIdle       Status = "idle"
	StatusWorking    Status = "working"
	StatusNeedsInput Status = "needs_input"
	StatusDone       Status = "done"
	StatusError      Status = "error"
)

var transitions = map[Status][]Status{
	StatusStarting:   {StatusIdle, StatusError},
	StatusIdle:       {StatusWorking, StatusError},
	StatusWorking:    {StatusIdle, StatusNeedsInput, StatusDone, StatusError},
	StatusNeedsInput: {StatusWorking, StatusIdle, StatusError},
}

// Valid reports whether s is a known status
func (s Status) Valid() bool {
	switch s {
	case StatusStarting, StatusIdle, StatusWorking, StatusNeedsInput, StatusDone, StatusError:
		return true
	}
	return false
}

// Terminal reports whether s is terminal for display purposes.
// A session in a terminal state can still be killed.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusError
}

// CanTransition reports whether the state machine allows from -> to
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// SessionMetadata describes one backend session.
// Only Status changes after creation.
type SessionMetadata struct {
	ID           SessionID `json:"id"`
	Mode         Mode      `json:"mode"`
	Branch       *string   `json:"branch,omitempty"`
	Status       Status    `json:"status"`
	WorktreePath *string   `json:"worktree_path,omitempty"`
}

// StatusEvent is the payload of the global status-change topic
type StatusEvent struct {
	SessionID SessionID `json:"session_id"`
	Status    Status    `json:"status"`
}

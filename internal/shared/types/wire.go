package types

import (
	"encoding/json"
	"fmt"
)

// Backend commands
const (
	CommandSpawn        = "spawn_shell"
	CommandWrite        = "write_stdin"
	CommandResize       = "resize_pty"
	CommandKill         = "kill_session"
	CommandList         = "list_sessions"
	CommandUpdateStatus = "update_session_status"
	CommandAssignBranch = "assign_session_branch"
)

// StatusTopic is the single global status-change topic
const StatusTopic = "session-status-changed"

const outputTopicPrefix = "pty-output-"

// OutputTopic returns the per-session output topic name
func OutputTopic(id SessionID) string {
	return fmt.Sprintf("%s%d", outputTopicPrefix, id)
}

// Frame types
const (
	FrameInvoke   = "invoke"
	FrameListen   = "listen"
	FrameUnlisten = "unlisten"
	FrameResult   = "result"
	FrameEvent    = "event"
	FramePing     = "ping"
	FramePong     = "pong"
)

// Frame is the websocket envelope shared by both directions
type Frame struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Command string          `json:"command,omitempty"`
	Topic   string          `json:"topic,omitempty"`
	Args    json.RawMessage `json:"args,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   *PtyError       `json:"error,omitempty"`
	// Trace carries the caller's trace id on invoke frames
	Trace string `json:"trace,omitempty"`
}

// SpawnArgs are the arguments of spawn_shell
type SpawnArgs struct {
	Cwd *string `json:"cwd"`
	// Mode defaults to plain when empty
	Mode Mode `json:"mode,omitempty"`
}

// WriteArgs are the arguments of write_stdin
type WriteArgs struct {
	SessionID SessionID `json:"session_id"`
	Data      string    `json:"data"`
}

// ResizeArgs are the arguments of resize_pty
type ResizeArgs struct {
	SessionID SessionID `json:"session_id"`
	Rows      uint16    `json:"rows"`
	Cols      uint16    `json:"cols"`
}

// KillArgs are the arguments of kill_session
type KillArgs struct {
	SessionID SessionID `json:"session_id"`
}

// UpdateStatusArgs are the arguments of update_session_status
type UpdateStatusArgs struct {
	SessionID SessionID `json:"session_id"`
	Status    Status    `json:"status"`
}

// AssignBranchArgs are the arguments of assign_session_branch
type AssignBranchArgs struct {
	SessionID    SessionID `json:"session_id"`
	Branch       string    `json:"branch"`
	WorktreePath *string   `json:"worktree_path"`
}

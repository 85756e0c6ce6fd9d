// Package types provides shared data structures for the maestro backend.
//
// These types are the vocabulary of the command/event contract between the
// PTY backend and its clients, so both sides of the websocket agree on them.
//
// Core Types:
//   - SessionID: Backend-assigned integer session handle
//   - SessionMetadata: Mode, branch, status and worktree for one session
//   - Status: Mirrored session state machine
//   - StatusEvent: Payload of the global status-change topic
//   - PtyError: Typed backend failure carried over the wire
//
// Wire Types:
//   - Command names (spawn_shell, write_stdin, ...)
//   - Topic names (pty-output-{id}, session-status-changed)
//   - Frame: WebSocket envelope for invoke/listen/result/event
//
// Example Usage:
//
//	if types.CanTransition(types.StatusWorking, types.StatusNeedsInput) {
//	    meta.Status = types.StatusNeedsInput
//	}
package types

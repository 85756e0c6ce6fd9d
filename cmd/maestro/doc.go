// Package main is the maestro workspace client.
//
// It mounts a workspace against the PTY backend: the first shell is spawned
// on start, output of every live session is printed with an "[id] " prefix,
// and stdin drives the workspace.
//
// Commands:
//
//	:add          spawn another session (up to the configured cap)
//	:kill N       kill session N
//	:focus N      send typed lines to session N
//	:resize R C   resize the focused session
//	:list         show sessions with their status
//	:retry        retry after a failed start
//	:quit         kill every session and exit
//
// Any other line is written to the focused session followed by a newline.
//
// Usage:
//
//	./maestro -backend http://127.0.0.1:8077
//	./maestro -local -cwd ~/src/project
//	./maestro -list
//
// Signals:
//   - SIGINT, SIGTERM: unmount the workspace, killing its sessions
package main

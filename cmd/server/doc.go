// Package main is the entry point for the maestro PTY backend.
//
// The backend owns every shell process. It spawns login shells on
// pseudo-terminals, streams their output as events and accepts commands over
// REST and WebSocket. The workspace client (cmd/maestro) is the usual caller.
//
// Architecture:
//
//	Workspace client → WebSocket / REST → PTY backend → $SHELL -l on a PTY
//
// Configuration:
//   - MAESTRO_CONFIG points at an optional YAML or TOML file
//   - MAESTRO_* environment variables override the file
//   - CLI flags override both
//
// Usage:
//
//	./server -port 8077
//	MAESTRO_LOG_DEV=true MAESTRO_SHELL=/bin/zsh ./server
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown; every session is killed
package main

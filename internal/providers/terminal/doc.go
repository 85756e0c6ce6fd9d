// Package terminal runs the backend's shell sessions.
//
// Each session is a login shell ($SHELL -l, falling back to /bin/sh) started
// under a 24x80 PTY and identified by an integer id allocated from 1. A
// reader goroutine streams PTY output to the session's "pty-output-{id}"
// topic in chunks of up to 4 KiB; invalid UTF-8 is replaced. Status changes
// are published on "session-status-changed".
//
// Kill removes the session, sends SIGTERM to its process group, polls for
// exit during a grace period and escalates to SIGKILL. The PTY is closed and
// the reader joined before Kill returns.
//
// Provider exposes the manager through the wire command names:
//
//	spawn_shell            {"cwd": "/path" | null}      -> id
//	write_stdin            {"session_id", "data"}
//	resize_pty             {"session_id", "rows", "cols"}
//	kill_session           {"session_id"}
//	list_sessions                                       -> [metadata]
//	update_session_status  {"session_id", "status"}     -> found
package terminal

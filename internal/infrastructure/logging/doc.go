// Package logging provides structured logging using uber/zap.
//
// Two output modes are supported:
//   - Production: JSON output for machine parsing
//   - Development: Colored console output for human readability
//
// Components never build their own zap logger. The composition root creates
// one Logger and hands each component a named child via Component, so log
// lines carry "logger":"orchestrator", "logger":"pty", and so on.
//
// Best-effort failures (write, resize, kill, subscription teardown) are logged
// at Warn with the Session field attached and are never surfaced to callers.
//
// Example Usage:
//
//	logger := logging.NewDefault()
//	log := logger.Component("orchestrator")
//	log.Warn("kill failed", logging.Session(7), zap.Error(err))
package logging

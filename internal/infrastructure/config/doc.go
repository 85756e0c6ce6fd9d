// Package config provides 12-factor configuration management for maestro.
//
// Values are layered: built-in defaults, then an optional config file named by
// MAESTRO_CONFIG (YAML or TOML, chosen by extension), then environment
// variables. Only variables that are actually set override earlier layers.
//
// Configuration Sections:
//   - Server: Backend listen address
//   - Terminal: PTY shell, kill escalation and size limits
//   - Orchestrator: Session cap, workspace directory, reconcile cadence
//   - Client: Backend URL and readiness timeout for the workspace client
//   - Logging: Log level and output format
//   - RateLimit: Per-IP rate limiting for the HTTP surface
//
// Example Usage:
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Orchestrator.MaxSessions)
//
// Environment Variables:
//   - MAESTRO_HOST, MAESTRO_PORT
//   - MAESTRO_SHELL, MAESTRO_KILL_GRACE, MAESTRO_KILL_POLL, MAESTRO_MAX_DIMENSION
//   - MAESTRO_MAX_SESSIONS, MAESTRO_WORKSPACE, MAESTRO_RECONCILE_INTERVAL
//   - MAESTRO_BACKEND_URL, MAESTRO_READY_TIMEOUT
//   - MAESTRO_LOG_LEVEL, MAESTRO_LOG_DEV
//   - MAESTRO_RATE_LIMIT_RPS, MAESTRO_RATE_LIMIT_BURST, MAESTRO_RATE_LIMIT_ENABLED
package config

// Package http provides the REST surface of the PTY backend.
//
// Endpoints:
//   - Health: / and /health
//   - Metrics: /metrics (Prometheus exposition)
//   - Sessions: GET/POST /sessions, DELETE /sessions/:id, PUT /sessions/:id/status
//   - Commands: POST /invoke/:command runs any backend command with a JSON body
//
// Errors are rendered as {"error": {"code": ..., "message": ...}} with the
// status chosen from the error code: SessionNotFound maps to 404,
// InvalidRequest to 400 and everything else to 500.
//
// Example Usage:
//
//	handlers := http.NewHandlers(provider, hub)
//	router.GET("/health", handlers.Health)
//	router.GET("/sessions", handlers.ListSessions)
package http

// Package middleware provides the gin middleware stack of the PTY backend.
//
//   - CORS: cross-origin access for the desktop shell's webview
//   - RateLimit: per-client token buckets with idle eviction
//   - RequestID: X-Request-ID propagation
//   - Logger / Recovery: structured request logs and panic recovery on zap
//
// Example Usage:
//
//	router.Use(middleware.RequestID(), middleware.Recovery(logger), middleware.Logger(logger))
//	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
//	router.Use(middleware.RateLimit(middleware.DefaultRateLimitConfig()))
package middleware

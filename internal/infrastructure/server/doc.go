// Package server assembles the PTY backend: session manager, event hub,
// REST handlers, WebSocket protocol and the middleware stack.
//
// Server Lifecycle:
//  1. Load configuration from file and environment
//  2. Build metrics registry, event hub and session manager
//  3. Install middleware (request id, recovery, logging, metrics, CORS, rate limit)
//  4. Serve HTTP and WebSocket routes
//  5. On shutdown, drain HTTP, kill every session, close the hub
//
// Example Usage:
//
//	cfg := config.LoadOrDefault()
//	srv, err := server.NewServer(cfg, logger)
//	if err := srv.Run(); err != nil {
//	    log.Fatal(err)
//	}
package server

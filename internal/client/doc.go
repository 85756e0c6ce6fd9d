// Package client talks to a running PTY backend over the network.
//
// Transport speaks the WebSocket frame protocol served by package ws and
// implements bridge.Transport, so a Bridge can drive a remote backend the same
// way it drives an in-process one. WaitReady polls /health with retries until
// the backend answers, and API wraps the REST endpoints for one-shot tooling.
//
// Example Usage:
//
//	if err := client.WaitReady(ctx, "http://127.0.0.1:8787", 10*time.Second, logger); err != nil {
//	    return err
//	}
//	t, err := client.Dial(ctx, "ws://127.0.0.1:8787/ws", logger)
//	b := bridge.New(t, logger, bridge.DefaultOptions())
package client

// Package events is the backend's topic hub.
//
// The terminal manager publishes PTY output and status changes to named
// topics; websocket connections and in-process transports subscribe to the
// topics their clients listen on. Payloads are encoded once at publish time.
// Each subscriber owns a buffered queue drained by its own goroutine. A
// full queue makes the publisher wait for that subscriber, so output is
// never lost while a subscription is live; the waits are counted.
package events

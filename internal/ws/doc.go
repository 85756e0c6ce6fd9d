// Package ws serves the backend command protocol over a WebSocket.
//
// Every message is one JSON Frame. Clients send:
//   - invoke:   {"type":"invoke","id":"<req>","command":"spawn_shell","args":{...}}
//   - listen:   {"type":"listen","id":"<listen>","topic":"pty-output-1"}
//   - unlisten: {"type":"unlisten","id":"<listen>"}
//   - ping:     {"type":"ping","id":"<req>"}
//
// The server answers invoke, listen and unlisten with a result frame carrying
// the same id and either data or error, answers ping with pong, and pushes
// events as {"type":"event","id":"<listen>","topic":...,"payload":...}.
//
// Invocations run concurrently so a slow kill_session never stalls output
// delivery. Listeners belong to their connection and are detached when it
// closes.
//
// Example Usage:
//
//	handler := ws.NewHandler(provider, hub, logger, metrics)
//	router.GET("/ws", handler.HandleConnection)
package ws

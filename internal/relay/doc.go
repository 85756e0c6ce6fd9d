// Package relay binds session output to terminal surfaces.
//
// A Relay connects one session to one Surface: keystrokes become bridge
// writes, size changes become resizes, and pushed output is written to the
// surface. Deactivate tears down in a fixed order (mark disposed, detach
// local listeners, dispose the output subscription, destroy the surface) so
// output that arrives late is never written to a destroyed surface.
//
// Pool keeps one Relay per live session and follows the orchestrator's id
// set through Sync.
package relay

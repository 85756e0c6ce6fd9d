/*
Package bridge is the workspace client's view of the PTY backend.

Every operation is a round trip over a Transport: commands go through
Invoke, push topics through Listen. The bridge keeps no session state of its
own beyond what it needs to make Kill safe to repeat.

# Subscriptions

SubscribeOutput and SubscribeStatus return a *Subscription at once while the
listen round trip continues in the background. Dispose may be called at any
point, including before the listen has resolved; in that case the intent is
recorded and the listener is removed as soon as it arrives. The underlying
unlisten runs exactly once.

# Best-effort calls

Write and Resize never fail the caller. Errors are logged at Warn and
dropped, since writes to a session that was just closed are routine.

# Kill

Concurrent kills of one id share a single backend call, and an id that was
killed successfully (or that the backend no longer knows) is remembered so a
repeat is a no-op. A failed kill is not remembered; the caller can retry.
*/
package bridge

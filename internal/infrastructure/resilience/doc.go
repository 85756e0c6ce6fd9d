/*
Package resilience provides a circuit breaker for backend command calls.

# Overview

The workspace client guards spawn requests with a breaker so that a backend
that keeps failing to allocate PTYs is not hammered by retries, auto-respawns
and add-session clicks. While the breaker is open, calls fail immediately with
ErrCircuitOpen and the caller surfaces that failure like any other.

# Usage

	breaker := resilience.New("spawn", resilience.Settings{
		Timeout: 5 * time.Second,
		ReadyToTrip: func(counts resilience.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	})

	id, err := resilience.Run(breaker, func() (types.SessionID, error) {
		return bridge.spawn(ctx, cwd)
	})

# States

	Closed --[failures]-> Open --[timeout]-> Half-Open --[successes]-> Closed
	                                           |
	                                    [failure]
	                                           v
	                                         Open
*/
package resilience

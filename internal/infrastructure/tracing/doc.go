/*
Package tracing provides lightweight request tracing for the PTY backend.

# Overview

A trace follows one logical operation from the workspace client into the
backend: an HTTP request, or a WebSocket invoke frame carrying a trace id.
Spans are buffered and written to the log by a single collector goroutine,
so tracing never blocks a request.

# Usage

	tracer := tracing.New("pty-backend", logger)
	defer tracer.Close()

	router.Use(tracing.HTTPMiddleware(tracer))

	span, ctx := tracer.StartSpan(ctx, "kill_session")
	defer func() {
		span.Finish()
		tracer.Submit(span)
	}()

# Propagation

HTTP callers send X-Trace-ID and X-Span-ID; the response echoes the ids of
the server span. WebSocket callers put the trace id in the frame's "trace"
field; use WithTrace to continue it.
*/
package tracing

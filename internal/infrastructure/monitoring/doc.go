/*
Package monitoring provides Prometheus metrics for both sides of the PTY
command/event contract.

# Overview

The backend records PTY lifecycle (spawned, killed, forced kills), command
round trips and websocket traffic. The workspace client records bridge calls,
overflow kills made by the session cap, reconciliation kills and the number
of live status listeners.

Metrics are registered against an explicit prometheus.Registerer so tests and
embedded uses can keep their own registry. Every method is safe on a nil
*Metrics, which lets components run without instrumentation.

# Usage

	reg := prometheus.NewRegistry()
	metrics := monitoring.NewMetrics(reg)

	router.Use(monitoring.Middleware(metrics))

	timer := monitoring.NewTimer(metrics, "spawn_shell")
	// ... perform command ...
	timer.Stop("success")

# Metrics Endpoint

	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
*/
package monitoring

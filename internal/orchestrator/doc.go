/*
Package orchestrator owns the set of live sessions for one workspace.

The orchestrator spawns a session on Mount, admits more through AddSession
up to a cap, replaces the last session when it is killed, and kills every
session it owns on Unmount. Grid geometry follows from the session count
through LayoutFor.

# States

	Empty -> Starting -> Populated(n) -> Empty (auto-respawn) -> Starting ...
	                 \-> Error -> (Retry) -> Starting

# Scope

Each Mount opens a scope that Unmount cancels. Every continuation that
follows a bridge call captures its scope at the start and re-checks it
before changing state; a session whose spawn resolves after its scope was
cancelled is killed instead of adopted. Spawns are not themselves aborted
by cancellation, since the backend may already have started the process.

# Commit step

Admission, removal and respawn decisions read the committed id set and
write it back under one lock. The cap is checked again at admission time,
so concurrent AddSession calls cannot overshoot it; a spawn that loses the
race is killed.

# Reconciliation

Kill removes a session locally before the backend confirms. If the backend
kill fails the id is kept as an orphan, and Reconcile re-kills orphans that
list_sessions still reports.
*/
package orchestrator

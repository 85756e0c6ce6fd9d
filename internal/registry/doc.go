// Package registry caches session metadata for the workspace client.
//
// Fetch replaces the cache with the backend's full session list. Subscribe
// keeps it current from the global status-change topic: every caller holds
// a reference, the single underlying listener is created when the count
// goes from zero to one and torn down when it returns to zero. Each status
// event updates the matching entry in place; events for ids not in the
// cache are ignored.
//
// Overlapping Fetch calls are not fenced; whichever response arrives last
// is kept.
package registry

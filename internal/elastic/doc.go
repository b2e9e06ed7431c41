// Package elastic keeps the set of loaded plugins that can provision elastic
// agents and routes provisioning and lifecycle calls to them.
//
// A Store holds the eligible plugins in load order and publishes an immutable
// Snapshot on every change. A Matcher scans one snapshot and picks the first
// plugin whose extension accepts a request's resources and environment. The
// Registry combines both with the Extension boundary and subscribes to the
// plugin manager as a plugin.Listener.
//
// Key properties:
//   - At most one entry per plugin ID; a second load is rejected
//   - Earliest-loaded plugin wins a match
//   - No eligible plugin is an outcome, not an error
//   - Extension errors are returned to the caller, never retried
package elastic

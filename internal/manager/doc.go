// Package manager implements the jailed media manager.
//
// A Manager is built per request from long-lived Services and the caller's
// Capability and User. Every path it receives goes through the jail and its
// exclusion rules before the filesystem is touched. Listing a directory
// reconciles the directory with the index: untracked files are registered,
// duplicate rows removed and, at the root only, rows of vanished files
// pruned. Rebuild performs the full reconciliation recursively.
//
// Lifecycle events (create, update, remove, recreate) are dispatched
// through a hooks.Registry after each successful mutation. The built-in
// thumbnail and metadata handlers are registered by NewServices.
package manager

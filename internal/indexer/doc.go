// Package indexer keeps the media index converged with the filesystem in
// the background.
//
// It runs a full Rebuild at startup and every REBUILD_INTERVAL, and between
// full runs polls the root for cheap signs of change (root modification
// time, top-level entry count, top-level directory modification times).
// A change limited to some top-level directories rebuilds only those.
// Rebuilds run as the System principal; rows of files that vanished from a
// rebuilt subtree are pruned.
package indexer

// Package database is the SQLite-backed media index.
//
// Each row of the media table tracks one file under a storage path:
// its path relative to the media root, title, owner, privacy flag,
// timestamps and a JSON metadata blob. The post_media table links media to
// blog posts, and the metadata table holds key/value bookkeeping such as
// the last rebuild time.
//
// Ids are allocated as max(id)+1 inside LockMedia, which holds an
// IMMEDIATE transaction (the SQLite write lock) plus an in-process mutex
// for the whole read-then-insert sequence.
//
// The database runs in WAL mode so listings can read while a write is in
// progress.
package database

// Package archive extracts ZIP archives inside the media jail.
//
// Entries matching a fixed denylist of VCS metadata and OS cruft are never
// extracted, and neither are entries the jail's exclusion rules reject.
// After extraction every file and directory whose name contains
// characters outside [A-Za-z0-9._-] is renamed to its cleaned form.
package archive

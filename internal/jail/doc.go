// Package jail confines media paths to a single root directory.
//
// Every path is canonicalized (cleaned and resolved through symlinks)
// before it is compared with the canonical root, so neither "../"
// sequences nor symlinks pointing elsewhere can escape. Exclusion is an
// orthogonal denylist: directory prefixes that are never listed or
// written to, and a filename pattern that blocks uploads of active
// content.
//
//	ex, _ := jail.NewExclusionSet([]string{"private"}, jail.DefaultFilePattern)
//	j, err := jail.New("/srv/media", ex)
//	abs, err := j.Check("2024/photo.jpg")    // must exist
//	dst, err := j.CheckNew("2024/new.png")   // may not exist yet
package jail

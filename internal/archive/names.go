package archive

import (
	"path"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// ignoredEntry matches archive entries that are never extracted.
var ignoredEntry = regexp.MustCompile(`(^|/)(__MACOSX|\.svn|\.hg.*|\.git.*|\.DS_Store|\.directory|Thumbs\.db)(/|$)`)

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._\-]`)

// ligatures have no decomposition that removes the accent.
var ligatures = strings.NewReplacer(
	"ß", "ss", "æ", "ae", "Æ", "AE", "œ", "oe", "Œ", "OE",
	"ø", "o", "Ø", "O", "đ", "d", "Đ", "D", "ł", "l", "Ł", "L",
)

// Ignored reports whether an archive entry name is on the denylist.
func Ignored(name string) bool {
	return ignoredEntry.MatchString(strings.TrimSuffix(name, "/") + "/")
}

// deaccent strips combining marks after canonical decomposition.
func deaccent(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, ligatures.Replace(s))
	if err != nil {
		return s
	}
	return out
}

// cleanComponent cleans a single path element.
func cleanComponent(name string) string {
	name = strings.TrimLeft(deaccent(name), ".")
	name = unsafeChars.ReplaceAllString(name, "_")
	if name == "" {
		return "_"
	}
	return name
}

// CleanName returns name, a slash separated relative path, with accents
// removed, leading dots stripped from every element and any character
// other than letters, digits, '.', '_', '-' and '/' replaced by '_'.
func CleanName(name string) string {
	parts := strings.Split(strings.Trim(name, "/"), "/")
	for i, p := range parts {
		parts[i] = cleanComponent(p)
	}
	return strings.Join(parts, "/")
}

// RootDir returns the directory every entry lives under, or "" when the
// entries do not share a single top-level directory. Directory entries
// carry a trailing slash.
func RootDir(names []string) string {
	root := ""
	for _, n := range names {
		n = strings.TrimPrefix(path.Clean("/"+n), "/")
		if n == "" {
			continue
		}
		first, _, found := strings.Cut(n, "/")
		if !found && !isDirName(names, n) {
			return ""
		}
		if root == "" {
			root = first
		} else if root != first {
			return ""
		}
	}
	return root
}

// isDirName reports whether n appears in names as a directory entry.
func isDirName(names []string, n string) bool {
	for _, m := range names {
		if strings.TrimPrefix(m, "/") == n+"/" {
			return true
		}
	}
	return false
}

package fingerprint

import (
	"path/filepath"
	"strings"
)

// RelPath is a filesystem-relative path in canonical form: forward-slash
// separated and never beginning with a separator. It is the key used
// everywhere outside the scanner (the database, the archive member names,
// the diff sets) so that a base directory can be relocated without
// invalidating a database.
type RelPath string

// NewRelPath converts an absolute path and a base directory into a
// canonical RelPath. The base must be a prefix of path.
func NewRelPath(base, path string) RelPath {
	rel, err := filepath.Rel(base, path)
	if err != nil {
		// base and path are always constructed together by the scanner, so
		// a Rel failure here would indicate a programming error rather than
		// a condition callers need to recover from.
		panic("fingerprint: path is not relative to base: " + err.Error())
	}
	return RelPath(filepath.ToSlash(rel))
}

// String implements fmt.Stringer.
func (r RelPath) String() string {
	return string(r)
}

// Valid reports whether r is in canonical form: non-empty, forward-slash
// separated, and not rooted.
func (r RelPath) Valid() bool {
	s := string(r)
	if s == "" {
		return false
	}
	if strings.HasPrefix(s, "/") {
		return false
	}
	if strings.Contains(s, "\\") {
		return false
	}
	return true
}

package walker

import (
	"path/filepath"
	"runtime"
	"strings"
)

// protectedRoots lists OS system directories the walker refuses to descend
// into when Config.ProtectSystem is set. Matching is by path-component
// prefix (see isProtected), not textual prefix, so "/usr2" is never
// mistaken for a child of "/usr".
var protectedRoots = map[string][]string{
	"windows": {
		`C:\Windows`,
		`C:\Program Files`,
		`C:\Program Files (x86)`,
		`C:\ProgramData`,
	},
	"darwin": {
		"/System",
		"/Library",
		"/private",
		"/dev",
	},
	"linux": {
		"/proc",
		"/sys",
		"/dev",
		"/run",
		"/boot",
	},
}

// ProtectedPredicate reports whether a candidate path falls under a
// protected system directory for the current platform.
type ProtectedPredicate struct {
	roots [][]string // each protected root, pre-split into path components
}

// NewProtectedPredicate builds the predicate for the running platform.
// Immutable once constructed, matching the spec's "immutable after
// configuration" shared-resource policy.
func NewProtectedPredicate() *ProtectedPredicate {
	roots := protectedRoots[runtime.GOOS]
	split := make([][]string, len(roots))
	for i, r := range roots {
		split[i] = splitPath(r)
	}
	return &ProtectedPredicate{roots: split}
}

// IsProtected reports whether path is equal to, or a descendant of, a
// protected root, by longest-common-prefix comparison of path components.
func (p *ProtectedPredicate) IsProtected(path string) bool {
	candidate := splitPath(path)
	for _, root := range p.roots {
		if isPrefix(root, candidate) {
			return true
		}
	}
	return false
}

func isPrefix(prefix, full []string) bool {
	if len(prefix) > len(full) {
		return false
	}
	for i, p := range prefix {
		if !strings.EqualFold(p, full[i]) {
			return false
		}
	}
	return true
}

func splitPath(path string) []string {
	clean := filepath.Clean(path)
	var parts []string
	for {
		dir, file := filepath.Split(clean)
		dir = strings.TrimSuffix(dir, string(filepath.Separator))
		if file != "" {
			parts = append([]string{file}, parts...)
		}
		if dir == clean || dir == "" {
			if dir != "" {
				parts = append([]string{dir}, parts...)
			}
			break
		}
		clean = dir
	}
	return parts
}

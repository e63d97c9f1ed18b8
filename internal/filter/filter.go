// Package filter applies the four-gate predicate pipeline the spec
// describes: minimum size, extension allow-list, include-pattern
// allow-list, exclude-pattern deny-list, plus a separate hidden/system-file
// predicate. Patterns are fixed once per scan (copied in New) and matched
// with doublestar, against both the filename and the full path; they are
// not precompiled.
package filter

import (
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/ivoronin/duphound/internal/types"
)

// hiddenOSNames is the small set of OS-metadata filenames dropped by the
// hidden/system predicate in addition to dot-prefixed names.
var hiddenOSNames = map[string]bool{
	"Thumbs.db":   true,
	".DS_Store":   true,
	"desktop.ini": true,
}

// Filter applies the configured gates to candidate FileRecords.
type Filter struct {
	minSize    int64
	extensions map[string]bool // empty = all
	includes   []string
	excludes   []string
	skipHidden bool
}

// New compiles a Filter from raw config values. Extensions are normalized
// once here (lowercased, dot-stripped) so "TXT"/".txt"/"txt" are equivalent.
func New(minSize int64, extensions, includes, excludes []string, skipHidden bool) *Filter {
	var extSet map[string]bool
	if len(extensions) > 0 {
		extSet = make(map[string]bool, len(extensions))
		for _, e := range extensions {
			extSet[types.NormalizeExtension(e)] = true
		}
	}
	return &Filter{
		minSize:    minSize,
		extensions: extSet,
		includes:   append([]string{}, includes...),
		excludes:   append([]string{}, excludes...),
		skipHidden: skipHidden,
	}
}

// Keep applies all gates in spec order and reports whether f should be kept.
func (flt *Filter) Keep(f *types.FileRecord) bool {
	if flt.skipHidden && isHiddenOrSystem(f.Path) {
		return false
	}
	if f.Size < flt.minSize {
		return false
	}
	if len(flt.extensions) > 0 && !flt.extensions[extensionOf(f.Path)] {
		return false
	}
	if len(flt.includes) > 0 && !flt.matchesAny(flt.includes, f.Path) {
		return false
	}
	if len(flt.excludes) > 0 && flt.matchesAny(flt.excludes, f.Path) {
		return false
	}
	return true
}

// matchesAny reports whether path or its basename matches any pattern.
func (flt *Filter) matchesAny(patterns []string, path string) bool {
	base := filepath.Base(path)
	slashPath := filepath.ToSlash(path)
	for _, p := range patterns {
		if ok, _ := doublestar.Match(p, base); ok {
			return true
		}
		if ok, _ := doublestar.Match(p, slashPath); ok {
			return true
		}
	}
	return false
}

func extensionOf(path string) string {
	return types.NormalizeExtension(filepath.Ext(path))
}

func isHiddenOrSystem(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") {
		return true
	}
	return hiddenOSNames[base]
}

// ValidatePatterns checks that all patterns are valid doublestar patterns,
// the synchronous configuration-time check the spec requires (errors must
// surface before a run starts, not mid-scan).
func ValidatePatterns(patterns []string) error {
	for _, p := range patterns {
		if !doublestar.ValidatePattern(p) {
			return &InvalidPatternError{Pattern: p}
		}
	}
	return nil
}

// InvalidPatternError reports a malformed include/exclude pattern.
type InvalidPatternError struct {
	Pattern string
}

func (e *InvalidPatternError) Error() string {
	return "invalid glob pattern: " + e.Pattern
}

// Package types provides the shared data model used across the duphound
// pipeline: discovered files, fingerprints, sessions, groups, and the
// small ordering/concurrency primitives the rest of the codebase builds on.
package types

import (
	"cmp"
	"slices"
	"time"
)

// FileRecord is a discovered filesystem entry, produced by the walker and
// immutable thereafter.
type FileRecord struct {
	Path    string
	Size    int64
	ModTime int64 // seconds since epoch, truncated for stable (size, mtime) comparison
	Dev     uint64
	Ino     uint64
	Nlink   uint32
}

// TruncateModTime converts a time.Time to the integer-seconds form stored
// on FileRecord and compared against for fingerprint-cache witness checks.
func TruncateModTime(t time.Time) int64 { return t.Unix() }

// KeyOrdered holds T values kept in ascending order of a derived key K,
// re-sorted once at construction rather than on every read — the walker's
// discovery order is racy across workers, but every downstream consumer
// (group members, folder manifests, session_files rows) needs one
// deterministic iteration order.
type KeyOrdered[T any, K cmp.Ordered] struct {
	items   []T
	keyFunc func(T) K
}

// NewKeyOrdered copies items and sorts the copy by keyFunc(item).
func NewKeyOrdered[T any, K cmp.Ordered](items []T, keyFunc func(T) K) KeyOrdered[T, K] {
	sorted := make([]T, len(items))
	copy(sorted, items)
	slices.SortFunc(sorted, func(a, b T) int {
		return cmp.Compare(keyFunc(a), keyFunc(b))
	})
	return KeyOrdered[T, K]{items: sorted, keyFunc: keyFunc}
}

// Items returns the ordered items.
func (s KeyOrdered[T, K]) Items() []T { return s.items }

// First returns the item with the smallest key, or the zero value if empty.
func (s KeyOrdered[T, K]) First() T {
	if len(s.items) == 0 {
		var zero T
		return zero
	}
	return s.items[0]
}

// Len returns the number of items.
func (s KeyOrdered[T, K]) Len() int { return len(s.items) }

// FileSet is a path-ordered collection of FileRecords: a duplicate group's
// members, or one folder-manifest's entries.
type FileSet = KeyOrdered[*FileRecord, string]

// NewFileSet builds a FileSet ordered by path.
func NewFileSet(files []*FileRecord) FileSet {
	return NewKeyOrdered(files, func(f *FileRecord) string { return f.Path })
}

// WorkGate is a counting semaphore bounding how many pipeline workers may
// hold a resource concurrently (the walker's per-directory fan-out, and any
// future stage that needs the same bounded-parallelism shape).
type WorkGate chan struct{}

// NewWorkGate opens a gate admitting up to n concurrent holders.
func NewWorkGate(n int) WorkGate { return make(chan struct{}, n) }

// Acquire blocks until a slot opens, then claims it.
func (g WorkGate) Acquire() { g <- struct{}{} }

// Release frees a slot, unblocking one waiting Acquire.
func (g WorkGate) Release() { <-g }

package hashpipeline

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ivoronin/duphound/internal/store"
	"github.com/ivoronin/duphound/internal/types"
	"github.com/stretchr/testify/require"
)

// fakeCache is an in-memory Cache for pipeline tests.
type fakeCache struct {
	rows map[string]*store.Fingerprint
}

func newFakeCache() *fakeCache { return &fakeCache{rows: map[string]*store.Fingerprint{}} }

func (c *fakeCache) LookupFingerprint(path string, size, mtime int64) (*store.Fingerprint, error) {
	fp, ok := c.rows[path]
	if !ok || fp.Size != size || fp.MTime != mtime {
		return nil, nil
	}
	return fp, nil
}

func (c *fakeCache) PutPartialHash(path string, size, mtime int64, hash []byte, now int64) error {
	c.rows[path] = &store.Fingerprint{Path: path, Size: size, MTime: mtime, PartialHash: hash, LastSeen: now}
	return nil
}

func (c *fakeCache) PutFullHash(path string, size, mtime int64, hash []byte, now int64) error {
	fp, ok := c.rows[path]
	if !ok {
		fp = &store.Fingerprint{Path: path, Size: size, MTime: mtime}
		c.rows[path] = fp
	}
	fp.FullHash = hash
	fp.LastSeen = now
	return nil
}

func (c *fakeCache) TouchLastSeen(path string, now int64) error {
	if fp, ok := c.rows[path]; ok {
		fp.LastSeen = now
	}
	return nil
}

func writeFile(t *testing.T, dir, name string, content []byte) *types.FileRecord {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, content, 0o644))
	info, err := os.Stat(path)
	require.NoError(t, err)
	return &types.FileRecord{Path: path, Size: info.Size(), ModTime: types.TruncateModTime(info.ModTime())}
}

func TestQuickHashIdenticalContent(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.txt", []byte("hello world"))
	b := writeFile(t, dir, "b.txt", []byte("hello world"))
	c := writeFile(t, dir, "c.txt", []byte("different!!"))

	p := New(2, newFakeCache(), nil, nil)
	hashes := p.QuickHash([]*types.FileRecord{a, b, c})

	require.Len(t, hashes, 3)
	require.Equal(t, hashes[a.Path], hashes[b.Path])
	require.NotEqual(t, hashes[a.Path], hashes[c.Path])
	require.Len(t, hashes[a.Path], 16) // 128-bit digest
}

func TestFullHashUsesCacheOnSecondPass(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.txt", []byte("content-for-full-hash-test"))

	cache := newFakeCache()
	p := New(1, cache, nil, nil)

	first := p.FullHash([]*types.FileRecord{a})
	require.EqualValues(t, 1, p.Stats.Computed.Load())

	second := p.FullHash([]*types.FileRecord{a})
	require.EqualValues(t, 1, p.Stats.CacheHits.Load())
	require.Equal(t, first[a.Path], second[a.Path])
}

func TestHashEntriesShape(t *testing.T) {
	hashes := map[string][]byte{"/a": []byte("x"), "/b": []byte("y")}
	entries := HashEntries(HashTypeFull, hashes)
	require.Len(t, entries, 2)
	for _, e := range entries {
		require.Equal(t, HashTypeFull, e.HashType)
	}
}

func TestCancellationStopsSubmission(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.txt", []byte("x"))

	cancelled := true
	p := New(1, newFakeCache(), nil, func() bool { return cancelled })
	hashes := p.QuickHash([]*types.FileRecord{a})
	require.Empty(t, hashes)
}

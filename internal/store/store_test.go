package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/ivoronin/duphound/internal/types"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "duphound.db")
	s, err := Open(path, 4)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestFingerprintWitnessMiss(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.PutPartialHash("/a/file.txt", 100, 1000, []byte("partial16bytes!!"), 1))

	fp, err := s.LookupFingerprint("/a/file.txt", 100, 1000)
	require.NoError(t, err)
	require.NotNil(t, fp)
	require.Equal(t, []byte("partial16bytes!!"), fp.PartialHash)

	// A changed mtime invalidates the cache hit even though the row exists.
	fp, err = s.LookupFingerprint("/a/file.txt", 100, 2000)
	require.NoError(t, err)
	require.Nil(t, fp)
}

func TestPutFullHashResetOnWitnessChange(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.PutFullHash("/a/file.txt", 100, 1000, []byte("fullhash16bytes!"), 1))
	fp, err := s.LookupFingerprint("/a/file.txt", 100, 1000)
	require.NoError(t, err)
	require.NotNil(t, fp)
	require.Equal(t, []byte("fullhash16bytes!"), fp.FullHash)

	// Re-witnessing with a new partial hash under a changed (size, mtime)
	// must drop the stale full_hash rather than let it leak forward.
	require.NoError(t, s.PutPartialHash("/a/file.txt", 200, 2000, []byte("newpartial123456"), 2))
	fp, err = s.LookupFingerprint("/a/file.txt", 200, 2000)
	require.NoError(t, err)
	require.NotNil(t, fp)
	require.Nil(t, fp.FullHash)
}

func TestSweepOlderThan(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.PutFullHash("/old.txt", 1, 1, []byte("0123456789abcdef"), 100))
	require.NoError(t, s.PutFullHash("/new.txt", 1, 1, []byte("fedcba9876543210"), 2000))

	n, err := s.SweepOlderThan(1000)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	fp, err := s.LookupFingerprint("/old.txt", 1, 1)
	require.NoError(t, err)
	require.Nil(t, fp)

	fp, err = s.LookupFingerprint("/new.txt", 1, 1)
	require.NoError(t, err)
	require.NotNil(t, fp)
}

func TestSessionCreateAndLoad(t *testing.T) {
	s := openTestStore(t)
	now := time.Now()
	sess := &types.Session{
		ID:         "sess-1",
		Status:     types.StatusRunning,
		Stage:      types.StageCollect,
		Config:     types.Config{Roots: []string{"/tmp"}, MaxWorkers: 4},
		ConfigHash: "abc123",
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	require.NoError(t, s.CreateSession(sess))

	loaded, err := s.GetSession("sess-1")
	require.NoError(t, err)
	require.Equal(t, types.StatusRunning, loaded.Status)
	require.Equal(t, types.StageCollect, loaded.Stage)
	require.Equal(t, []string{"/tmp"}, loaded.Config.Roots)
}

func TestSessionResumable(t *testing.T) {
	s := openTestStore(t)
	now := time.Now()
	sess := &types.Session{
		ID: "sess-2", Status: types.StatusPaused, Stage: types.StageFullHash,
		Config: types.Config{Roots: []string{"/tmp"}, MaxWorkers: 4}, ConfigHash: "hash-x",
		CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, s.CreateSession(sess))

	found, err := s.FindResumable("hash-x")
	require.NoError(t, err)
	require.NotNil(t, found)
	require.Equal(t, "sess-2", found.ID)

	none, err := s.FindResumable("no-such-hash")
	require.NoError(t, err)
	require.Nil(t, none)
}

func TestSessionFilesRoundTrip(t *testing.T) {
	s := openTestStore(t)
	now := time.Now()
	sess := &types.Session{
		ID: "sess-3", Status: types.StatusRunning, Stage: types.StageCollect,
		Config: types.Config{Roots: []string{"/tmp"}, MaxWorkers: 4}, ConfigHash: "h",
		CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, s.CreateSession(sess))

	files := []*types.FileRecord{
		{Path: "/tmp/a.txt", Size: 10, ModTime: 1, Dev: 1, Ino: 1, Nlink: 1},
		{Path: "/tmp/b.txt", Size: 20, ModTime: 2, Dev: 1, Ino: 2, Nlink: 1},
	}
	require.NoError(t, s.PutFiles("sess-3", files))

	loaded, err := s.LoadFiles("sess-3")
	require.NoError(t, err)
	require.Len(t, loaded, 2)
}

func TestHashEntryDedupeWithinBatch(t *testing.T) {
	s := openTestStore(t)
	now := time.Now()
	sess := &types.Session{
		ID: "sess-4", Status: types.StatusRunning, Stage: types.StageQuickHash,
		Config: types.Config{Roots: []string{"/tmp"}, MaxWorkers: 4}, ConfigHash: "h",
		CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, s.CreateSession(sess))

	entries := []HashEntry{
		{Path: "/tmp/a.txt", HashType: "partial", Hash: []byte("first-value-1234")},
		{Path: "/tmp/a.txt", HashType: "partial", Hash: []byte("second-value-123")},
	}
	require.NoError(t, s.PutHashes("sess-4", entries))

	loaded, err := s.LoadHashes("sess-4")
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	require.Equal(t, []byte("second-value-123"), loaded[0].Hash)
}

func TestGCSessionsKeepsLatest(t *testing.T) {
	s := openTestStore(t)
	for i := 0; i < 5; i++ {
		now := time.Now().Add(time.Duration(i) * time.Second)
		sess := &types.Session{
			ID: "sess-" + string(rune('a'+i)), Status: types.StatusCompleted, Stage: types.StageFinalize,
			Config: types.Config{Roots: []string{"/tmp"}, MaxWorkers: 4}, ConfigHash: "h",
			CreatedAt: now, UpdatedAt: now,
		}
		require.NoError(t, s.CreateSession(sess))
	}

	n, err := s.GCSessions(2)
	require.NoError(t, err)
	require.EqualValues(t, 3, n)

	remaining, err := s.ListSessions()
	require.NoError(t, err)
	require.Len(t, remaining, 2)
}

package grouper

import (
	"testing"

	"github.com/ivoronin/duphound/internal/types"
	"github.com/stretchr/testify/require"
)

func TestFolderManifestsMatchOnIdenticalContents(t *testing.T) {
	files := []*types.FileRecord{
		{Path: "/x/dir1/a.txt", Size: 10},
		{Path: "/x/dir1/b.txt", Size: 20},
		{Path: "/x/dir2/a.txt", Size: 10},
		{Path: "/x/dir2/b.txt", Size: 20},
		{Path: "/x/dir3/a.txt", Size: 10},
		{Path: "/x/dir3/c.txt", Size: 30},
	}
	hashes := map[string][]byte{
		"/x/dir1/a.txt": []byte("h-a"),
		"/x/dir1/b.txt": []byte("h-b"),
		"/x/dir2/a.txt": []byte("h-a"),
		"/x/dir2/b.txt": []byte("h-b"),
		"/x/dir3/a.txt": []byte("h-a"),
		"/x/dir3/c.txt": []byte("h-c"),
	}

	out := FolderManifests(files, hashes, false)
	require.Len(t, out, 1)
	for key, members := range out {
		require.Equal(t, types.GroupFolderDup, key.Tag)
		require.Len(t, members, 4) // dir1 + dir2, 2 files each
	}
}

func TestFolderManifestsSkipMissingHashes(t *testing.T) {
	files := []*types.FileRecord{
		{Path: "/x/dir1/a.txt", Size: 10},
		{Path: "/x/dir2/a.txt", Size: 10},
	}
	out := FolderManifests(files, map[string][]byte{}, false)
	require.Empty(t, out)
}

package grouper

import (
	"testing"

	"github.com/ivoronin/duphound/internal/types"
	"github.com/stretchr/testify/require"
)

func TestByNameCaseInsensitive(t *testing.T) {
	files := []*types.FileRecord{
		{Path: "/a/Photo.JPG"},
		{Path: "/b/photo.jpg"},
		{Path: "/c/other.jpg"},
	}
	out := ByName(files)
	require.Len(t, out, 1)
	for key, members := range out {
		require.Equal(t, types.GroupNameOnly, key.Tag)
		require.Equal(t, "photo.jpg", key.LowerName)
		require.Len(t, members, 2)
	}
}

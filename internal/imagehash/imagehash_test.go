package imagehash

import (
	"image"
	"image/color"
	"testing"

	"github.com/ivoronin/duphound/internal/types"
	"github.com/stretchr/testify/require"
)

func solidImage(w, h int, c color.Gray) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetGray(x, y, c)
		}
	}
	return img
}

func checkerImage(w, h int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := uint8(0)
			if (x/8+y/8)%2 == 0 {
				v = 255
			}
			img.SetGray(x, y, color.Gray{Y: v})
		}
	}
	return img
}

func TestComputeIdenticalImagesMatch(t *testing.T) {
	a := Compute(solidImage(64, 64, color.Gray{Y: 128}))
	b := Compute(solidImage(64, 64, color.Gray{Y: 128}))
	require.Equal(t, a, b)
}

func TestComputeDistinctImagesDiffer(t *testing.T) {
	a := Compute(solidImage(64, 64, color.Gray{Y: 10}))
	b := Compute(checkerImage(64, 64))
	require.NotZero(t, HammingDistance(a, b))
}

func TestHammingDistanceSelf(t *testing.T) {
	h := Compute(checkerImage(64, 64))
	require.Equal(t, 0, HammingDistance(h, h))
}

func TestRadiusMapping(t *testing.T) {
	require.Equal(t, 0, Radius(1.0))
	require.Equal(t, 64, Radius(0.0))
	require.InDelta(t, 6, Radius(0.9), 1)
}

func TestMetricTreeQueryFindsWithinRadius(t *testing.T) {
	tree := NewMetricTree()
	tree.Insert(0b0000, "a")
	tree.Insert(0b0001, "b")
	tree.Insert(0b1111, "c")

	found := tree.Query(0b0000, 1)
	require.ElementsMatch(t, []string{"a", "b"}, found)
}

func TestUnionFindTransitiveClustering(t *testing.T) {
	uf := NewUnionFind(4)
	uf.Union(0, 1)
	uf.Union(1, 2)
	require.Equal(t, uf.Find(0), uf.Find(2))
	require.NotEqual(t, uf.Find(0), uf.Find(3))
}

func TestGrouperClustersSimilarHashes(t *testing.T) {
	g := NewGrouper(1.0) // radius 0: only exact hash matches cluster
	g.hashes = map[string]Hash64{}
	g.records = map[string]*types.FileRecord{}

	fa := &types.FileRecord{Path: "/a.jpg", Size: 10, Dev: 1, Ino: 1}
	fb := &types.FileRecord{Path: "/b.jpg", Size: 10, Dev: 1, Ino: 2}
	fc := &types.FileRecord{Path: "/c.jpg", Size: 10, Dev: 1, Ino: 3}

	for _, f := range []*types.FileRecord{fa, fb, fc} {
		g.records[f.Path] = f
		g.order = append(g.order, f.Path)
	}
	g.hashes[fa.Path] = 0b0000
	g.hashes[fb.Path] = 0b0000
	g.hashes[fc.Path] = 0b1111
	for p, h := range g.hashes {
		g.tree.Insert(h, p)
	}

	groups := g.Cluster()
	require.Len(t, groups, 1)
	require.Equal(t, 2, groups[0].Members.Len())
}

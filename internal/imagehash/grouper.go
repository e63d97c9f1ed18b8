package imagehash

import (
	"fmt"

	"github.com/ivoronin/duphound/internal/types"
)

// Radius converts the spec's similarity ∈ (0.0, 1.0] into a Hamming-radius
// threshold over the 64-bit hash space: round((1-similarity) x 64).
func Radius(similarity float64) int {
	return int(0.5 + (1.0-similarity)*64)
}

// Grouper clusters images by perceptual similarity using a BK-tree for
// candidate lookup and union-find for transitive clustering.
type Grouper struct {
	radius  int
	tree    *MetricTree
	hashes  map[string]Hash64
	records map[string]*types.FileRecord
	order   []string
}

// NewGrouper creates a Grouper for the given similarity threshold.
// Config-time validation for similarity == 0 is the caller's
// responsibility (types.Config.Validate rejects it before a run starts).
func NewGrouper(similarity float64) *Grouper {
	return &Grouper{
		radius:  Radius(similarity),
		tree:    NewMetricTree(),
		hashes:  make(map[string]Hash64),
		records: make(map[string]*types.FileRecord),
	}
}

// Add computes and indexes the perceptual hash for one file. Decode
// failures are reported through onError and the file is simply excluded
// from perceptual grouping; whether it joins any other group is decided
// outside this package.
func (g *Grouper) Add(f *types.FileRecord, onError func(error)) {
	hash, err := ComputeFile(f.Path)
	if err != nil {
		if onError != nil {
			onError(fmt.Errorf("imagehash: %w", err))
		}
		return
	}
	g.hashes[f.Path] = hash
	g.records[f.Path] = f
	g.order = append(g.order, f.Path)
	g.tree.Insert(hash, f.Path)
}

// Cluster runs the BK-tree radius query against every indexed path and
// unions transitively-linked paths via union-find, then emits one
// SimilarImage Group per cluster with 2+ members. Members carry their full
// FileRecord (including device/inode) so types.NewGroup's hardlink
// deduplication still applies.
func (g *Grouper) Cluster() []types.Group {
	index := make(map[string]int, len(g.order))
	for i, p := range g.order {
		index[p] = i
	}
	uf := NewUnionFind(len(g.order))

	for _, path := range g.order {
		hash := g.hashes[path]
		for _, neighbor := range g.tree.Query(hash, g.radius) {
			if neighbor == path {
				continue
			}
			uf.Union(index[path], index[neighbor])
		}
	}

	byRoot := make(map[int][]string)
	for _, path := range g.order {
		root := uf.Find(index[path])
		byRoot[root] = append(byRoot[root], path)
	}

	var groups []types.Group
	for root, paths := range byRoot {
		if len(paths) < 2 {
			continue
		}
		members := make([]*types.FileRecord, 0, len(paths))
		for _, p := range paths {
			members = append(members, g.records[p])
		}
		clusterID := fmt.Sprintf("cluster-%d", root)
		key := types.GroupKey{Tag: types.GroupSimilarImage, ClusterID: clusterID, RepresentativeSize: members[0].Size}
		groups = append(groups, types.NewGroup(key, members))
	}
	return groups
}

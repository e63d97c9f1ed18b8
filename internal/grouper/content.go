// Package grouper turns surviving hash-pipeline equivalence classes into
// Groups. Grounded on the teacher's internal/screener size/sibling
// partitioning idiom (map-then-sorted-output, byHash/byIno style grouping)
// and internal/verifier's byte-exact confirmation step.
package grouper

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/ivoronin/duphound/internal/types"
)

// byteCompareBufSize mirrors the teacher's verifier read-buffer sizing.
const byteCompareBufSize = 64 * 1024

// BySize partitions files by exact size, discarding singleton groups —
// quick-hash's cheapest gate, requiring no I/O.
func BySize(files []*types.FileRecord) [][]*types.FileRecord {
	bySize := make(map[int64][]*types.FileRecord)
	for _, f := range files {
		bySize[f.Size] = append(bySize[f.Size], f)
	}
	return discardSingletons(bySize)
}

// ByPartialHash repartitions each size-equal group by (size, partial_hash),
// discarding singletons. hashes maps path -> partial hash, as returned by
// hashpipeline.QuickHash.
func ByPartialHash(groups [][]*types.FileRecord, hashes map[string][]byte) [][]*types.FileRecord {
	byKey := make(map[string][]*types.FileRecord)
	for _, group := range groups {
		for _, f := range group {
			h, ok := hashes[f.Path]
			if !ok {
				continue
			}
			key := fmt.Sprintf("%d:%x", f.Size, h)
			byKey[key] = append(byKey[key], f)
		}
	}
	return discardSingletons(byKey)
}

// ByFullHash repartitions each surviving group by (size, full_hash),
// discarding singletons, and returns the GroupKey each survivor shares.
func ByFullHash(groups [][]*types.FileRecord, hashes map[string][]byte) map[types.GroupKey][]*types.FileRecord {
	out := make(map[types.GroupKey][]*types.FileRecord)
	for _, group := range groups {
		byHash := make(map[string][]*types.FileRecord)
		for _, f := range group {
			h, ok := hashes[f.Path]
			if !ok {
				continue
			}
			byHash[string(h)] = append(byHash[string(h)], f)
		}
		for h, members := range byHash {
			if len(members) < 2 {
				continue
			}
			key := types.GroupKey{Tag: types.GroupContent, Size: members[0].Size, FullHash: fmt.Sprintf("%x", h)}
			out[key] = members
		}
	}
	return out
}

// VerifyByteExact splits each content group by an actual bytewise compare,
// so a full_hash collision (vanishingly unlikely with a 128-bit digest, but
// the spec requires the option) never produces a false-positive group. One
// representative per group is compared pairwise against every other member.
func VerifyByteExact(members []*types.FileRecord) ([][]*types.FileRecord, error) {
	if len(members) < 2 {
		return nil, nil
	}
	var clusters [][]*types.FileRecord
	for _, f := range members {
		placed := false
		for i, cluster := range clusters {
			equal, err := bytesEqual(cluster[0].Path, f.Path)
			if err != nil {
				return nil, err
			}
			if equal {
				clusters[i] = append(clusters[i], f)
				placed = true
				break
			}
		}
		if !placed {
			clusters = append(clusters, []*types.FileRecord{f})
		}
	}
	var result [][]*types.FileRecord
	for _, c := range clusters {
		if len(c) >= 2 {
			result = append(result, c)
		}
	}
	return result, nil
}

func bytesEqual(pathA, pathB string) (bool, error) {
	fa, err := os.Open(pathA)
	if err != nil {
		return false, fmt.Errorf("open %s: %w", pathA, err)
	}
	defer func() { _ = fa.Close() }()
	fb, err := os.Open(pathB)
	if err != nil {
		return false, fmt.Errorf("open %s: %w", pathB, err)
	}
	defer func() { _ = fb.Close() }()

	bufA := make([]byte, byteCompareBufSize)
	bufB := make([]byte, byteCompareBufSize)
	for {
		na, erra := fa.Read(bufA)
		nb, errb := fb.Read(bufB)
		if na != nb || !bytes.Equal(bufA[:na], bufB[:nb]) {
			return false, nil
		}
		if erra == io.EOF && errb == io.EOF {
			return true, nil
		}
		if erra != nil && erra != io.EOF {
			return false, fmt.Errorf("read %s: %w", pathA, erra)
		}
		if errb != nil && errb != io.EOF {
			return false, fmt.Errorf("read %s: %w", pathB, errb)
		}
		if erra == io.EOF || errb == io.EOF {
			return erra == errb, nil
		}
	}
}

func discardSingletons[K comparable](m map[K][]*types.FileRecord) [][]*types.FileRecord {
	out := make([][]*types.FileRecord, 0, len(m))
	for _, files := range m {
		if len(files) >= 2 {
			out = append(out, files)
		}
	}
	return out
}

// BuildGroups converts path sets keyed by GroupKey into inode-deduplicated
// Groups, reusing types.NewGroup's (device, inode) collapsing.
func BuildGroups(byKey map[types.GroupKey][]*types.FileRecord) []types.Group {
	out := make([]types.Group, 0, len(byKey))
	for key, members := range byKey {
		g := types.NewGroup(key, members)
		if g.Members.Len() >= 2 {
			out = append(out, g)
		}
	}
	return out
}

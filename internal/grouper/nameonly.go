package grouper

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ivoronin/duphound/internal/types"
)

// ByName groups files by lowercased basename, bypassing the hash pipeline
// entirely, per spec section 4.6's name_only mode.
func ByName(files []*types.FileRecord) map[types.GroupKey][]*types.FileRecord {
	byName := make(map[string][]*types.FileRecord)
	for _, f := range files {
		lower := strings.ToLower(filepath.Base(f.Path))
		byName[lower] = append(byName[lower], f)
	}
	out := make(map[types.GroupKey][]*types.FileRecord)
	for name, members := range byName {
		if len(members) < 2 {
			continue
		}
		out[types.GroupKey{Tag: types.GroupNameOnly, LowerName: name}] = members
	}
	return out
}

// ByContentAndName groups by (full_hash, lowercased_filename), the
// content_and_name mode's stricter equivalence. hashes maps path -> full
// hash, as returned by hashpipeline.FullHash.
func ByContentAndName(groups [][]*types.FileRecord, hashes map[string][]byte) map[types.GroupKey][]*types.FileRecord {
	type compositeKey struct {
		hash string
		name string
	}
	byComposite := make(map[compositeKey][]*types.FileRecord)
	for _, group := range groups {
		for _, f := range group {
			h, ok := hashes[f.Path]
			if !ok {
				continue
			}
			key := compositeKey{hash: fmt.Sprintf("%x", h), name: strings.ToLower(filepath.Base(f.Path))}
			byComposite[key] = append(byComposite[key], f)
		}
	}
	out := make(map[types.GroupKey][]*types.FileRecord)
	for ck, members := range byComposite {
		if len(members) < 2 {
			continue
		}
		out[types.GroupKey{Tag: types.GroupContent, Size: members[0].Size, FullHash: ck.hash + ":" + ck.name}] = members
	}
	return out
}

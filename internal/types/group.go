package types

import "fmt"

// GroupTag identifies which variant of the Group key union is populated.
type GroupTag int

const (
	GroupContent GroupTag = iota
	GroupNameOnly
	GroupSimilarImage
	GroupFolderDup
)

func (t GroupTag) String() string {
	switch t {
	case GroupContent:
		return "content"
	case GroupNameOnly:
		return "name"
	case GroupSimilarImage:
		return "similar"
	case GroupFolderDup:
		return "folder"
	default:
		return "unknown"
	}
}

// GroupKey is a tagged union identifying a duplicate equivalence class.
// Exactly the payload fields relevant to Tag are meaningful; callers must
// switch exhaustively on Tag at render/export boundaries rather than
// inspecting payload fields directly.
type GroupKey struct {
	Tag GroupTag

	// Content: Size + FullHash
	Size     int64
	FullHash string

	// NameOnly: LowerName
	LowerName string

	// SimilarImage: ClusterID + RepresentativeSize
	ClusterID          string
	RepresentativeSize int64

	// FolderDup: ManifestHash
	ManifestHash string
}

// Encode renders the key in the "<tag>:<payload>" wire form used by the v2
// export format.
func (k GroupKey) Encode() string {
	switch k.Tag {
	case GroupContent:
		return fmt.Sprintf("content:%s", k.FullHash)
	case GroupNameOnly:
		return fmt.Sprintf("name:%s", k.LowerName)
	case GroupSimilarImage:
		return fmt.Sprintf("similar:%s", k.ClusterID)
	case GroupFolderDup:
		return fmt.Sprintf("folder:%s", k.ManifestHash)
	default:
		return "unknown:"
	}
}

// Group is a set of two or more FileRecords sharing an equivalence class,
// deduplicated by (device, inode) so hardlinks/symlinks to the same
// physical extent appear at most once.
type Group struct {
	Key     GroupKey
	Members FileSet
}

// NewGroup builds a Group from raw members, deduplicating by (device, inode)
// and sorting by path. When two members share (device, inode), the
// lexicographically-first path is kept.
func NewGroup(key GroupKey, members []*FileRecord) Group {
	type devIno struct {
		dev, ino uint64
	}
	seen := make(map[devIno]*FileRecord, len(members))
	for _, m := range members {
		id := devIno{m.Dev, m.Ino}
		if existing, ok := seen[id]; !ok || m.Path < existing.Path {
			seen[id] = m
		}
	}
	deduped := make([]*FileRecord, 0, len(seen))
	for _, f := range seen {
		deduped = append(deduped, f)
	}
	return Group{Key: key, Members: NewFileSet(deduped)}
}

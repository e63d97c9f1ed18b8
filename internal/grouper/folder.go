package grouper

import (
	"fmt"
	"path/filepath"
	"sort"

	"golang.org/x/crypto/blake2b"

	"github.com/ivoronin/duphound/internal/types"
)

// manifestDigestSize matches the hash pipeline's 128-bit digest.
const manifestDigestSize = 16

// FolderManifests builds one manifest per directory from its files'
// already-computed full hashes, per spec section 4.8: a sorted list of
// (filename, size, full_hash) tuples for direct children (or all
// descendants, when recursive is true), hashed into a single manifest_hash.
//
// files must already carry full-hash membership restricted to the set the
// orchestrator wants manifested (e.g. every scanned file, not just
// duplicates) — FolderManifests only needs the directory to group by.
func FolderManifests(files []*types.FileRecord, fullHashes map[string][]byte, recursive bool) map[types.GroupKey][]*types.FileRecord {
	byDir := make(map[string][]*types.FileRecord)
	for _, f := range files {
		if recursive {
			for dir := filepath.Dir(f.Path); ; dir = filepath.Dir(dir) {
				byDir[dir] = append(byDir[dir], f)
				parent := filepath.Dir(dir)
				if parent == dir {
					break
				}
			}
		} else {
			byDir[filepath.Dir(f.Path)] = append(byDir[filepath.Dir(f.Path)], f)
		}
	}

	byManifestHash := make(map[string][]string) // manifest hash -> directories sharing it
	dirFiles := make(map[string][]*types.FileRecord)
	for dir, members := range byDir {
		hash, ok := manifestHash(members, fullHashes)
		if !ok {
			continue
		}
		byManifestHash[hash] = append(byManifestHash[hash], dir)
		dirFiles[dir] = members
	}

	out := make(map[types.GroupKey][]*types.FileRecord)
	for hash, dirs := range byManifestHash {
		if len(dirs) < 2 {
			continue
		}
		var members []*types.FileRecord
		for _, dir := range dirs {
			members = append(members, dirFiles[dir]...)
		}
		out[types.GroupKey{Tag: types.GroupFolderDup, ManifestHash: hash}] = members
	}
	return out
}

// manifestHash builds the canonical (filename, size, full_hash) tuple list
// and hashes it. Returns ok=false if any member lacks a full hash yet.
func manifestHash(members []*types.FileRecord, fullHashes map[string][]byte) (string, bool) {
	type tuple struct {
		name string
		size int64
		hash []byte
	}
	tuples := make([]tuple, 0, len(members))
	for _, f := range members {
		h, ok := fullHashes[f.Path]
		if !ok {
			return "", false
		}
		tuples = append(tuples, tuple{name: filepath.Base(f.Path), size: f.Size, hash: h})
	}
	sort.Slice(tuples, func(i, j int) bool { return tuples[i].name < tuples[j].name })

	hasher, _ := blake2b.New(manifestDigestSize, nil)
	for _, t := range tuples {
		fmt.Fprintf(hasher, "%s\x00%d\x00%x\x00", t.name, t.size, t.hash)
	}
	return fmt.Sprintf("%x", hasher.Sum(nil)), true
}

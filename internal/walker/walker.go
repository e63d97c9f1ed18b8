// Package walker provides parallel filesystem scanning for duplicate
// detection.
//
// # Architecture Overview
//
// The walker uses a concurrent fan-out/fan-in architecture to efficiently
// traverse directory trees while respecting system resource limits.
//
// # Concurrency Model
//
//  1. WALKER GOROUTINES (fan-out)
//     - One goroutine spawned per directory discovered
//     - Concurrency limited by semaphore (walkerSem)
//     - Each walker: acquires semaphore → lists directory → sends files → spawns child walkers → releases semaphore
//
//  2. COLLECTOR GOROUTINE (fan-in)
//     - Single goroutine that drains resultCh into a slice
//     - Runs until resultCh is closed
//
//  3. MAIN GOROUTINE (orchestrator)
//     - Initializes channels and spawns initial walkers
//     - Waits for all walkers (walkerWg.Wait)
//     - Closes resultCh to signal collector
//     - Waits for collector (collectorWg.Wait)
//
// The buffered result channel (1000) smooths producer/consumer rate
// differences; a single collector avoids slice synchronization complexity.
package walker

import (
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/ivoronin/duphound/internal/types"
)

// Stats tracks walking progress using atomic counters for lock-free
// updates from any walker goroutine.
type Stats struct {
	ScannedFiles   atomic.Int64
	ScannedDirs    atomic.Int64
	ProtectedSkips atomic.Int64
	SymlinkLoops   atomic.Int64
	IOErrors       atomic.Int64
}

// Walker discovers files via parallel, cancellable directory traversal.
//
// The walker is designed for single-use: create with New(), call Run() once.
type Walker struct {
	roots          []string
	workers        int
	followSymlinks bool
	protectSystem  bool
	protected      *ProtectedPredicate
	cancelled      func() bool
	onError        func(*types.ScanError)

	walkerWg  sync.WaitGroup
	walkerSem types.WorkGate
	resultCh  chan *types.FileRecord
	Stats     Stats
}

// New creates a Walker for discovering files under roots.
//
// cancelled is consulted at the start of every directory visit and before
// every subdirectory fan-out, so an in-flight walk drains without
// descending further once cancellation is requested. onError receives a
// classified ScanError for every per-entry fault; it must not block.
func New(roots []string, workers int, followSymlinks, protectSystem bool, cancelled func() bool, onError func(*types.ScanError)) *Walker {
	return &Walker{
		roots:          roots,
		workers:        workers,
		followSymlinks: followSymlinks,
		protectSystem:  protectSystem,
		protected:      NewProtectedPredicate(),
		cancelled:      cancelled,
		onError:        onError,
	}
}

// Run executes the walk and returns discovered files. ProtectedRootHits
// reports how many configured roots were entirely skipped because they
// were themselves protected.
func (w *Walker) Run() (files []*types.FileRecord, protectedRootHits []string) {
	w.walkerSem = types.NewWorkGate(w.workers)
	w.resultCh = make(chan *types.FileRecord, 1000)

	var results []*types.FileRecord
	collectorWg := sync.WaitGroup{}
	collectorWg.Add(1)
	go func() {
		for r := range w.resultCh {
			results = append(results, r)
		}
		collectorWg.Done()
	}()

	for _, root := range w.roots {
		absRoot, err := filepath.Abs(root)
		if err != nil {
			w.sendError(types.ErrIOTransient, root, err)
			continue
		}
		if w.protectSystem && w.protected.IsProtected(absRoot) {
			protectedRootHits = append(protectedRootHits, absRoot)
			w.Stats.ProtectedSkips.Add(1)
			continue
		}
		var stack []devIno
		if dev, ino, err := statDevIno(absRoot); err == nil {
			stack = append(stack, devIno{dev, ino})
		}
		w.walkDirectory(absRoot, stack)
	}

	w.walkerWg.Wait()
	close(w.resultCh)
	collectorWg.Wait()

	return results, protectedRootHits
}

// devIno identifies a directory on the descent stack for symlink-cycle
// detection: re-entering an already-pushed (dev, ino) is a cycle.
type devIno struct {
	dev, ino uint64
}

func containsDevIno(stack []devIno, id devIno) bool {
	for _, s := range stack {
		if s == id {
			return true
		}
	}
	return false
}

// walkDirectory spawns a goroutine to process one directory and recursively
// spawn children. descentStack carries the (dev,ino) of every ancestor
// directory reached via a followed symlink, so a cycle back to an ancestor
// is detected and pruned rather than followed forever.
func (w *Walker) walkDirectory(dir string, descentStack []devIno) {
	w.walkerWg.Add(1)
	go func() {
		defer w.walkerWg.Done()

		if w.cancelled != nil && w.cancelled() {
			return
		}

		w.walkerSem.Acquire()
		defer w.walkerSem.Release()

		w.Stats.ScannedDirs.Add(1)

		entries, subdirs, err := w.listDirectory(dir)
		if err != nil {
			w.sendError(classifyIOError(err), dir, err)
			return
		}

		for _, f := range entries {
			w.Stats.ScannedFiles.Add(1)
			select {
			case w.resultCh <- f:
			}
		}

		if w.cancelled != nil && w.cancelled() {
			return
		}

		for _, sub := range subdirs {
			if w.protectSystem && w.protected.IsProtected(sub) {
				w.Stats.ProtectedSkips.Add(1)
				continue
			}
			nextStack := descentStack
			if w.followSymlinks {
				if isLink, _ := isSymlink(sub); isLink {
					dev, ino, err := statDevIno(sub)
					if err != nil {
						w.sendError(classifyIOError(err), sub, err)
						continue
					}
					id := devIno{dev, ino}
					if containsDevIno(descentStack, id) {
						w.Stats.SymlinkLoops.Add(1)
						continue
					}
					nextStack = append(append([]devIno{}, descentStack...), id)
				}
			}
			w.walkDirectory(sub, nextStack)
		}
	}()
}

// listDirectory reads a single directory, returning files and
// subdirectories. Uses batched ReadDir (1000 entries per batch) to bound
// memory usage on directories with millions of entries. This is the only
// place directory I/O occurs.
func (w *Walker) listDirectory(dirPath string) (files []*types.FileRecord, subdirs []string, err error) {
	dir, err := os.Open(dirPath)
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = dir.Close() }()

	const batchSize = 1000
	for {
		entries, err := dir.ReadDir(batchSize)
		if len(entries) == 0 {
			if err != nil && err != io.EOF {
				return files, subdirs, err
			}
			break
		}

		for _, entry := range entries {
			f, sub := w.processEntry(dirPath, entry)
			if f != nil {
				files = append(files, f)
			}
			if sub != "" {
				subdirs = append(subdirs, sub)
			}
		}
	}

	return files, subdirs, nil
}

// processEntry classifies a single directory entry as a file, subdirectory,
// or followable symlink. Returns (nil, "") for entries to skip.
func (w *Walker) processEntry(dirPath string, entry os.DirEntry) (file *types.FileRecord, subdir string) {
	fullPath := filepath.Join(dirPath, entry.Name())

	if entry.IsDir() {
		return nil, fullPath
	}

	if entry.Type()&os.ModeSymlink != 0 {
		if !w.followSymlinks {
			return nil, ""
		}
		target, err := os.Stat(fullPath) // follows the link
		if err != nil {
			w.sendError(classifyIOError(err), fullPath, err)
			return nil, ""
		}
		if target.IsDir() {
			return nil, fullPath
		}
		return newFileRecord(fullPath, target), ""
	}

	if !entry.Type().IsRegular() {
		return nil, ""
	}

	info, err := entry.Info()
	if err != nil {
		w.sendError(classifyIOError(err), fullPath, err)
		return nil, ""
	}

	return newFileRecord(fullPath, info), ""
}

func isSymlink(path string) (bool, error) {
	info, err := os.Lstat(path)
	if err != nil {
		return false, err
	}
	return info.Mode()&os.ModeSymlink != 0, nil
}

func (w *Walker) sendError(kind types.ErrorKind, path string, err error) {
	w.Stats.IOErrors.Add(1)
	if w.onError != nil {
		w.onError(types.NewScanError(kind, path, err))
	}
}

func classifyIOError(err error) types.ErrorKind {
	if os.IsPermission(err) {
		return types.ErrPermission
	}
	if os.IsNotExist(err) {
		return types.ErrIOTransient
	}
	return types.ErrIOTransient
}

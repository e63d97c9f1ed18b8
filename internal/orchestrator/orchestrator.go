// Package orchestrator drives the duplicate-scan pipeline's stage sequence,
// persisted session state machine, cancellation, and resume logic.
// Grounded on the teacher's runDedupe phase-sequencing (cmd/dupedog/dedupe.go),
// generalized from a single in-process function call into a persistent
// state machine, since the teacher's pipeline has no persisted stage.
package orchestrator

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ivoronin/duphound/internal/filter"
	"github.com/ivoronin/duphound/internal/grouper"
	"github.com/ivoronin/duphound/internal/hashpipeline"
	"github.com/ivoronin/duphound/internal/imagehash"
	"github.com/ivoronin/duphound/internal/store"
	"github.com/ivoronin/duphound/internal/types"
	"github.com/ivoronin/duphound/internal/walker"
)

// dbProgressThrottle is the spec's "no more than one DB progress update per
// 500ms" contract; uiProgressThrottle is the matching 100ms UI tier.
const (
	uiProgressThrottle = 100 * time.Millisecond
	dbProgressThrottle = 500 * time.Millisecond
)

var imageExtensions = map[string]bool{
	"jpg": true, "jpeg": true, "png": true, "gif": true, "bmp": true, "webp": true,
}

// Handle is the live handle to a running session: Cancel requests
// cooperative cancellation at the next stage boundary, Done delivers
// exactly one Signal (finished / cancelled / failed).
type Handle struct {
	cancel CancelFlag
	done   chan types.Signal
}

// Cancel requests cancellation. Idempotent; safe to call multiple times or
// after completion.
func (h *Handle) Cancel() { h.cancel.Cancel() }

// Done delivers exactly one Signal when the run finishes, is cancelled, or
// fails.
func (h *Handle) Done() <-chan types.Signal { return h.done }

// run holds the mutable state threaded through one session's stage
// sequence.
type run struct {
	sess     *types.Session
	st       *store.Store
	cb       types.Callbacks
	cancel   *CancelFlag
	log      *slog.Logger
	tel      *telemetry
	lastUI   time.Time
	lastDB   time.Time
	allFiles []*types.FileRecord
	partial  map[string][]byte
	full     map[string][]byte
}

// Run validates cfg, creates a brand-new session at stage "collect", and
// drives it through the pipeline asynchronously.
func Run(cfg types.Config, st *store.Store, cb types.Callbacks) *Handle {
	h := &Handle{done: make(chan types.Signal, 1)}
	if err := cfg.Validate(); err != nil {
		h.done <- types.Signal{Kind: types.SignalFailed, Err: err}
		close(h.done)
		return h
	}

	now := time.Now().UTC()
	sess := &types.Session{
		ID:         uuid.NewString(),
		Status:     types.StatusRunning,
		Stage:      types.StageCollect,
		Config:     cfg,
		ConfigHash: cfg.ConfigHash(),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := st.CreateSession(sess); err != nil {
		h.done <- types.Signal{Kind: types.SignalFailed, Err: err}
		close(h.done)
		return h
	}

	go driveSession(sess, st, cb, h)
	return h
}

// Resume re-enters a paused session whose config hash still matches,
// replaying completed stages from persisted session_files/session_hashes
// rather than redoing completed work.
func Resume(sessionID string, st *store.Store, cb types.Callbacks) (*Handle, error) {
	sess, err := st.GetSession(sessionID)
	if err != nil {
		return nil, fmt.Errorf("resume: %w", err)
	}
	if sess == nil {
		return nil, fmt.Errorf("resume: session %q not found", sessionID)
	}
	if sess.Status != types.StatusPaused {
		return nil, fmt.Errorf("resume: session %q is %s, not paused", sessionID, sess.Status)
	}

	h := &Handle{done: make(chan types.Signal, 1)}
	sess.Status = types.StatusRunning
	go driveSession(sess, st, cb, h)
	return h, nil
}

func driveSession(sess *types.Session, st *store.Store, cb types.Callbacks, h *Handle) {
	r := &run{
		sess: sess,
		st:   st,
		cb:   cb,
		cancel: &h.cancel,
		log:  slog.Default().With("component", "orchestrator", "session", sess.ID),
		tel:  newTelemetry(),
	}

	// Replay any hashes already recorded by a prior attempt at this session,
	// so a resumed run never recomputes a completed stage.
	if sess.Stage != types.StageCollect || sess.Status != types.StatusRunning {
		r.loadPersisted()
	}

	result, sig := r.execute()
	switch sig {
	case types.SignalFinished:
		h.done <- types.Signal{Kind: types.SignalFinished, Result: result, SessionID: sess.ID}
	case types.SignalCancelled:
		h.done <- types.Signal{Kind: types.SignalCancelled, Result: result, SessionID: sess.ID}
	default:
		h.done <- types.Signal{Kind: types.SignalFailed, Err: fmt.Errorf("session %s failed at stage %s", sess.ID, sess.Stage), SessionID: sess.ID}
	}
	close(h.done)
}

func (r *run) loadPersisted() {
	files, err := r.st.LoadFiles(r.sess.ID)
	if err == nil {
		r.allFiles = files
	}
	hashes, err := r.st.LoadHashes(r.sess.ID)
	if err != nil {
		return
	}
	r.partial = make(map[string][]byte)
	r.full = make(map[string][]byte)
	for _, h := range hashes {
		switch h.HashType {
		case hashpipeline.HashTypePartial:
			r.partial[h.Path] = h.Hash
		case hashpipeline.HashTypeFull:
			r.full[h.Path] = h.Hash
		}
	}
}

// execute drives the fixed stage sequence from the session's current
// stage, checking the central cancellation checkpoint between every stage.
func (r *run) execute() (*types.SessionResult, types.SignalKind) {
	stage := r.sess.Stage
	var groups []types.Group
	for {
		if r.cancel.Cancelled() {
			return r.pause(stage)
		}

		var err error
		switch stage {
		case types.StageCollect:
			err = r.runCollect()
		case types.StageQuickHash:
			err = r.runQuickHash()
		case types.StageFullHash:
			err = r.runFullHash()
		case types.StageGroup:
			groups, err = r.runGroup()
		case types.StageFolderDup:
			groups, err = r.runFolderDup(groups)
		case types.StageSimilarImage:
			groups, err = r.runSimilarImage(groups)
		case types.StageFinalize:
			return r.finalize(groups)
		}

		if err != nil {
			r.persist(types.StatusFailed, stage, r.sess.Message)
			return nil, types.SignalFailed
		}

		r.emitStage(stage)
		next, ok := types.NextStage(stage)
		if !ok {
			return r.finalize(groups)
		}
		stage = next
		r.sess.Stage = stage
	}
}

func (r *run) pause(stage types.Stage) (*types.SessionResult, types.SignalKind) {
	r.persist(types.StatusPaused, stage, "cancelled")
	return nil, types.SignalCancelled
}

func (r *run) persist(status types.Status, stage types.Stage, message string) {
	r.sess.Status = status
	r.sess.Stage = stage
	r.sess.Message = message
	r.sess.UpdatedAt = time.Now().UTC()
	if err := r.st.UpdateProgress(r.sess.ID, status, stage, r.sess.Progress, message, r.sess.UpdatedAt); err != nil {
		r.log.Warn("persist session progress failed", "error", err)
	}
}

func (r *run) emitStage(stage types.Stage) {
	if r.cb.OnStageChange != nil {
		r.cb.OnStageChange(stage)
	}
	r.emitProgress(fmt.Sprintf("completed %s", stage))
}

// emitProgress applies the independent 100ms UI / 500ms DB throttle tiers.
func (r *run) emitProgress(message string) {
	now := time.Now()
	if r.cb.OnProgress != nil && now.Sub(r.lastUI) >= uiProgressThrottle {
		r.lastUI = now
		r.cb.OnProgress(r.sess.Progress, message)
	}
	if now.Sub(r.lastDB) >= dbProgressThrottle {
		r.lastDB = now
		r.persist(r.sess.Status, r.sess.Stage, message)
	}
}

func (r *run) runCollect() error {
	w := walker.New(r.sess.Config.Roots, r.sess.Config.MaxWorkers, r.sess.Config.FollowSymlinks,
		r.sess.Config.ProtectSystem, r.cancel.Cancelled, func(e *types.ScanError) { r.tel.recordError(e) })
	discovered, protectedHits := w.Run()
	for range protectedHits {
		r.tel.addWarning(types.WarningProtectedRoot)
	}

	flt := filter.New(r.sess.Config.MinSize, r.sess.Config.Extensions, r.sess.Config.IncludePatterns,
		r.sess.Config.ExcludePatterns, r.sess.Config.SkipHidden)

	var kept []*types.FileRecord
	for _, f := range discovered {
		if flt.Keep(f) {
			kept = append(kept, f)
		}
	}
	r.tel.filesScanned.Store(int64(len(discovered)))
	r.allFiles = kept
	r.applyBaseline(kept)
	return r.st.PutFiles(r.sess.ID, kept)
}

// applyBaseline classifies freshly-collected files against the configured
// baseline session (spec section 4.9's incremental-rescan delta
// classification) and carries forward the baseline's cached hashes for any
// file whose (size, mtime) witness didn't change, so the hash stages never
// rehash a file that was already confirmed unchanged. A no-op unless both
// incremental_rescan and baseline_session are set to a usable session.
func (r *run) applyBaseline(files []*types.FileRecord) {
	r.partial = map[string][]byte{}
	r.full = map[string][]byte{}
	if !r.sess.Config.IncrementalRescan || r.sess.Config.BaselineSession == "" {
		return
	}

	baseSess, err := r.st.GetSession(r.sess.Config.BaselineSession)
	if err != nil || baseSess == nil || !baseSess.CanBaseline() {
		r.log.Warn("baseline session unusable, scanning from scratch",
			"baseline", r.sess.Config.BaselineSession, "error", err)
		return
	}

	baseFiles, err := r.st.LoadFiles(baseSess.ID)
	if err != nil {
		r.log.Warn("failed to load baseline files", "error", err)
		return
	}
	byPath := make(map[string]*types.FileRecord, len(baseFiles))
	for _, f := range baseFiles {
		byPath[f.Path] = f
	}

	baseHashes, err := r.st.LoadHashes(baseSess.ID)
	if err != nil {
		r.log.Warn("failed to load baseline hashes", "error", err)
		return
	}
	basePartial := make(map[string][]byte, len(baseHashes))
	baseFull := make(map[string][]byte, len(baseHashes))
	for _, h := range baseHashes {
		switch h.HashType {
		case hashpipeline.HashTypePartial:
			basePartial[h.Path] = h.Hash
		case hashpipeline.HashTypeFull:
			baseFull[h.Path] = h.Hash
		}
	}

	for _, f := range files {
		delta := types.ClassifyDelta(f, byPath[f.Path])
		r.tel.recordDelta(delta)
		if delta != types.DeltaRevalidated {
			continue
		}
		if h, ok := basePartial[f.Path]; ok {
			r.partial[f.Path] = h
		}
		if h, ok := baseFull[f.Path]; ok {
			r.full[f.Path] = h
		}
	}
}

func (r *run) newPipeline() *hashpipeline.Pipeline {
	workers := hashpipeline.DefaultWorkers(r.sess.Config.MaxWorkers)
	return hashpipeline.New(workers, r.st, func(e *types.ScanError) { r.tel.recordError(e) }, r.cancel.Cancelled)
}

func (r *run) runQuickHash() error {
	if r.sess.Config.Mode == types.ModeNameOnly {
		return nil // name_only bypasses the hash pipeline entirely
	}
	if r.partial == nil {
		r.partial = map[string][]byte{}
	}
	sizeGroups := grouper.BySize(r.allFiles)
	var candidates []*types.FileRecord
	for _, g := range sizeGroups {
		candidates = append(candidates, g...)
	}
	candidates = excludeAlreadyHashed(candidates, r.partial)
	if len(candidates) == 0 {
		return nil
	}

	p := r.newPipeline()
	hashes := p.QuickHash(candidates)
	for path, h := range hashes {
		r.partial[path] = h
	}
	r.tel.filesHashed.Add(int64(len(hashes)))
	return r.st.PutHashes(r.sess.ID, hashpipeline.HashEntries(hashpipeline.HashTypePartial, hashes))
}

func (r *run) runFullHash() error {
	if r.sess.Config.Mode == types.ModeNameOnly {
		return nil
	}
	if r.full == nil {
		r.full = map[string][]byte{}
	}
	sizeGroups := grouper.BySize(r.allFiles)
	survivors := grouper.ByPartialHash(sizeGroups, r.partial)
	var candidates []*types.FileRecord
	for _, g := range survivors {
		candidates = append(candidates, g...)
	}
	candidates = excludeAlreadyHashed(candidates, r.full)
	if len(candidates) == 0 {
		return nil
	}

	p := r.newPipeline()
	hashes := p.FullHash(candidates)
	for path, h := range hashes {
		r.full[path] = h
	}
	r.tel.filesHashed.Add(int64(len(hashes)))
	return r.st.PutHashes(r.sess.ID, hashpipeline.HashEntries(hashpipeline.HashTypeFull, hashes))
}

// excludeAlreadyHashed drops files with a digest already present in done —
// the baseline carry-forward in applyBaseline pre-populates done for files
// revalidated against the incremental-rescan baseline.
func excludeAlreadyHashed(files []*types.FileRecord, done map[string][]byte) []*types.FileRecord {
	if len(done) == 0 {
		return files
	}
	out := make([]*types.FileRecord, 0, len(files))
	for _, f := range files {
		if _, ok := done[f.Path]; !ok {
			out = append(out, f)
		}
	}
	return out
}

func (r *run) runGroup() ([]types.Group, error) {
	var byKey map[types.GroupKey][]*types.FileRecord
	files := r.contentGroupingFiles()

	switch r.sess.Config.Mode {
	case types.ModeNameOnly:
		byKey = grouper.ByName(files)
	case types.ModeContentAndName:
		sizeGroups := grouper.BySize(files)
		survivors := grouper.ByPartialHash(sizeGroups, r.partial)
		byKey = grouper.ByContentAndName(survivors, r.full)
	default:
		sizeGroups := grouper.BySize(files)
		survivors := grouper.ByPartialHash(sizeGroups, r.partial)
		byKey = grouper.ByFullHash(survivors, r.full)
	}

	groups := grouper.BuildGroups(byKey)

	if r.sess.Config.ByteVerify {
		groups = r.verifyByteExact(groups)
	}

	for key, members := range byKey {
		var paths []string
		for _, m := range members {
			paths = append(paths, m.Path)
		}
		if err := r.st.PutResults(r.sess.ID, key.Encode(), paths); err != nil {
			return nil, err
		}
	}
	return groups, nil
}

// contentGroupingFiles returns the files the group stage should partition.
// When similar_image is enabled and mixed_mode is off, image files are
// reserved for the similar_image stage so a file lands in exactly one
// group rather than both an exact-duplicate group and a similarity
// cluster; mixed_mode lets a file participate in both.
func (r *run) contentGroupingFiles() []*types.FileRecord {
	if !r.sess.Config.SimilarImage || r.sess.Config.MixedMode {
		return r.allFiles
	}
	out := make([]*types.FileRecord, 0, len(r.allFiles))
	for _, f := range r.allFiles {
		if !isImageFile(f.Path) {
			out = append(out, f)
		}
	}
	return out
}

func (r *run) verifyByteExact(groups []types.Group) []types.Group {
	var out []types.Group
	for _, g := range groups {
		clusters, err := grouper.VerifyByteExact(g.Members.Items())
		if err != nil {
			r.log.Warn("byte-exact verification failed", "key", g.Key.Encode(), "error", err)
			continue
		}
		for _, members := range clusters {
			out = append(out, types.NewGroup(g.Key, members))
		}
	}
	return out
}

func (r *run) runFolderDup(prior []types.Group) ([]types.Group, error) {
	if !r.sess.Config.DetectFolderDup {
		return prior, nil
	}
	byKey := grouper.FolderManifests(r.allFiles, r.full, r.sess.Config.FolderDupRecurse)
	folderGroups := grouper.BuildGroups(byKey)
	for key, members := range byKey {
		var paths []string
		for _, m := range members {
			paths = append(paths, m.Path)
		}
		if err := r.st.PutResults(r.sess.ID, key.Encode(), paths); err != nil {
			return nil, err
		}
	}
	return append(prior, folderGroups...), nil
}

func (r *run) runSimilarImage(prior []types.Group) ([]types.Group, error) {
	if !r.sess.Config.SimilarImage {
		return prior, nil
	}
	g := imagehash.NewGrouper(r.sess.Config.Similarity)
	for _, f := range r.allFiles {
		if !isImageFile(f.Path) {
			continue
		}
		g.Add(f, func(err error) { r.tel.recordError(types.NewScanError(types.ErrIOTransient, f.Path, err)) })
	}
	clusters := g.Cluster()
	for _, cluster := range clusters {
		var paths []string
		for _, m := range cluster.Members.Items() {
			paths = append(paths, m.Path)
		}
		if err := r.st.PutResults(r.sess.ID, cluster.Key.Encode(), paths); err != nil {
			return nil, err
		}
	}
	return append(prior, clusters...), nil
}

func isImageFile(path string) bool {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	return imageExtensions[ext]
}

func (r *run) finalize(groups []types.Group) (*types.SessionResult, types.SignalKind) {
	status := types.StatusCompleted
	if r.sess.Config.StrictMode && r.tel.errorsTotal.Load() > int64(r.sess.Config.StrictMaxErrors) {
		status = types.StatusPartial
		r.tel.addWarning(types.WarningStrictModeThresholdExceeded)
	}

	r.sess.Progress = 100
	r.persist(status, types.StageFinalize, "finalize")

	result := &types.SessionResult{
		Meta: types.Meta{
			ScanStatus: scanStatusString(status),
			Metrics:    r.tel.metrics(),
			Warnings:   r.tel.warningList(),
			ConfigHash: r.sess.ConfigHash,
			SessionID:  r.sess.ID,
		},
		Groups: groups,
	}
	return result, types.SignalFinished
}

func scanStatusString(status types.Status) string {
	if status == types.StatusPartial {
		return "partial"
	}
	return "completed"
}

package orchestrator

import (
	"os"
	"path/filepath"
	"runtime"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ivoronin/duphound/internal/store"
	"github.com/ivoronin/duphound/internal/types"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "duphound.db"), 4)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func writeFile(t *testing.T, dir, name string, content []byte) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), content, 0o644))
}

func waitForSignal(t *testing.T, h *Handle) types.Signal {
	t.Helper()
	select {
	case sig := <-h.Done():
		return sig
	case <-time.After(10 * time.Second):
		t.Fatal("orchestrator run did not complete in time")
		return types.Signal{}
	}
}

func baseConfig(roots []string) types.Config {
	return types.Config{
		Roots:      roots,
		Mode:       types.ModeContent,
		MaxWorkers: 2,
	}
}

func TestBasicDuplicateDetection(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.txt", []byte("duplicate content"))
	writeFile(t, dir, "b.txt", []byte("duplicate content"))
	writeFile(t, dir, "c.txt", []byte("unique content!!!"))

	st := openTestStore(t)
	h := Run(baseConfig([]string{dir}), st, types.Callbacks{})
	sig := waitForSignal(t, h)

	require.Equal(t, types.SignalFinished, sig.Kind)
	require.Len(t, sig.Result.Groups, 1)
	require.Equal(t, 2, sig.Result.Groups[0].Members.Len())
}

func TestHardlinkDeduplication(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.txt", []byte("shared content"))
	require.NoError(t, os.Link(filepath.Join(dir, "a.txt"), filepath.Join(dir, "a-hardlink.txt")))
	writeFile(t, dir, "b.txt", []byte("shared content"))

	st := openTestStore(t)
	h := Run(baseConfig([]string{dir}), st, types.Callbacks{})
	sig := waitForSignal(t, h)

	require.Equal(t, types.SignalFinished, sig.Kind)
	require.Len(t, sig.Result.Groups, 1)
	// a.txt and a-hardlink.txt share (dev, ino): the group counts them once.
	require.Equal(t, 2, sig.Result.Groups[0].Members.Len())
}

func TestNameOnlyModeBypassesHashing(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "sub")
	require.NoError(t, os.Mkdir(sub, 0o755))
	writeFile(t, dir, "report.txt", []byte("version one"))
	writeFile(t, sub, "REPORT.txt", []byte("version two, totally different length"))

	cfg := baseConfig([]string{dir})
	cfg.Mode = types.ModeNameOnly

	st := openTestStore(t)
	h := Run(cfg, st, types.Callbacks{})
	sig := waitForSignal(t, h)

	require.Equal(t, types.SignalFinished, sig.Kind)
	require.Len(t, sig.Result.Groups, 1)
	require.Equal(t, types.GroupNameOnly, sig.Result.Groups[0].Key.Tag)
}

func TestCancelAtFullHashPausesSession(t *testing.T) {
	dir := t.TempDir()
	for i := 0; i < 6; i++ {
		writeFile(t, dir, string(rune('a'+i))+".txt", []byte("same size content!"))
	}

	st := openTestStore(t)
	cfg := baseConfig([]string{dir})

	// hCh hands the Handle to the callback once Run returns; receiving from
	// it happens-before the send, so cancelling from inside the callback
	// never races the assignment below.
	hCh := make(chan *Handle, 1)
	var cancelled atomic.Bool
	cb := types.Callbacks{
		OnStageChange: func(stage types.Stage) {
			// execute's cancellation checkpoint runs before the next stage
			// starts, so cancelling as soon as quick_hash finishes guarantees
			// the run pauses at full_hash rather than racing it.
			if stage != types.StageQuickHash || !cancelled.CompareAndSwap(false, true) {
				return
			}
			(<-hCh).Cancel()
		},
	}
	h := Run(cfg, st, cb)
	hCh <- h
	sig := waitForSignal(t, h)

	require.Equal(t, types.SignalCancelled, sig.Kind)

	sessions, err := st.ListSessions()
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	require.Equal(t, types.StatusPaused, sessions[0].Status)
	require.Equal(t, types.StageFullHash, sessions[0].Stage)
}

func TestProtectedRootSkipped(t *testing.T) {
	// /proc is in the walker's protected set on Linux; elsewhere it is
	// absent, so the walk still yields nothing.
	cfg := baseConfig([]string{"/proc"})
	cfg.ProtectSystem = true

	st := openTestStore(t)
	h := Run(cfg, st, types.Callbacks{})
	sig := waitForSignal(t, h)
	require.Equal(t, types.SignalFinished, sig.Kind)
	require.Empty(t, sig.Result.Groups)
	if runtime.GOOS == "linux" {
		require.Contains(t, sig.Result.Meta.Warnings, types.WarningProtectedRoot)
	}
}

func TestResumeAfterPause(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.txt", []byte("resumable content"))
	writeFile(t, dir, "b.txt", []byte("resumable content"))

	st := openTestStore(t)
	now := time.Now().UTC()
	cfg := baseConfig([]string{dir})
	sess := &types.Session{
		ID: "resume-test", Status: types.StatusPaused, Stage: types.StageCollect,
		Config: cfg, ConfigHash: cfg.ConfigHash(), CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, st.CreateSession(sess))

	h, err := Resume("resume-test", st, types.Callbacks{})
	require.NoError(t, err)
	sig := waitForSignal(t, h)
	require.Equal(t, types.SignalFinished, sig.Kind)
	require.Len(t, sig.Result.Groups, 1)
}

func TestInvalidConfigFailsSynchronously(t *testing.T) {
	st := openTestStore(t)
	h := Run(types.Config{}, st, types.Callbacks{})
	sig := waitForSignal(t, h)
	require.Equal(t, types.SignalFailed, sig.Kind)
	require.Error(t, sig.Err)
}

func TestConfigHashInvariantToRootOrderAndCasing(t *testing.T) {
	a := types.Config{Roots: []string{"/b", "/a"}, Extensions: []string{".TXT"}, MaxWorkers: 1}
	b := types.Config{Roots: []string{"/a", "/b"}, Extensions: []string{"txt"}, MaxWorkers: 1}
	require.Equal(t, a.ConfigHash(), b.ConfigHash())
}

func TestStrictModeCompletesWithinErrorBudget(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.txt", []byte("content one"))
	writeFile(t, dir, "b.txt", []byte("content one"))

	cfg := baseConfig([]string{dir})
	cfg.StrictMode = true
	cfg.StrictMaxErrors = 0

	st := openTestStore(t)
	h := Run(cfg, st, types.Callbacks{})
	sig := waitForSignal(t, h)

	require.Equal(t, types.SignalFinished, sig.Kind)
	// No injected errors occur in this run, so the budget of 0 is never
	// exceeded and the scan still completes rather than going partial.
	require.Equal(t, "completed", sig.Result.Meta.ScanStatus)
}

func TestStrictModeDemotesToPartialOnClassifiedError(t *testing.T) {
	if os.Getuid() == 0 {
		t.Skip("skipping permission test when running as root")
	}

	dir := t.TempDir()
	writeFile(t, dir, "a.txt", []byte("content one"))
	writeFile(t, dir, "b.txt", []byte("content one"))

	unreadable := filepath.Join(dir, "unreadable.txt")
	require.NoError(t, os.WriteFile(unreadable, []byte("content one"), 0o000))
	defer func() { _ = os.Chmod(unreadable, 0o644) }()

	cfg := baseConfig([]string{dir})
	cfg.StrictMode = true
	cfg.StrictMaxErrors = 0

	st := openTestStore(t)
	h := Run(cfg, st, types.Callbacks{})
	sig := waitForSignal(t, h)

	require.Equal(t, types.SignalFinished, sig.Kind)
	require.Equal(t, "partial", sig.Result.Meta.ScanStatus)
	require.GreaterOrEqual(t, sig.Result.Meta.Metrics.ErrorsTotal, int64(1))
}

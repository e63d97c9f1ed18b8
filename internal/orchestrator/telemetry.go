package orchestrator

import (
	"sync"
	"sync/atomic"

	"github.com/ivoronin/duphound/internal/types"
)

// telemetry accumulates the run's Metrics and warning set using atomic
// counters, following the teacher's "never abort, just count and sample"
// policy for non-fatal per-file faults.
type telemetry struct {
	filesScanned       atomic.Int64
	filesHashed        atomic.Int64
	filesSkippedError  atomic.Int64
	filesSkippedLocked atomic.Int64
	errorsTotal        atomic.Int64
	filesNew           atomic.Int64
	filesChanged       atomic.Int64
	filesRevalidated   atomic.Int64

	mu       sync.Mutex
	warnings map[string]bool
}

func newTelemetry() *telemetry {
	return &telemetry{warnings: make(map[string]bool)}
}

func (t *telemetry) recordError(e *types.ScanError) {
	t.errorsTotal.Add(1)
	switch e.Kind {
	case types.ErrLocked:
		t.filesSkippedLocked.Add(1)
	default:
		t.filesSkippedError.Add(1)
	}
}

func (t *telemetry) recordDelta(d types.Delta) {
	switch d {
	case types.DeltaNew:
		t.filesNew.Add(1)
	case types.DeltaChanged:
		t.filesChanged.Add(1)
	case types.DeltaRevalidated:
		t.filesRevalidated.Add(1)
	}
}

func (t *telemetry) addWarning(w string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.warnings[w] = true
}

func (t *telemetry) metrics() types.Metrics {
	return types.Metrics{
		FilesScanned:       t.filesScanned.Load(),
		FilesHashed:        t.filesHashed.Load(),
		FilesSkippedError:  t.filesSkippedError.Load(),
		FilesSkippedLocked: t.filesSkippedLocked.Load(),
		ErrorsTotal:        t.errorsTotal.Load(),
		FilesNew:           t.filesNew.Load(),
		FilesChanged:       t.filesChanged.Load(),
		FilesRevalidated:   t.filesRevalidated.Load(),
	}
}

func (t *telemetry) warningList() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, 0, len(t.warnings))
	for w := range t.warnings {
		out = append(out, w)
	}
	return out
}

// Package progress renders a terminal progress bar driven by the
// orchestrator's throttled progress callbacks, adapted from the teacher's
// bare progressbar.Bar wrapper into a types.Callbacks source.
package progress

import (
	"fmt"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/ivoronin/duphound/internal/types"
)

const updateInterval = 50 * time.Millisecond

// Bar wraps progressbar with enabled/disabled handling. All methods are
// no-ops when disabled, so callers don't need to branch on a --quiet flag.
type Bar struct {
	bar   *progressbar.ProgressBar
	stage types.Stage
}

// New creates a spinner-mode progress bar; duphound sessions don't know
// their total file count up front, so determinate mode isn't offered.
func New(enabled bool) *Bar {
	if !enabled {
		return &Bar{}
	}
	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionThrottle(updateInterval),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetElapsedTime(false),
	)
	return &Bar{bar: bar}
}

// OnStageChange implements the types.StageFunc signature; wire directly
// into types.Callbacks.OnStageChange.
func (b *Bar) OnStageChange(stage types.Stage) {
	b.stage = stage
	if b.bar != nil {
		b.bar.Describe(fmt.Sprintf("duphound: %s", stage))
	}
}

// OnProgress implements the types.ProgressFunc signature; wire directly
// into types.Callbacks.OnProgress. The orchestrator already throttles calls
// to its 100ms UI tier, so this never needs to throttle again.
func (b *Bar) OnProgress(pct float64, message string) {
	if b.bar == nil {
		return
	}
	if message != "" {
		b.bar.Describe(fmt.Sprintf("duphound: %s — %s", b.stage, message))
	}
	_ = b.bar.Set64(int64(pct))
}

// Finish completes the bar and prints a final summary line.
func (b *Bar) Finish(summary string) {
	if b.bar == nil {
		return
	}
	_ = b.bar.Finish()
	fmt.Fprintln(os.Stderr, "✔ "+summary)
}

// Callbacks returns a types.Callbacks wired to this bar's OnStageChange and
// OnProgress methods, for direct use with orchestrator.Run/Resume.
func (b *Bar) Callbacks() types.Callbacks {
	return types.Callbacks{
		OnStageChange: b.OnStageChange,
		OnProgress:    b.OnProgress,
	}
}

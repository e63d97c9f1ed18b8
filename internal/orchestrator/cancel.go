package orchestrator

import "sync/atomic"

// CancelFlag is a single atomic cancellation flag checked at stage
// boundaries and inside each worker task, matching the teacher's
// atomic-counter style (scanner.stats, verifier.stats).
type CancelFlag struct {
	flag atomic.Bool
}

// Cancel requests cancellation; idempotent.
func (c *CancelFlag) Cancel() { c.flag.Store(true) }

// Cancelled reports whether cancellation has been requested.
func (c *CancelFlag) Cancelled() bool { return c.flag.Load() }

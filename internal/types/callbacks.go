package types

// ProgressFunc receives UI progress emissions, throttled to at most once
// per 100ms by the caller (internal/orchestrator).
type ProgressFunc func(percent float64, message string)

// StageFunc is invoked on every stage transition.
type StageFunc func(stage Stage)

// SignalKind tags the single completion signal Run emits.
type SignalKind int

const (
	SignalFinished SignalKind = iota
	SignalCancelled
	SignalFailed
)

// Signal is the completion-channel payload: exactly one of
// finished(result) / cancelled / failed(error) per spec section 6.
// SessionID is populated whenever a session was created, so a cancelled
// run can be resumed; a run refused before that (invalid config, store
// error) carries an empty SessionID.
type Signal struct {
	Kind      SignalKind
	Result    *SessionResult
	Err       error
	SessionID string
}

// Callbacks bundles the two external-facing hooks Run accepts; the
// completion signal arrives through Handle.Done instead.
type Callbacks struct {
	OnProgress    ProgressFunc
	OnStageChange StageFunc
}

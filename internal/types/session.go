package types

import "time"

// Status is the top-level lifecycle state of a Session (section 4.10).
type Status string

const (
	StatusRunning   Status = "running"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusPartial   Status = "partial"
	StatusFailed    Status = "failed"
)

// Stage is the pipeline stage a session is in or last completed.
type Stage string

const (
	StageCollect      Stage = "collect"
	StageQuickHash    Stage = "quick_hash"
	StageFullHash     Stage = "full_hash"
	StageGroup        Stage = "group"
	StageFolderDup    Stage = "folder_dup"
	StageSimilarImage Stage = "similar_image"
	StageFinalize     Stage = "finalize"
)

// stageOrder is the fixed sequence the orchestrator drives sessions through.
// folder_dup and similar_image are conditionally skipped based on Config.
var stageOrder = []Stage{
	StageCollect, StageQuickHash, StageFullHash, StageGroup,
	StageFolderDup, StageSimilarImage, StageFinalize,
}

// NextStage returns the stage that follows cur in the fixed pipeline order,
// or ("", false) if cur is the last stage.
func NextStage(cur Stage) (Stage, bool) {
	for i, s := range stageOrder {
		if s == cur && i+1 < len(stageOrder) {
			return stageOrder[i+1], true
		}
	}
	return "", false
}

// Session is one scan attempt's durable record.
type Session struct {
	ID          string
	Status      Status
	Stage       Stage
	Config      Config
	ConfigHash  string
	Progress    float64
	Message     string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// CanBaseline reports whether this session may serve as an incremental
// baseline for delta classification; only completed sessions qualify.
func (s *Session) CanBaseline() bool {
	return s.Status == StatusCompleted
}

// ResultsVisible reports whether a session's results sub-collection is
// expected to hold data, per the session invariants in spec section 3.
func ResultsVisible(status Status, stage Stage) bool {
	if status == StatusCompleted || status == StatusPartial {
		return true
	}
	if status != StatusPaused {
		return false
	}
	// paused-at-or-past-group: group is reached once group/folder_dup/
	// similar_image/finalize has been recorded as the completed stage.
	switch stage {
	case StageGroup, StageFolderDup, StageSimilarImage, StageFinalize:
		return true
	default:
		return false
	}
}

// Delta classifies a file against a baseline session (glossary: "baseline
// session").
type Delta string

const (
	DeltaNew         Delta = "new"
	DeltaChanged     Delta = "changed"
	DeltaRevalidated Delta = "revalidated"
)

// ClassifyDelta compares a freshly-walked record against a baseline
// record previously recorded for the same path.
func ClassifyDelta(current *FileRecord, baseline *FileRecord) Delta {
	if baseline == nil {
		return DeltaNew
	}
	if baseline.Size != current.Size || baseline.ModTime != current.ModTime {
		return DeltaChanged
	}
	return DeltaRevalidated
}

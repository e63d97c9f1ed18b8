package types

import "encoding/json"

// Metrics summarizes one run for the v2 export's meta.metrics block.
// The delta fields are only meaningful when incremental_rescan ran against
// a baseline session; they're zero otherwise.
type Metrics struct {
	FilesScanned       int64 `json:"files_scanned"`
	FilesHashed        int64 `json:"files_hashed"`
	FilesSkippedError  int64 `json:"files_skipped_error"`
	FilesSkippedLocked int64 `json:"files_skipped_locked"`
	ErrorsTotal        int64 `json:"errors_total"`
	FilesNew           int64 `json:"files_new"`
	FilesChanged       int64 `json:"files_changed"`
	FilesRevalidated   int64 `json:"files_revalidated"`
}

// Warning strings the export format defines: strict_mode_threshold_exceeded
// and protected_root_skipped. The list is free-form.
const WarningStrictModeThresholdExceeded = "strict_mode_threshold_exceeded"
const WarningProtectedRoot = "protected_root_skipped"

// Meta is the v2 export's "meta" object.
type Meta struct {
	ScanStatus string   `json:"scan_status"` // "completed" | "partial"
	Metrics    Metrics  `json:"metrics"`
	Warnings   []string `json:"warnings"`
	ConfigHash string   `json:"config_hash"`
	SessionID  string   `json:"session_id"`
}

// SessionResult is the typed result handed back from Run and exported as
// the v2 JSON document: {"meta": {...}, "results": {<group_key>: [path,...]}}.
type SessionResult struct {
	Meta    Meta
	Groups  []Group
}

// exportDoc mirrors the wire shape of the v2 export format.
type exportDoc struct {
	Meta    Meta                `json:"meta"`
	Results map[string][]string `json:"results"`
}

// MarshalJSON renders the v2 export document.
func (r SessionResult) MarshalJSON() ([]byte, error) {
	results := make(map[string][]string, len(r.Groups))
	for _, g := range r.Groups {
		paths := make([]string, 0, g.Members.Len())
		for _, f := range g.Members.Items() {
			paths = append(paths, f.Path)
		}
		results[g.Key.Encode()] = paths
	}
	return json.Marshal(exportDoc{Meta: r.Meta, Results: results})
}

// LoadResult parses either the v2 shape ({"meta":..., "results":...}) or the
// legacy shape ({<group_key>: [...]}  with no "meta" key), as required by
// spec section 6's loader contract.
func LoadResult(data []byte) (map[string][]string, *Meta, error) {
	var v2 exportDoc
	if err := json.Unmarshal(data, &v2); err == nil && v2.Results != nil {
		return v2.Results, &v2.Meta, nil
	}
	var legacy map[string][]string
	if err := json.Unmarshal(data, &legacy); err != nil {
		return nil, nil, err
	}
	return legacy, nil, nil
}

package types

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
)

// Mode selects the grouping strategy the group builder uses.
type Mode string

const (
	ModeContent        Mode = "content"
	ModeContentAndName Mode = "content_and_name"
	ModeNameOnly       Mode = "name_only"
)

// Config holds one scan request. JSON tags match the wire field names in
// spec section 6; UI-only fields (none currently modeled) would be tagged
// `json:"-"` so they never feed the config hash.
type Config struct {
	Roots             []string `json:"roots"`
	MinSize           int64    `json:"min_size"`
	Extensions        []string `json:"extensions"`
	IncludePatterns   []string `json:"include_patterns"`
	ExcludePatterns   []string `json:"exclude_patterns"`
	ProtectSystem     bool     `json:"protect_system"`
	FollowSymlinks    bool     `json:"follow_symlinks"`
	SkipHidden        bool     `json:"skip_hidden"`
	Mode              Mode     `json:"mode"`
	ByteVerify        bool     `json:"byte_verify"`
	MixedMode         bool     `json:"mixed_mode"`
	DetectFolderDup   bool     `json:"detect_folder_dup"`
	FolderDupRecurse  bool     `json:"folder_dup_recursive"`
	SimilarImage      bool     `json:"similar_image"`
	Similarity        float64  `json:"similarity"`
	IncrementalRescan bool     `json:"incremental_rescan"`
	BaselineSession   string   `json:"baseline_session"`
	StrictMode        bool     `json:"strict_mode"`
	StrictMaxErrors   int      `json:"strict_max_errors"`
	MaxWorkers        int      `json:"max_workers"`
}

// Validate applies the configuration-time checks the spec requires to fail
// synchronously rather than during a run (similarity range, positive
// worker count, well-formed patterns are checked by the filter package).
func (c *Config) Validate() error {
	if len(c.Roots) == 0 {
		return fmt.Errorf("config_invalid: at least one root is required")
	}
	if c.MinSize < 0 {
		return fmt.Errorf("config_invalid: min_size must be non-negative")
	}
	switch c.Mode {
	case ModeContent, ModeContentAndName, ModeNameOnly, "":
	default:
		return fmt.Errorf("config_invalid: unknown mode %q", c.Mode)
	}
	if c.SimilarImage && (c.Similarity <= 0.0 || c.Similarity > 1.0) {
		return fmt.Errorf("config_invalid: similarity must be in (0.0, 1.0], got %v", c.Similarity)
	}
	if c.MixedMode && !c.SimilarImage {
		return fmt.Errorf("config_invalid: mixed_mode requires similar_image")
	}
	if c.BaselineSession != "" && !c.IncrementalRescan {
		return fmt.Errorf("config_invalid: baseline_session requires incremental_rescan")
	}
	if c.StrictMode && c.StrictMaxErrors < 0 {
		return fmt.Errorf("config_invalid: strict_max_errors must be non-negative")
	}
	if c.MaxWorkers <= 0 {
		return fmt.Errorf("config_invalid: max_workers must be positive")
	}
	return nil
}

// canonical is the normalized projection of a Config that feeds the config
// hash: folder paths absolutized and sorted, extensions normalized (see
// internal/filter) and sorted, patterns trimmed and sorted. UI-only options
// never reach this struct.
type canonical struct {
	Roots           []string `json:"roots"`
	MinSize         int64    `json:"min_size"`
	Extensions      []string `json:"extensions"`
	IncludePatterns []string `json:"include_patterns"`
	ExcludePatterns []string `json:"exclude_patterns"`
	ProtectSystem   bool     `json:"protect_system"`
	FollowSymlinks  bool     `json:"follow_symlinks"`
	SkipHidden      bool     `json:"skip_hidden"`
	Mode            Mode     `json:"mode"`
	ByteVerify      bool     `json:"byte_verify"`
	MixedMode       bool     `json:"mixed_mode"`
	DetectFolderDup bool     `json:"detect_folder_dup"`
	FolderRecurse   bool     `json:"folder_dup_recursive"`
	SimilarImage    bool     `json:"similar_image"`
	Similarity      float64  `json:"similarity"`
}

// NormalizeExtension canonicalizes a single extension token to a lowercase,
// dot-stripped form, so ".TXT", "TXT", ".txt", and "txt" all collapse.
func NormalizeExtension(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// ConfigHash computes the canonicalization-then-hash described in spec
// section 4.9: it is invariant to folder order, extension casing/dot
// prefix, and pattern order.
func (c *Config) ConfigHash() string {
	roots := make([]string, len(c.Roots))
	for i, r := range c.Roots {
		abs, err := filepath.Abs(r)
		if err != nil {
			abs = r
		}
		roots[i] = abs
	}
	slices.Sort(roots)

	exts := make([]string, len(c.Extensions))
	for i, e := range c.Extensions {
		exts[i] = NormalizeExtension(e)
	}
	slices.Sort(exts)

	includes := trimSortedCopy(c.IncludePatterns)
	excludes := trimSortedCopy(c.ExcludePatterns)

	canon := canonical{
		Roots:           roots,
		MinSize:         c.MinSize,
		Extensions:      exts,
		IncludePatterns: includes,
		ExcludePatterns: excludes,
		ProtectSystem:   c.ProtectSystem,
		FollowSymlinks:  c.FollowSymlinks,
		SkipHidden:      c.SkipHidden,
		Mode:            c.Mode,
		ByteVerify:      c.ByteVerify,
		MixedMode:       c.MixedMode,
		DetectFolderDup: c.DetectFolderDup,
		FolderRecurse:   c.FolderDupRecurse,
		SimilarImage:    c.SimilarImage,
		Similarity:      c.Similarity,
	}

	// json.Marshal on a struct with fixed field order gives a deterministic
	// byte stream; sorting happened above for the order-insensitive slices.
	buf, err := json.Marshal(canon)
	if err != nil {
		// canonical never contains values json can't encode.
		panic(fmt.Sprintf("config canonicalization: %v", err))
	}
	sum := sha256.Sum256(buf)
	return hex.EncodeToString(sum[:])
}

func trimSortedCopy(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.TrimSpace(s)
	}
	slices.Sort(out)
	return out
}

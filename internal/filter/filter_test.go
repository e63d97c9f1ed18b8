package filter

import (
	"testing"

	"github.com/ivoronin/duphound/internal/types"
)

func rec(path string, size int64) *types.FileRecord {
	return &types.FileRecord{Path: path, Size: size}
}

func TestMinSizeGate(t *testing.T) {
	f := New(100, nil, nil, nil, false)
	if f.Keep(rec("/a/small.txt", 50)) {
		t.Error("expected file below min size to be dropped")
	}
	if !f.Keep(rec("/a/big.txt", 150)) {
		t.Error("expected file above min size to be kept")
	}
}

func TestExtensionAllowList(t *testing.T) {
	f := New(0, []string{"JPG", ".png"}, nil, nil, false)
	if !f.Keep(rec("/a/photo.jpg", 10)) {
		t.Error("expected .jpg to match normalized JPG entry")
	}
	if !f.Keep(rec("/a/photo.PNG", 10)) {
		t.Error("expected uppercase extension to match normalized .png entry")
	}
	if f.Keep(rec("/a/doc.txt", 10)) {
		t.Error("expected .txt to be excluded by allow-list")
	}
}

func TestIncludeExcludePatterns(t *testing.T) {
	f := New(0, nil, []string{"**/*.go"}, []string{"**/vendor/**"}, false)
	if !f.Keep(rec("/repo/main.go", 10)) {
		t.Error("expected main.go to match include pattern")
	}
	if f.Keep(rec("/repo/vendor/lib.go", 10)) {
		t.Error("expected vendor path to be excluded despite matching include")
	}
	if f.Keep(rec("/repo/readme.md", 10)) {
		t.Error("expected non-matching file to be dropped by include allow-list")
	}
}

func TestSkipHidden(t *testing.T) {
	f := New(0, nil, nil, nil, true)
	if f.Keep(rec("/a/.hidden", 10)) {
		t.Error("expected dotfile to be skipped")
	}
	if f.Keep(rec("/a/Thumbs.db", 10)) {
		t.Error("expected OS metadata file to be skipped")
	}
	if !f.Keep(rec("/a/visible.txt", 10)) {
		t.Error("expected ordinary file to be kept")
	}
}

func TestValidatePatterns(t *testing.T) {
	if err := ValidatePatterns([]string{"**/*.go", "*.txt"}); err != nil {
		t.Errorf("expected valid patterns to pass, got %v", err)
	}
	if err := ValidatePatterns([]string{"[invalid"}); err == nil {
		t.Error("expected malformed pattern to be rejected")
	}
}

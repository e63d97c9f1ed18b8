package main

import "testing"

func TestParseSizeValid(t *testing.T) {
	tests := []struct {
		input string
		want  int64
	}{
		{"1k", 1000},
		{"1K", 1000},
		{"1KB", 1000},
		{"1M", 1000000},
		{"1G", 1000000000},
		{"1234", 1234},
		{"0", 0},
		{"1KiB", 1024},
		{"1MiB", 1048576},
		{"1GiB", 1073741824},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := parseSize(tt.input)
			if err != nil {
				t.Fatalf("parseSize(%q) error: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("parseSize(%q) = %d, want %d", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseSizeInvalid(t *testing.T) {
	for _, input := range []string{"invalid", "abc", "1.5.5", "--100"} {
		t.Run(input, func(t *testing.T) {
			if _, err := parseSize(input); err == nil {
				t.Errorf("parseSize(%q) should return error", input)
			}
		})
	}
}

func TestValidatePatternsValid(t *testing.T) {
	tests := [][]string{
		{"*.txt"},
		{"*.txt", "*.bak", "temp*"},
		{"file?.txt"},
		{"[abc].txt"},
		{},
		nil,
	}
	for _, patterns := range tests {
		if err := validatePatterns(patterns); err != nil {
			t.Errorf("validatePatterns(%v) unexpected error: %v", patterns, err)
		}
	}
}

func TestValidatePatternsInvalid(t *testing.T) {
	tests := [][]string{
		{"[invalid"},
		{"*.txt", "[invalid"},
	}
	for _, patterns := range tests {
		if err := validatePatterns(patterns); err == nil {
			t.Errorf("validatePatterns(%v) expected error, got nil", patterns)
		}
	}
}

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package util

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

// =============================================================================
// ATOMIC WRITE TESTS
// =============================================================================

func TestAtomicWriteFile_Basic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.txt")
	data := []byte("hello, world!")

	if err := AtomicWriteFile(path, data, 0644); err != nil {
		t.Fatalf("AtomicWriteFile failed: %v", err)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file: %v", err)
	}
	if string(content) != string(data) {
		t.Errorf("Content mismatch: got %q, want %q", string(content), string(data))
	}
}

func TestAtomicWriteFile_Overwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.txt")

	if err := AtomicWriteFile(path, []byte("initial"), 0644); err != nil {
		t.Fatalf("First write failed: %v", err)
	}
	if err := AtomicWriteFile(path, []byte("updated"), 0644); err != nil {
		t.Fatalf("Second write failed: %v", err)
	}

	content, _ := os.ReadFile(path)
	if string(content) != "updated" {
		t.Errorf("Expected 'updated', got %q", string(content))
	}

	// No temp files left behind
	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Errorf("Expected 1 file in directory, found %d", len(entries))
	}
}

func TestAtomicWriteFileWithDir_Permissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("POSIX permissions not supported on Windows")
	}
	dir := filepath.Join(t.TempDir(), "secure")
	path := filepath.Join(dir, "config.enc")

	if err := AtomicWriteFileWithDir(path, []byte("secret"), 0600, 0700); err != nil {
		t.Fatalf("AtomicWriteFileWithDir failed: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("file mode = %o, want 0600", info.Mode().Perm())
	}

	dirInfo, err := os.Stat(dir)
	if err != nil {
		t.Fatalf("Stat dir failed: %v", err)
	}
	if dirInfo.Mode().Perm() != 0700 {
		t.Errorf("dir mode = %o, want 0700", dirInfo.Mode().Perm())
	}
}

// =============================================================================
// STRING TESTS
// =============================================================================

func TestTruncateRunes(t *testing.T) {
	tests := []struct {
		name string
		in   string
		max  int
		want string
	}{
		{"short", "hello", 10, "hello"},
		{"exact", "hello", 5, "hello"},
		{"cut", "hello world", 5, "hello"},
		{"zero", "hello", 0, ""},
		{"cjk", "你好世界", 2, "你好"},
		{"emoji", "🙂🙂🙂", 1, "🙂"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TruncateRunes(tt.in, tt.max); got != tt.want {
				t.Errorf("TruncateRunes(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
			}
		})
	}
}

func TestNormalizeAndTruncate_ComposesBeforeCutting(t *testing.T) {
	// "e" + combining acute accent is two runes before NFC, one after
	decomposed := "e\u0301tude"
	got := NormalizeAndTruncate(decomposed, 1)
	if got != "é" {
		t.Errorf("NormalizeAndTruncate = %q, want %q", got, "é")
	}
}

func TestFitWidth(t *testing.T) {
	if got := FitWidth("abc", 5); got != "abc  " {
		t.Errorf("FitWidth pad = %q", got)
	}
	if got := FitWidth("你好世界", 5); StringWidth(got) != 5 {
		t.Errorf("FitWidth(cjk) width = %d, want 5 (%q)", StringWidth(got), got)
	}
	if got := FitWidth("line\nbreak", 10); got != "line break" {
		t.Errorf("FitWidth newline = %q", got)
	}
}

func TestMaskSecret(t *testing.T) {
	if got := MaskSecret("sk-1234567890abcd"); got != "sk-1*********abcd" {
		t.Errorf("MaskSecret = %q", got)
	}
	if got := MaskSecret("short"); got != "*****" {
		t.Errorf("MaskSecret short = %q", got)
	}
}

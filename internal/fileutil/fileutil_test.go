package fileutil

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestWriteAtomic(t *testing.T) {
	dir := t.TempDir()
	dst := filepath.Join(dir, "abc_o.c")

	n, sum, err := WriteAtomic(dst, strings.NewReader("hello world"), 0o644)
	if err != nil {
		t.Fatal(err)
	}
	if n != 11 {
		t.Fatalf("n = %d, want 11", n)
	}
	// sha256("hello world")
	if sum != "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9" {
		t.Fatalf("unexpected digest %s", sum)
	}

	got, err := os.ReadFile(dst)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "hello world" {
		t.Fatalf("content mismatch: got %q", got)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected temp file to be cleaned up, found %d entries", len(entries))
	}
}

func TestWriteAtomicMissingDir(t *testing.T) {
	dst := filepath.Join(t.TempDir(), "missing", "out.c")
	if _, _, err := WriteAtomic(dst, strings.NewReader("x"), 0o644); err == nil {
		t.Fatal("expected error for missing directory")
	}
}

func TestRemoveFilesIgnoresMissing(t *testing.T) {
	dir := t.TempDir()
	present := filepath.Join(dir, "a")
	if err := os.WriteFile(present, []byte("data"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := RemoveFiles(present, filepath.Join(dir, "b")); err != nil {
		t.Fatalf("RemoveFiles: %v", err)
	}
	if _, err := os.Stat(present); !os.IsNotExist(err) {
		t.Fatalf("expected %s removed, stat err=%v", present, err)
	}
}

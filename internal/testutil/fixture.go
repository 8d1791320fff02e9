// Package testutil provides shared test fixtures for project trees.
package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

// WriteTree materializes files under dir. Keys are slash-separated
// relative paths; parent directories are created as needed.
func WriteTree(t *testing.T, dir string, files map[string]string) {
	t.Helper()

	for rel, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir for %s: %v", rel, err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", rel, err)
		}
	}
}

// ProjectDir creates a temp directory populated with the given files and
// returns its path.
func ProjectDir(t *testing.T, files map[string]string) string {
	t.Helper()

	dir := t.TempDir()
	WriteTree(t, dir, files)
	return dir
}

// WriteBinary writes raw bytes to rel under dir, for binary-file cases.
func WriteBinary(t *testing.T, dir, rel string, data []byte) {
	t.Helper()

	path := filepath.Join(dir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", rel, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", rel, err)
	}
}

// Copyright 2026 The SCR Fetch Authors
// SPDX-License-Identifier: Apache-2.0

package cachedir

import (
	"os"
	"path/filepath"
	"testing"
)

func TestCreateAndPath(t *testing.T) {
	base := t.TempDir()
	m := New(base)

	path, err := m.Create(42)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if path != m.Path(42) {
		t.Fatalf("Create returned %s, Path returns %s", path, m.Path(42))
	}
	if info, err := os.Stat(path); err != nil || !info.IsDir() {
		t.Fatalf("Create did not make a directory at %s: %v", path, err)
	}
}

func TestPurgeRemovesContentsNotDirectory(t *testing.T) {
	base := t.TempDir()
	m := New(base)
	path, err := m.Create(7)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := os.WriteFile(filepath.Join(path, "a.dat"), []byte("x"), 0o600); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}
	if err := os.Mkdir(filepath.Join(path, "subdir"), 0o700); err != nil {
		t.Fatalf("mkdir fixture: %v", err)
	}

	if err := m.Purge(7); err != nil {
		t.Fatalf("Purge: %v", err)
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		t.Fatalf("ReadDir after purge: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected empty directory after purge, got %v", entries)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("directory itself should survive Purge: %v", err)
	}
}

func TestPurgeMissingDirectoryIsNotError(t *testing.T) {
	m := New(t.TempDir())
	if err := m.Purge(99); err != nil {
		t.Fatalf("Purge on missing dataset should be a no-op, got: %v", err)
	}
}

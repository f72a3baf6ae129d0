// Copyright 2026 The SCR Fetch Authors
// SPDX-License-Identifier: Apache-2.0

package cachedir

import (
	"fmt"
	"os"
	"path/filepath"
)

// Manager locates and manages per-dataset cache directories under a
// single base directory chosen by the redundancy descriptor (spec
// §6). Every rank runs its own Manager against its own base — the
// cache is never shared across ranks.
type Manager struct {
	base string
}

// New returns a Manager rooted at base. base must already exist; New
// does not create it (it is provisioned by whatever places the
// redundancy descriptor, outside this core's scope).
func New(base string) *Manager {
	return &Manager{base: base}
}

// Path returns the cache directory for datasetID, without creating
// it.
func (m *Manager) Path(datasetID int64) string {
	return filepath.Join(m.base, fmt.Sprintf("dataset.%d", datasetID))
}

// Create makes the cache directory for datasetID, including any
// missing parents, with permissions restricted to the owner.
func (m *Manager) Create(datasetID int64) (string, error) {
	path := m.Path(datasetID)
	if err := os.MkdirAll(path, 0o700); err != nil {
		return "", fmt.Errorf("cachedir: creating %s: %w", path, err)
	}
	return path, nil
}

// Purge removes every file under datasetID's cache directory but
// leaves the directory itself in place, ready for the next attempt to
// write into. Used both before a fresh fetch begins (spec §4.7
// "delete any residual cache contents") and after a failed attempt
// (spec §4.7 "delete cache contents for dataset_id").
//
// Purge is idempotent: purging a directory that does not exist is not
// an error.
func (m *Manager) Purge(datasetID int64) error {
	path := m.Path(datasetID)
	entries, err := os.ReadDir(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("cachedir: reading %s: %w", path, err)
	}
	for _, entry := range entries {
		target := filepath.Join(path, entry.Name())
		if err := os.RemoveAll(target); err != nil {
			return fmt.Errorf("cachedir: removing %s: %w", target, err)
		}
	}
	return nil
}

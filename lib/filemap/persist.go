// Copyright 2026 The SCR Fetch Authors
// SPDX-License-Identifier: Apache-2.0

package filemap

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/scr-hpc/scrfetch/lib/codec"
)

// Open loads the file map at path, or returns an empty one if path
// does not exist yet (a rank's first fetch).
func Open(path string) (*FileMap, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return &FileMap{path: path, data: onDiskFileMap{Datasets: make(map[int64]*datasetEntry)}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("filemap: reading %s: %w", path, err)
	}

	var onDisk onDiskFileMap
	if err := codec.Unmarshal(data, &onDisk); err != nil {
		return nil, fmt.Errorf("filemap: parsing %s: %w", path, err)
	}
	if onDisk.Datasets == nil {
		onDisk.Datasets = make(map[int64]*datasetEntry)
	}
	for _, d := range onDisk.Datasets {
		if d.Ranks == nil {
			d.Ranks = make(map[int]*rankEntry)
		}
		for _, r := range d.Ranks {
			if r.Meta == nil {
				r.Meta = make(map[string]*FileMeta)
			}
		}
	}

	return &FileMap{path: path, data: onDisk}, nil
}

// flushLocked atomically persists the in-memory map to f.path: write
// to a temp file in the same directory, then rename over the final
// path, so a reader never observes a partially-written file map.
// Callers must hold f.mu.
func (f *FileMap) flushLocked() error {
	data, err := codec.Marshal(f.data)
	if err != nil {
		return fmt.Errorf("filemap: encoding: %w", err)
	}

	dir := filepath.Dir(f.path)
	tmp, err := os.CreateTemp(dir, ".filemap-*.tmp")
	if err != nil {
		return fmt.Errorf("filemap: creating temp file in %s: %w", dir, err)
	}
	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("filemap: writing %s: %w", tmpPath, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("filemap: closing %s: %w", tmpPath, err)
	}
	if err := os.Rename(tmpPath, f.path); err != nil {
		return fmt.Errorf("filemap: renaming %s to %s: %w", tmpPath, f.path, err)
	}

	success = true
	return nil
}

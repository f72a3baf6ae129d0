// Copyright 2026 The SCR Fetch Authors
// SPDX-License-Identifier: Apache-2.0

package flushstate

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/scr-hpc/scrfetch/lib/codec"
)

// Location is one place a dataset's bytes may currently live.
type Location string

const (
	LocationCache    Location = "CACHE"
	LocationPFS      Location = "PFS"
	LocationFlushing Location = "FLUSHING"
)

// onDisk is the serialized shape persisted to path.
type onDisk struct {
	Datasets map[int64]map[Location]bool `cbor:"datasets,omitempty"`
}

// File is a durable, atomically-written flush-state record. Safe for
// concurrent use; every mutating method flushes to disk before
// returning.
type File struct {
	mu   sync.Mutex
	path string
	data onDisk
}

// Open loads the flush file at path, or returns an empty one if path
// does not exist yet.
func Open(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return &File{path: path, data: onDisk{Datasets: make(map[int64]map[Location]bool)}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("flushstate: reading %s: %w", path, err)
	}

	var decoded onDisk
	if err := codec.Unmarshal(data, &decoded); err != nil {
		return nil, fmt.Errorf("flushstate: parsing %s: %w", path, err)
	}
	if decoded.Datasets == nil {
		decoded.Datasets = make(map[int64]map[Location]bool)
	}
	return &File{path: path, data: decoded}, nil
}

// Set adds loc to datasetID's location set and flushes to disk.
func (f *File) Set(datasetID int64, loc Location) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	set, ok := f.data.Datasets[datasetID]
	if !ok {
		set = make(map[Location]bool)
		f.data.Datasets[datasetID] = set
	}
	set[loc] = true
	return f.flushLocked()
}

// Unset removes loc from datasetID's location set and flushes to
// disk. No-op if the location was not set.
func (f *File) Unset(datasetID int64, loc Location) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	set, ok := f.data.Datasets[datasetID]
	if !ok {
		return nil
	}
	delete(set, loc)
	return f.flushLocked()
}

// Locations returns the current location set for datasetID, for
// tests and operator tooling; the fetch core itself never reads this
// back (spec §3).
func (f *File) Locations(datasetID int64) map[Location]bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	set := f.data.Datasets[datasetID]
	out := make(map[Location]bool, len(set))
	for loc, v := range set {
		out[loc] = v
	}
	return out
}

// flushLocked atomically persists the in-memory state to f.path,
// mirroring lib/filemap's write-temp-then-rename durability pattern.
// Callers must hold f.mu.
func (f *File) flushLocked() error {
	data, err := codec.Marshal(f.data)
	if err != nil {
		return fmt.Errorf("flushstate: encoding: %w", err)
	}

	dir := filepath.Dir(f.path)
	tmp, err := os.CreateTemp(dir, ".flushstate-*.tmp")
	if err != nil {
		return fmt.Errorf("flushstate: creating temp file in %s: %w", dir, err)
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
		return fmt.Errorf("flushstate: writing %s: %w", tmpPath, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("flushstate: closing %s: %w", tmpPath, err)
	}
	if err := os.Rename(tmpPath, f.path); err != nil {
		return fmt.Errorf("flushstate: renaming %s to %s: %w", tmpPath, f.path, err)
	}

	success = true
	return nil
}

// Copyright 2026 The SCR Fetch Authors
// SPDX-License-Identifier: Apache-2.0

package filemap

import (
	"fmt"
	"sync"
)

// FileMeta is the per-file record the Per-Rank Fetcher stamps once a
// file finishes (spec §4.5): name=dst_path, type=FULL, size,
// complete, ranks=world_size, and an optional CRC32.
type FileMeta struct {
	Name     string `cbor:"name"`
	Type     string `cbor:"type"`
	Size     uint64 `cbor:"size"`
	Complete bool   `cbor:"complete"`
	Ranks    int    `cbor:"ranks"`
	HasCRC32 bool   `cbor:"has_crc32,omitempty"`
	CRC32    uint32 `cbor:"crc32,omitempty"`
}

// TypeFull is the only file type this fetch core produces.
const TypeFull = "FULL"

// rankEntry is one rank's files within a dataset. Files holds a
// pointer per filename: a nil pointer means the filename has been
// recorded but its file-meta has not been attached yet — the state a
// filename is in from step 3 until step 7 of the Per-Rank Fetcher
// (spec §4.5), while its bytes are being written.
type rankEntry struct {
	Files []string            `cbor:"files"`
	Meta  map[string]*FileMeta `cbor:"meta,omitempty"`
}

// datasetEntry is one dataset's file map.
type datasetEntry struct {
	Ranks                map[int]*rankEntry `cbor:"ranks"`
	ExpectedFiles        int                `cbor:"expected_files,omitempty"`
	RedundancyDescriptor string             `cbor:"redundancy_descriptor,omitempty"`
}

// onDiskFileMap is the serialized shape persisted to path.
type onDiskFileMap struct {
	Datasets map[int64]*datasetEntry `cbor:"datasets,omitempty"`
}

// FileMap is a rank's persistent file map. Safe for concurrent use;
// every mutating method flushes to disk before returning, matching
// spec §5's ordering guarantee that a rank's file map is durable
// before any corresponding byte hits disk.
type FileMap struct {
	mu   sync.Mutex
	path string
	data onDiskFileMap
}

func newDatasetEntry() *datasetEntry {
	return &datasetEntry{Ranks: make(map[int]*rankEntry)}
}

func (d *datasetEntry) rank(rank int) *rankEntry {
	r, ok := d.Ranks[rank]
	if !ok {
		r = &rankEntry{Meta: make(map[string]*FileMeta)}
		d.Ranks[rank] = r
	}
	return r
}

func (f *FileMap) dataset(datasetID int64) *datasetEntry {
	if f.data.Datasets == nil {
		f.data.Datasets = make(map[int64]*datasetEntry)
	}
	d, ok := f.data.Datasets[datasetID]
	if !ok {
		d = newDatasetEntry()
		f.data.Datasets[datasetID] = d
	}
	return d
}

// RecordPending appends dstPath to (datasetID, rank)'s file list and
// flushes to disk before returning, with no file-meta attached yet.
// Per spec §4.5 step 3 and §5's durability invariant, callers must
// call this — and observe it succeed — before opening dstPath for
// writing.
func (f *FileMap) RecordPending(datasetID int64, rank int, dstPath string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	r := f.dataset(datasetID).rank(rank)
	if _, exists := r.Meta[dstPath]; exists {
		return fmt.Errorf("filemap: %s already recorded for dataset %d rank %d", dstPath, datasetID, rank)
	}
	r.Files = append(r.Files, dstPath)
	r.Meta[dstPath] = nil

	return f.flushLocked()
}

// Attach sets the file-meta for a previously recorded filename (spec
// §4.5 step 7) and flushes to disk.
func (f *FileMap) Attach(datasetID int64, rank int, dstPath string, meta FileMeta) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	r := f.dataset(datasetID).rank(rank)
	if _, exists := r.Meta[dstPath]; !exists {
		return fmt.Errorf("filemap: %s was never recorded for dataset %d rank %d", dstPath, datasetID, rank)
	}
	metaCopy := meta
	r.Meta[dstPath] = &metaCopy

	return f.flushLocked()
}

// Get returns the file-meta for a filename, or (nil, false) if it has
// not been attached yet (including if it is only pending).
func (f *FileMap) Get(datasetID int64, rank int, dstPath string) (FileMeta, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	d, ok := f.data.Datasets[datasetID]
	if !ok {
		return FileMeta{}, false
	}
	r, ok := d.Ranks[rank]
	if !ok {
		return FileMeta{}, false
	}
	meta, ok := r.Meta[dstPath]
	if !ok || meta == nil {
		return FileMeta{}, false
	}
	return *meta, true
}

// Files returns every filename recorded for (datasetID, rank), in the
// order they were recorded — pending or attached.
func (f *FileMap) Files(datasetID int64, rank int) []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	d, ok := f.data.Datasets[datasetID]
	if !ok {
		return nil
	}
	r, ok := d.Ranks[rank]
	if !ok {
		return nil
	}
	return append([]string(nil), r.Files...)
}

// SetExpectedFiles records the count of non-skipped entries processed
// by the Per-Rank Fetcher for a dataset (spec §4.5, "after the loop")
// and flushes to disk.
func (f *FileMap) SetExpectedFiles(datasetID int64, count int) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.dataset(datasetID).ExpectedFiles = count
	return f.flushLocked()
}

// ExpectedFiles returns the expected-file count recorded for a
// dataset, or 0 if never set.
func (f *FileMap) ExpectedFiles(datasetID int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	d, ok := f.data.Datasets[datasetID]
	if !ok {
		return 0
	}
	return d.ExpectedFiles
}

// StampRedundancyDescriptor records the redundancy descriptor
// fingerprint for (dataset_id, this_rank) (spec §4.7's "stamp its hash
// into the file map") and flushes to disk.
func (f *FileMap) StampRedundancyDescriptor(datasetID int64, fingerprint string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.dataset(datasetID).RedundancyDescriptor = fingerprint
	return f.flushLocked()
}

// RedundancyDescriptor returns the stamped fingerprint for a dataset,
// or "" if never stamped.
func (f *FileMap) RedundancyDescriptor(datasetID int64) string {
	f.mu.Lock()
	defer f.mu.Unlock()

	d, ok := f.data.Datasets[datasetID]
	if !ok {
		return ""
	}
	return d.RedundancyDescriptor
}

// DeleteDataset removes every entry for datasetID and flushes to
// disk. Called by the Attempt Driver alongside the cache purge before
// a fresh fetch begins (spec §3, "entries for a dataset id are deleted
// en bloc").
func (f *FileMap) DeleteDataset(datasetID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	delete(f.data.Datasets, datasetID)
	return f.flushLocked()
}

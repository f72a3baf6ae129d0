// Copyright 2026 The SCR Fetch Authors
// SPDX-License-Identifier: Apache-2.0

package perrank

import (
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"github.com/scr-hpc/scrfetch/lib/attrtree"
	"github.com/scr-hpc/scrfetch/lib/clock"
	"github.com/scr-hpc/scrfetch/lib/container"
	"github.com/scr-hpc/scrfetch/lib/fetchio"
	"github.com/scr-hpc/scrfetch/lib/fetchlog"
	"github.com/scr-hpc/scrfetch/lib/filemap"
	"github.com/scr-hpc/scrfetch/lib/summary"
)

// Config holds the parameters for one rank's fetch pass.
type Config struct {
	DatasetID int64
	Rank      int
	WorldSize int

	// CacheDir is this rank's cache directory for the dataset, already
	// created by the caller.
	CacheDir string

	// BufSize bounds each chunked read/write (spec §4.2, §4.3).
	BufSize int

	// CRCOnFlush mirrors the crc_on_flush configuration knob (spec
	// §6): when true, CRC32 is computed for native-mode files even
	// when the record carries no stored CRC to compare against.
	CRCOnFlush bool

	// Files is this rank's own FILE subtree, as returned by
	// [summary.Document.Files].
	Files *attrtree.Node

	// Containers is non-nil in container mode, as returned by
	// [summary.Document.Containers].
	Containers map[int]container.Container

	FileMap *filemap.FileMap

	// Logger and Clock are non-nil only on rank 0 (spec §4.8: "Logger
	// observes all stages on rank 0"). When set, fetchOne emits a
	// transfer-bandwidth record for each file this rank fetches
	// successfully; other ranks' local fetches are not observed,
	// since there is no collective channel defined to ship that
	// telemetry back to rank 0.
	Logger *fetchlog.Logger
	Clock  clock.Clock
}

// Run fetches every non-skipped file in cfg.Files, recording and
// stamping the file map along the way, and returns whether every file
// succeeded (spec §4.5: "Return success iff no file failed"). The
// returned error is diagnostic: it describes the first failure, and
// success is false whenever it is non-nil.
func Run(cfg Config) (bool, error) {
	if cfg.BufSize <= 0 {
		return false, fmt.Errorf("perrank: buf_size must be positive, got %d", cfg.BufSize)
	}

	success := true
	expected := 0

	var firstErr error
	cfg.Files.Each(func(filename string, record *attrtree.Node) bool {
		if _, skip := record.Get(summary.KeyNoFetch); skip {
			return true
		}
		expected++

		if err := cfg.fetchOne(filename, record); err != nil {
			success = false
			if firstErr == nil {
				firstErr = err
			}
		}
		return true
	})

	if err := cfg.FileMap.SetExpectedFiles(cfg.DatasetID, expected); err != nil {
		return false, fmt.Errorf("perrank: recording expected_files: %w", err)
	}

	if firstErr != nil {
		return success, fmt.Errorf("perrank: %w", firstErr)
	}
	return success, nil
}

// fetchOne handles a single file record: split/compose/record (steps
// 2-3), allocate file-meta (step 4), dispatch to the container or
// native path (step 5), and attach the outcome (steps 6-7). Once the
// filename has been recorded it attaches a file-meta even on failure,
// with Complete=false; it returns a non-nil error for every failure,
// which Run counts against the rank-local success tally.
func (cfg Config) fetchOne(filename string, record *attrtree.Node) error {
	base := filepath.Base(filename)
	dstPath := filepath.Join(cfg.CacheDir, base)

	if err := cfg.FileMap.RecordPending(cfg.DatasetID, cfg.Rank, dstPath); err != nil {
		return fmt.Errorf("recording %s as pending: %w", dstPath, err)
	}

	size, err := record.ByteCount(summary.KeySize)
	if err != nil {
		cfg.attachFailure(dstPath, 0)
		return fmt.Errorf("%s: %w", filename, err)
	}

	meta := filemap.FileMeta{
		Name:     dstPath,
		Type:     filemap.TypeFull,
		Size:     size,
		Complete: true,
		Ranks:    cfg.WorldSize,
	}
	if crc, err := record.CRC32(summary.KeyCRC); err == nil {
		meta.HasCRC32 = true
		meta.CRC32 = crc
	}

	var start time.Time
	if cfg.Logger != nil && cfg.Clock != nil {
		start = cfg.Clock.Now()
	}

	fetchErr := cfg.dispatch(filename, base, record, &meta)
	if fetchErr != nil {
		meta.Complete = false
	} else if cfg.Logger != nil && cfg.Clock != nil {
		cfg.Logger.Transfer(filename, dstPath, int64(meta.Size), cfg.Clock.Now().Sub(start))
	}

	if err := cfg.FileMap.Attach(cfg.DatasetID, cfg.Rank, dstPath, meta); err != nil {
		if fetchErr != nil {
			return fetchErr
		}
		return fmt.Errorf("attaching %s: %w", dstPath, err)
	}

	return fetchErr
}

// dispatch fetches filename into the file named base within
// cfg.CacheDir, using containers when cfg.Containers is non-nil or the
// record carries a SEGMENT list, and the native File Copier otherwise
// (spec §4.5 step 5). meta is updated in place with the measured
// CRC32 when the record did not already carry one.
func (cfg Config) dispatch(filename, base string, record *attrtree.Node, meta *filemap.FileMeta) error {
	if _, hasSegments := record.Get(summary.KeySegment); hasSegments || cfg.Containers != nil {
		return cfg.fetchFromContainers(base, record, meta)
	}
	return cfg.fetchNative(filename, record, meta)
}

func (cfg Config) fetchNative(filename string, record *attrtree.Node, meta *filemap.FileMeta) error {
	path, err := record.StringValue(summary.KeyPath)
	if err != nil {
		return fmt.Errorf("%s: %w", summary.KeyPath, err)
	}
	srcPath := filepath.Join(path, filename)

	computeCRC := meta.HasCRC32 || cfg.CRCOnFlush
	result, err := fetchio.Copy(srcPath, cfg.CacheDir, cfg.BufSize, computeCRC)
	if err != nil {
		return err
	}
	if meta.HasCRC32 && result.CRC32 != meta.CRC32 {
		return fmt.Errorf("CRC32 mismatch for %s: got %#x, want %#x", filename, result.CRC32, meta.CRC32)
	}
	if !meta.HasCRC32 {
		meta.HasCRC32 = result.HasCRC
		meta.CRC32 = result.CRC32
	}
	return nil
}

func (cfg Config) fetchFromContainers(base string, record *attrtree.Node, meta *filemap.FileMeta) error {
	segmentNode, ok := record.Get(summary.KeySegment)
	if !ok {
		return fmt.Errorf("%s: container mode but no %s list", base, summary.KeySegment)
	}

	segments, err := parseSegments(segmentNode)
	if err != nil {
		return fmt.Errorf("%s: %w", base, err)
	}

	var expectedCRC32 *uint32
	if meta.HasCRC32 {
		expectedCRC32 = &meta.CRC32
	}

	result, err := container.Reconstruct(segments, cfg.Containers, cfg.CacheDir, base, cfg.BufSize, expectedCRC32)
	if err != nil {
		return err
	}
	if !meta.HasCRC32 {
		meta.HasCRC32 = true
		meta.CRC32 = result.CRC32
	}
	return nil
}

// parseSegments reads an ordered SEGMENT list into [container.Segment]
// values (spec §3: "Segment. Ordered by integer index. Fields: LENGTH
// (bytes), and a CONTAINER child with {ID, OFFSET}").
func parseSegments(segmentNode *attrtree.Node) ([]container.Segment, error) {
	indices := segmentNode.SortedIntKeys()
	segments := make([]container.Segment, 0, len(indices))

	for _, index := range indices {
		child, ok := segmentNode.Get(strconv.Itoa(index))
		if !ok {
			continue
		}

		length, err := child.ByteCount(summary.KeyLength)
		if err != nil {
			return nil, fmt.Errorf("segment %d: %s: %w", index, summary.KeyLength, err)
		}

		containerRef, ok := child.Get(summary.KeyContainer)
		if !ok {
			return nil, fmt.Errorf("segment %d: missing %s", index, summary.KeyContainer)
		}
		containerID, err := containerRef.Int(summary.KeyID)
		if err != nil {
			return nil, fmt.Errorf("segment %d: %s: %w", index, summary.KeyID, err)
		}
		offset, err := containerRef.ByteCount(summary.KeyOffset)
		if err != nil {
			return nil, fmt.Errorf("segment %d: %s: %w", index, summary.KeyOffset, err)
		}

		segments = append(segments, container.Segment{
			Index:     index,
			Container: int(containerID),
			Offset:    int64(offset),
			Length:    int64(length),
		})
	}

	return segments, nil
}

// attachFailure stamps a minimal failed file-meta when a record could
// not even be parsed far enough to reach the normal attach path, so
// the file map never silently loses a pending entry.
func (cfg Config) attachFailure(dstPath string, size uint64) {
	cfg.FileMap.Attach(cfg.DatasetID, cfg.Rank, dstPath, filemap.FileMeta{
		Name:     dstPath,
		Type:     filemap.TypeFull,
		Size:     size,
		Complete: false,
		Ranks:    cfg.WorldSize,
	})
}

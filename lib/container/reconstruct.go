// Copyright 2026 The SCR Fetch Authors
// SPDX-License-Identifier: Apache-2.0

package container

import (
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"sort"

	"golang.org/x/sys/unix"
)

// Segment references a contiguous byte range within one container
// file that belongs to a particular position in the reconstructed
// destination file. Index orders segments within the target file;
// it is not the container's own id.
type Segment struct {
	Index     int
	Container int
	Offset    int64
	Length    int64
}

// Container describes one of the dataset's container files, keyed by
// id in the map passed to Reconstruct.
type Container struct {
	Path string
	Size int64
}

// Result carries the outcome of a successful Reconstruct.
type Result struct {
	DstPath string
	CRC32   uint32
}

// Reconstruct rebuilds dstDir/dstName from segments, each copied out
// of its container at the recorded offset/length, in ascending
// segment-index order. It maintains one running CRC32 across every
// segment and, when expectedCRC32 is non-nil, fails if the computed
// value does not match.
//
// The destination is written strictly monotonically — Reconstruct
// never seeks on the output file — so a failure partway through
// leaves a truncated file for the caller's cache manager to clean up
// rather than rewinding progress itself.
func Reconstruct(segments []Segment, containers map[int]Container, dstDir, dstName string, bufSize int, expectedCRC32 *uint32) (Result, error) {
	if bufSize <= 0 {
		return Result{}, fmt.Errorf("container: buf_size must be positive, got %d", bufSize)
	}
	if len(segments) == 0 {
		dstPath := filepath.Join(dstDir, dstName)
		dst, err := os.OpenFile(dstPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
		if err != nil {
			return Result{}, fmt.Errorf("container: opening destination %s: %w", dstPath, err)
		}
		if err := dst.Close(); err != nil {
			return Result{}, fmt.Errorf("container: closing %s: %w", dstPath, err)
		}
		sum := crc32.ChecksumIEEE(nil)
		if expectedCRC32 != nil && sum != *expectedCRC32 {
			return Result{}, fmt.Errorf("container: CRC32 mismatch for %s: got %#x, want %#x", dstName, sum, *expectedCRC32)
		}
		return Result{DstPath: dstPath, CRC32: sum}, nil
	}

	ordered := make([]Segment, len(segments))
	copy(ordered, segments)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Index < ordered[j].Index })

	dstPath := filepath.Join(dstDir, dstName)
	dst, err := os.OpenFile(dstPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return Result{}, fmt.Errorf("container: opening destination %s: %w", dstPath, err)
	}
	closeDst := true
	defer func() {
		if closeDst {
			dst.Close()
		}
	}()

	buf := make([]byte, bufSize)
	sum := crc32.ChecksumIEEE(nil)

	for _, seg := range ordered {
		c, ok := containers[seg.Container]
		if !ok {
			return Result{}, fmt.Errorf("container: segment %d references unknown container %d", seg.Index, seg.Container)
		}

		sum, err = copySegment(dst, c, seg, buf, sum)
		if err != nil {
			return Result{}, fmt.Errorf("container: segment %d of %s: %w", seg.Index, dstName, err)
		}
	}

	closeDst = false
	if err := dst.Close(); err != nil {
		return Result{}, fmt.Errorf("container: closing %s: %w", dstPath, err)
	}

	if expectedCRC32 != nil && sum != *expectedCRC32 {
		return Result{}, fmt.Errorf("container: CRC32 mismatch for %s: got %#x, want %#x", dstName, sum, *expectedCRC32)
	}

	return Result{DstPath: dstPath, CRC32: sum}, nil
}

// copySegment opens one container, seeks to the segment's offset, and
// copies exactly seg.Length bytes to dst through buf, folding them
// into the running CRC32 sum. It tolerates short reads from the
// container by looping until the requested length is satisfied or a
// genuine error/EOF occurs, rather than failing on the first partial
// read.
func copySegment(dst io.Writer, c Container, seg Segment, buf []byte, sum uint32) (uint32, error) {
	src, err := os.Open(c.Path)
	if err != nil {
		return sum, fmt.Errorf("opening container %s: %w", c.Path, err)
	}
	closeSrc := true
	defer func() {
		if closeSrc {
			src.Close()
		}
	}()
	unix.Fadvise(int(src.Fd()), seg.Offset, seg.Length, unix.FADV_SEQUENTIAL)

	section := io.NewSectionReader(src, seg.Offset, seg.Length)

	remaining := seg.Length
	for remaining > 0 {
		chunk := buf
		if int64(len(chunk)) > remaining {
			chunk = chunk[:remaining]
		}

		n, err := io.ReadFull(section, chunk)
		if n > 0 {
			sum = crc32.Update(sum, crc32.IEEETable, chunk[:n])
			if _, werr := dst.Write(chunk[:n]); werr != nil {
				return sum, fmt.Errorf("writing to destination: %w", werr)
			}
			remaining -= int64(n)
		}
		if err != nil {
			return sum, fmt.Errorf("reading container %s at offset %d: %w", c.Path, seg.Offset+seg.Length-remaining, err)
		}
	}

	unix.Fadvise(int(src.Fd()), seg.Offset, seg.Length, unix.FADV_DONTNEED)
	closeSrc = false
	if err := src.Close(); err != nil {
		return sum, fmt.Errorf("closing container %s: %w", c.Path, err)
	}
	return sum, nil
}

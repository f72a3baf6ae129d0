// Copyright 2026 The SCR Fetch Authors
// SPDX-License-Identifier: Apache-2.0

package fetchio

import (
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// Result carries the outcome of a successful Copy.
type Result struct {
	DstPath string
	CRC32   uint32
	HasCRC  bool
}

// Copy streams srcPath into dstDir/basename(srcPath) in chunks of at
// most bufSize bytes, optionally maintaining a running CRC32. It
// advises the kernel that both handles are read/written sequentially
// and are not needed again once closed, so a multi-gigabyte fetch does
// not pin itself in the page cache.
//
// A short write is a hard failure. A short read exactly at end of file
// is normal termination; a short read that is not immediately followed
// by EOF is treated as a failure rather than silently retried, since a
// well-behaved regular-file read only ever returns less than requested
// on its final chunk.
func Copy(srcPath, dstDir string, bufSize int, computeCRC bool) (Result, error) {
	if bufSize <= 0 {
		return Result{}, fmt.Errorf("fetchio: buf_size must be positive, got %d", bufSize)
	}

	dstPath := filepath.Join(dstDir, filepath.Base(srcPath))

	src, err := os.Open(srcPath)
	if err != nil {
		return Result{}, fmt.Errorf("fetchio: opening source %s: %w", srcPath, err)
	}
	closeSrc := true
	defer func() {
		if closeSrc {
			src.Close()
		}
	}()
	adviseSequential(src)

	dst, err := os.OpenFile(dstPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return Result{}, fmt.Errorf("fetchio: opening destination %s: %w", dstPath, err)
	}
	closeDst := true
	defer func() {
		if closeDst {
			dst.Close()
		}
	}()
	adviseSequential(dst)

	var sum uint32
	if computeCRC {
		sum = crc32.ChecksumIEEE(nil)
	}

	buf := make([]byte, bufSize)
	for {
		n, readErr := readChunk(src, buf)
		if n > 0 {
			if computeCRC {
				sum = crc32.Update(sum, crc32.IEEETable, buf[:n])
			}
			if werr := writeFull(dst, buf[:n]); werr != nil {
				return Result{}, fmt.Errorf("fetchio: writing %s: %w", dstPath, werr)
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return Result{}, fmt.Errorf("fetchio: reading %s: %w", srcPath, readErr)
		}
	}

	adviseDontNeed(src)
	adviseDontNeed(dst)

	closeDst = false
	if err := dst.Close(); err != nil {
		return Result{}, fmt.Errorf("fetchio: closing %s: %w", dstPath, err)
	}
	closeSrc = false
	if err := src.Close(); err != nil {
		return Result{}, fmt.Errorf("fetchio: closing %s: %w", srcPath, err)
	}

	return Result{DstPath: dstPath, CRC32: sum, HasCRC: computeCRC}, nil
}

// readChunk fills buf as far as a single logical read will go. If the
// underlying Read returns fewer bytes than len(buf) without signaling
// EOF, it probes with a one-byte follow-up read to tell a genuine
// short-before-EOF read (a failure, per spec §4.2) apart from a short
// read that simply landed on the last chunk of the file.
func readChunk(r io.Reader, buf []byte) (int, error) {
	n, err := r.Read(buf)
	if err == io.EOF || n == len(buf) {
		return n, err
	}
	if err != nil {
		return n, err
	}

	var probe [1]byte
	pn, perr := r.Read(probe[:])
	if pn > 0 {
		return n, fmt.Errorf("fetchio: short read of %d/%d bytes not at end of file", n, len(buf))
	}
	if perr != nil && perr != io.EOF {
		return n, perr
	}
	return n, io.EOF
}

// writeFull writes all of p to w, failing if the underlying Write
// returns fewer bytes than requested without an error — the hard
// short-write failure spec §4.2 calls for.
func writeFull(w io.Writer, p []byte) error {
	n, err := w.Write(p)
	if err != nil {
		return err
	}
	if n != len(p) {
		return fmt.Errorf("short write: wrote %d of %d bytes", n, len(p))
	}
	return nil
}

func adviseSequential(f *os.File) {
	unix.Fadvise(int(f.Fd()), 0, 0, unix.FADV_SEQUENTIAL)
}

func adviseDontNeed(f *os.File) {
	unix.Fadvise(int(f.Fd()), 0, 0, unix.FADV_DONTNEED)
}

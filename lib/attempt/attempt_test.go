// Copyright 2026 The SCR Fetch Authors
// SPDX-License-Identifier: Apache-2.0

package attempt

import (
	"context"
	"hash/crc32"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/scr-hpc/scrfetch/lib/attrtree"
	"github.com/scr-hpc/scrfetch/lib/cachedir"
	"github.com/scr-hpc/scrfetch/lib/catalog"
	"github.com/scr-hpc/scrfetch/lib/clock"
	"github.com/scr-hpc/scrfetch/lib/fabric"
	"github.com/scr-hpc/scrfetch/lib/fetchlog"
	"github.com/scr-hpc/scrfetch/lib/filemap"
	"github.com/scr-hpc/scrfetch/lib/flushstate"
	"github.com/scr-hpc/scrfetch/lib/redundancy"
	"github.com/scr-hpc/scrfetch/lib/summary"
	"github.com/scr-hpc/scrfetch/lib/testutil"
)

type joinResult struct {
	rank int
	f    *fabric.Fabric
	err  error
}

// joinAll brings up worldSize ranks concurrently, since Join blocks
// until every peer has connected to the rendezvous socket. A stuck
// rendezvous (e.g. a previous test's socket left bound) would hang
// the test forever without the timeout testutil.RequireReceive adds.
func joinAll(t *testing.T, socketDir string, worldSize int) []*fabric.Fabric {
	t.Helper()

	results := make(chan joinResult, worldSize)
	for rank := 0; rank < worldSize; rank++ {
		rank := rank
		go func() {
			f, err := fabric.Join(socketDir, rank, worldSize)
			results <- joinResult{rank: rank, f: f, err: err}
		}()
	}

	fabrics := make([]*fabric.Fabric, worldSize)
	for i := 0; i < worldSize; i++ {
		r := testutil.RequireReceive(t, results, 10*time.Second, "waiting for rank to join fabric")
		if r.err != nil {
			t.Fatalf("rank %d: Join: %v", r.rank, r.err)
		}
		fabrics[r.rank] = r.f
	}

	t.Cleanup(func() {
		for _, f := range fabrics {
			if f != nil {
				f.Close()
			}
		}
	})

	return fabrics
}

type fakeApplier struct{}

func (a *fakeApplier) Apply(ctx context.Context, datasetID int64, d redundancy.Descriptor) (redundancy.ApplyResult, error) {
	return redundancy.ApplyResult{BytesCopied: 1}, nil
}

// writeCheckpoint builds a summary document under prefixDir/dirName
// for worldSize ranks, with one file per rank whose content is unique
// to (dirName, rank), and returns that content keyed by rank. If
// corruptRank is a valid rank, its stored CRC32 is wrong, so a fetch
// of that file fails with a mismatch even though the file's actual
// bytes on disk are fine.
func writeCheckpoint(t *testing.T, prefixDir, dirName string, datasetID, checkpointID int64, worldSize int, corruptRank int) map[int][]byte {
	t.Helper()

	checkpointDir := filepath.Join(prefixDir, dirName)
	if err := os.MkdirAll(checkpointDir, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}

	content := make(map[int][]byte, worldSize)

	root := attrtree.New()
	root.SetInt(summary.KeyVersion, summary.MinSupportedVersion)

	dataset := attrtree.New()
	dataset.SetInt(summary.KeyDatasetID, datasetID)
	dataset.SetInt(summary.KeyCheckpointID, checkpointID)
	dataset.SetString(summary.KeyName, dirName)
	dataset.SetInt(summary.KeyTotalRanks, int64(worldSize))
	root.Set(summary.KeyDataset, dataset)

	rank2file := attrtree.New()
	for rank := 0; rank < worldSize; rank++ {
		payload := []byte(dirName + ".rank." + string(rune('0'+rank)))
		content[rank] = payload

		if err := os.WriteFile(filepath.Join(checkpointDir, rankFile(rank)), payload, 0o644); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}

		record := attrtree.New()
		record.SetByteCount(summary.KeySize, uint64(len(payload)))
		if rank == corruptRank {
			record.SetCRC32(summary.KeyCRC, 0xdeadbeef)
		} else {
			record.SetCRC32(summary.KeyCRC, crc32.ChecksumIEEE(payload))
		}

		fileList := attrtree.New()
		fileList.Set(rankFile(rank), record)

		perRank := attrtree.New()
		perRank.Set(summary.KeyFile, fileList)

		rank2file.Set(itoa(rank), perRank)
	}
	root.Set(summary.KeyRank2File, rank2file)

	data, err := attrtree.Marshal(root)
	if err != nil {
		t.Fatalf("attrtree.Marshal: %v", err)
	}
	if err := os.WriteFile(filepath.Join(checkpointDir, summary.FileName), data, 0o644); err != nil {
		t.Fatalf("WriteFile summary: %v", err)
	}

	return content
}

func rankFile(rank int) string { return "rank_" + itoa(rank) + ".dat" }

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	digits := ""
	for i > 0 {
		digits = string(rune('0'+i%10)) + digits
		i /= 10
	}
	return digits
}

func buildRank(t *testing.T, f *fabric.Fabric, prefixDir string, idx *catalog.Index, fs *flushstate.File, logger *fetchlog.Logger, registry *redundancy.Registry, applier redundancy.Applier) Config {
	t.Helper()

	base := t.TempDir()
	fm, err := filemap.Open(filepath.Join(t.TempDir(), "filemap.cbor"))
	if err != nil {
		t.Fatalf("filemap.Open: %v", err)
	}

	cfg := Config{
		Fabric:     f,
		PrefixDir:  prefixDir,
		Cache:      cachedir.New(base),
		FileMap:    fm,
		Clock:      clock.Fake(time.Unix(0, 0)),
		Redundancy: registry,
		Applier:    applier,
		BufSize:    4096,
		FetchWidth: 1,
	}
	if f.Role() == fabric.RoleCoordinator {
		cfg.Index = idx
		cfg.FlushState = fs
		cfg.Logger = logger
	}
	return cfg
}

func TestRunSucceedsOnFirstCandidate(t *testing.T) {
	const worldSize = 2
	ctx := context.Background()

	prefixDir := t.TempDir()
	content := writeCheckpoint(t, prefixDir, "ckpt.1", 1, 1, worldSize, -1)

	idx, err := catalog.Open(ctx, prefixDir, "index.db")
	if err != nil {
		t.Fatalf("catalog.Open: %v", err)
	}
	defer idx.Close()
	if err := idx.Put(ctx, catalog.Entry{CheckpointID: 1, Directory: "ckpt.1", DatasetID: 1, Name: "ckpt.1", Complete: true}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	fs, err := flushstate.Open(filepath.Join(t.TempDir(), "flushstate.cbor"))
	if err != nil {
		t.Fatalf("flushstate.Open: %v", err)
	}
	logger := fetchlog.New(slog.New(slog.DiscardHandler), clock.Fake(time.Unix(0, 0)))
	defer logger.Close()

	registry := redundancy.NewRegistry()
	registry.Set(1, redundancy.Descriptor{CheckpointID: 1, Scheme: "single"})
	applier := &fakeApplier{}

	fabrics := joinAll(t, testutil.SocketDir(t), worldSize)

	var wg sync.WaitGroup
	cfgs := make([]Config, worldSize)
	outcomes := make([]Outcome, worldSize)
	attempts := make([]bool, worldSize)
	errs := make([]error, worldSize)

	for rank := 0; rank < worldSize; rank++ {
		cfgs[rank] = buildRank(t, fabrics[rank], prefixDir, idx, fs, logger, registry, applier)
	}

	wg.Add(worldSize)
	for rank := 0; rank < worldSize; rank++ {
		rank := rank
		go func() {
			defer wg.Done()
			outcomes[rank], attempts[rank], errs[rank] = Run(ctx, cfgs[rank])
		}()
	}
	wg.Wait()

	for rank, err := range errs {
		if err != nil {
			t.Fatalf("rank %d: Run: %v", rank, err)
		}
		if !attempts[rank] {
			t.Fatalf("rank %d: fetchAttempted = false, want true", rank)
		}
		if outcomes[rank] != (Outcome{DatasetID: 1, CheckpointID: 1}) {
			t.Fatalf("rank %d: outcome = %+v, want {1 1}", rank, outcomes[rank])
		}

		fetched, err := os.ReadFile(filepath.Join(cfgs[rank].Cache.Path(1), rankFile(rank)))
		if err != nil {
			t.Fatalf("rank %d: reading fetched file: %v", rank, err)
		}
		if string(fetched) != string(content[rank]) {
			t.Fatalf("rank %d: fetched content = %q, want %q", rank, fetched, content[rank])
		}
	}

	current, ok, err := idx.ReadCurrent()
	if err != nil || !ok || current != "ckpt.1" {
		t.Fatalf("ReadCurrent = (%s, %v, %v), want (ckpt.1, true, nil)", current, ok, err)
	}

	locations := fs.Locations(1)
	if !locations[flushstate.LocationCache] || !locations[flushstate.LocationPFS] {
		t.Fatalf("flush-state locations = %v, want CACHE and PFS set", locations)
	}
}

func TestRunFallsBackToOlderCandidateOnCorruption(t *testing.T) {
	const worldSize = 2
	ctx := context.Background()

	prefixDir := t.TempDir()
	writeCheckpoint(t, prefixDir, "ckpt.1", 1, 1, worldSize, -1)
	writeCheckpoint(t, prefixDir, "ckpt.2", 2, 2, worldSize, 1) // rank 1's file is corrupted

	idx, err := catalog.Open(ctx, prefixDir, "index.db")
	if err != nil {
		t.Fatalf("catalog.Open: %v", err)
	}
	defer idx.Close()
	if err := idx.Put(ctx, catalog.Entry{CheckpointID: 1, Directory: "ckpt.1", DatasetID: 1, Name: "ckpt.1", Complete: true}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := idx.Put(ctx, catalog.Entry{CheckpointID: 2, Directory: "ckpt.2", DatasetID: 2, Name: "ckpt.2", Complete: true}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	fs, err := flushstate.Open(filepath.Join(t.TempDir(), "flushstate.cbor"))
	if err != nil {
		t.Fatalf("flushstate.Open: %v", err)
	}
	logger := fetchlog.New(slog.New(slog.DiscardHandler), clock.Fake(time.Unix(0, 0)))
	defer logger.Close()

	registry := redundancy.NewRegistry()
	registry.Set(1, redundancy.Descriptor{CheckpointID: 1, Scheme: "single"})
	registry.Set(2, redundancy.Descriptor{CheckpointID: 2, Scheme: "single"})
	applier := &fakeApplier{}

	fabrics := joinAll(t, testutil.SocketDir(t), worldSize)

	var wg sync.WaitGroup
	outcomes := make([]Outcome, worldSize)
	attempts := make([]bool, worldSize)
	errs := make([]error, worldSize)

	wg.Add(worldSize)
	for rank := 0; rank < worldSize; rank++ {
		rank := rank
		go func() {
			defer wg.Done()
			cfg := buildRank(t, fabrics[rank], prefixDir, idx, fs, logger, registry, applier)
			outcomes[rank], attempts[rank], errs[rank] = Run(ctx, cfg)
		}()
	}
	wg.Wait()

	for rank, err := range errs {
		if err != nil {
			t.Fatalf("rank %d: Run: %v", rank, err)
		}
		if !attempts[rank] {
			t.Fatalf("rank %d: fetchAttempted = false, want true", rank)
		}
		if outcomes[rank] != (Outcome{DatasetID: 1, CheckpointID: 1}) {
			t.Fatalf("rank %d: outcome = %+v, want {1 1} (fell back to ckpt.1)", rank, outcomes[rank])
		}
	}

	current, ok, err := idx.ReadCurrent()
	if err != nil || !ok || current != "ckpt.1" {
		t.Fatalf("ReadCurrent = (%s, %v, %v), want (ckpt.1, true, nil)", current, ok, err)
	}

	if id, err := idx.GetIDByDir(ctx, "ckpt.2"); err != nil {
		t.Fatalf("GetIDByDir: %v", err)
	} else if id != 2 {
		t.Fatalf("GetIDByDir(ckpt.2) = %d, want 2", id)
	}
	// ckpt.2 is still marked complete in this index: only failed/fetched
	// flags track an attempt's outcome (spec §6's catalog entry does not
	// revoke completeness on a failed fetch). What matters here is that
	// ckpt.1, not ckpt.2, is current.
	if _, dir, found, err := idx.GetMostRecentComplete(ctx, catalog.Unbounded); err != nil {
		t.Fatalf("GetMostRecentComplete: %v", err)
	} else if !found || dir == "" {
		t.Fatalf("GetMostRecentComplete found nothing")
	}
}

func TestRunExhaustsCandidatesAndFails(t *testing.T) {
	const worldSize = 1
	ctx := context.Background()

	prefixDir := t.TempDir()

	idx, err := catalog.Open(ctx, prefixDir, "index.db")
	if err != nil {
		t.Fatalf("catalog.Open: %v", err)
	}
	defer idx.Close()

	fs, err := flushstate.Open(filepath.Join(t.TempDir(), "flushstate.cbor"))
	if err != nil {
		t.Fatalf("flushstate.Open: %v", err)
	}
	logger := fetchlog.New(slog.New(slog.DiscardHandler), clock.Fake(time.Unix(0, 0)))
	defer logger.Close()

	fabrics := joinAll(t, testutil.SocketDir(t), worldSize)
	cfg := buildRank(t, fabrics[0], prefixDir, idx, fs, logger, redundancy.NewRegistry(), &fakeApplier{})

	_, attempted, err := Run(ctx, cfg)
	if err == nil {
		t.Fatalf("Run: expected error for an empty catalog, got nil")
	}
	if attempted {
		t.Fatalf("fetchAttempted = true, want false (no candidate was ever found)")
	}
}

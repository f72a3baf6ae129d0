// Copyright 2026 The SCR Fetch Authors
// SPDX-License-Identifier: Apache-2.0

package attempt

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/scr-hpc/scrfetch/lib/cachedir"
	"github.com/scr-hpc/scrfetch/lib/catalog"
	"github.com/scr-hpc/scrfetch/lib/clock"
	"github.com/scr-hpc/scrfetch/lib/codec"
	"github.com/scr-hpc/scrfetch/lib/fabric"
	"github.com/scr-hpc/scrfetch/lib/fetchlog"
	"github.com/scr-hpc/scrfetch/lib/filemap"
	"github.com/scr-hpc/scrfetch/lib/flowcontrol"
	"github.com/scr-hpc/scrfetch/lib/flushstate"
	"github.com/scr-hpc/scrfetch/lib/perrank"
	"github.com/scr-hpc/scrfetch/lib/redundancy"
	"github.com/scr-hpc/scrfetch/lib/summary"
)

// Config holds every collaborator and tuning knob the Attempt Driver
// needs. Index, FlushState, and Logger are rank-0-only handles (spec
// §9's Role capability): callers leave them nil on worker ranks. The
// redundancy registry, applier, cache manager, and file map are
// available on every rank, since prepare_attempt and finalize touch
// local cache state and the descriptor lookup on every rank, not just
// rank 0.
type Config struct {
	Fabric *fabric.Fabric

	// PrefixDir is the PFS prefix directory; checkpoint subdirectories
	// named by the index are relative to it.
	PrefixDir string

	Index      *catalog.Index
	FlushState *flushstate.File
	Logger     *fetchlog.Logger

	Redundancy redundancy.Lookuper
	Applier    redundancy.Applier

	Cache   *cachedir.Manager
	FileMap *filemap.FileMap
	Clock   clock.Clock

	BufSize    int
	FetchWidth int
	CRCOnFlush bool
}

// Outcome is what a successful Run returns (spec §4.7: "return
// {dataset_id, checkpoint_id}").
type Outcome struct {
	DatasetID    int64
	CheckpointID int64
}

// candidate is a checkpoint the driver is currently attempting.
type candidate struct {
	ID  int64
	Dir string
}

// Run drives the select / prepare / fetch / finalize loop of spec
// §4.7 to completion, either returning a successful Outcome or
// exhausting every older candidate. Every rank in cfg.Fabric must
// call Run. fetchAttempted reports whether a non-empty candidate was
// ever chosen, regardless of whether that attempt went on to
// succeed.
func Run(ctx context.Context, cfg Config) (Outcome, bool, error) {
	previousID := catalog.Unbounded
	fetchAttempted := false

	for {
		cand, found, err := selectAndBroadcast(ctx, cfg, previousID)
		if err != nil {
			return Outcome{}, fetchAttempted, err
		}
		if !found {
			return Outcome{}, fetchAttempted, fmt.Errorf("attempt: no usable checkpoint found")
		}
		fetchAttempted = true

		outcome, success, err := runOne(ctx, cfg, cand)
		if err != nil {
			return Outcome{}, fetchAttempted, err
		}
		if success {
			return outcome, fetchAttempted, nil
		}

		previousID = cand.ID
	}
}

// candidateMsg is what rank 0 broadcasts after select_candidate.
type candidateMsg struct {
	Found bool   `cbor:"found"`
	ID    int64  `cbor:"id,omitempty"`
	Dir   string `cbor:"dir,omitempty"`
	Err   string `cbor:"err,omitempty"`
}

// selectAndBroadcast runs select_candidate on rank 0 and broadcasts
// the result to every rank (spec §4.7: "select_candidate (rank 0
// only)").
func selectAndBroadcast(ctx context.Context, cfg Config, previousID int64) (candidate, bool, error) {
	f := cfg.Fabric
	var payload []byte

	if f.Role() == fabric.RoleCoordinator {
		cand, found, selErr := selectCandidate(ctx, cfg, previousID)
		msg := candidateMsg{Found: found, ID: cand.ID, Dir: cand.Dir}
		if selErr != nil {
			msg.Err = selErr.Error()
		}
		data, err := codec.Marshal(msg)
		if err != nil {
			return candidate{}, false, fmt.Errorf("attempt: encoding candidate: %w", err)
		}
		payload = data
	}

	data, err := f.Broadcast(payload)
	if err != nil {
		return candidate{}, false, fmt.Errorf("attempt: broadcasting candidate: %w", err)
	}

	var msg candidateMsg
	if err := codec.Unmarshal(data, &msg); err != nil {
		return candidate{}, false, fmt.Errorf("attempt: decoding candidate: %w", err)
	}
	if msg.Err != "" {
		return candidate{}, false, fmt.Errorf("attempt: selecting candidate: %s", msg.Err)
	}
	if !msg.Found {
		return candidate{}, false, nil
	}
	return candidate{ID: msg.ID, Dir: msg.Dir}, true, nil
}

// selectCandidate implements spec §4.7's select_candidate: prefer the
// current pointer on the first attempt of a fetch_sync call, fall
// back to the most recent complete checkpoint strictly older than
// previousID otherwise. A stale current pointer (no matching index
// row) is not fatal; selection simply falls through to the catalog
// scan.
func selectCandidate(ctx context.Context, cfg Config, previousID int64) (candidate, bool, error) {
	if previousID == catalog.Unbounded {
		if dir, ok, err := cfg.Index.ReadCurrent(); err != nil {
			return candidate{}, false, err
		} else if ok {
			if id, err := cfg.Index.GetIDByDir(ctx, dir); err == nil {
				return candidate{ID: id, Dir: dir}, true, nil
			}
		}
	}

	id, dir, found, err := cfg.Index.GetMostRecentComplete(ctx, previousID)
	if err != nil {
		return candidate{}, false, err
	}
	if !found {
		return candidate{}, false, nil
	}
	return candidate{ID: id, Dir: dir}, true, nil
}

// runOne drives a single candidate through prepare_attempt,
// run_fetch, and finalize or mark_failed (spec §4.7's state diagram).
func runOne(ctx context.Context, cfg Config, cand candidate) (Outcome, bool, error) {
	checkpointDir := filepath.Join(cfg.PrefixDir, cand.Dir)

	descriptor, start, err := prepareAttempt(ctx, cfg, cand, checkpointDir)
	if err != nil {
		return Outcome{}, false, err
	}

	doc, fetchSuccess, err := runFetch(cfg, checkpointDir, cand.ID)
	if err != nil {
		return Outcome{}, false, err
	}
	if !fetchSuccess {
		if err := markFailed(ctx, cfg, cand); err != nil {
			return Outcome{}, false, err
		}
		return Outcome{}, false, nil
	}

	outcome, success, err := finalize(ctx, cfg, cand, doc, descriptor, start)
	if err != nil {
		return Outcome{}, false, err
	}
	if !success {
		if err := markFailed(ctx, cfg, cand); err != nil {
			return Outcome{}, false, err
		}
		return Outcome{}, false, nil
	}

	return outcome, true, nil
}

// prepareAttempt implements spec §4.7's prepare_attempt: mark the
// candidate fetched, purge residual cache contents and this
// checkpoint's file-map entries, and stamp the redundancy descriptor's
// fingerprint. It keys every local operation
// by the candidate's checkpoint id (see package doc).
//
// It deliberately does not create the cache directory: that happens
// in runFetch, only once the Summary Loader confirms checkpoint_id is
// valid (spec §8 scenario E — a candidate with a missing or malformed
// summary must leave no cache directory behind), mirroring how the
// original scr_fetch_files validates the summary before calling
// scr_cache_dir_create.
func prepareAttempt(ctx context.Context, cfg Config, cand candidate, checkpointDir string) (redundancy.Descriptor, time.Time, error) {
	start := cfg.Clock.Now()

	if cfg.Fabric.Role() == fabric.RoleCoordinator {
		if err := cfg.Index.MarkFetched(ctx, cand.ID, cand.Dir); err != nil {
			return redundancy.Descriptor{}, start, fmt.Errorf("attempt: marking %d fetched: %w", cand.ID, err)
		}
		cfg.Logger.LogDataset(fetchlog.EventFetchStarted, checkpointDir, cand.ID)
	}

	if err := cfg.Cache.Purge(cand.ID); err != nil {
		return redundancy.Descriptor{}, start, fmt.Errorf("attempt: purging cache for %d: %w", cand.ID, err)
	}
	if err := cfg.FileMap.DeleteDataset(cand.ID); err != nil {
		return redundancy.Descriptor{}, start, fmt.Errorf("attempt: clearing file map for %d: %w", cand.ID, err)
	}

	descriptor, err := cfg.Redundancy.Lookup(cand.ID)
	if err != nil {
		return redundancy.Descriptor{}, start, fmt.Errorf("attempt: %w", err)
	}
	fingerprint, err := redundancy.Fingerprint(descriptor)
	if err != nil {
		return redundancy.Descriptor{}, start, fmt.Errorf("attempt: %w", err)
	}
	if err := cfg.FileMap.StampRedundancyDescriptor(cand.ID, fingerprint); err != nil {
		return redundancy.Descriptor{}, start, fmt.Errorf("attempt: stamping redundancy descriptor: %w", err)
	}

	return descriptor, start, nil
}

// runFetch implements spec §4.7's run_fetch: invoke the Summary
// Loader, create this rank's cache directory now that checkpoint_id
// is known valid, then run the Flow Controller over the Per-Rank
// Fetcher. A Summary Loader failure is reported as success=false
// rather than a driver-level error, since summary.Load has already
// broadcast it identically to every rank, and it leaves no cache
// directory behind for this candidate (spec §8 scenario E).
func runFetch(cfg Config, checkpointDir string, checkpointID int64) (*summary.Document, bool, error) {
	f := cfg.Fabric

	doc, err := summary.Load(f, checkpointDir)
	if err != nil {
		return nil, false, nil
	}

	if _, err := cfg.Cache.Create(checkpointID); err != nil {
		return nil, false, fmt.Errorf("attempt: %w", err)
	}

	// perrank.Run's error is purely diagnostic (see its doc comment);
	// only its success bool feeds the flow-controlled aggregate, so a
	// corrupt or missing file on this rank fails the attempt without
	// aborting the driver's retry loop.
	selfFetch := func() (bool, error) {
		ok, _ := perrank.Run(perrankConfig(cfg, checkpointID, doc, f.Rank()))
		return ok, nil
	}

	var success bool
	var fcErr error
	if f.Role() == fabric.RoleCoordinator {
		success, fcErr = flowcontrol.RunCoordinator(f, cfg.FetchWidth, selfFetch, nil)
	} else {
		success, fcErr = flowcontrol.RunWorker(f, selfFetch)
	}
	if fcErr != nil {
		return doc, false, fmt.Errorf("attempt: flow control: %w", fcErr)
	}

	return doc, success, nil
}

func perrankConfig(cfg Config, checkpointID int64, doc *summary.Document, rank int) perrank.Config {
	return perrank.Config{
		DatasetID:  checkpointID,
		Rank:       rank,
		WorldSize:  cfg.Fabric.WorldSize(),
		CacheDir:   cfg.Cache.Path(checkpointID),
		BufSize:    cfg.BufSize,
		CRCOnFlush: cfg.CRCOnFlush,
		Files:      doc.Files,
		Containers: doc.Containers,
		FileMap:    cfg.FileMap,
		Logger:     cfg.Logger,
		Clock:      cfg.Clock,
	}
}

// finalize implements spec §4.7's success path: apply the redundancy
// scheme, all-reduce its outcome, and on rank 0 update the flush
// file and current pointer.
func finalize(ctx context.Context, cfg Config, cand candidate, doc *summary.Document, descriptor redundancy.Descriptor, start time.Time) (Outcome, bool, error) {
	result, applyErr := cfg.Applier.Apply(ctx, cand.ID, descriptor)

	agreed, err := cfg.Fabric.AllReduceAnd(applyErr == nil)
	if err != nil {
		return Outcome{}, false, fmt.Errorf("attempt: all-reducing apply outcome: %w", err)
	}
	if !agreed {
		return Outcome{}, false, nil
	}

	outcome := Outcome{DatasetID: doc.Dataset.DatasetID, CheckpointID: doc.Dataset.CheckpointID}

	if cfg.Fabric.Role() != fabric.RoleCoordinator {
		return outcome, true, nil
	}

	if err := cfg.FlushState.Set(doc.Dataset.DatasetID, flushstate.LocationCache); err != nil {
		return Outcome{}, false, fmt.Errorf("attempt: %w", err)
	}
	if err := cfg.FlushState.Set(doc.Dataset.DatasetID, flushstate.LocationPFS); err != nil {
		return Outcome{}, false, fmt.Errorf("attempt: %w", err)
	}
	if err := cfg.FlushState.Unset(doc.Dataset.DatasetID, flushstate.LocationFlushing); err != nil {
		return Outcome{}, false, fmt.Errorf("attempt: %w", err)
	}
	if err := cfg.Index.SetCurrent(cand.Dir); err != nil {
		return Outcome{}, false, fmt.Errorf("attempt: setting current pointer: %w", err)
	}

	// result.BytesCopied has no dedicated lifecycle event; the elapsed
	// FETCH SUCCEEDED entry already captures the attempt's wall-clock
	// cost.
	_ = result
	cfg.Logger.LogElapsed(fetchlog.EventFetchSucceeded, cand.Dir, doc.Dataset.DatasetID, cfg.Clock.Now().Sub(start))

	return outcome, true, nil
}

// markFailed implements spec §4.7's failure path: purge local cache
// contents, and on rank 0 unlink the current pointer and mark the
// index entry failed.
func markFailed(ctx context.Context, cfg Config, cand candidate) error {
	if err := cfg.Cache.Purge(cand.ID); err != nil {
		return fmt.Errorf("attempt: purging cache after failure: %w", err)
	}

	if cfg.Fabric.Role() != fabric.RoleCoordinator {
		return nil
	}

	if err := cfg.Index.ClearCurrent(); err != nil {
		return fmt.Errorf("attempt: clearing current pointer: %w", err)
	}
	if err := cfg.Index.MarkFailed(ctx, cand.ID, cand.Dir); err != nil {
		return fmt.Errorf("attempt: marking %d failed: %w", cand.ID, err)
	}
	cfg.Logger.Log(fetchlog.EventFetchFailed, cand.Dir)
	return nil
}

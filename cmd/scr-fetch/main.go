// Copyright 2026 The SCR Fetch Authors
// SPDX-License-Identifier: Apache-2.0

// scr-fetch is the process entry point for the checkpoint fetch core.
// One instance runs per rank of the job, all launched with the same
// --prefix, --world-size, and --socket-dir, and each with its own
// --rank and --cache. Rank 0 additionally owns the index catalog, the
// flush file, and the lifecycle logger (spec §9's coordinator
// capability).
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/pflag"

	"github.com/scr-hpc/scrfetch/lib/attempt"
	"github.com/scr-hpc/scrfetch/lib/cachedir"
	"github.com/scr-hpc/scrfetch/lib/catalog"
	"github.com/scr-hpc/scrfetch/lib/clock"
	"github.com/scr-hpc/scrfetch/lib/fabric"
	"github.com/scr-hpc/scrfetch/lib/fetchlog"
	"github.com/scr-hpc/scrfetch/lib/filemap"
	"github.com/scr-hpc/scrfetch/lib/flushstate"
	"github.com/scr-hpc/scrfetch/lib/redundancy"
	"github.com/scr-hpc/scrfetch/lib/version"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// options holds the parsed command-line flags (spec §6 External
// Interfaces: "world_size, rank, buf_size, flow-control width w,
// prefix directory, redundancy descriptor source, crc_on_flush").
type options struct {
	prefix    string
	cacheBase string
	rank      int
	worldSize int
	socketDir string

	bufSize    int
	fetchWidth int
	crcOnFlush bool

	redundancyScheme string
	indexDBName      string
	flushStatePath   string
	logOutput        string
}

// errShown signals that parseOptions already printed what the user
// needed (help or version text) and run should exit 0 without an
// error message.
var errShown = errors.New("scr-fetch: already shown")

func parseOptions(args []string) (options, error) {
	var o options

	flagSet := pflag.NewFlagSet("scr-fetch", pflag.ContinueOnError)
	flagSet.StringVar(&o.prefix, "prefix", "", "PFS prefix directory holding the index catalog and checkpoint subdirectories")
	flagSet.StringVar(&o.cacheBase, "cache", "", "this rank's local cache base directory")
	flagSet.IntVar(&o.rank, "rank", -1, "this process's rank")
	flagSet.IntVar(&o.worldSize, "world-size", 0, "total number of ranks in the job")
	flagSet.StringVar(&o.socketDir, "socket-dir", "", "directory shared by every rank for fabric rendezvous")
	flagSet.IntVar(&o.bufSize, "buf-size", 1<<20, "chunk size in bytes for file and container reads")
	flagSet.IntVar(&o.fetchWidth, "fetch-width", 0, "flow-control window width w (0: clamp to world_size-1)")
	flagSet.BoolVar(&o.crcOnFlush, "crc-on-flush", false, "compute and enforce CRC32 on every fetch, not just files with a stored checksum")
	flagSet.StringVar(&o.redundancyScheme, "redundancy-scheme", "single", "redundancy scheme name stamped into the file map")
	flagSet.StringVar(&o.indexDBName, "index-db-name", "index.db", "file name of the index catalog database within --prefix")
	flagSet.StringVar(&o.flushStatePath, "flush-state", "", "path to the flush-state file (default: <prefix>/flushstate.cbor)")
	flagSet.StringVar(&o.logOutput, "log-output", "", "write rank-0 lifecycle log records to this file (default: discard)")
	flagSet.BoolP("help", "h", false, "show help")

	if len(args) > 0 && args[0] == "--version" {
		fmt.Printf("scr-fetch %s\n", version.Info())
		return options{}, errShown
	}

	if err := flagSet.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			return options{}, errShown
		}
		return options{}, err
	}
	if help, _ := flagSet.GetBool("help"); help {
		flagSet.PrintDefaults()
		return options{}, errShown
	}

	if o.prefix == "" {
		return options{}, fmt.Errorf("--prefix is required")
	}
	if o.cacheBase == "" {
		return options{}, fmt.Errorf("--cache is required")
	}
	if o.rank < 0 {
		return options{}, fmt.Errorf("--rank is required")
	}
	if o.worldSize < 1 {
		return options{}, fmt.Errorf("--world-size must be positive")
	}
	if o.socketDir == "" {
		return options{}, fmt.Errorf("--socket-dir is required")
	}
	if o.flushStatePath == "" {
		o.flushStatePath = filepath.Join(o.prefix, "flushstate.cbor")
	}

	return o, nil
}

func run() error {
	o, err := parseOptions(os.Args[1:])
	if err != nil {
		if err == errShown {
			return nil
		}
		return err
	}

	f, err := fabric.Join(o.socketDir, o.rank, o.worldSize)
	if err != nil {
		return fmt.Errorf("joining fabric: %w", err)
	}
	defer f.Close()

	fm, err := filemap.Open(filepath.Join(o.cacheBase, "filemap.cbor"))
	if err != nil {
		return fmt.Errorf("opening file map: %w", err)
	}

	cfg := attempt.Config{
		Fabric:     f,
		PrefixDir:  o.prefix,
		Redundancy: uniformDescriptor{scheme: o.redundancyScheme, cacheBase: o.cacheBase},
		Applier:    passthroughApplier{},
		Cache:      cachedir.New(o.cacheBase),
		FileMap:    fm,
		Clock:      clock.Real(),
		BufSize:    o.bufSize,
		FetchWidth: o.fetchWidth,
		CRCOnFlush: o.crcOnFlush,
	}

	ctx := context.Background()

	if f.Role() == fabric.RoleCoordinator {
		idx, err := catalog.Open(ctx, o.prefix, o.indexDBName)
		if err != nil {
			return fmt.Errorf("opening index catalog: %w", err)
		}
		defer idx.Close()

		fs, err := flushstate.Open(o.flushStatePath)
		if err != nil {
			return fmt.Errorf("opening flush-state file: %w", err)
		}

		sink, err := logSink(o.logOutput)
		if err != nil {
			return err
		}
		logger := fetchlog.New(sink, clock.Real())
		defer logger.Close()

		cfg.Index = idx
		cfg.FlushState = fs
		cfg.Logger = logger
	}

	outcome, fetchAttempted, err := attempt.Run(ctx, cfg)
	if err != nil {
		return fmt.Errorf("rank %d: %w (fetch_attempted=%v)", o.rank, err, fetchAttempted)
	}

	if f.Role() == fabric.RoleCoordinator {
		fmt.Printf("fetched dataset_id=%d checkpoint_id=%d\n", outcome.DatasetID, outcome.CheckpointID)
	}
	return nil
}

// logSink opens the rank-0 lifecycle log destination. An empty path
// discards every record (spec §4.8: the sink is pluggable and a fetch
// never depends on it).
func logSink(path string) (*slog.Logger, error) {
	if path == "" {
		return slog.New(slog.DiscardHandler), nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening log output %s: %w", path, err)
	}
	return slog.New(slog.NewJSONHandler(f, nil)), nil
}

// uniformDescriptor is a [redundancy.Lookuper] that hands back the
// same scheme and cache base for every checkpoint id, for deployments
// that do not vary redundancy configuration per checkpoint. Real
// per-checkpoint descriptor persistence is an external collaborator
// this core intentionally does not implement (spec §1).
type uniformDescriptor struct {
	scheme    string
	cacheBase string
}

func (u uniformDescriptor) Lookup(checkpointID int64) (redundancy.Descriptor, error) {
	return redundancy.Descriptor{CheckpointID: checkpointID, Scheme: u.scheme, CacheBase: u.cacheBase}, nil
}

// passthroughApplier is the redundancy-apply seam's default
// implementation: it reports success without moving any bytes,
// matching the "single" (no cross-rank redundancy) scheme. A
// deployment with an actual partner/XOR scheme supplies its own
// [redundancy.Applier] in place of this one.
type passthroughApplier struct{}

func (passthroughApplier) Apply(ctx context.Context, datasetID int64, d redundancy.Descriptor) (redundancy.ApplyResult, error) {
	return redundancy.ApplyResult{}, nil
}

// Copyright 2026 The SCR Fetch Authors
// SPDX-License-Identifier: Apache-2.0

package fetchlog

import (
	"log/slog"
	"time"

	"github.com/scr-hpc/scrfetch/lib/clock"
)

// Event names emitted by the Attempt Driver (spec §4.8).
const (
	EventFetchStarted   = "FETCH STARTED"
	EventFetchSucceeded = "FETCH SUCCEEDED"
	EventFetchFailed    = "FETCH FAILED"
)

// Entry is one lifecycle event.
type Entry struct {
	Event     string
	Directory string
	DatasetID int64
	HasDataset bool
	Timestamp time.Time

	HasElapsed bool
	Elapsed    time.Duration
}

// TransferRecord is a per-file transfer-bandwidth record (spec §4.8,
// "a transfer-bandwidth record"). The shape is not specified by
// spec.md's prose beyond "source/destination paths and bytes"; this
// adds Elapsed so Bandwidth can be computed without a second lookup.
type TransferRecord struct {
	Source      string
	Destination string
	Bytes       int64
	Elapsed     time.Duration
	Timestamp   time.Time
}

// Bandwidth returns bytes per second, or 0 if Elapsed is zero or
// negative.
func (r TransferRecord) Bandwidth() float64 {
	if r.Elapsed <= 0 {
		return 0
	}
	return float64(r.Bytes) / r.Elapsed.Seconds()
}

// record is the union of Entry and TransferRecord queued internally;
// exactly one of entry/transfer is non-nil.
type record struct {
	entry    *Entry
	transfer *TransferRecord
}

// queueDepth bounds how many unconsumed log records a Logger will
// hold before dropping new ones. Generous enough that a fetch with
// thousands of files never drops entries under normal scheduling, but
// bounded so a wedged sink cannot grow the logger's memory without
// limit.
const queueDepth = 4096

// Logger is the rank-0-only lifecycle logger. It owns a background
// goroutine that drains queued records into a *slog.Logger sink;
// Log and Transfer enqueue without blocking the fetch, matching spec
// §4.8's "pluggable sink" and "never block or fail a fetch".
type Logger struct {
	sink   *slog.Logger
	clock  clock.Clock
	queue  chan record
	done   chan struct{}
}

// New returns a Logger that writes to sink (a *slog.Logger; pass
// slog.New(slog.DiscardHandler) to disable output entirely) and
// stamps events using clk. Callers must call Close when the fetch
// core is done logging, to drain the background goroutine.
func New(sink *slog.Logger, clk clock.Clock) *Logger {
	if sink == nil {
		sink = slog.New(slog.DiscardHandler)
	}
	l := &Logger{
		sink:  sink,
		clock: clk,
		queue: make(chan record, queueDepth),
		done:  make(chan struct{}),
	}
	go l.run()
	return l
}

func (l *Logger) run() {
	defer close(l.done)
	for rec := range l.queue {
		switch {
		case rec.entry != nil:
			l.writeEntry(*rec.entry)
		case rec.transfer != nil:
			l.writeTransfer(*rec.transfer)
		}
	}
}

func (l *Logger) writeEntry(e Entry) {
	args := []any{"directory", e.Directory, "timestamp", e.Timestamp}
	if e.HasDataset {
		args = append(args, "dataset_id", e.DatasetID)
	}
	if e.HasElapsed {
		args = append(args, "elapsed_seconds", e.Elapsed.Seconds())
	}
	l.sink.Info(e.Event, args...)
}

func (l *Logger) writeTransfer(r TransferRecord) {
	l.sink.Info("transfer",
		"source", r.Source,
		"destination", r.Destination,
		"bytes", r.Bytes,
		"elapsed_seconds", r.Elapsed.Seconds(),
		"bandwidth_bytes_per_sec", r.Bandwidth(),
		"timestamp", r.Timestamp,
	)
}

// Log enqueues a lifecycle event, stamping it with the current time.
// If the internal queue is full, the entry is dropped silently (spec
// §4.8).
func (l *Logger) Log(event, directory string) {
	l.enqueue(record{entry: &Entry{
		Event:     event,
		Directory: directory,
		Timestamp: l.clock.Now(),
	}})
}

// LogDataset is Log plus a dataset id attached to the entry.
func (l *Logger) LogDataset(event, directory string, datasetID int64) {
	l.enqueue(record{entry: &Entry{
		Event:      event,
		Directory:  directory,
		DatasetID:  datasetID,
		HasDataset: true,
		Timestamp:  l.clock.Now(),
	}})
}

// LogElapsed is LogDataset plus an elapsed duration, for the
// FETCH SUCCEEDED/FAILED events that report how long the attempt ran.
func (l *Logger) LogElapsed(event, directory string, datasetID int64, elapsed time.Duration) {
	l.enqueue(record{entry: &Entry{
		Event:      event,
		Directory:  directory,
		DatasetID:  datasetID,
		HasDataset: true,
		Timestamp:  l.clock.Now(),
		HasElapsed: true,
		Elapsed:    elapsed,
	}})
}

// Transfer enqueues a transfer-bandwidth record, stamping it with the
// current time.
func (l *Logger) Transfer(source, destination string, bytes int64, elapsed time.Duration) {
	l.enqueue(record{transfer: &TransferRecord{
		Source:      source,
		Destination: destination,
		Bytes:       bytes,
		Elapsed:     elapsed,
		Timestamp:   l.clock.Now(),
	}})
}

func (l *Logger) enqueue(rec record) {
	select {
	case l.queue <- rec:
	default:
		// Queue full: drop rather than block the fetch (spec §4.8).
	}
}

// Close stops accepting new records, drains whatever is already
// queued, and waits for the background goroutine to exit.
func (l *Logger) Close() {
	close(l.queue)
	<-l.done
}

// Copyright 2026 The SCR Fetch Authors
// SPDX-License-Identifier: Apache-2.0

// Package fetchlog is the fetch core's lifecycle logger (spec §4.8):
// timestamped FETCH STARTED/SUCCEEDED/FAILED events and transfer-
// bandwidth records, observed by rank 0 only. Logging never blocks or
// fails a fetch (spec §4.8 "Lost log entries never block or fail a
// fetch") — a Logger drops an event rather than stalling the caller
// when its internal queue is full.
package fetchlog

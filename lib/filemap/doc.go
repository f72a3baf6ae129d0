// Copyright 2026 The SCR Fetch Authors
// SPDX-License-Identifier: Apache-2.0

// Package filemap implements the File Map (spec §3): a persistent
// per-rank record of {dataset_id → rank → filename → file-meta}, plus
// an expected-file count and a redundancy-descriptor fingerprint.
//
// Its one load-bearing invariant is ordering: a filename must be
// durably recorded in the map before any byte of that file is written
// to disk, so a crashed fetch leaves enough evidence on the next start
// to clean up a half-written file the map never promised was complete.
package filemap

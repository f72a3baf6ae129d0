// Copyright 2026 The SCR Fetch Authors
// SPDX-License-Identifier: Apache-2.0

// Package summary implements the Summary Loader (spec §4.4): a
// collective operation in which rank 0 parses the checkpoint
// directory's summary document and distributes the dataset header,
// container table, and each rank's own file list to the rest of the
// job.
package summary

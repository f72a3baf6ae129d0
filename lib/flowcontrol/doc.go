// Copyright 2026 The SCR Fetch Authors
// SPDX-License-Identifier: Apache-2.0

// Package flowcontrol implements the rank-0 sliding-window scheduler
// described in spec §4.6: at most w non-zero ranks read from the
// shared parallel file system concurrently. Rank 0 posts matched
// non-blocking send/receive pairs per rank and drains them with
// [fabric.WaitAny], throttling how many ranks the per-rank fetch
// phase admits at once.
package flowcontrol

// Copyright 2026 The SCR Fetch Authors
// SPDX-License-Identifier: Apache-2.0

// Package cachedir manages the per-dataset cache directory on fast
// local or near-node media (spec §6 "Cache layout"). It creates the
// directory a fetch attempt writes into, locates it for a rank that
// already knows its dataset id, and deletes its contents — wholesale,
// before a fresh fetch attempt and again on attempt failure (spec
// §4.7) — so a crashed or rejected attempt never leaves stale bytes
// behind for the next candidate.
package cachedir

// Copyright 2026 The SCR Fetch Authors
// SPDX-License-Identifier: Apache-2.0

// Package fabric implements the collective-messaging fabric the fetch
// core drives its distributed read through (spec §2 item 6, §6): a
// barrier, a broadcast and a scatter/gather rooted at rank 0, an
// exchange primitive, non-blocking point-to-point send/receive with
// wait-any completion, and an all-reduce of booleans.
//
// The job is SPMD (spec §5): every process runs the same program and
// discovers its rank and world size at startup. Because every
// collective in this fetch core is rooted at rank 0 (spec §4.7's
// Rank-0-exclusive state design note), the fabric is wired as a star:
// rank 0 holds one connection to each other rank, and workers never
// talk to each other directly. This mirrors the teacher's
// daemon↔launcher link (lib/ipc) generalized from one peer to N.
//
// Connections are Unix domain sockets framed with length-prefixed CBOR
// messages (lib/codec), the same two-part framing
// (lib/artifact/transfer.go's length-prefixed header + sized/chunked
// body) the teacher uses for its artifact transfer protocol.
package fabric

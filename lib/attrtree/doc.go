// Copyright 2026 The SCR Fetch Authors
// SPDX-License-Identifier: Apache-2.0

// Package attrtree implements the hierarchical attribute tree used to
// carry summary, file, segment, container, and dataset metadata
// through the fetch core (spec §4.1).
//
// A Node is a tagged variant: it may hold a typed scalar leaf, any
// number of uniquely-keyed children, or both. Children preserve
// insertion order for iteration (Each), independent of the
// unordered map used for lookup. Typed accessors (Int, UnsignedLong,
// ByteCount, StringValue, CRC32) fail cleanly — a distinct error, never a
// zero value masquerading as success — when a key is absent or holds
// a scalar of the wrong kind.
//
// Strongly-typed façades at higher layers (lib/summary's dataset
// header, lib/container's segment list) wrap a Node at the boundary so
// the rest of the fetch core never touches raw string keys directly.
package attrtree

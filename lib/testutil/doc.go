// Copyright 2026 The SCR Fetch Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for scrfetch packages.
//
// [SocketDir] creates a temporary directory in /tmp suitable for Unix
// domain sockets. This exists because Unix domain sockets have a
// 108-byte path limit (sun_path in sockaddr_un), and t.TempDir() can
// exceed that limit under deeply nested test run directories, which
// would make [lib/fabric]'s rendezvous sockets fail to bind. The
// directory is automatically removed when the test completes.
//
// [RequireReceive], [RequireSend], and [RequireClosed] encapsulate the
// timeout safety valve pattern (select with time.After fallback) so
// that multi-rank tests driving several goroutines through
// [lib/fabric] do not need direct time.After calls at every call site.
//
// [UniqueID] generates monotonically increasing identifiers for test
// disambiguation, for use instead of time.Now() when a test needs
// distinguishable directory or dataset names across multiple ranks.
//
// All helpers call t.Fatalf on failure rather than returning errors,
// since test setup failures are not recoverable.
package testutil

// Copyright 2026 The SCR Fetch Authors
// SPDX-License-Identifier: Apache-2.0

// Package perrank implements the Per-Rank Fetcher (spec §4.5): given
// one rank's file list from the Summary Loader, it records each
// destination path in the file map before any bytes move, dispatches
// each file to the Container Reader or File Copier depending on
// whether the summary carries a container table, and stamps the
// resulting metadata back into the file map.
//
// A file record's COMPLETE field (spec §3: "bool; absent ⇒ true") is
// the writer's declaration about the source file, not the outcome of
// this fetch — the file-meta this package stamps always starts at
// complete=true and is downgraded only by a local fetch failure (spec
// §4.5 step 4/6), so the declared value is not separately consumed.
package perrank

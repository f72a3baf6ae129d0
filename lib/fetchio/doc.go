// Copyright 2026 The SCR Fetch Authors
// SPDX-License-Identifier: Apache-2.0

// Package fetchio implements the File Copier (spec §4.2): a streamed,
// chunked copy from a source path into a destination directory, with
// an optional running CRC32 and kernel page-cache hints so a fetch
// that reads gigabytes of checkpoint data does not evict the rest of
// the node's page cache behind it.
package fetchio

// Copyright 2026 The SCR Fetch Authors
// SPDX-License-Identifier: Apache-2.0

// Package container implements the Container Reader (spec §4.3):
// reconstructing a single destination file from an ordered list of
// segments, each a byte range within one of the dataset's container
// files, while maintaining one running CRC32 across the whole
// destination file.
package container

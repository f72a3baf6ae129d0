// Copyright 2026 The SCR Fetch Authors
// SPDX-License-Identifier: Apache-2.0

// Package catalog is the index catalog over a PFS prefix directory
// (spec §6, "Index file"): a persistent record of every checkpoint
// found under the prefix, its subdirectory, and whether it is
// complete, fetched, or failed.
//
// The Attempt Driver reads the catalog to select a candidate
// checkpoint and marks entries fetched or failed as attempts resolve
// (spec §4.7). It also owns the "current" symbolic pointer described
// in spec §6: a relative symlink from the prefix directory to the
// subdirectory of the most recently fetched checkpoint.
package catalog

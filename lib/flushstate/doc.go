// Copyright 2026 The SCR Fetch Authors
// SPDX-License-Identifier: Apache-2.0

// Package flushstate is a small durable record of where each dataset
// currently resides (spec §3 "Flush file"): a set of locations drawn
// from {CACHE, PFS, FLUSHING} per dataset id. The fetch core only
// ever mutates this file — spec §3: "The core mutates locations but
// never reads them" — so this package exposes Set/Unset and nothing
// that feeds a decision back into a fetch attempt.
package flushstate

// Copyright 2026 The SCR Fetch Authors
// SPDX-License-Identifier: Apache-2.0

// Package attempt implements the Attempt Driver (spec §4.7): the
// outer retry loop that selects a candidate checkpoint from the index
// catalog, broadcasts it to every rank, drives the Summary Loader and
// Per-Rank Fetcher across the flow-controlled fetch phase, and either
// finalizes a successful attempt or excludes the candidate and tries
// the next older one.
//
// The loop keys the cache directory, file map, and redundancy-descriptor
// lookup touched during an attempt by the candidate's checkpoint id,
// not by the dataset id the Summary Loader eventually parses out of the
// summary document: checkpoint_id is known before the Summary Loader
// ever runs, while dataset_id is not. The flush-state entries written
// on success, after the summary has been loaded, are keyed by that
// parsed dataset_id. The two almost always coincide in this core (a
// dataset is always a single checkpoint), and both are returned to the
// caller as the (dataset_id, checkpoint_id) pair.
package attempt

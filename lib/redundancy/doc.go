// Copyright 2026 The SCR Fetch Authors
// SPDX-License-Identifier: Apache-2.0

// Package redundancy is the fetch core's view of the redundancy
// descriptor: a registry keyed by checkpoint id (spec §1, §4.9) and a
// content-addressed fingerprint of each descriptor, stamped into the
// file map by the Attempt Driver (spec §4.7: "Look up the redundancy
// descriptor by checkpoint_id and stamp its hash into the file map").
//
// Applying the redundancy scheme itself — rebuilding cross-rank
// parity, XOR sets, or whatever the descriptor names — is an external
// collaborator the core only calls through (spec §1's "Out of scope /
// external collaborators": "an 'apply redundancy' operator invoked
// after fetch"). [Applier] is that seam.
package redundancy

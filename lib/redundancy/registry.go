// Copyright 2026 The SCR Fetch Authors
// SPDX-License-Identifier: Apache-2.0

package redundancy

import (
	"context"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/scr-hpc/scrfetch/lib/codec"
	"github.com/zeebo/blake3"
)

// fingerprintDomainKey domain-separates descriptor fingerprints from
// every other keyed-BLAKE3 use in the fetch core, mirroring the
// teacher's chunk/container/file domain keys.
var fingerprintDomainKey = [32]byte{
	's', 'c', 'r', 'f', 'e', 't', 'c', 'h', '.', 'r', 'e', 'd', 'u', 'n', 'd', 'a',
	'n', 'c', 'y', '.', 'd', 'e', 's', 'c', 'r', 'i', 'p', 't', 'o', 'r', 0, 0,
}

// deterministic marshaling + sizing below mirrors lib/artifact/hash.go's
// keyedHash helper, with a fixed domain key instead of a parameter.

// Descriptor describes the cross-rank redundancy scheme applied to a
// checkpoint after fetch (spec Glossary: "Redundancy descriptor").
// Scheme names the applied algorithm (e.g. "single", "partner",
// "xor"); CacheBase is the per-dataset cache directory's parent,
// chosen by this descriptor (spec §6 "Cache layout"); Params carries
// any scheme-specific tuning the applier needs.
type Descriptor struct {
	CheckpointID int64
	Scheme       string
	CacheBase    string
	Params       map[string]string `cbor:"params,omitempty"`
}

// Fingerprint returns a stable, collision-resistant identifier for d,
// derived from a keyed BLAKE3 hash of its deterministic CBOR encoding.
// This is what the Attempt Driver stamps into the file map (spec
// §4.7) — a short string rather than a struct copy.
func Fingerprint(d Descriptor) (string, error) {
	data, err := codec.Marshal(d)
	if err != nil {
		return "", fmt.Errorf("redundancy: encoding descriptor for checkpoint %d: %w", d.CheckpointID, err)
	}
	hasher, err := blake3.NewKeyed(fingerprintDomainKey[:])
	if err != nil {
		return "", fmt.Errorf("redundancy: initializing BLAKE3: %w", err)
	}
	hasher.Write(data)
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// Lookuper is what the Attempt Driver needs from a descriptor source
// (spec §1's "redundancy descriptor registry keyed by checkpoint
// id"). Registry implements it directly; a deployment whose
// descriptors all share one scheme can instead supply a smaller
// implementation that ignores checkpointID.
type Lookuper interface {
	Lookup(checkpointID int64) (Descriptor, error)
}

// Registry looks up a Descriptor by checkpoint id (spec §1: "A
// redundancy descriptor registry keyed by checkpoint id"). It is safe
// for concurrent use.
type Registry struct {
	mu          sync.RWMutex
	descriptors map[int64]Descriptor
}

// NewRegistry returns an empty Registry. Callers populate it via Set
// before a fetch attempt needs to look up a checkpoint's descriptor —
// the registry's persistence backend is outside this core's scope
// (spec §1 lists it as an external collaborator).
func NewRegistry() *Registry {
	return &Registry{descriptors: make(map[int64]Descriptor)}
}

// Set registers (or replaces) the descriptor for checkpointID.
func (r *Registry) Set(checkpointID int64, d Descriptor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.descriptors[checkpointID] = d
}

// Lookup returns the descriptor registered for checkpointID.
func (r *Registry) Lookup(checkpointID int64) (Descriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.descriptors[checkpointID]
	if !ok {
		return Descriptor{}, fmt.Errorf("redundancy: no descriptor registered for checkpoint %d", checkpointID)
	}
	return d, nil
}

// ApplyResult is what a successful Applier.Apply reports.
type ApplyResult struct {
	// BytesCopied is the number of bytes the redundancy scheme moved
	// while rebuilding cross-rank state (spec §4.7: "reports bytes
	// copied").
	BytesCopied int64
}

// Applier is the external "apply redundancy" operator spec §1 and
// §4.7 call through after a successful distributed fetch. The fetch
// core never implements a redundancy scheme itself — it only invokes
// this seam and reacts to its success or failure.
type Applier interface {
	Apply(ctx context.Context, datasetID int64, d Descriptor) (ApplyResult, error)
}

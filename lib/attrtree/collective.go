// Copyright 2026 The SCR Fetch Authors
// SPDX-License-Identifier: Apache-2.0

package attrtree

import "fmt"

// Fabric is the subset of *fabric.Fabric the attribute tree needs to
// move subtrees between ranks. Declared locally (rather than imported)
// so this package does not depend on lib/fabric — only the Summary
// Loader, which already imports both, wires the two together.
type Fabric interface {
	WorldSize() int
	Broadcast(payload []byte) ([]byte, error)
	Exchange(toCoordinator []byte, fromCoordinator [][]byte) ([]byte, error)
}

// Broadcast sends tree (meaningful only on the coordinator; ignored on
// workers) from rank 0 to every rank and returns the tree every rank
// ends up holding. This is how the DATASET and CONTAINER subtrees
// reach every rank in spec §4.4.
func Broadcast(f Fabric, tree *Node) (*Node, error) {
	var payload []byte
	if tree != nil {
		data, err := Marshal(tree)
		if err != nil {
			return nil, fmt.Errorf("attrtree: broadcast: encoding: %w", err)
		}
		payload = data
	}

	data, err := f.Broadcast(payload)
	if err != nil {
		return nil, fmt.Errorf("attrtree: broadcast: %w", err)
	}
	if len(data) == 0 {
		return New(), nil
	}
	return Unmarshal(data)
}

// Exchange runs the attribute tree's exchange primitive (spec §4.1):
// on the coordinator, bySenderRank maps a sending worker's rank to the
// subtree addressed to it (bySenderRank[0] is the coordinator's own
// contribution to itself); on a worker, toCoordinator is the subtree
// this worker sends up to the coordinator (the coordinator's mapping
// is ignored on worker ranks). Every rank — including the
// coordinator — gets back only the subtree addressed to it, with
// sender identity preserved by virtue of being keyed by rank on the
// coordinator side.
func Exchange(f Fabric, toCoordinator *Node, bySenderRank map[int]*Node) (*Node, error) {
	var up []byte
	if toCoordinator != nil {
		data, err := Marshal(toCoordinator)
		if err != nil {
			return nil, fmt.Errorf("attrtree: exchange: encoding outgoing subtree: %w", err)
		}
		up = data
	}

	down := make([][]byte, f.WorldSize())
	for rank, tree := range bySenderRank {
		if tree == nil {
			continue
		}
		data, err := Marshal(tree)
		if err != nil {
			return nil, fmt.Errorf("attrtree: exchange: encoding subtree for rank %d: %w", rank, err)
		}
		down[rank] = data
	}

	data, err := f.Exchange(up, down)
	if err != nil {
		return nil, fmt.Errorf("attrtree: exchange: %w", err)
	}
	if len(data) == 0 {
		return New(), nil
	}
	return Unmarshal(data)
}

// Copyright 2026 The SCR Fetch Authors
// SPDX-License-Identifier: Apache-2.0

package fabric

import "fmt"

// otherRanks returns every rank except 0, in ascending order. Every
// collective below fans out to exactly this set from the coordinator
// side.
func (f *Fabric) otherRanks() []int {
	ranks := make([]int, 0, f.worldSize-1)
	for i := 1; i < f.worldSize; i++ {
		ranks = append(ranks, i)
	}
	return ranks
}

type barrierMsg struct {
	Arrived bool `cbor:"arrived"`
}

// Barrier blocks every rank until all ranks have called Barrier. Rank
// 0 collects an arrival notice from each worker, then releases all of
// them together; workers simply round-trip a message with rank 0.
func (f *Fabric) Barrier() error {
	if f.Role() == RoleWorker {
		if err := f.Send(0, mustMarshal(barrierMsg{Arrived: true})); err != nil {
			return fmt.Errorf("fabric: barrier: %w", err)
		}
		if _, err := f.Recv(0); err != nil {
			return fmt.Errorf("fabric: barrier: %w", err)
		}
		return nil
	}

	for _, rank := range f.otherRanks() {
		if _, err := f.Recv(rank); err != nil {
			return fmt.Errorf("fabric: barrier: waiting on rank %d: %w", rank, err)
		}
	}
	for _, rank := range f.otherRanks() {
		if err := f.Send(rank, mustMarshal(barrierMsg{Arrived: true})); err != nil {
			return fmt.Errorf("fabric: barrier: releasing rank %d: %w", rank, err)
		}
	}
	return nil
}

// Broadcast sends payload (valid only on the coordinator; ignored on
// workers) from rank 0 to every other rank, and returns the payload
// every rank ends up holding. This is how the parsed summary document
// reaches every rank (spec §4.4) without each rank parsing it
// independently.
func (f *Fabric) Broadcast(payload []byte) ([]byte, error) {
	if f.Role() == RoleWorker {
		data, err := f.Recv(0)
		if err != nil {
			return nil, fmt.Errorf("fabric: broadcast: %w", err)
		}
		return data, nil
	}

	for _, rank := range f.otherRanks() {
		if err := f.Send(rank, payload); err != nil {
			return nil, fmt.Errorf("fabric: broadcast: sending to rank %d: %w", rank, err)
		}
	}
	return payload, nil
}

// Scatter is called on the coordinator with exactly WorldSize()
// payloads (index i destined for rank i) and on every worker with nil.
// It returns the slice this rank should keep. Used to hand each rank
// its own RANK2FILE entry (spec §4.4) without shipping every other
// rank's entry to it.
func (f *Fabric) Scatter(payloads [][]byte) ([]byte, error) {
	if f.Role() == RoleWorker {
		data, err := f.Recv(0)
		if err != nil {
			return nil, fmt.Errorf("fabric: scatter: %w", err)
		}
		return data, nil
	}

	if len(payloads) != f.worldSize {
		return nil, fmt.Errorf("fabric: scatter: need %d payloads, got %d", f.worldSize, len(payloads))
	}
	for _, rank := range f.otherRanks() {
		if err := f.Send(rank, payloads[rank]); err != nil {
			return nil, fmt.Errorf("fabric: scatter: sending to rank %d: %w", rank, err)
		}
	}
	return payloads[0], nil
}

// Gather is the dual of Scatter: every rank (including the
// coordinator) contributes one payload, and the coordinator receives
// all WorldSize() of them indexed by rank. Workers get back nil.
func (f *Fabric) Gather(payload []byte) ([][]byte, error) {
	if f.Role() == RoleWorker {
		if err := f.Send(0, payload); err != nil {
			return nil, fmt.Errorf("fabric: gather: %w", err)
		}
		return nil, nil
	}

	results := make([][]byte, f.worldSize)
	results[0] = payload
	for _, rank := range f.otherRanks() {
		data, err := f.Recv(rank)
		if err != nil {
			return nil, fmt.Errorf("fabric: gather: receiving from rank %d: %w", rank, err)
		}
		results[rank] = data
	}
	return results, nil
}

// Exchange lets every worker hand the coordinator one payload and get
// back a (possibly different) one in the same round trip: a worker
// sends toCoordinator upward and receives fromCoordinator[rank]. The
// coordinator reads each worker's upload and discards it, and ignores
// its own toCoordinator; fromCoordinator is only read on the
// coordinator, which gets fromCoordinator[0] back. This backs the
// RANK2FILE exchange of spec §4.4, where each rank receives only its
// own file-list fragment from rank 0.
func (f *Fabric) Exchange(toCoordinator []byte, fromCoordinator [][]byte) ([]byte, error) {
	if f.Role() == RoleWorker {
		if err := f.Send(0, toCoordinator); err != nil {
			return nil, fmt.Errorf("fabric: exchange: sending: %w", err)
		}
		data, err := f.Recv(0)
		if err != nil {
			return nil, fmt.Errorf("fabric: exchange: receiving: %w", err)
		}
		return data, nil
	}

	if len(fromCoordinator) != f.worldSize {
		return nil, fmt.Errorf("fabric: exchange: need %d reply payloads, got %d", f.worldSize, len(fromCoordinator))
	}
	for _, rank := range f.otherRanks() {
		if _, err := f.Recv(rank); err != nil {
			return nil, fmt.Errorf("fabric: exchange: receiving from rank %d: %w", rank, err)
		}
	}
	for _, rank := range f.otherRanks() {
		if err := f.Send(rank, fromCoordinator[rank]); err != nil {
			return nil, fmt.Errorf("fabric: exchange: replying to rank %d: %w", rank, err)
		}
	}
	return fromCoordinator[0], nil
}

type boolMsg struct {
	Value bool `cbor:"value"`
}

// AllReduceAnd combines one boolean per rank with logical AND and
// returns the combined result to every rank. The fetch core uses this
// to decide whether every rank succeeded before any rank commits its
// file map (spec §4.7's finalize step must see every rank's verdict).
func (f *Fabric) AllReduceAnd(value bool) (bool, error) {
	if f.Role() == RoleWorker {
		if err := f.Send(0, mustMarshal(boolMsg{Value: value})); err != nil {
			return false, fmt.Errorf("fabric: all-reduce: %w", err)
		}
		data, err := f.Recv(0)
		if err != nil {
			return false, fmt.Errorf("fabric: all-reduce: %w", err)
		}
		var reply boolMsg
		if err := unmarshalInto(data, &reply); err != nil {
			return false, fmt.Errorf("fabric: all-reduce: %w", err)
		}
		return reply.Value, nil
	}

	result := value
	for _, rank := range f.otherRanks() {
		data, err := f.Recv(rank)
		if err != nil {
			return false, fmt.Errorf("fabric: all-reduce: receiving from rank %d: %w", rank, err)
		}
		var msg boolMsg
		if err := unmarshalInto(data, &msg); err != nil {
			return false, fmt.Errorf("fabric: all-reduce: %w", err)
		}
		result = result && msg.Value
	}

	reply := mustMarshal(boolMsg{Value: result})
	for _, rank := range f.otherRanks() {
		if err := f.Send(rank, reply); err != nil {
			return false, fmt.Errorf("fabric: all-reduce: replying to rank %d: %w", rank, err)
		}
	}
	return result, nil
}

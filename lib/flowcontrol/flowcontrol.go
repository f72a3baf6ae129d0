// Copyright 2026 The SCR Fetch Authors
// SPDX-License-Identifier: Apache-2.0

package flowcontrol

import (
	"fmt"

	"github.com/scr-hpc/scrfetch/lib/codec"
	"github.com/scr-hpc/scrfetch/lib/fabric"
)

// Observer lets a caller watch the sliding window as it admits and
// retires ranks (spec §8 scenario D: "verifiable via probe hooks").
// Both methods are called from rank 0's goroutine only; implementers
// do not need their own locking unless they retain state across
// calls that something else also touches.
type Observer interface {
	// OnStart is called the moment rank 0 sends the start signal
	// admitting rank into the fetch phase.
	OnStart(rank int)
	// OnComplete is called once rank's reply has been received and
	// its slot is about to be recycled.
	OnComplete(rank int)
}

type noopObserver struct{}

func (noopObserver) OnStart(int)    {}
func (noopObserver) OnComplete(int) {}

// RankFetch performs one rank's per-rank fetch (spec §4.5) and reports
// whether it succeeded.
type RankFetch func() (bool, error)

type signalMsg struct {
	Proceed bool `cbor:"proceed"`
}

type replyMsg struct {
	Success bool `cbor:"success"`
}

// clampWidth clamps the configured window width to [1, worldSize-1]
// (spec §4.6: "Parameter w ... clamped to world_size − 1").
func clampWidth(w, worldSize int) int {
	upperBound := worldSize - 1
	if upperBound < 1 {
		return 0
	}
	if w <= 0 || w > upperBound {
		return upperBound
	}
	return w
}

// window tracks one in-flight (start-signal, reply) pair for a single
// non-zero rank.
type window struct {
	rank    int
	sendReq *fabric.SendRequest
	recvReq *fabric.RecvRequest
}

// RunCoordinator drives the flow-controlled fetch phase from rank 0.
// selfFetch runs rank 0's own per-rank fetch serially, before any
// signal is sent to other ranks (spec §4.6: "Rank 0 also fetches its
// own files ... before issuing signals to others"). w is the
// configured window width; it is clamped internally. observer may be
// nil. The returned bool is the all-reduced global success across
// every rank.
func RunCoordinator(f *fabric.Fabric, w int, selfFetch RankFetch, observer Observer) (bool, error) {
	if observer == nil {
		observer = noopObserver{}
	}

	success, err := selfFetch()
	if err != nil {
		return false, fmt.Errorf("flowcontrol: rank 0 self-fetch: %w", err)
	}

	worldSize := f.WorldSize()
	width := clampWidth(w, worldSize)

	var outstanding []window
	next := 1 // next rank to admit

	admit := func() error {
		if next >= worldSize {
			return nil
		}
		rank := next
		next++

		recvReq, err := f.IRecv(rank)
		if err != nil {
			return fmt.Errorf("flowcontrol: posting receive for rank %d: %w", rank, err)
		}
		sendReq, err := f.ISend(rank, mustMarshal(signalMsg{Proceed: success}))
		if err != nil {
			return fmt.Errorf("flowcontrol: posting start signal for rank %d: %w", rank, err)
		}
		observer.OnStart(rank)
		outstanding = append(outstanding, window{rank: rank, sendReq: sendReq, recvReq: recvReq})
		return nil
	}

	for len(outstanding) < width && next < worldSize {
		if err := admit(); err != nil {
			return false, err
		}
	}

	for len(outstanding) > 0 {
		recvs := make([]*fabric.RecvRequest, len(outstanding))
		for i, win := range outstanding {
			recvs[i] = win.recvReq
		}
		chosen, payload, err := fabric.WaitAny(recvs)
		if err != nil {
			return false, fmt.Errorf("flowcontrol: waiting on rank replies: %w", err)
		}
		win := outstanding[chosen]
		outstanding = append(outstanding[:chosen], outstanding[chosen+1:]...)

		if err := win.sendReq.Wait(); err != nil {
			return false, fmt.Errorf("flowcontrol: start signal to rank %d: %w", win.rank, err)
		}

		var reply replyMsg
		if err := unmarshalInto(payload, &reply); err != nil {
			return false, fmt.Errorf("flowcontrol: decoding reply from rank %d: %w", win.rank, err)
		}
		success = success && reply.Success
		observer.OnComplete(win.rank)

		if err := admit(); err != nil {
			return false, err
		}
	}

	return f.AllReduceAnd(success)
}

// RunWorker participates in the flow-controlled fetch phase from a
// non-zero rank: it blocks for rank 0's start signal, runs fetch only
// if the aggregate success so far is still true, replies with its own
// outcome, and then joins the all-reduce (spec §4.6: "Non-zero ranks:
// blocking-receive the start signal; if the signal is still 'success
// so far', attempt the rank's fetch; blocking-send their individual
// success status back").
func RunWorker(f *fabric.Fabric, fetch RankFetch) (bool, error) {
	payload, err := f.Recv(0)
	if err != nil {
		return false, fmt.Errorf("flowcontrol: receiving start signal: %w", err)
	}
	var signal signalMsg
	if err := unmarshalInto(payload, &signal); err != nil {
		return false, fmt.Errorf("flowcontrol: decoding start signal: %w", err)
	}

	success := false
	if signal.Proceed {
		success, err = fetch()
		if err != nil {
			return false, fmt.Errorf("flowcontrol: per-rank fetch: %w", err)
		}
	}

	if err := f.Send(0, mustMarshal(replyMsg{Success: success})); err != nil {
		return false, fmt.Errorf("flowcontrol: replying to rank 0: %w", err)
	}

	return f.AllReduceAnd(success)
}

func mustMarshal(v any) []byte {
	data, err := codec.Marshal(v)
	if err != nil {
		panic("flowcontrol: marshaling internal control message: " + err.Error())
	}
	return data
}

func unmarshalInto(data []byte, v any) error {
	return codec.Unmarshal(data, v)
}

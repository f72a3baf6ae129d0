// Copyright 2026 The SCR Fetch Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time source for testability.
//
// Production code accepts a Clock parameter instead of calling time.Now
// directly. The Attempt Driver uses it to stamp FETCH STARTED/SUCCEEDED/
// FAILED log events with a wall-clock timestamp and to measure elapsed
// transfer duration; tests inject Fake() to get deterministic timestamps
// without sleeping.
package clock

import "time"

// Clock abstracts a wall-clock time read.
type Clock interface {
	// Now returns the current time.
	Now() time.Time
}

// Real returns a Clock backed by the standard time package.
func Real() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

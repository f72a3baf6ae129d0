// Copyright 2026 The SCR Fetch Authors
// SPDX-License-Identifier: Apache-2.0

package fabric

import "github.com/scr-hpc/scrfetch/lib/codec"

// mustMarshal encodes the small, fixed-shape control messages used by
// the collective operations (barrierMsg, boolMsg). These types are
// defined in this package and always encode cleanly, so a marshal
// failure here indicates a programming error, not bad input.
func mustMarshal(v any) []byte {
	data, err := codec.Marshal(v)
	if err != nil {
		panic("fabric: marshaling internal control message: " + err.Error())
	}
	return data
}

func unmarshalInto(data []byte, v any) error {
	return codec.Unmarshal(data, v)
}

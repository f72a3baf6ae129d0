// Copyright 2026 The SCR Fetch Authors
// SPDX-License-Identifier: Apache-2.0

package attrtree

import (
	"fmt"

	"github.com/scr-hpc/scrfetch/lib/codec"
)

// Marshal encodes a Node to CBOR using Core Deterministic Encoding.
// Round-tripping a fetched summary document through Marshal then
// Unmarshal reproduces it bit-for-bit (spec testable property 6),
// modulo the Keys ordering of any node whose children were populated
// by map iteration rather than Each/Set.
func Marshal(n *Node) ([]byte, error) {
	data, err := codec.Marshal(n)
	if err != nil {
		return nil, fmt.Errorf("attrtree: encoding node: %w", err)
	}
	return data, nil
}

// Unmarshal decodes a CBOR-encoded Node.
func Unmarshal(data []byte) (*Node, error) {
	var n Node
	if err := codec.Unmarshal(data, &n); err != nil {
		return nil, fmt.Errorf("attrtree: decoding node: %w", err)
	}
	return &n, nil
}

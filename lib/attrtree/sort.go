// Copyright 2026 The SCR Fetch Authors
// SPDX-License-Identifier: Apache-2.0

package attrtree

import (
	"sort"
	"strconv"
)

// SortedIntKeys returns n's child keys parsed as integers and sorted
// ascending. Keys that do not parse as integers are skipped. Used to
// walk a RANK2FILE/RANK table or a CONTAINER table in a deterministic,
// numerically-meaningful order rather than map iteration order.
func (n *Node) SortedIntKeys() []int {
	keys := make([]int, 0, n.Len())
	n.Each(func(key string, _ *Node) bool {
		if v, err := strconv.Atoi(key); err == nil {
			keys = append(keys, v)
		}
		return true
	})
	sort.Ints(keys)
	return keys
}

// Copyright 2026 The SCR Fetch Authors
// SPDX-License-Identifier: Apache-2.0

package attrtree

import (
	"fmt"
)

// ScalarKind tags the type of a Node's leaf value.
type ScalarKind int

const (
	// KindNone marks a Node with no scalar leaf (an interior node).
	KindNone ScalarKind = iota
	KindInt
	KindUnsignedLong
	KindByteCount
	KindString
	KindCRC32
)

// Scalar is a typed leaf value. Exactly one of Int, Unsigned, or Text
// is meaningful, selected by Kind.
type Scalar struct {
	Kind     ScalarKind `cbor:"kind"`
	Int      int64      `cbor:"int,omitempty"`
	Unsigned uint64     `cbor:"unsigned,omitempty"`
	Text     string     `cbor:"text,omitempty"`
}

// Node is one node of the attribute tree: an optional scalar leaf plus
// an ordered set of uniquely-keyed children.
type Node struct {
	Leaf     *Scalar          `cbor:"leaf,omitempty"`
	Keys     []string         `cbor:"keys,omitempty"`
	Children map[string]*Node `cbor:"children,omitempty"`
}

// New returns an empty interior node ready for children to be set.
func New() *Node {
	return &Node{Children: make(map[string]*Node)}
}

// Delete removes the child at key, if present. No-op if absent.
func (n *Node) Delete(key string) {
	if n.Children == nil {
		return
	}
	if _, ok := n.Children[key]; !ok {
		return
	}
	delete(n.Children, key)
	for i, k := range n.Keys {
		if k == key {
			n.Keys = append(n.Keys[:i], n.Keys[i+1:]...)
			break
		}
	}
}

// Get returns the child at key, or (nil, false) if absent.
func (n *Node) Get(key string) (*Node, bool) {
	if n.Children == nil {
		return nil, false
	}
	child, ok := n.Children[key]
	return child, ok
}

// GetFormatted resolves a printf-style key (e.g. "FILE/%s") against
// the given arguments before looking it up. Used for keys whose suffix
// is data-dependent, such as a per-rank or per-filename child.
func (n *Node) GetFormatted(format string, args ...any) (*Node, bool) {
	return n.Get(fmt.Sprintf(format, args...))
}

// Set inserts or replaces the child at key. If key is new, it is
// appended to the ordered key list; if key already exists, its
// position in the order is preserved and only the child pointer is
// replaced.
func (n *Node) Set(key string, child *Node) {
	if n.Children == nil {
		n.Children = make(map[string]*Node)
	}
	if _, exists := n.Children[key]; !exists {
		n.Keys = append(n.Keys, key)
	}
	n.Children[key] = child
}

// SetLeaf creates (or replaces) the child at key with a leaf-only node
// carrying the given scalar.
func (n *Node) SetLeaf(key string, scalar Scalar) {
	n.Set(key, &Node{Leaf: &scalar})
}

// SetInt is a convenience wrapper for SetLeaf with an integer scalar.
func (n *Node) SetInt(key string, v int64) {
	n.SetLeaf(key, Scalar{Kind: KindInt, Int: v})
}

// SetUnsignedLong is a convenience wrapper for SetLeaf with an
// unsigned-long scalar.
func (n *Node) SetUnsignedLong(key string, v uint64) {
	n.SetLeaf(key, Scalar{Kind: KindUnsignedLong, Unsigned: v})
}

// SetByteCount is a convenience wrapper for SetLeaf with a byte-count
// scalar (e.g. a file or segment SIZE/LENGTH field).
func (n *Node) SetByteCount(key string, v uint64) {
	n.SetLeaf(key, Scalar{Kind: KindByteCount, Unsigned: v})
}

// SetString is a convenience wrapper for SetLeaf with a string scalar.
func (n *Node) SetString(key string, v string) {
	n.SetLeaf(key, Scalar{Kind: KindString, Text: v})
}

// SetCRC32 is a convenience wrapper for SetLeaf with a CRC32 scalar.
func (n *Node) SetCRC32(key string, v uint32) {
	n.SetLeaf(key, Scalar{Kind: KindCRC32, Unsigned: uint64(v)})
}

// scalarAt returns the scalar leaf of the child at key, or an error
// identifying whether the key was absent or present-but-interior.
func (n *Node) scalarAt(key string) (Scalar, error) {
	child, ok := n.Get(key)
	if !ok {
		return Scalar{}, fmt.Errorf("attrtree: key %q not found", key)
	}
	if child.Leaf == nil {
		return Scalar{}, fmt.Errorf("attrtree: key %q has no scalar value", key)
	}
	return *child.Leaf, nil
}

// Int returns the integer scalar at key.
func (n *Node) Int(key string) (int64, error) {
	s, err := n.scalarAt(key)
	if err != nil {
		return 0, err
	}
	if s.Kind != KindInt {
		return 0, fmt.Errorf("attrtree: key %q is not an int (kind %d)", key, s.Kind)
	}
	return s.Int, nil
}

// UnsignedLong returns the unsigned-long scalar at key.
func (n *Node) UnsignedLong(key string) (uint64, error) {
	s, err := n.scalarAt(key)
	if err != nil {
		return 0, err
	}
	if s.Kind != KindUnsignedLong {
		return 0, fmt.Errorf("attrtree: key %q is not an unsigned_long (kind %d)", key, s.Kind)
	}
	return s.Unsigned, nil
}

// ByteCount returns the byte-count scalar at key.
func (n *Node) ByteCount(key string) (uint64, error) {
	s, err := n.scalarAt(key)
	if err != nil {
		return 0, err
	}
	if s.Kind != KindByteCount {
		return 0, fmt.Errorf("attrtree: key %q is not a bytecount (kind %d)", key, s.Kind)
	}
	return s.Unsigned, nil
}

// StringValue returns the string scalar at key.
func (n *Node) StringValue(key string) (string, error) {
	s, err := n.scalarAt(key)
	if err != nil {
		return "", err
	}
	if s.Kind != KindString {
		return "", fmt.Errorf("attrtree: key %q is not a string (kind %d)", key, s.Kind)
	}
	return s.Text, nil
}

// CRC32 returns the CRC32 scalar at key.
func (n *Node) CRC32(key string) (uint32, error) {
	s, err := n.scalarAt(key)
	if err != nil {
		return 0, err
	}
	if s.Kind != KindCRC32 {
		return 0, fmt.Errorf("attrtree: key %q is not a crc32 (kind %d)", key, s.Kind)
	}
	return uint32(s.Unsigned), nil
}

// Each calls fn for every child in insertion order, stopping early if
// fn returns false.
func (n *Node) Each(fn func(key string, child *Node) bool) {
	for _, key := range n.Keys {
		child := n.Children[key]
		if !fn(key, child) {
			return
		}
	}
}

// Len returns the number of direct children.
func (n *Node) Len() int {
	return len(n.Keys)
}

// Clone returns a deep copy of n.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	clone := &Node{}
	if n.Leaf != nil {
		leaf := *n.Leaf
		clone.Leaf = &leaf
	}
	if n.Children != nil {
		clone.Children = make(map[string]*Node, len(n.Children))
		clone.Keys = append([]string(nil), n.Keys...)
		for key, child := range n.Children {
			clone.Children[key] = child.Clone()
		}
	}
	return clone
}

// Merge deep-copies every child of src into dst, overwriting any
// existing child of dst with the same key. src is left untouched
// (merge is non-destructive on the source, per spec §4.1).
func Merge(dst, src *Node) {
	if src == nil {
		return
	}
	src.Each(func(key string, child *Node) bool {
		dst.Set(key, child.Clone())
		return true
	})
}

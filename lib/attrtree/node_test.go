// Copyright 2026 The SCR Fetch Authors
// SPDX-License-Identifier: Apache-2.0

package attrtree

import "testing"

func TestSetGetRoundtrip(t *testing.T) {
	root := New()
	root.SetByteCount("SIZE", 1024)
	root.SetCRC32("CRC", 0xdeadbeef)
	root.SetString("PATH", "/pfs/ckpt.1")

	size, err := root.ByteCount("SIZE")
	if err != nil || size != 1024 {
		t.Fatalf("ByteCount(SIZE) = %v, %v; want 1024, nil", size, err)
	}

	crc, err := root.CRC32("CRC")
	if err != nil || crc != 0xdeadbeef {
		t.Fatalf("CRC32(CRC) = %v, %v; want 0xdeadbeef, nil", crc, err)
	}

	path, err := root.StringValue("PATH")
	if err != nil || path != "/pfs/ckpt.1" {
		t.Fatalf("StringValue(PATH) = %v, %v; want /pfs/ckpt.1, nil", path, err)
	}
}

func TestMissingKeyFailsCleanly(t *testing.T) {
	root := New()
	if _, err := root.Int("NOPE"); err == nil {
		t.Fatal("Int on missing key should fail")
	}
}

func TestWrongKindFailsCleanly(t *testing.T) {
	root := New()
	root.SetString("NAME", "rank_0.dat")
	if _, err := root.Int("NAME"); err == nil {
		t.Fatal("Int on a string-kind leaf should fail")
	}
}

func TestDeletePreservesOrder(t *testing.T) {
	root := New()
	root.SetInt("a", 1)
	root.SetInt("b", 2)
	root.SetInt("c", 3)
	root.Delete("b")

	var order []string
	root.Each(func(key string, _ *Node) bool {
		order = append(order, key)
		return true
	})
	want := []string{"a", "c"}
	if len(order) != len(want) || order[0] != want[0] || order[1] != want[1] {
		t.Fatalf("order after delete = %v, want %v", order, want)
	}
}

func TestSetReplacePreservesPosition(t *testing.T) {
	root := New()
	root.SetInt("a", 1)
	root.SetInt("b", 2)
	root.SetInt("a", 99)

	var order []string
	root.Each(func(key string, _ *Node) bool {
		order = append(order, key)
		return true
	})
	if len(order) != 2 || order[0] != "a" || order[1] != "b" {
		t.Fatalf("order after replace = %v, want [a b]", order)
	}
	v, _ := root.Int("a")
	if v != 99 {
		t.Fatalf("value after replace = %d, want 99", v)
	}
}

func TestMergeIsNonDestructiveOnSource(t *testing.T) {
	src := New()
	src.SetInt("x", 1)

	dst := New()
	Merge(dst, src)
	dst.SetInt("x", 2)

	v, _ := src.Int("x")
	if v != 1 {
		t.Fatalf("source mutated by merge-then-edit-of-destination: x = %d, want 1", v)
	}
}

func TestMergeDeepCopiesChildren(t *testing.T) {
	src := New()
	child := New()
	child.SetString("NAME", "a")
	src.Set("FILE", child)

	dst := New()
	Merge(dst, src)

	dstChild, ok := dst.Get("FILE")
	if !ok {
		t.Fatal("merged child missing")
	}
	dstChild.SetString("NAME", "mutated")

	srcChild, _ := src.Get("FILE")
	name, _ := srcChild.StringValue("NAME")
	if name != "a" {
		t.Fatalf("source child mutated through merged copy: NAME = %q", name)
	}
}

func TestSortedIntKeys(t *testing.T) {
	root := New()
	root.Set("3", New())
	root.Set("1", New())
	root.Set("2", New())

	got := root.SortedIntKeys()
	want := []int{1, 2, 3}
	if len(got) != len(want) {
		t.Fatalf("len(got) = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got[%d] = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestGetFormatted(t *testing.T) {
	root := New()
	root.Set("RANK/3", New())
	child, ok := root.GetFormatted("RANK/%d", 3)
	if !ok || child == nil {
		t.Fatal("GetFormatted should resolve the formatted key")
	}
}

func TestMarshalUnmarshalRoundtrip(t *testing.T) {
	root := New()
	root.SetByteCount("SIZE", 4096)
	fileNode := New()
	fileNode.SetString("PATH", "/pfs/ckpt.1")
	root.Set("FILE", fileNode)

	data, err := Marshal(root)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	decoded, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	size, err := decoded.ByteCount("SIZE")
	if err != nil || size != 4096 {
		t.Fatalf("decoded SIZE = %v, %v; want 4096, nil", size, err)
	}
	decodedFile, ok := decoded.Get("FILE")
	if !ok {
		t.Fatal("decoded tree missing FILE child")
	}
	path, err := decodedFile.StringValue("PATH")
	if err != nil || path != "/pfs/ckpt.1" {
		t.Fatalf("decoded PATH = %v, %v; want /pfs/ckpt.1, nil", path, err)
	}
}

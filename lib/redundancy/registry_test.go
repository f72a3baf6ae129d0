// Copyright 2026 The SCR Fetch Authors
// SPDX-License-Identifier: Apache-2.0

package redundancy

import (
	"reflect"
	"testing"
)

func TestFingerprintDeterministic(t *testing.T) {
	d := Descriptor{CheckpointID: 1, Scheme: "partner", CacheBase: "/cache"}

	a, err := Fingerprint(d)
	if err != nil {
		t.Fatalf("Fingerprint: %v", err)
	}
	b, err := Fingerprint(d)
	if err != nil {
		t.Fatalf("Fingerprint: %v", err)
	}
	if a != b {
		t.Fatalf("Fingerprint is not deterministic: %s != %s", a, b)
	}

	other := d
	other.Scheme = "xor"
	c, err := Fingerprint(other)
	if err != nil {
		t.Fatalf("Fingerprint: %v", err)
	}
	if a == c {
		t.Fatalf("distinct descriptors produced the same fingerprint")
	}
}

func TestRegistryLookup(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Lookup(1); err == nil {
		t.Fatalf("expected error looking up an unregistered checkpoint")
	}

	d := Descriptor{CheckpointID: 1, Scheme: "single"}
	r.Set(1, d)

	got, err := r.Lookup(1)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if !reflect.DeepEqual(got, d) {
		t.Fatalf("Lookup returned %+v, want %+v", got, d)
	}
}

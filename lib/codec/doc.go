// Copyright 2026 The SCR Fetch Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides the fetch core's standard CBOR encoding
// configuration.
//
// Every structured record that crosses a process boundary or hits
// stable storage — attribute tree nodes, summary documents, file map
// records, fabric messages — is CBOR, encoded with Core Deterministic
// Encoding (RFC 8949 §4.2): sorted map keys, smallest integer encoding,
// no indefinite-length items. Same logical data always produces
// identical bytes, which matters for the file map's crash-consistency
// story (§3: a filename must be durably recorded before any byte of it
// is written) and for round-tripping a fetched summary document
// bit-for-bit.
//
// For buffer-oriented operations (files, fabric payloads):
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
//
// For stream-oriented operations (fabric sockets):
//
//	encoder := codec.NewEncoder(conn)
//	decoder := codec.NewDecoder(conn)
package codec

// Copyright 2026 The SCR Fetch Authors
// SPDX-License-Identifier: Apache-2.0

package fabric

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/scr-hpc/scrfetch/lib/codec"
)

// maxFrameSize bounds a single fabric message. Summary documents and
// file lists are small relative to the checkpoint data they describe
// (the data itself never crosses the fabric — only metadata does), so
// 16 MiB is generous headroom.
const maxFrameSize = 16 * 1024 * 1024

// frameConn is a single fabric link: a net.Conn carrying length-prefixed
// CBOR messages, with independent read and write locks so one
// goroutine can be blocked in Recv while another is in Send (needed by
// the non-blocking point-to-point primitives).
type frameConn struct {
	conn net.Conn

	writeMu sync.Mutex
	readMu  sync.Mutex
}

func newFrameConn(conn net.Conn) *frameConn {
	return &frameConn{conn: conn}
}

// send encodes v as CBOR and writes it as a single length-prefixed
// frame.
func (c *frameConn) send(v any) error {
	data, err := codec.Marshal(v)
	if err != nil {
		return fmt.Errorf("fabric: encoding message: %w", err)
	}
	if len(data) > maxFrameSize {
		return fmt.Errorf("fabric: message size %d exceeds maximum %d", len(data), maxFrameSize)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(data)))
	if _, err := c.conn.Write(header[:]); err != nil {
		return fmt.Errorf("fabric: writing frame header: %w", err)
	}
	if _, err := c.conn.Write(data); err != nil {
		return fmt.Errorf("fabric: writing frame body: %w", err)
	}
	return nil
}

// recv reads one length-prefixed frame and decodes it into v.
func (c *frameConn) recv(v any) error {
	c.readMu.Lock()
	defer c.readMu.Unlock()

	var header [4]byte
	if _, err := io.ReadFull(c.conn, header[:]); err != nil {
		return fmt.Errorf("fabric: reading frame header: %w", err)
	}
	length := binary.BigEndian.Uint32(header[:])
	if length > maxFrameSize {
		return fmt.Errorf("fabric: frame size %d exceeds maximum %d", length, maxFrameSize)
	}

	data := make([]byte, length)
	if _, err := io.ReadFull(c.conn, data); err != nil {
		return fmt.Errorf("fabric: reading frame body: %w", err)
	}
	if err := codec.Unmarshal(data, v); err != nil {
		return fmt.Errorf("fabric: decoding message: %w", err)
	}
	return nil
}

func (c *frameConn) Close() error {
	return c.conn.Close()
}

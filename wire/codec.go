/*
Copyright (c) The Notification Proxy Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package wire implements the fixed-endian binary encoding used on the
// pipe between the guest agent and the host emitter: little-endian
// fixed-width integers, length-prefixed strings and byte vectors, a
// 32-bit presence tag for optionals, and a 32-bit variant tag for tagged
// unions. See the Message/ReplyMessage types for the concrete schema.
package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Encoder appends values to an in-memory buffer using the wire format.
type Encoder struct {
	buf bytes.Buffer
}

// NewEncoder returns an empty Encoder.
func NewEncoder() *Encoder {
	return &Encoder{}
}

// Bytes returns the encoded payload so far.
func (e *Encoder) Bytes() []byte {
	return e.buf.Bytes()
}

// WriteU32 appends a little-endian uint32.
func (e *Encoder) WriteU32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	e.buf.Write(b[:])
}

// WriteU64 appends a little-endian uint64.
func (e *Encoder) WriteU64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	e.buf.Write(b[:])
}

// WriteI32 appends a little-endian int32.
func (e *Encoder) WriteI32(v int32) {
	e.WriteU32(uint32(v))
}

// WriteBool appends a single byte, 0 or 1.
func (e *Encoder) WriteBool(v bool) {
	if v {
		e.buf.WriteByte(1)
	} else {
		e.buf.WriteByte(0)
	}
}

// WriteBytes appends a 64-bit length followed by raw bytes.
func (e *Encoder) WriteBytes(v []byte) {
	e.WriteU64(uint64(len(v)))
	e.buf.Write(v)
}

// WriteString appends a 64-bit length followed by the raw UTF-8 bytes.
func (e *Encoder) WriteString(v string) {
	e.WriteBytes([]byte(v))
}

// WriteOptionalString appends the presence tag followed by the string if present.
func (e *Encoder) WriteOptionalString(v *string) {
	if v == nil {
		e.WriteU32(0)
		return
	}
	e.WriteU32(1)
	e.WriteString(*v)
}

// Decoder consumes values from a byte slice in wire format order.
type Decoder struct {
	b   []byte
	pos int
}

// NewDecoder wraps b for sequential decoding.
func NewDecoder(b []byte) *Decoder {
	return &Decoder{b: b}
}

// Remaining reports whether any undecoded bytes are left. The top-level
// decode of every message must reject trailing bytes, per §4.1.
func (d *Decoder) Remaining() int {
	return len(d.b) - d.pos
}

func (d *Decoder) take(n int) ([]byte, error) {
	if d.pos+n > len(d.b) || n < 0 {
		return nil, fmt.Errorf("wire: truncated message, need %d bytes, have %d", n, len(d.b)-d.pos)
	}
	out := d.b[d.pos : d.pos+n]
	d.pos += n
	return out, nil
}

// ReadU32 decodes a little-endian uint32.
func (d *Decoder) ReadU32() (uint32, error) {
	b, err := d.take(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// ReadU64 decodes a little-endian uint64.
func (d *Decoder) ReadU64() (uint64, error) {
	b, err := d.take(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// ReadI32 decodes a little-endian int32.
func (d *Decoder) ReadI32() (int32, error) {
	v, err := d.ReadU32()
	return int32(v), err
}

// ReadBool decodes a single 0/1 byte.
func (d *Decoder) ReadBool() (bool, error) {
	b, err := d.take(1)
	if err != nil {
		return false, err
	}
	switch b[0] {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, fmt.Errorf("wire: invalid bool byte %d", b[0])
	}
}

// ReadBytes decodes a 64-bit length followed by that many raw bytes.
func (d *Decoder) ReadBytes() ([]byte, error) {
	n, err := d.ReadU64()
	if err != nil {
		return nil, err
	}
	// MaxMessageSize bounds the whole frame already; this additionally
	// guards against a length field claiming more than the frame could
	// possibly carry, before we attempt the slice.
	if n > MaxMessageSize {
		return nil, fmt.Errorf("wire: byte vector length %d exceeds max message size", n)
	}
	return d.take(int(n))
}

// ReadString decodes a length-prefixed UTF-8 string.
func (d *Decoder) ReadString() (string, error) {
	b, err := d.ReadBytes()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ReadOptionalString decodes a presence tag followed by a string if present.
func (d *Decoder) ReadOptionalString() (*string, error) {
	tag, err := d.ReadU32()
	if err != nil {
		return nil, err
	}
	switch tag {
	case 0:
		return nil, nil
	case 1:
		s, err := d.ReadString()
		if err != nil {
			return nil, err
		}
		return &s, nil
	default:
		return nil, fmt.Errorf("wire: invalid optional tag %d", tag)
	}
}

// Finish returns an error if any bytes remain undecoded. The encoding
// rejects trailing bytes (§4.1).
func (d *Decoder) Finish() error {
	if d.Remaining() != 0 {
		return fmt.Errorf("wire: %d trailing bytes after decode", d.Remaining())
	}
	return nil
}

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

package wire

import (
	"encoding/binary"
	"fmt"
	"io"
)

// MajorVersion and MinorVersion are the version this implementation
// speaks. Majors must match exactly between peers; minors negotiate down
// to the lower of the two (§4.2).
const (
	MajorVersion uint16 = 1
	MinorVersion uint16 = 0
)

func mergeVersion(major, minor uint16) uint32 {
	return uint32(major)<<16 | uint32(minor)
}

func splitVersion(v uint32) (major, minor uint16) {
	return uint16(v >> 16), uint16(v & 0xffff)
}

// Handshake performs the single round-trip version negotiation required
// before any framed message may be exchanged. Both sides write their
// unframed 4-byte version word first, then read the peer's. Returns the
// effective minor version, min(ownMinor, peerMinor). A major mismatch is
// a fatal error on both sides (§4.2).
func Handshake(rw io.ReadWriter, ownMajor, ownMinor uint16) (uint16, error) {
	var out [4]byte
	binary.LittleEndian.PutUint32(out[:], mergeVersion(ownMajor, ownMinor))
	if _, err := rw.Write(out[:]); err != nil {
		return 0, fmt.Errorf("wire: writing version handshake: %w", err)
	}
	if f, ok := rw.(flusher); ok {
		if err := f.Flush(); err != nil {
			return 0, fmt.Errorf("wire: flushing version handshake: %w", err)
		}
	}

	var in [4]byte
	if _, err := io.ReadFull(rw, in[:]); err != nil {
		return 0, fmt.Errorf("wire: reading peer version handshake: %w", err)
	}
	peerMajor, peerMinor := splitVersion(binary.LittleEndian.Uint32(in[:]))
	if peerMajor != ownMajor {
		return 0, fmt.Errorf("wire: version mismatch: peer major %d, we support major %d", peerMajor, ownMajor)
	}
	effective := ownMinor
	if peerMinor < effective {
		effective = peerMinor
	}
	return effective, nil
}

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

import "fmt"

// Urgency mirrors the three levels a guest application may request.
type Urgency uint8

// Urgency levels, as they appear on the wire (§3).
const (
	UrgencyLow      Urgency = 0
	UrgencyNormal   Urgency = 1
	UrgencyCritical Urgency = 2
)

// notificationTag is the 4-byte discriminant identifying which variant of
// the Notification tagged union follows. Only V1 exists today; future
// variants are added by extending this enum, never by widening V1's
// fields (§9).
type notificationTag uint32

const notificationTagV1 notificationTag = 0

// ImageParameters is the raw pixel bundle as received from the guest.
// Every numeric field here is untrusted until it passes through
// sanitize.ValidateImage (§3).
type ImageParameters struct {
	Width         int32
	Height        int32
	Rowstride     int32
	HasAlpha      bool
	BitsPerSample int32
	Channels      int32
	Data          []byte
}

func (p *ImageParameters) encode(e *Encoder) {
	e.WriteI32(p.Width)
	e.WriteI32(p.Height)
	e.WriteI32(p.Rowstride)
	e.WriteBool(p.HasAlpha)
	e.WriteI32(p.BitsPerSample)
	e.WriteI32(p.Channels)
	e.WriteBytes(p.Data)
}

func decodeImageParameters(d *Decoder) (*ImageParameters, error) {
	p := &ImageParameters{}
	var err error
	if p.Width, err = d.ReadI32(); err != nil {
		return nil, err
	}
	if p.Height, err = d.ReadI32(); err != nil {
		return nil, err
	}
	if p.Rowstride, err = d.ReadI32(); err != nil {
		return nil, err
	}
	if p.HasAlpha, err = d.ReadBool(); err != nil {
		return nil, err
	}
	if p.BitsPerSample, err = d.ReadI32(); err != nil {
		return nil, err
	}
	if p.Channels, err = d.ReadI32(); err != nil {
		return nil, err
	}
	if p.Data, err = d.ReadBytes(); err != nil {
		return nil, err
	}
	return p, nil
}

// Notification is the V1 notification request payload (§3).
type Notification struct {
	SuppressSound bool
	Transient     bool
	Resident      bool
	Urgency       *Urgency
	ReplacesID    uint32
	Summary       string
	Body          string
	Actions       []string
	Category      *string
	ExpireTimeout int32
	Image         *ImageParameters
}

func (n *Notification) encode(e *Encoder) {
	e.WriteBool(n.SuppressSound)
	e.WriteBool(n.Transient)
	e.WriteBool(n.Resident)
	if n.Urgency == nil {
		e.WriteU32(0)
	} else {
		e.WriteU32(1)
		e.buf.WriteByte(byte(*n.Urgency))
	}
	e.WriteU32(n.ReplacesID)
	e.WriteString(n.Summary)
	e.WriteString(n.Body)
	e.WriteU64(uint64(len(n.Actions)))
	for _, a := range n.Actions {
		e.WriteString(a)
	}
	e.WriteOptionalString(n.Category)
	e.WriteI32(n.ExpireTimeout)
	if n.Image == nil {
		e.WriteU32(0)
	} else {
		e.WriteU32(1)
		n.Image.encode(e)
	}
}

func decodeNotification(d *Decoder) (*Notification, error) {
	n := &Notification{}
	var err error
	if n.SuppressSound, err = d.ReadBool(); err != nil {
		return nil, err
	}
	if n.Transient, err = d.ReadBool(); err != nil {
		return nil, err
	}
	if n.Resident, err = d.ReadBool(); err != nil {
		return nil, err
	}
	urgTag, err := d.ReadU32()
	if err != nil {
		return nil, err
	}
	switch urgTag {
	case 0:
		// absent
	case 1:
		b, err := d.take(1)
		if err != nil {
			return nil, err
		}
		u := Urgency(b[0])
		n.Urgency = &u
	default:
		return nil, fmt.Errorf("wire: invalid urgency presence tag %d", urgTag)
	}
	if n.ReplacesID, err = d.ReadU32(); err != nil {
		return nil, err
	}
	if n.Summary, err = d.ReadString(); err != nil {
		return nil, err
	}
	if n.Body, err = d.ReadString(); err != nil {
		return nil, err
	}
	actionCount, err := d.ReadU64()
	if err != nil {
		return nil, err
	}
	if actionCount > MaxMessageSize {
		return nil, fmt.Errorf("wire: implausible action count %d", actionCount)
	}
	n.Actions = make([]string, 0, actionCount)
	for i := uint64(0); i < actionCount; i++ {
		s, err := d.ReadString()
		if err != nil {
			return nil, err
		}
		n.Actions = append(n.Actions, s)
	}
	if n.Category, err = d.ReadOptionalString(); err != nil {
		return nil, err
	}
	if n.ExpireTimeout, err = d.ReadI32(); err != nil {
		return nil, err
	}
	imgTag, err := d.ReadU32()
	if err != nil {
		return nil, err
	}
	switch imgTag {
	case 0:
		// absent
	case 1:
		if n.Image, err = decodeImageParameters(d); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("wire: invalid image presence tag %d", imgTag)
	}
	return n, nil
}

// Message is the guest-to-host envelope: a sequence number plus the
// notification payload (§3, §6).
type Message struct {
	Sequence     uint64
	Notification Notification
}

// MarshalBinary encodes a Message for transmission over the pipe.
func (m *Message) MarshalBinary() ([]byte, error) {
	e := NewEncoder()
	e.WriteU64(m.Sequence)
	e.WriteU32(uint32(notificationTagV1))
	m.Notification.encode(e)
	return e.Bytes(), nil
}

// UnmarshalMessage decodes a Message from a single frame's payload. Any
// trailing bytes after decoding are an error (§4.1).
func UnmarshalMessage(payload []byte) (*Message, error) {
	d := NewDecoder(payload)
	seq, err := d.ReadU64()
	if err != nil {
		return nil, err
	}
	tag, err := d.ReadU32()
	if err != nil {
		return nil, err
	}
	if notificationTag(tag) != notificationTagV1 {
		return nil, fmt.Errorf("wire: unknown notification variant tag %d", tag)
	}
	n, err := decodeNotification(d)
	if err != nil {
		return nil, err
	}
	if err := d.Finish(); err != nil {
		return nil, err
	}
	return &Message{Sequence: seq, Notification: *n}, nil
}

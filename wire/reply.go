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

// ReplyTag identifies which variant of ReplyMessage is on the wire. The
// numeric values are the declaration order from §6 and are part of the
// wire contract: they must never be renumbered.
type ReplyTag uint32

// ReplyMessage variants (§6).
const (
	ReplyTagID ReplyTag = iota
	ReplyTagDBusError
	ReplyTagUnknownError
	ReplyTagDismissed
	ReplyTagActionInvoked
	ReplyTagServerRestart
)

// ReplyMessage is the host-to-guest tagged union. Exactly one of the
// Id/DBusError/UnknownError/Dismissed/ActionInvoked fields is meaningful,
// selected by Tag; ServerRestart carries no fields.
type ReplyMessage struct {
	Tag ReplyTag

	// ReplyTagID
	ID       uint32
	Sequence uint64

	// ReplyTagDBusError
	ErrorName    string
	ErrorMessage *string

	// ReplyTagDismissed
	Reason uint32

	// ReplyTagActionInvoked
	Action string
}

// NewIDReply builds the Id{id, sequence} reply to a successful Notify.
func NewIDReply(id uint32, sequence uint64) *ReplyMessage {
	return &ReplyMessage{Tag: ReplyTagID, ID: id, Sequence: sequence}
}

// NewDBusErrorReply builds the DBusError{name, message, sequence} reply.
func NewDBusErrorReply(name string, message *string, sequence uint64) *ReplyMessage {
	return &ReplyMessage{Tag: ReplyTagDBusError, ErrorName: name, ErrorMessage: message, Sequence: sequence}
}

// NewUnknownErrorReply builds the UnknownError{sequence} reply.
func NewUnknownErrorReply(sequence uint64) *ReplyMessage {
	return &ReplyMessage{Tag: ReplyTagUnknownError, Sequence: sequence}
}

// NewDismissedReply builds the unsolicited Dismissed{id, reason} event.
func NewDismissedReply(id, reason uint32) *ReplyMessage {
	return &ReplyMessage{Tag: ReplyTagDismissed, ID: id, Reason: reason}
}

// NewActionInvokedReply builds the unsolicited ActionInvoked{id, action} event.
func NewActionInvokedReply(id uint32, action string) *ReplyMessage {
	return &ReplyMessage{Tag: ReplyTagActionInvoked, ID: id, Action: action}
}

// NewServerRestartReply builds the unsolicited, fieldless ServerRestart event.
func NewServerRestartReply() *ReplyMessage {
	return &ReplyMessage{Tag: ReplyTagServerRestart}
}

// MarshalBinary encodes a ReplyMessage for transmission over the pipe.
func (r *ReplyMessage) MarshalBinary() ([]byte, error) {
	e := NewEncoder()
	e.WriteU32(uint32(r.Tag))
	switch r.Tag {
	case ReplyTagID:
		e.WriteU32(r.ID)
		e.WriteU64(r.Sequence)
	case ReplyTagDBusError:
		e.WriteString(r.ErrorName)
		e.WriteOptionalString(r.ErrorMessage)
		e.WriteU64(r.Sequence)
	case ReplyTagUnknownError:
		e.WriteU64(r.Sequence)
	case ReplyTagDismissed:
		e.WriteU32(r.ID)
		e.WriteU32(r.Reason)
	case ReplyTagActionInvoked:
		e.WriteU32(r.ID)
		e.WriteString(r.Action)
	case ReplyTagServerRestart:
		// no fields
	default:
		return nil, fmt.Errorf("wire: unknown reply tag %d", r.Tag)
	}
	return e.Bytes(), nil
}

// UnmarshalReplyMessage decodes a ReplyMessage from a single frame's
// payload. An unrecognized tag is a fatal protocol violation (§7).
func UnmarshalReplyMessage(payload []byte) (*ReplyMessage, error) {
	d := NewDecoder(payload)
	tag, err := d.ReadU32()
	if err != nil {
		return nil, err
	}
	r := &ReplyMessage{Tag: ReplyTag(tag)}
	switch r.Tag {
	case ReplyTagID:
		if r.ID, err = d.ReadU32(); err != nil {
			return nil, err
		}
		if r.Sequence, err = d.ReadU64(); err != nil {
			return nil, err
		}
	case ReplyTagDBusError:
		if r.ErrorName, err = d.ReadString(); err != nil {
			return nil, err
		}
		if r.ErrorMessage, err = d.ReadOptionalString(); err != nil {
			return nil, err
		}
		if r.Sequence, err = d.ReadU64(); err != nil {
			return nil, err
		}
	case ReplyTagUnknownError:
		if r.Sequence, err = d.ReadU64(); err != nil {
			return nil, err
		}
	case ReplyTagDismissed:
		if r.ID, err = d.ReadU32(); err != nil {
			return nil, err
		}
		if r.Reason, err = d.ReadU32(); err != nil {
			return nil, err
		}
	case ReplyTagActionInvoked:
		if r.ID, err = d.ReadU32(); err != nil {
			return nil, err
		}
		if r.Action, err = d.ReadString(); err != nil {
			return nil, err
		}
	case ReplyTagServerRestart:
		// no fields
	default:
		return nil, fmt.Errorf("wire: unknown reply tag %d", tag)
	}
	if err := d.Finish(); err != nil {
		return nil, err
	}
	return r, nil
}

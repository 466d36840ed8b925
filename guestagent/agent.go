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

// Package guestagent implements the guest-side half of the proxy
// (§4.3): it answers local org.freedesktop.Notifications calls, forwards
// them to the host emitter across the pipe, and routes inbound replies
// back to whichever call is waiting on them.
package guestagent

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/godbus/dbus/v5"
	log "github.com/sirupsen/logrus"

	"github.com/qubesos/notification-proxy/wire"
)

// advertisedCapabilities is a fixed local list independent of what the
// real host service supports — the guest side intentionally never
// leaks host capabilities (§4.3).
var advertisedCapabilities = []string{"persistence", "actions"}

const (
	serverName        = "Qubes OS Notification Proxy"
	serverVendor      = "Qubes OS"
	serverVersion     = "0.0.1"
	serverSpecVersion = "1.2"
)

type replyKind int

const (
	replySuccess replyKind = iota
	replyDBusError
	replyUnknown
)

type reply struct {
	kind    replyKind
	id      uint32
	errName string
	errMsg  *string
}

type waiter struct {
	done chan reply
}

// Registrar is the subset of dbusnotify.GuestService the Agent drives:
// emitting the two unsolicited signals, and resetting local bus
// registration after a ServerRestart.
type Registrar interface {
	EmitNotificationClosed(id, reason uint32) error
	EmitActionInvoked(id uint32, action string) error
	Reregister() error
}

// Agent is the guest-side engine: one per process, constructed before
// the local D-Bus export exists (since the export needs Agent as its
// GuestHandler) and wired to its Registrar afterward via SetRegistrar.
type Agent struct {
	out *wire.Writer

	seq uint64

	mu      sync.Mutex
	parking map[uint64]*waiter

	reg Registrar
}

// New builds an Agent that writes outbound request frames to out.
func New(out *wire.Writer) *Agent {
	return &Agent{out: out, parking: make(map[uint64]*waiter)}
}

// SetRegistrar wires in the D-Bus registrar once it exists.
func (a *Agent) SetRegistrar(reg Registrar) { a.reg = reg }

// GetCapabilities implements dbusnotify.GuestHandler.
func (a *Agent) GetCapabilities() ([]string, *dbus.Error) {
	return append([]string(nil), advertisedCapabilities...), nil
}

// GetServerInformation implements dbusnotify.GuestHandler.
func (a *Agent) GetServerInformation() (string, string, string, string, *dbus.Error) {
	return serverName, serverVendor, serverVersion, serverSpecVersion, nil
}

// Notify implements dbusnotify.GuestHandler: it parses the hint table,
// normalizes the request into a V1 payload, assigns a sequence, parks a
// waiter for it, writes the framed request, and blocks until the
// matching reply arrives (§4.3).
func (a *Agent) Notify(appName string, replacesID uint32, appIcon, summary, body string, actions []string, hints map[string]dbus.Variant, expireTimeout int32) (uint32, *dbus.Error) {
	n := wire.Notification{
		ReplacesID:    replacesID,
		Summary:       summary,
		Body:          body,
		Actions:       append([]string(nil), actions...),
		ExpireTimeout: expireTimeout,
	}
	if err := applyHints(&n, hints); err != nil {
		return 0, dbus.NewError("org.freedesktop.DBus.Error.InvalidArgs", []interface{}{err.Error()})
	}

	seq := atomic.AddUint64(&a.seq, 1)
	w := &waiter{done: make(chan reply, 1)}
	a.mu.Lock()
	a.parking[seq] = w
	a.mu.Unlock()

	msg := wire.Message{Sequence: seq, Notification: n}
	payload, err := msg.MarshalBinary()
	if err != nil {
		a.mu.Lock()
		delete(a.parking, seq)
		a.mu.Unlock()
		return 0, dbus.MakeFailedError(err)
	}

	if err := a.out.WriteFrame(payload); err != nil {
		// The pipe to the host side is the agent's only reason to
		// exist; losing it is unrecoverable (§5).
		log.Fatalf("guestagent: writing request frame: %v", err)
	}

	r := <-w.done
	switch r.kind {
	case replySuccess:
		return r.id, nil
	case replyDBusError:
		msg := ""
		if r.errMsg != nil {
			msg = *r.errMsg
		}
		return 0, dbus.NewError(r.errName, []interface{}{msg})
	default:
		msg := "notification proxy: host emitter reported an internal error"
		if r.errMsg != nil {
			msg = *r.errMsg
		}
		return 0, dbus.NewError("org.freedesktop.DBus.Error.Failed", []interface{}{msg})
	}
}

// HandleReply dispatches one inbound ReplyMessage per the table in
// §4.3. It is meant to be called from the single pipe-reader task.
func (a *Agent) HandleReply(r *wire.ReplyMessage) error {
	switch r.Tag {
	case wire.ReplyTagID:
		return a.complete(r.Sequence, reply{kind: replySuccess, id: r.ID})
	case wire.ReplyTagDBusError:
		return a.complete(r.Sequence, reply{kind: replyDBusError, errName: r.ErrorName, errMsg: r.ErrorMessage})
	case wire.ReplyTagUnknownError:
		return a.complete(r.Sequence, reply{kind: replyUnknown})
	case wire.ReplyTagDismissed:
		if a.reg != nil {
			if err := a.reg.EmitNotificationClosed(r.ID, r.Reason); err != nil {
				log.Warningf("guestagent: emitting NotificationClosed: %v", err)
			}
		}
		return nil
	case wire.ReplyTagActionInvoked:
		if a.reg != nil {
			if err := a.reg.EmitActionInvoked(r.ID, r.Action); err != nil {
				log.Warningf("guestagent: emitting ActionInvoked: %v", err)
			}
		}
		return nil
	case wire.ReplyTagServerRestart:
		a.handleServerRestart()
		return nil
	default:
		return fmt.Errorf("guestagent: unknown reply tag %d", r.Tag)
	}
}

// complete removes the parking slot for sequence and delivers r to it.
// A reply with no matching slot is a protocol violation: the host side
// is only ever supposed to answer a sequence once (§4.3, §7).
func (a *Agent) complete(sequence uint64, r reply) error {
	a.mu.Lock()
	w, ok := a.parking[sequence]
	if ok {
		delete(a.parking, sequence)
	}
	a.mu.Unlock()
	if !ok {
		return fmt.Errorf("guestagent: reply for unknown sequence %d", sequence)
	}
	w.done <- r
	return nil
}

// handleServerRestart fails every outstanding waiter with a synthetic
// error and resets the local bus registration in place (§4.3, §7).
func (a *Agent) handleServerRestart() {
	a.mu.Lock()
	outstanding := a.parking
	a.parking = make(map[uint64]*waiter)
	a.mu.Unlock()

	for seq, w := range outstanding {
		log.Debugf("guestagent: failing sequence %d for server restart", seq)
		w.done <- reply{kind: replyUnknown}
	}

	if a.reg == nil {
		return
	}
	if err := a.reg.Reregister(); err != nil {
		log.Errorf("guestagent: re-registering local bus name after restart: %v", err)
	}
}

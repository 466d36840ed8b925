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

// Package idmap implements the bidirectional, host-side-only mapping
// between real notification-daemon IDs (HostID) and the IDs a guest is
// shown (GuestId). See spec §4.5 and §8: the two maps are always kept as
// exact inverses, and neither map silently overwrites a live entry.
package idmap

import (
	"errors"
	"fmt"
	"sync"
)

// HostID is a notification ID assigned by the real notification daemon.
// GuestID is the corresponding ID a guest sees. Both are non-zero; zero
// is reserved to mean "new notification" and is never a valid value of
// either type. The two are intentionally non-interchangeable newtypes —
// mixing them has caused bugs in practice (§9).
type HostID uint32

// GuestID is documented on HostID.
type GuestID uint32

// ErrZeroID is returned when constructing a HostID/GuestID from 0.
var ErrZeroID = errors.New("idmap: zero is not a valid notification ID")

// NewHostID validates that v is non-zero.
func NewHostID(v uint32) (HostID, error) {
	if v == 0 {
		return 0, ErrZeroID
	}
	return HostID(v), nil
}

// NewGuestID validates that v is non-zero.
func NewGuestID(v uint32) (GuestID, error) {
	if v == 0 {
		return 0, ErrZeroID
	}
	return GuestID(v), nil
}

// ErrHostIDReused is the protocol violation raised when the real
// notification daemon hands back a HostID that is still live in the
// mapping without first closing the old notification (§4.5).
var ErrHostIDReused = errors.New("idmap: notification daemon reused a host ID without closing it first")

// Maps is the host-side bidirectional ID table. All methods are safe for
// concurrent use; each operation takes an exclusive lock for its
// duration and never holds it across a suspension point (§5).
type Maps struct {
	mu          sync.Mutex
	guestToHost map[GuestID]HostID
	hostToGuest map[HostID]GuestID
	lastID      GuestID
}

// New returns an empty Maps ready to allocate IDs starting at 1.
func New() *Maps {
	return &Maps{
		guestToHost: make(map[GuestID]HostID),
		hostToGuest: make(map[HostID]GuestID),
		lastID:      0,
	}
}

func next(id GuestID) GuestID {
	if id == GuestID(^uint32(0)) {
		return 1
	}
	return id + 1
}

// Allocate returns the GuestID a guest should see for a notification the
// real daemon just assigned hostID.
//
// If guestHint is non-zero (the caller supplied a non-zero replaces_id
// that resolved, via LookupGuest, to this same hostID), that hint is
// reused and returned directly. Otherwise lastID is advanced with
// wraparound (skipping zero) until a free slot is found.
//
// A collision on the host-to-guest direction is reported as
// ErrHostIDReused: the real service handed out a HostID that is still
// mapped to a different (or the same) GuestID, meaning it was reused
// without a prior NotificationClosed (§4.5, §8).
func (m *Maps) Allocate(hostID HostID, guestHint GuestID) (GuestID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.hostToGuest[hostID]; ok && existing != guestHint {
		return 0, fmt.Errorf("%w: host id %d already mapped to guest id %d", ErrHostIDReused, hostID, existing)
	}

	if guestHint != 0 {
		if oldHost, ok := m.guestToHost[guestHint]; ok && oldHost != hostID {
			delete(m.hostToGuest, oldHost)
		}
		m.guestToHost[guestHint] = hostID
		m.hostToGuest[hostID] = guestHint
		return guestHint, nil
	}

	candidate := next(m.lastID)
	for {
		if _, taken := m.guestToHost[candidate]; !taken {
			break
		}
		candidate = next(candidate)
	}
	m.lastID = candidate
	m.guestToHost[candidate] = hostID
	m.hostToGuest[hostID] = candidate
	return candidate, nil
}

// LookupGuest resolves a GuestID to the HostID it currently maps to, used
// to translate an incoming replaces_id. ok is false when the guest is
// referring to a notification it does not own (§4.4 step 2).
func (m *Maps) LookupGuest(guest GuestID) (host HostID, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	host, ok = m.guestToHost[guest]
	return host, ok
}

// LookupHost resolves a HostID to its GuestID without removing the
// mapping, used to translate an inbound ActionInvoked.id. ok is false
// when the event belongs to another guest proxy sharing the bus (§4.7).
func (m *Maps) LookupHost(host HostID) (guest GuestID, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	guest, ok = m.hostToGuest[host]
	return guest, ok
}

// RemoveHost atomically removes both directions of the mapping for host,
// returning the GuestID that was mapped to it. ok is false if host was
// not mapped. Used when processing NotificationClosed (§4.5, §4.7).
func (m *Maps) RemoveHost(host HostID) (guest GuestID, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	guest, ok = m.hostToGuest[host]
	if !ok {
		return 0, false
	}
	delete(m.hostToGuest, host)
	delete(m.guestToHost, guest)
	return guest, true
}

// Clear wipes both maps. Called when the real notification daemon's bus
// ownership changes, i.e. it restarted (§4.5, §4.7). lastID is
// intentionally left as-is: there is no correctness requirement to reset
// the allocation cursor, and doing so would make newly issued GuestIDs
// more likely to collide with ones a slow guest client still remembers.
func (m *Maps) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.guestToHost = make(map[GuestID]HostID)
	m.hostToGuest = make(map[HostID]GuestID)
}

// Len reports the number of live mappings, for metrics.
func (m *Maps) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.guestToHost)
}

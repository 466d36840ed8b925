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

package idmap

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAllocateFreshIDsAreSequentialAndUnique(t *testing.T) {
	m := New()
	seen := map[GuestID]bool{}
	for i := 1; i <= 10; i++ {
		g, err := m.Allocate(HostID(i), 0)
		require.NoError(t, err)
		require.False(t, seen[g], "guest id %d reused while live", g)
		seen[g] = true
		require.Equal(t, GuestID(i), g)
	}
}

func TestAllocateWithHintReusesReplacesID(t *testing.T) {
	m := New()
	g1, err := m.Allocate(HostID(100), 0)
	require.NoError(t, err)

	host, ok := m.LookupGuest(g1)
	require.True(t, ok)
	require.Equal(t, HostID(100), host)

	// "replaces" notification 100 gets a new host id but keeps the guest id
	g2, err := m.Allocate(HostID(200), g1)
	require.NoError(t, err)
	require.Equal(t, g1, g2)

	host, ok = m.LookupGuest(g1)
	require.True(t, ok)
	require.Equal(t, HostID(200), host)
}

func TestAllocateDetectsHostIDReuseWithoutClose(t *testing.T) {
	m := New()
	_, err := m.Allocate(HostID(1), 0)
	require.NoError(t, err)

	_, err = m.Allocate(HostID(1), 0)
	require.ErrorIs(t, err, ErrHostIDReused)
}

func TestInversesHoldAfterEveryOperation(t *testing.T) {
	m := New()
	for i := 1; i <= 50; i++ {
		g, err := m.Allocate(HostID(i), 0)
		require.NoError(t, err)
		assertInverse(t, m, g, HostID(i))
	}
	// Remove every other one and check invariants still hold.
	for i := 1; i <= 50; i += 2 {
		guest, ok := m.RemoveHost(HostID(i))
		require.True(t, ok)
		_, ok = m.LookupGuest(guest)
		require.False(t, ok)
		_, ok = m.LookupHost(HostID(i))
		require.False(t, ok)
	}
}

func assertInverse(t *testing.T, m *Maps, g GuestID, h HostID) {
	t.Helper()
	host, ok := m.LookupGuest(g)
	require.True(t, ok)
	require.Equal(t, h, host)
	guest, ok := m.LookupHost(h)
	require.True(t, ok)
	require.Equal(t, g, guest)
}

func TestRemoveHostUnknownIsNoop(t *testing.T) {
	m := New()
	_, ok := m.RemoveHost(HostID(999))
	require.False(t, ok)
}

func TestLookupHostUnknownIsAbsent(t *testing.T) {
	m := New()
	_, ok := m.LookupHost(HostID(1))
	require.False(t, ok)
}

func TestClearWipesBothDirections(t *testing.T) {
	m := New()
	g, err := m.Allocate(HostID(5), 0)
	require.NoError(t, err)

	m.Clear()

	_, ok := m.LookupGuest(g)
	require.False(t, ok)
	_, ok = m.LookupHost(HostID(5))
	require.False(t, ok)
	require.Equal(t, 0, m.Len())
}

func TestAllocateWrapsAroundSkippingZero(t *testing.T) {
	m := New()
	m.lastID = GuestID(math.MaxUint32 - 1)

	g1, err := m.Allocate(HostID(1), 0)
	require.NoError(t, err)
	require.Equal(t, GuestID(math.MaxUint32), g1)

	g2, err := m.Allocate(HostID(2), 0)
	require.NoError(t, err)
	require.Equal(t, GuestID(1), g2, "must wrap to 1, skipping the reserved value 0")
}

func TestAllocateSkipsLiveGuestIDsOnWraparound(t *testing.T) {
	m := New()
	m.lastID = GuestID(math.MaxUint32 - 1)
	_, err := m.Allocate(HostID(1), 0) // takes MaxUint32
	require.NoError(t, err)

	// Pre-occupy guest id 1 via a hinted allocation, so the next fresh
	// allocation must skip over it.
	_, err = m.Allocate(HostID(2), GuestID(1))
	require.NoError(t, err)

	g, err := m.Allocate(HostID(3), 0)
	require.NoError(t, err)
	require.Equal(t, GuestID(2), g)
}

func TestNewHostAndGuestIDRejectZero(t *testing.T) {
	_, err := NewHostID(0)
	require.ErrorIs(t, err, ErrZeroID)
	_, err = NewGuestID(0)
	require.ErrorIs(t, err, ErrZeroID)
}

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

package dbusnotify

import (
	"testing"

	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/require"
)

func TestParseClosedSignal(t *testing.T) {
	sig := &dbus.Signal{Name: signalNotificationClosed, Body: []interface{}{uint32(7), uint32(2)}}
	got, ok := ParseClosedSignal(sig)
	require.True(t, ok)
	require.Equal(t, ClosedSignal{ID: 7, Reason: 2}, got)
}

func TestParseClosedSignalRejectsWrongName(t *testing.T) {
	sig := &dbus.Signal{Name: signalActionInvoked, Body: []interface{}{uint32(7), uint32(2)}}
	_, ok := ParseClosedSignal(sig)
	require.False(t, ok)
}

func TestParseClosedSignalRejectsWrongShape(t *testing.T) {
	sig := &dbus.Signal{Name: signalNotificationClosed, Body: []interface{}{"not-a-uint32", uint32(2)}}
	_, ok := ParseClosedSignal(sig)
	require.False(t, ok)
}

func TestParseInvokedSignal(t *testing.T) {
	sig := &dbus.Signal{Name: signalActionInvoked, Body: []interface{}{uint32(3), "default"}}
	got, ok := ParseInvokedSignal(sig)
	require.True(t, ok)
	require.Equal(t, InvokedSignal{ID: 3, Action: "default"}, got)
}

func TestIsNameOwnerLost(t *testing.T) {
	lost := &dbus.Signal{
		Name: "org.freedesktop.DBus.NameOwnerChanged",
		Body: []interface{}{busName, ":1.42", ""},
	}
	require.True(t, IsNameOwnerLost(lost))

	gained := &dbus.Signal{
		Name: "org.freedesktop.DBus.NameOwnerChanged",
		Body: []interface{}{busName, "", ":1.42"},
	}
	require.False(t, IsNameOwnerLost(gained))

	other := &dbus.Signal{
		Name: "org.freedesktop.DBus.NameOwnerChanged",
		Body: []interface{}{"org.some.Other", ":1.1", ""},
	}
	require.False(t, IsNameOwnerLost(other))
}

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

// Package dbusnotify holds the godbus/dbus/v5 binding glue for both
// sides of the proxy: a HostProxy that calls out to the real
// org.freedesktop.Notifications daemon, and a GuestService that exports
// the same interface to local, untrusted callers. Neither type carries
// protocol or sanitization logic; that lives in hostemitter and
// guestagent respectively.
package dbusnotify

import (
	"fmt"

	"github.com/godbus/dbus/v5"
)

const (
	busName    = "org.freedesktop.Notifications"
	objectPath = "/org/freedesktop/Notifications"

	methodNotify            = busName + ".Notify"
	methodCloseNotification = busName + ".CloseNotification"
	methodGetCapabilities   = busName + ".GetCapabilities"
	methodGetServerInfo     = busName + ".GetServerInformation"

	signalNotificationClosed = busName + ".NotificationClosed"
	signalActionInvoked      = busName + ".ActionInvoked"
)

// ServerInformation mirrors the four strings returned by
// GetServerInformation.
type ServerInformation struct {
	Name        string
	Vendor      string
	Version     string
	SpecVersion string
}

// NotifyArgs is the full argument list accepted by Notify, in wire
// order. Hints have already been through the sanitization and
// capability-gating pipeline by the time hostemitter builds one of
// these.
type NotifyArgs struct {
	AppName       string
	ReplacesID    uint32
	AppIcon       string
	Summary       string
	Body          string
	Actions       []string
	Hints         map[string]dbus.Variant
	ExpireTimeout int32
}

// ClosedSignal is a NotificationClosed event from the real daemon.
type ClosedSignal struct {
	ID     uint32
	Reason uint32
}

// InvokedSignal is an ActionInvoked event from the real daemon.
type InvokedSignal struct {
	ID     uint32
	Action string
}

// HostProxy talks to the real notification daemon over the session (or
// system) bus. It is a thin wrapper: every method is a single D-Bus
// call, and Watch sets up the signal subscriptions hostemitter's
// fan-out tasks consume.
type HostProxy struct {
	conn *dbus.Conn
	obj  dbus.BusObject
}

// NewHostProxy wraps an already-connected bus connection.
func NewHostProxy(conn *dbus.Conn) *HostProxy {
	return &HostProxy{conn: conn, obj: conn.Object(busName, dbus.ObjectPath(objectPath))}
}

// Notify forwards a sanitized request to the real daemon and returns
// the notification ID it assigns.
func (h *HostProxy) Notify(args NotifyArgs) (uint32, error) {
	call := h.obj.Call(methodNotify, 0,
		args.AppName,
		args.ReplacesID,
		args.AppIcon,
		args.Summary,
		args.Body,
		args.Actions,
		args.Hints,
		args.ExpireTimeout,
	)
	if call.Err != nil {
		return 0, call.Err
	}
	var id uint32
	if err := call.Store(&id); err != nil {
		return 0, fmt.Errorf("dbusnotify: decoding Notify reply: %w", err)
	}
	return id, nil
}

// CloseNotification asks the real daemon to dismiss id.
func (h *HostProxy) CloseNotification(id uint32) error {
	call := h.obj.Call(methodCloseNotification, 0, id)
	return call.Err
}

// GetCapabilities fetches and parses the real daemon's capability list.
func (h *HostProxy) GetCapabilities() (Capabilities, error) {
	call := h.obj.Call(methodGetCapabilities, 0)
	if call.Err != nil {
		return 0, call.Err
	}
	var names []string
	if err := call.Store(&names); err != nil {
		return 0, fmt.Errorf("dbusnotify: decoding GetCapabilities reply: %w", err)
	}
	return ParseCapabilities(names), nil
}

// GetServerInformation fetches the real daemon's identity.
func (h *HostProxy) GetServerInformation() (ServerInformation, error) {
	call := h.obj.Call(methodGetServerInfo, 0)
	if call.Err != nil {
		return ServerInformation{}, call.Err
	}
	var info ServerInformation
	if err := call.Store(&info.Name, &info.Vendor, &info.Version, &info.SpecVersion); err != nil {
		return ServerInformation{}, fmt.Errorf("dbusnotify: decoding GetServerInformation reply: %w", err)
	}
	return info, nil
}

// Watch subscribes to NotificationClosed, ActionInvoked, and a
// NameOwnerChanged watch for busName, and returns the raw godbus signal
// channel. The caller (hostemitter) is responsible for running one
// dispatch loop per signal kind and for calling Unwatch on shutdown.
func (h *HostProxy) Watch() (chan *dbus.Signal, error) {
	if err := h.conn.AddMatchSignal(
		dbus.WithMatchObjectPath(dbus.ObjectPath(objectPath)),
		dbus.WithMatchInterface(busName),
	); err != nil {
		return nil, fmt.Errorf("dbusnotify: subscribing to notification signals: %w", err)
	}
	if err := h.conn.AddMatchSignal(
		dbus.WithMatchInterface("org.freedesktop.DBus"),
		dbus.WithMatchMember("NameOwnerChanged"),
		dbus.WithMatchArg0(busName),
	); err != nil {
		return nil, fmt.Errorf("dbusnotify: subscribing to NameOwnerChanged: %w", err)
	}
	ch := make(chan *dbus.Signal, 32)
	h.conn.Signal(ch)
	return ch, nil
}

// Unwatch reverses Watch and closes ch.
func (h *HostProxy) Unwatch(ch chan *dbus.Signal) {
	h.conn.RemoveSignal(ch)
	close(ch)
}

// ParseClosedSignal decodes a NotificationClosed signal body. ok is
// false if sig is not a NotificationClosed signal or has an unexpected
// body shape.
func ParseClosedSignal(sig *dbus.Signal) (ClosedSignal, bool) {
	if sig.Name != signalNotificationClosed || len(sig.Body) != 2 {
		return ClosedSignal{}, false
	}
	id, ok1 := sig.Body[0].(uint32)
	reason, ok2 := sig.Body[1].(uint32)
	if !ok1 || !ok2 {
		return ClosedSignal{}, false
	}
	return ClosedSignal{ID: id, Reason: reason}, true
}

// ParseInvokedSignal decodes an ActionInvoked signal body.
func ParseInvokedSignal(sig *dbus.Signal) (InvokedSignal, bool) {
	if sig.Name != signalActionInvoked || len(sig.Body) != 2 {
		return InvokedSignal{}, false
	}
	id, ok1 := sig.Body[0].(uint32)
	action, ok2 := sig.Body[1].(string)
	if !ok1 || !ok2 {
		return InvokedSignal{}, false
	}
	return InvokedSignal{ID: id, Action: action}, true
}

// IsNameOwnerLost reports whether sig is a NameOwnerChanged signal
// announcing that busName lost its owner (the real daemon crashed or
// was restarted by the bus).
func IsNameOwnerLost(sig *dbus.Signal) bool {
	if sig.Name != "org.freedesktop.DBus.NameOwnerChanged" || len(sig.Body) != 3 {
		return false
	}
	name, ok := sig.Body[0].(string)
	if !ok || name != busName {
		return false
	}
	newOwner, ok := sig.Body[2].(string)
	return ok && newOwner == ""
}

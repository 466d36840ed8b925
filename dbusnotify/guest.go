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
	"github.com/godbus/dbus/v5"
)

// GuestHandler is implemented by guestagent and holds the actual
// business logic behind the three org.freedesktop.Notifications calls
// the guest server exposes (§4.3 — CloseNotification is deliberately
// not part of this surface, matching the real host service never being
// asked to close on a guest's behalf over the pipe protocol).
// GuestService is pure binding glue around it: it never touches the
// wire protocol or the ID maps itself.
type GuestHandler interface {
	Notify(appName string, replacesID uint32, appIcon, summary, body string, actions []string, hints map[string]dbus.Variant, expireTimeout int32) (uint32, *dbus.Error)
	GetCapabilities() ([]string, *dbus.Error)
	GetServerInformation() (name, vendor, version, specVersion string, _ *dbus.Error)
}

// GuestService exports GuestHandler on the session bus as
// org.freedesktop.Notifications, so that unmodified local applications
// can talk to it with no configuration beyond the usual bus address.
type GuestService struct {
	conn    *dbus.Conn
	handler GuestHandler
}

// NewGuestService exports handler at objectPath/busName on conn and
// requests the well-known bus name. The caller must already hold
// exclusive use of conn; a session bus dedicated to this agent is
// assumed, matching a guest VM's isolated D-Bus session.
func NewGuestService(conn *dbus.Conn, handler GuestHandler) (*GuestService, error) {
	s := &GuestService{conn: conn, handler: handler}
	if err := conn.Export(guestExportedMethods{s}, dbus.ObjectPath(objectPath), busName); err != nil {
		return nil, err
	}
	reply, err := conn.RequestName(busName, dbus.NameFlagDoNotQueue)
	if err != nil {
		return nil, err
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		return nil, dbus.ErrClosed
	}
	return s, nil
}

// guestExportedMethods is the receiver godbus reflects over: its method
// set must match the Notifications interface signature exactly,
// including the trailing *dbus.Error every exported D-Bus method needs.
type guestExportedMethods struct{ s *GuestService }

func (g guestExportedMethods) Notify(appName string, replacesID uint32, appIcon, summary, body string, actions []string, hints map[string]dbus.Variant, expireTimeout int32) (uint32, *dbus.Error) {
	return g.s.handler.Notify(appName, replacesID, appIcon, summary, body, actions, hints, expireTimeout)
}

func (g guestExportedMethods) GetCapabilities() ([]string, *dbus.Error) {
	return g.s.handler.GetCapabilities()
}

func (g guestExportedMethods) GetServerInformation() (string, string, string, string, *dbus.Error) {
	return g.s.handler.GetServerInformation()
}

// EmitNotificationClosed emits the unsolicited signal a local app
// expects after a notification it owns goes away.
func (s *GuestService) EmitNotificationClosed(id, reason uint32) error {
	return s.conn.Emit(dbus.ObjectPath(objectPath), signalNotificationClosed, id, reason)
}

// EmitActionInvoked emits the unsolicited signal for a clicked action
// button.
func (s *GuestService) EmitActionInvoked(id uint32, action string) error {
	return s.conn.Emit(dbus.ObjectPath(objectPath), signalActionInvoked, id, action)
}

// Reregister releases and re-requests the well-known bus name. Called
// after a ServerRestart event so the local object comes back in the same
// state a freshly started agent would have (§4.3).
func (s *GuestService) Reregister() error {
	if _, err := s.conn.ReleaseName(busName); err != nil {
		return err
	}
	reply, err := s.conn.RequestName(busName, dbus.NameFlagDoNotQueue)
	if err != nil {
		return err
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		return dbus.ErrClosed
	}
	return nil
}

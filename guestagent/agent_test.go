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

package guestagent

import (
	"bytes"
	"sync"
	"testing"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/require"

	"github.com/qubesos/notification-proxy/wire"
)

// syncBuffer lets the test goroutine poll frames out of the same buffer
// the Agent's writer goroutine is writing into.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Write(p)
}

func (s *syncBuffer) takeFrame() ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.buf.Len() < 4 {
		return nil, false
	}
	b := s.buf.Bytes()
	n := int(b[0]) | int(b[1])<<8 | int(b[2])<<16 | int(b[3])<<24
	if s.buf.Len() < 4+n {
		return nil, false
	}
	full := append([]byte(nil), s.buf.Bytes()[:4+n]...)
	rest := append([]byte(nil), s.buf.Bytes()[4+n:]...)
	s.buf.Reset()
	s.buf.Write(rest)
	return full[4:], true
}

// waitForFrame polls s until one full frame's payload is available.
func waitForFrame(t *testing.T, s *syncBuffer) []byte {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if payload, ok := s.takeFrame(); ok {
			return payload
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("timed out waiting for a frame")
	return nil
}

type fakeRegistrar struct {
	mu              sync.Mutex
	closed          []uint32
	invoked         []uint32
	reregisterCalls int
}

func (f *fakeRegistrar) EmitNotificationClosed(id, reason uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = append(f.closed, id, reason)
	return nil
}

func (f *fakeRegistrar) EmitActionInvoked(id uint32, action string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invoked = append(f.invoked, id)
	return nil
}

func (f *fakeRegistrar) Reregister() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reregisterCalls++
	return nil
}

func TestGetCapabilitiesIsFixedAndLocal(t *testing.T) {
	a := New(wire.NewWriter(&syncBuffer{}))
	caps, dErr := a.GetCapabilities()
	require.Nil(t, dErr)
	require.Equal(t, []string{"persistence", "actions"}, caps)
}

func TestGetServerInformation(t *testing.T) {
	a := New(wire.NewWriter(&syncBuffer{}))
	name, vendor, version, spec, dErr := a.GetServerInformation()
	require.Nil(t, dErr)
	require.Equal(t, "Qubes OS Notification Proxy", name)
	require.Equal(t, "Qubes OS", vendor)
	require.Equal(t, "0.0.1", version)
	require.Equal(t, "1.2", spec)
}

func TestNotifyWritesFrameAndBlocksForReply(t *testing.T) {
	buf := &syncBuffer{}
	a := New(wire.NewWriter(buf))

	type outcome struct {
		id   uint32
		dErr *dbus.Error
	}
	resultCh := make(chan outcome, 1)
	go func() {
		id, dErr := a.Notify("guest-app", 0, "guest-icon", "hi", "there", nil, nil, -1)
		resultCh <- outcome{id, dErr}
	}()

	payload := waitForFrame(t, buf)
	msg, err := wire.UnmarshalMessage(payload)
	require.NoError(t, err)
	require.Equal(t, "hi", msg.Notification.Summary)
	require.Equal(t, "there", msg.Notification.Body)

	require.NoError(t, a.HandleReply(wire.NewIDReply(5, msg.Sequence)))
	got := <-resultCh
	require.Nil(t, got.dErr)
	require.Equal(t, uint32(5), got.id)
}

func TestNotifyDeliversDBusError(t *testing.T) {
	buf := &syncBuffer{}
	a := New(wire.NewWriter(buf))

	errCh := make(chan error, 1)
	go func() {
		_, dErr := a.Notify("guest-app", 0, "", "s", "b", nil, nil, -1)
		if dErr == nil {
			errCh <- nil
			return
		}
		errCh <- dErr
	}()

	payload := waitForFrame(t, buf)
	msg, err := wire.UnmarshalMessage(payload)
	require.NoError(t, err)

	m := "bad stuff"
	require.NoError(t, a.HandleReply(wire.NewDBusErrorReply("org.freedesktop.DBus.Error.Failed", &m, msg.Sequence)))
	got := <-errCh
	require.Error(t, got)
}

func TestHandleReplyDismissedEmitsSignal(t *testing.T) {
	a := New(wire.NewWriter(&syncBuffer{}))
	reg := &fakeRegistrar{}
	a.SetRegistrar(reg)

	require.NoError(t, a.HandleReply(wire.NewDismissedReply(3, 2)))
	require.Equal(t, []uint32{3, 2}, reg.closed)
}

func TestHandleReplyActionInvokedEmitsSignal(t *testing.T) {
	a := New(wire.NewWriter(&syncBuffer{}))
	reg := &fakeRegistrar{}
	a.SetRegistrar(reg)

	require.NoError(t, a.HandleReply(wire.NewActionInvokedReply(3, "default")))
	require.Equal(t, []uint32{3}, reg.invoked)
}

func TestHandleReplyForUnknownSequenceIsProtocolViolation(t *testing.T) {
	a := New(wire.NewWriter(&syncBuffer{}))
	err := a.HandleReply(wire.NewIDReply(1, 999))
	require.Error(t, err)
}

func TestServerRestartFailsOutstandingAndReregisters(t *testing.T) {
	buf := &syncBuffer{}
	a := New(wire.NewWriter(buf))
	reg := &fakeRegistrar{}
	a.SetRegistrar(reg)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		i := i
		go func() {
			defer wg.Done()
			_, dErr := a.Notify("g", 0, "", "s", "b", nil, nil, -1)
			if dErr != nil {
				errs[i] = dErr
			}
		}()
	}

	// Drain both outbound frames before triggering the restart so both
	// sequences are parked.
	waitForFrame(t, buf)
	waitForFrame(t, buf)

	require.NoError(t, a.HandleReply(wire.NewServerRestartReply()))
	wg.Wait()

	for _, e := range errs {
		require.Error(t, e)
	}
	require.Equal(t, 1, reg.reregisterCalls)
}

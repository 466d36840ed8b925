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
	"testing"

	"github.com/stretchr/testify/require"
)

// loopback implements io.ReadWriter over two buffered channels, so
// Handshake's write-then-read ordering can be exercised without a real
// pipe: Write does not block, and Read waits until the peer has written.
type loopback struct {
	out chan<- []byte
	in  <-chan []byte
	buf []byte
}

func (l *loopback) Write(p []byte) (int, error) {
	l.out <- append([]byte(nil), p...)
	return len(p), nil
}

func (l *loopback) Read(p []byte) (int, error) {
	if len(l.buf) == 0 {
		l.buf = <-l.in
	}
	n := copy(p, l.buf)
	l.buf = l.buf[n:]
	return n, nil
}

func pairedLoopbacks() (*loopback, *loopback) {
	a := make(chan []byte, 1)
	b := make(chan []byte, 1)
	return &loopback{out: a, in: b}, &loopback{out: b, in: a}
}

func TestHandshakeNegotiatesLowerMinor(t *testing.T) {
	guest, host := pairedLoopbacks()

	type result struct {
		minor uint16
		err   error
	}
	guestDone := make(chan result, 1)
	go func() {
		m, err := Handshake(guest, 1, 5)
		guestDone <- result{m, err}
	}()

	hostMinor, err := Handshake(host, 1, 2)
	require.NoError(t, err)
	require.Equal(t, uint16(2), hostMinor)

	r := <-guestDone
	require.NoError(t, r.err)
	require.Equal(t, uint16(2), r.minor)
}

func TestHandshakeRejectsMajorMismatch(t *testing.T) {
	guest, host := pairedLoopbacks()

	errCh := make(chan error, 1)
	go func() {
		_, err := Handshake(guest, 1, 0)
		errCh <- err
	}()

	_, err := Handshake(host, 2, 0)
	require.Error(t, err)
	require.Error(t, <-errCh)
}

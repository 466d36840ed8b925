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
	"fmt"
	"io"

	"github.com/qubesos/notification-proxy/wire"
)

// ReadLoop is the single reader task for the host-to-guest direction
// (§4.1, §5): it never runs concurrently with itself, so HandleReply can
// freely mutate the parking table without an extra lock around the
// dispatch step. It returns nil on a clean EOF and a non-nil error for
// any other read failure, which callers must treat as fatal (§5: "panic
// on I/O error, the supervisor restarts me").
func (a *Agent) ReadLoop(r io.Reader) error {
	for {
		payload, err := wire.ReadFrame(r)
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		reply, err := wire.UnmarshalReplyMessage(payload)
		if err != nil {
			return fmt.Errorf("guestagent: malformed reply frame: %w", err)
		}
		if err := a.HandleReply(reply); err != nil {
			return err
		}
	}
}

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

package hostemitter

import (
	"fmt"
	"io"

	"github.com/qubesos/notification-proxy/wire"
)

// ReadLoop is the single reader task for the guest-to-host direction
// (§4.1, §5). It never blocks on the real daemon: every frame is
// deserialized and handed to HandleMessage, which spawns its own task.
// It returns nil on a clean EOF between frames and a non-nil error for
// every protocol-fatal condition (§7 stratum 1).
func (e *Emitter) ReadLoop(r io.Reader) error {
	for {
		payload, err := wire.ReadFrame(r)
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		msg, err := wire.UnmarshalMessage(payload)
		if err != nil {
			return fmt.Errorf("hostemitter: malformed request frame: %w", err)
		}
		e.HandleMessage(msg)
	}
}

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

import log "github.com/sirupsen/logrus"

// Capabilities is a bitmask of the optional org.freedesktop.Notifications
// capability strings the real host daemon advertised in response to
// GetCapabilities. The emitter consults it before forwarding anything the
// daemon might not understand.
type Capabilities uint16

const (
	CapBody Capabilities = 1 << iota
	CapBodyHyperlinks
	CapBodyMarkup
	CapPersistence
	CapSound
	CapBodyImages
	CapIconMulti
	CapIconStatic
	CapActions
	CapActionIcons
)

// Has reports whether every bit set in want is also set in c.
func (c Capabilities) Has(want Capabilities) bool {
	return c&want == want
}

// ParseCapabilities turns the string list returned by GetCapabilities into
// a Capabilities bitmask, logging and ignoring anything it doesn't
// recognize rather than failing the whole call.
func ParseCapabilities(names []string) Capabilities {
	var c Capabilities
	for _, name := range names {
		switch name {
		case "body":
			c |= CapBody
		case "body-hyperlinks":
			c |= CapBodyHyperlinks
		case "body-markup":
			c |= CapBodyMarkup
		case "persistence":
			c |= CapPersistence
		case "sound":
			c |= CapSound
		case "body-images":
			c |= CapBodyImages
		case "icon-multi":
			c |= CapIconMulti
		case "icon-static":
			c |= CapIconStatic
		case "actions":
			c |= CapActions
		case "action-icons":
			c |= CapActionIcons
		default:
			log.Debugf("dbusnotify: unknown capability %q reported by host daemon", name)
		}
	}
	log.Infof("dbusnotify: host daemon capabilities: body-markup=%v persistence=%v sound=%v actions=%v",
		c.Has(CapBodyMarkup), c.Has(CapPersistence), c.Has(CapSound), c.Has(CapActions))
	return c
}

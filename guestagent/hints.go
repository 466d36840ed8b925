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

	"github.com/godbus/dbus/v5"
	log "github.com/sirupsen/logrus"

	"github.com/qubesos/notification-proxy/wire"
)

// ignoredHints are recognized by name but deliberately do nothing,
// including the legacy image hint aliases (§4.6). The open question of
// treating image_data as an alias for image-data is resolved in
// DESIGN.md: it stays a no-op, matching the original implementation.
var ignoredHints = map[string]struct{}{
	"action-icons":  {},
	"desktop-entry": {},
	"image-path":    {},
	"sound-file":    {},
	"sound-name":    {},
	"x":             {},
	"y":             {},
	"image_data":    {},
	"icon_data":     {},
	"image_path":    {},
}

// applyHints walks an untrusted hint table from a local Notify call and
// folds the recognized subset into n, following the whitelist in §4.6.
// Anything outside the whitelist is logged and dropped; a malformed
// image-data hint is the one case that fails the whole call.
func applyHints(n *wire.Notification, hints map[string]dbus.Variant) error {
	for name, v := range hints {
		switch name {
		case "urgency":
			if u, ok := urgencyByte(v); ok && u <= 2 {
				urg := wire.Urgency(u)
				n.Urgency = &urg
			}
		case "suppress-sound":
			n.SuppressSound = true
		case "transient":
			n.Transient = true
		case "resident":
			n.Resident = true
		case "category":
			if s, ok := v.Value().(string); ok {
				cat := s
				n.Category = &cat
			}
		case "image-data":
			img, err := decodeImageDataHint(v)
			if err != nil {
				return fmt.Errorf("guestagent: %s: %w", name, err)
			}
			n.Image = img
		default:
			if _, ok := ignoredHints[name]; ok {
				continue
			}
			log.Debugf("guestagent: ignoring unrecognized hint %q", name)
		}
	}
	return nil
}

func urgencyByte(v dbus.Variant) (byte, bool) {
	switch val := v.Value().(type) {
	case byte:
		return val, true
	default:
		return 0, false
	}
}

// decodeImageDataHint parses the 7-tuple (iiibiiay) image-data hint into
// ImageParameters (§4.6). Every numeric field stays untrusted until it
// passes through sanitize.ValidateImage on the host side.
func decodeImageDataHint(v dbus.Variant) (*wire.ImageParameters, error) {
	fields, ok := v.Value().([]interface{})
	if !ok || len(fields) != 7 {
		return nil, fmt.Errorf("must be a 7-tuple (width, height, rowstride, has_alpha, bits_per_sample, channels, data)")
	}
	width, ok1 := fields[0].(int32)
	height, ok2 := fields[1].(int32)
	rowstride, ok3 := fields[2].(int32)
	hasAlpha, ok4 := fields[3].(bool)
	bitsPerSample, ok5 := fields[4].(int32)
	channels, ok6 := fields[5].(int32)
	data, ok7 := fields[6].([]byte)
	if !(ok1 && ok2 && ok3 && ok4 && ok5 && ok6 && ok7) {
		return nil, fmt.Errorf("unexpected field type in 7-tuple")
	}
	return &wire.ImageParameters{
		Width:         width,
		Height:        height,
		Rowstride:     rowstride,
		HasAlpha:      hasAlpha,
		BitsPerSample: bitsPerSample,
		Channels:      channels,
		Data:          data,
	}, nil
}

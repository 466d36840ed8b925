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

// Package hostconfig holds the host emitter's startup and reloadable
// configuration.
package hostconfig

import (
	"errors"
	"os"
	"sync"
	"time"

	yaml "gopkg.in/yaml.v2"
)

var errNonPositiveInterval = errors.New("metric interval must be positive")

// dcMux guards DynamicConfig reloads against concurrent readers.
var dcMux = sync.Mutex{}

// StaticConfig is the set of options fixed for the process lifetime,
// supplied as flags when the host emitter binary starts.
type StaticConfig struct {
	// ConfigFile is the optional path to a DynamicConfig YAML file.
	ConfigFile string
	// DebugAddr, if non-empty, serves /metrics.
	DebugAddr string
	// LogLevel is one of "debug", "info", "warning" or "error".
	LogLevel string
	// GuestName overrides QREXEC_REMOTE_DOMAIN when set; used for
	// testing outside a qrexec context.
	GuestName string
	// GuestIcon is the opaque per-guest icon string; acquiring it is
	// out of scope, it is passed in as-is.
	GuestIcon string
}

// DynamicConfig is the set of options kept in the YAML file at
// ConfigFile. The host binary reads it once at startup; it installs no
// reload trigger.
type DynamicConfig struct {
	// MetricInterval must be positive (see Sanity). It is loaded and
	// validated with the rest of the config; no component reads it.
	MetricInterval time.Duration
}

// Config bundles both halves, mirroring the teacher's server.Config.
type Config struct {
	StaticConfig
	DynamicConfig
}

// Sanity checks that DynamicConfig holds usable values.
func (dc *DynamicConfig) Sanity() error {
	if dc.MetricInterval <= 0 {
		return errNonPositiveInterval
	}
	return nil
}

// ReadDynamicConfig loads and validates a DynamicConfig from a YAML file.
func ReadDynamicConfig(path string) (*DynamicConfig, error) {
	dcMux.Lock()
	defer dcMux.Unlock()

	dc := &DynamicConfig{MetricInterval: time.Minute}
	cData, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(cData, dc); err != nil {
		return nil, err
	}
	if err := dc.Sanity(); err != nil {
		return nil, err
	}
	return dc, nil
}

// Write persists dc as YAML, mirroring the teacher's DynamicConfig.Write.
func (dc *DynamicConfig) Write(path string) error {
	dcMux.Lock()
	defer dcMux.Unlock()

	d, err := yaml.Marshal(dc)
	if err != nil {
		return err
	}
	return os.WriteFile(path, d, 0644)
}

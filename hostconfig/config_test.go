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

package hostconfig

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWriteThenReadRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dynamic.yaml")
	dc := &DynamicConfig{MetricInterval: 30 * time.Second}

	require.NoError(t, dc.Write(path))

	got, err := ReadDynamicConfig(path)
	require.NoError(t, err)
	require.Equal(t, dc.MetricInterval, got.MetricInterval)
}

func TestReadDynamicConfigRejectsNonPositiveInterval(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dynamic.yaml")
	dc := &DynamicConfig{MetricInterval: 0}
	require.NoError(t, dc.Write(path))

	_, err := ReadDynamicConfig(path)
	require.ErrorIs(t, err, errNonPositiveInterval)
}

func TestReadDynamicConfigMissingFile(t *testing.T) {
	_, err := ReadDynamicConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

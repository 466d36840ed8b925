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

package sanitize

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/require"
)

func TestTextReplacesUnsafeCodePoints(t *testing.T) {
	classifier := func(r rune) bool { return r != 0x1b } // reject ESC
	got := Text(classifier, "hello\x1bworld")
	require.Equal(t, "hello�world", got)
}

func TestTextKeepsTabsAndNewlines(t *testing.T) {
	got := Text(nil, "a\tb\nc")
	require.Equal(t, "a\tb\nc", got)
}

func TestTextCollapsesCRLFAndBareCR(t *testing.T) {
	require.Equal(t, "a\nb", Text(nil, "a\r\nb"))
	require.Equal(t, "a\nb", Text(nil, "a\rb"))
}

func TestTextHardWrapsLongLine(t *testing.T) {
	in := strings.Repeat("a", 1001)
	want := strings.Repeat("a", 1000) + "\n" + "a"
	require.Equal(t, want, Text(nil, in))
}

func TestTextTruncatesAfterMaxLines(t *testing.T) {
	in := strings.Repeat("a\n", 501)
	want := strings.Repeat("a\n", 500)
	require.Equal(t, want, Text(nil, in))
}

func TestTextIsIdempotent(t *testing.T) {
	inputs := []string{
		"plain text",
		strings.Repeat("x", 2500),
		strings.Repeat("line\n", 600),
		"weird\x00bytes\x1bhere",
		"a\r\nb\rc\n\nd",
	}
	for _, in := range inputs {
		once := Text(nil, in)
		twice := Text(nil, once)
		require.Equal(t, once, twice, "sanitize not idempotent for %q", in)
	}
}

func TestTextOutputHasNoUnsafeCodePoints(t *testing.T) {
	in := "safe \x01\x02\x1b text \U0001F600 emoji"
	out := Text(nil, in)
	for _, r := range out {
		if r == '\n' || r == '\t' {
			continue
		}
		require.True(t, DefaultClassifier(r) || r == utf8.RuneError, "unsafe rune %q leaked through", r)
	}
}

func TestTextRespectsLineAndLengthBounds(t *testing.T) {
	in := strings.Repeat(strings.Repeat("y", 1500)+"\n", 700)
	out := Text(nil, in)
	lines := strings.Split(out, "\n")
	// strings.Split on a string ending in \n yields a trailing empty element
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	require.LessOrEqual(t, len(lines), MaxLines)
	for _, l := range lines {
		require.LessOrEqual(t, len([]rune(l)), MaxLineCodePoints)
	}
}

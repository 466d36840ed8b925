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

// Package sanitize implements the fixed set of transformations applied to
// every untrusted guest-supplied field before it reaches the real
// notification daemon (§4.6). Every exported function here takes
// untrusted input and returns either a safe value or a rejection error;
// none of them ever panic on attacker-controlled input.
package sanitize

import (
	"strings"
	"unicode"
)

// MaxLineCodePoints is the hard line-wrap width: a line without a
// newline is broken after this many code points (§4.6, §8).
const MaxLineCodePoints = 1000

// MaxLines is the number of newline-delimited lines kept; everything
// after the MaxLines'th line is discarded (§4.6, §8).
const MaxLines = 500

// CodePointClassifier decides whether a rune is safe to display as-is.
// In production this is backed by a platform-supplied classifier (the
// spec calls it "a trusted helper, an externally supplied classifier");
// DefaultClassifier is a reasonable standalone stand-in for testing and
// for deployments without such a helper.
type CodePointClassifier func(r rune) bool

// DefaultClassifier accepts any code point Unicode considers printable.
// It rejects control, format, surrogate, private-use and unassigned code
// points, which covers the practical danger here: terminal escape
// sequences and invisible formatting characters smuggled into a
// notification body.
func DefaultClassifier(r rune) bool {
	return unicode.IsPrint(r)
}

// Text sanitizes s for display: every code point is classifier-safe, a
// literal tab, or a newline, everything else becomes U+FFFD; \r\n and
// bare \r collapse to \n; lines are hard-wrapped at MaxLineCodePoints
// code points; the result is truncated after MaxLines lines, with
// everything beyond that point discarded rather than merely hidden (the
// numeric limits exist because some downstream notification daemons
// consume unbounded CPU on very long lines).
func Text(classifier CodePointClassifier, s string) string {
	if classifier == nil {
		classifier = DefaultClassifier
	}
	runes := []rune(s)
	var out strings.Builder
	out.Grow(len(s))

	lines := 0
	col := 0
	for i := 0; i < len(runes); i++ {
		r := runes[i]

		switch {
		case r == '\r':
			if i+1 < len(runes) && runes[i+1] == '\n' {
				i++
			}
			r = '\n'
		case r == '\n':
			// already a newline
		case r == '\t':
			// literal tab always passes through
		case !classifier(r):
			r = '�'
		}

		if r == '\n' {
			out.WriteByte('\n')
			lines++
			col = 0
			if lines >= MaxLines {
				return out.String()
			}
			continue
		}

		if col == MaxLineCodePoints {
			out.WriteByte('\n')
			lines++
			col = 0
			if lines >= MaxLines {
				return out.String()
			}
		}
		out.WriteRune(r)
		col++
	}
	return out.String()
}

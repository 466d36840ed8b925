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

import "fmt"

// MaxImageDataBytes is the hard ceiling on the raw pixel buffer (§4.6).
const MaxImageDataBytes = 2 << 20 // 2 MiB

// MaxImageDimension bounds both width and height (§4.6).
const MaxImageDimension = 255

// Image is the validated subset of an untrusted pixel bundle; all
// fields here have already passed the checks in ValidateImage.
type Image struct {
	Width, Height, Rowstride, Channels, BitsPerSample int32
	HasAlpha                                          bool
	Data                                              []byte
}

// ValidateImage applies every check in §4.6 to an untrusted image
// bundle, in the order the spec gives them, and returns a safe Image or
// a specific error string describing the violation. Every
// overflow-prone comparison here is done with int64 arithmetic on
// already-range-checked positive values, mirroring the floor-division
// discipline the spec calls out in §8.
func ValidateImage(untrustedWidth, untrustedHeight, untrustedRowstride int32, untrustedHasAlpha bool, untrustedBitsPerSample, untrustedChannels int32, untrustedData []byte) (*Image, error) {
	if untrustedBitsPerSample != 8 {
		return nil, fmt.Errorf("sanitize: wrong number of bits per sample")
	}

	if len(untrustedData) > MaxImageDataBytes {
		return nil, fmt.Errorf("sanitize: too much image data")
	}

	wantChannels := int32(3)
	if untrustedHasAlpha {
		wantChannels = 4
	}
	if untrustedChannels != wantChannels {
		return nil, fmt.Errorf("sanitize: wrong number of channels")
	}

	if untrustedWidth < 1 || untrustedHeight < 1 || untrustedRowstride < untrustedChannels {
		return nil, fmt.Errorf("sanitize: too small width, height, or stride")
	}

	if untrustedWidth > MaxImageDimension || untrustedHeight > MaxImageDimension {
		return nil, fmt.Errorf("sanitize: width or height too large")
	}

	dataLen := int64(len(untrustedData))
	height := int64(untrustedHeight)
	rowstride := int64(untrustedRowstride)
	channels := int64(untrustedChannels)
	width := int64(untrustedWidth)

	// Buffer over-read guard: floor(dataLen/height) must be at least
	// rowstride, i.e. every row of height rows fits inside the buffer.
	if dataLen/height < rowstride {
		return nil, fmt.Errorf("sanitize: image too large for its data")
	}

	// Each row must be wide enough to hold width pixels of channels bytes.
	if rowstride/channels < width {
		return nil, fmt.Errorf("sanitize: row stride too small")
	}

	return &Image{
		Width:         untrustedWidth,
		Height:        untrustedHeight,
		Rowstride:     untrustedRowstride,
		HasAlpha:      untrustedHasAlpha,
		BitsPerSample: untrustedBitsPerSample,
		Channels:      untrustedChannels,
		Data:          untrustedData,
	}, nil
}

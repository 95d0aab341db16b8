// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package redact

import (
	"fmt"
	"image"
)

// Mode selects how a region is obscured.
type Mode string

const (
	// ModeFill paints the region opaque black.
	ModeFill Mode = "fill"

	// ModeBlur applies a Gaussian blur inside the region.
	ModeBlur Mode = "blur"
)

// String implements fmt.Stringer.
func (m Mode) String() string {
	return string(m)
}

// ModeFor maps the activity's Blur flag onto a Mode.
func ModeFor(blur bool) Mode {
	if blur {
		return ModeBlur
	}
	return ModeFill
}

// Region is an axis-aligned rectangle in pixel coordinates, relative to
// the top-left pixel of the image it is applied to.
// X and Y may lie outside the image; only the overlap is affected.
type Region struct {
	X      int
	Y      int
	Width  int
	Height int
}

// String implements fmt.Stringer.
func (r Region) String() string {
	return fmt.Sprintf("(%d,%d %dx%d)", r.X, r.Y, r.Width, r.Height)
}

// Empty reports whether the region covers no pixels.
func (r Region) Empty() bool {
	return r.Width <= 0 || r.Height <= 0
}

// Rect returns the region as a rectangle offset by origin.
// Coordinates saturate instead of overflowing.
func (r Region) Rect(origin image.Point) image.Rectangle {
	x0 := satAdd(origin.X, r.X)
	y0 := satAdd(origin.Y, r.Y)
	return image.Rect(x0, y0, satAdd(x0, r.Width), satAdd(y0, r.Height))
}

// Request describes one redaction.
type Request struct {
	Region Region
	Mode   Mode

	// BlurStrength is the kernel radius in pixels. Ignored in ModeFill.
	BlurStrength int
}

const (
	maxInt = int(^uint(0) >> 1)
	minInt = -maxInt - 1
)

func satAdd(a, b int) int {
	if b > 0 && a > maxInt-b {
		return maxInt
	}
	if b < 0 && a < minInt-b {
		return minInt
	}
	return a + b
}

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
	"math"

	"github.com/anthonynsimon/bild/convolution"
)

// gaussianKernel returns a normalized horizontal kernel of width 2*radius+1
// weighted by a Gaussian with the given standard deviation. Its transpose
// is the vertical pass.
func gaussianKernel(radius int, sigma float64) convolution.Matrix {
	size := 2*radius + 1
	k := convolution.NewKernel(size, 1)
	twoSigmaSq := 2 * sigma * sigma
	for i := 0; i < size; i++ {
		d := float64(i - radius)
		k.Matrix[i] = math.Exp(-(d * d) / twoSigmaSq)
	}
	return k.Normalized()
}

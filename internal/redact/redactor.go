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

// Package redact obscures a rectangular region of an image, either by
// painting it opaque black or by blurring it.
//
// The input image is never modified. Every call returns a fresh
// *image.NRGBA whose bounds start at (0,0).
package redact

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"reflect"

	"github.com/anthonynsimon/bild/convolution"
	"github.com/disintegration/imaging"

	obferrors "github.com/tombee/obfuscate/pkg/errors"
)

const (
	// DefaultSigma is the standard deviation of the blur kernel.
	DefaultSigma = 25.0

	// DefaultMaxPixels bounds the size of an input image (100 megapixels).
	DefaultMaxPixels = 100_000_000

	// DefaultMaxBlurRadius bounds BlurStrength.
	DefaultMaxBlurRadius = 1000
)

// Black is the fill colour.
var Black = color.NRGBA{R: 0, G: 0, B: 0, A: 255}

// Options tunes a Redactor.
type Options struct {
	// Sigma is the Gaussian standard deviation used in ModeBlur.
	Sigma float64

	// MaxPixels rejects images with more pixels than this. Zero disables the check.
	MaxPixels int

	// MaxBlurRadius rejects larger blur strengths. Non-positive values
	// fall back to DefaultMaxBlurRadius; the radius is always bounded.
	MaxBlurRadius int
}

// DefaultOptions returns the options used when none are given.
func DefaultOptions() Options {
	return Options{
		Sigma:     DefaultSigma,
		MaxPixels:     DefaultMaxPixels,
		MaxBlurRadius: DefaultMaxBlurRadius,
	}
}

// Redactor applies a single redaction to an image.
// A Redactor holds no per-call state and is safe for concurrent use.
type Redactor struct {
	opts Options
}

// New creates a Redactor. A non-positive Sigma falls back to DefaultSigma.
func New(opts Options) *Redactor {
	if opts.Sigma <= 0 {
		opts.Sigma = DefaultSigma
	}
	if opts.MaxPixels < 0 {
		opts.MaxPixels = 0
	}
	if opts.MaxBlurRadius <= 0 {
		opts.MaxBlurRadius = DefaultMaxBlurRadius
	}
	return &Redactor{opts: opts}
}

// Sigma returns the blur standard deviation in use.
func (r *Redactor) Sigma() float64 {
	return r.opts.Sigma
}

// MaxBlurRadius returns the largest accepted blur strength.
func (r *Redactor) MaxBlurRadius() int {
	return r.opts.MaxBlurRadius
}

// Redact returns a copy of img with req applied.
//
// The context is checked between stages; a cancelled context aborts the
// call with an OperationError wrapping ctx.Err().
func (r *Redactor) Redact(ctx context.Context, img image.Image, req Request) (*image.NRGBA, error) {
	if err := r.check(img, req); err != nil {
		return nil, err
	}
	if err := checkpoint(ctx, req.Mode); err != nil {
		return nil, err
	}

	bounds := img.Bounds()
	area := req.Region.Rect(bounds.Min).Intersect(bounds)

	if area.Empty() || (req.Mode == ModeBlur && req.BlurStrength == 0) {
		return imaging.Clone(img), nil
	}

	switch req.Mode {
	case ModeFill:
		return r.fill(img, area), nil
	default:
		return r.blur(ctx, img, area, req.BlurStrength)
	}
}

func (r *Redactor) check(img image.Image, req Request) error {
	if IsNilImage(img) {
		return &obferrors.ValidationError{
			Field:   "InputImage",
			Message: "image is nil",
		}
	}

	var errs obferrors.ValidationErrors
	if req.Region.Width < 0 {
		errs = append(errs, &obferrors.ValidationError{
			Field:      "Width",
			Message:    fmt.Sprintf("must not be negative, got %d", req.Region.Width),
			Suggestion: "use 0 to leave the image unchanged",
		})
	}
	if req.Region.Height < 0 {
		errs = append(errs, &obferrors.ValidationError{
			Field:      "Height",
			Message:    fmt.Sprintf("must not be negative, got %d", req.Region.Height),
			Suggestion: "use 0 to leave the image unchanged",
		})
	}
	if req.Mode != ModeFill && req.Mode != ModeBlur {
		errs = append(errs, &obferrors.ValidationError{
			Field:   "Blur",
			Message: fmt.Sprintf("unknown mode %q", req.Mode),
		})
	}
	if req.Mode == ModeBlur && req.BlurStrength < 0 {
		errs = append(errs, &obferrors.ValidationError{
			Field:   "BlurAmount",
			Message: fmt.Sprintf("must not be negative, got %d", req.BlurStrength),
		})
	}
	if req.Mode == ModeBlur && req.BlurStrength > r.opts.MaxBlurRadius {
		errs = append(errs, &obferrors.ValidationError{
			Field:      "BlurAmount",
			Message:    fmt.Sprintf("must be at most %d, got %d", r.opts.MaxBlurRadius, req.BlurStrength),
			Suggestion: "raise redact.max_blur_radius if larger radii are needed",
		})
	}
	if err := errs.OrNil(); err != nil {
		return err
	}

	size := img.Bounds().Size()
	if r.opts.MaxPixels > 0 && size.X*size.Y > r.opts.MaxPixels {
		return &obferrors.OperationError{
			Operation: string(req.Mode),
			Message:   fmt.Sprintf("image is %dx%d, larger than the %d pixel limit", size.X, size.Y, r.opts.MaxPixels),
		}
	}
	return nil
}

// fill pastes a black patch over area. imaging.Paste copies img first.
func (r *Redactor) fill(img image.Image, area image.Rectangle) *image.NRGBA {
	patch := imaging.New(area.Dx(), area.Dy(), Black)
	return imaging.Paste(img, patch, area.Min)
}

// blur convolves only the neighbourhood of area. Each output pixel inside
// area sees the same input pixels it would if the whole image were
// convolved, because the crop extends radius pixels past area unless the
// image edge is closer, and the convolution extends edges.
func (r *Redactor) blur(ctx context.Context, img image.Image, area image.Rectangle, radius int) (*image.NRGBA, error) {
	padded := area.Inset(-radius).Intersect(img.Bounds())
	src := imaging.Crop(img, padded)

	opts := &convolution.Options{Bias: 0, Wrap: false, KeepAlpha: false}
	k := gaussianKernel(radius, r.opts.Sigma)

	horizontal := convolution.Convolve(src, k, opts)
	if err := checkpoint(ctx, ModeBlur); err != nil {
		return nil, err
	}
	both := convolution.Convolve(horizontal, k.Transposed(), opts)
	if err := checkpoint(ctx, ModeBlur); err != nil {
		return nil, err
	}

	patch := imaging.Crop(both, area.Sub(padded.Min))
	return imaging.Paste(img, patch, area.Min), nil
}

// IsNilImage reports whether img is nil or an interface holding a nil
// pointer, such as (*image.NRGBA)(nil).
func IsNilImage(img image.Image) bool {
	if img == nil {
		return true
	}
	v := reflect.ValueOf(img)
	switch v.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func, reflect.Chan:
		return v.IsNil()
	}
	return false
}

func checkpoint(ctx context.Context, mode Mode) error {
	if err := ctx.Err(); err != nil {
		return &obferrors.OperationError{
			Operation: string(mode),
			Message:   "cancelled",
			Cause:     err,
		}
	}
	return nil
}

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

package obfuscate

import (
	"fmt"
	"image"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/tombee/obfuscate/internal/redact"
	obferrors "github.com/tombee/obfuscate/pkg/errors"
)

// Argument names as they appear to hosts.
const (
	ArgTimeoutMS       = "TimeoutMS"
	ArgInputImage      = "InputImage"
	ArgPositionX       = "PositionX"
	ArgPositionY       = "PositionY"
	ArgWidth           = "Width"
	ArgHeight          = "Height"
	ArgBlur            = "Blur"
	ArgBlurAmount      = "BlurAmount"
	ArgContinueOnError = "ContinueOnError"
	ArgOutputImage     = "OutputImage"
)

// DefaultTimeoutMS is used when TimeoutMS is not supplied.
const DefaultTimeoutMS = 60000

// MissingArgumentMessage is the message of every missing-argument error.
const MissingArgumentMessage = "value for a required activity argument was not supplied"

// Arguments are the inputs of one Obfuscate invocation.
type Arguments struct {
	TimeoutMS       Optional[int]
	InputImage      Optional[image.Image]
	PositionX       Optional[int]
	PositionY       Optional[int]
	Width           Optional[int]
	Height          Optional[int]
	Blur            Optional[bool]
	BlurAmount      Optional[int]
	ContinueOnError Optional[bool]
}

// Validate is the pre-flight check. It reports every missing required
// argument, in declaration order, without touching the image.
func (a Arguments) Validate() error {
	present := map[string]bool{
		ArgInputImage: a.InputImage.IsSet() && !redact.IsNilImage(a.InputImage.value),
		ArgPositionX:  a.PositionX.IsSet(),
		ArgPositionY:  a.PositionY.IsSet(),
		ArgWidth:      a.Width.IsSet(),
		ArgHeight:     a.Height.IsSet(),
	}
	return CheckRequired(func(name string) bool { return present[name] })
}

// CheckRequired reports each required argument for which has returns
// false. Hosts that have not loaded the image yet use it to validate a
// raw argument set.
func CheckRequired(has func(name string) bool) error {
	var errs obferrors.ValidationErrors
	for _, d := range Descriptors() {
		if d.Required && !has(d.Name) {
			errs = append(errs, &obferrors.ValidationError{
				Field:      d.Name,
				Message:    MissingArgumentMessage,
				Suggestion: fmt.Sprintf("set %s", d.Name),
			})
		}
	}
	return errs.OrNil()
}

// Timeout returns the effective time budget.
func (a Arguments) Timeout() time.Duration {
	return time.Duration(a.TimeoutMS.OrElse(DefaultTimeoutMS)) * time.Millisecond
}

// Request converts validated arguments into a redaction request.
func (a Arguments) Request() redact.Request {
	return redact.Request{
		Region: redact.Region{
			X:      a.PositionX.OrElse(0),
			Y:      a.PositionY.OrElse(0),
			Width:  a.Width.OrElse(0),
			Height: a.Height.OrElse(0),
		},
		Mode:         redact.ModeFor(a.Blur.OrElse(false)),
		BlurStrength: a.BlurAmount.OrElse(0),
	}
}

// ArgumentsFromMap converts a host's loosely typed inputs into Arguments.
// Absent keys and nil values stay unset. Values of the wrong type are
// reported per field.
func ArgumentsFromMap(inputs map[string]interface{}) (Arguments, error) {
	var (
		a    Arguments
		errs obferrors.ValidationErrors
	)

	intArg := func(name string, dst *Optional[int]) {
		raw, ok := inputs[name]
		if !ok || raw == nil {
			return
		}
		v, err := ToInt(raw)
		if err != nil {
			errs = append(errs, &obferrors.ValidationError{Field: name, Message: err.Error()})
			return
		}
		*dst = Some(v)
	}
	boolArg := func(name string, dst *Optional[bool]) {
		raw, ok := inputs[name]
		if !ok || raw == nil {
			return
		}
		v, err := ToBool(raw)
		if err != nil {
			errs = append(errs, &obferrors.ValidationError{Field: name, Message: err.Error()})
			return
		}
		*dst = Some(v)
	}

	intArg(ArgTimeoutMS, &a.TimeoutMS)
	if raw, ok := inputs[ArgInputImage]; ok && raw != nil {
		img, isImage := raw.(image.Image)
		switch {
		case isImage && redact.IsNilImage(img):
			// a nil image is a missing image; Validate reports it
		case !isImage:
			errs = append(errs, &obferrors.ValidationError{
				Field:   ArgInputImage,
				Message: fmt.Sprintf("expected an image, got %T", raw),
			})
		default:
			a.InputImage = Some(img)
		}
	}
	intArg(ArgPositionX, &a.PositionX)
	intArg(ArgPositionY, &a.PositionY)
	intArg(ArgWidth, &a.Width)
	intArg(ArgHeight, &a.Height)
	boolArg(ArgBlur, &a.Blur)
	intArg(ArgBlurAmount, &a.BlurAmount)
	boolArg(ArgContinueOnError, &a.ContinueOnError)

	return a, errs.OrNil()
}

// ToInt coerces the integer shapes produced by YAML, JSON, flags and
// expressions. Floats must be whole numbers.
func ToInt(v interface{}) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int32:
		return int(n), nil
	case int64:
		if n > math.MaxInt || n < math.MinInt {
			return 0, fmt.Errorf("%d is out of range", n)
		}
		return int(n), nil
	case uint:
		if uint64(n) > math.MaxInt {
			return 0, fmt.Errorf("%d is out of range", n)
		}
		return int(n), nil
	case uint64:
		if n > math.MaxInt {
			return 0, fmt.Errorf("%d is out of range", n)
		}
		return int(n), nil
	case float64:
		if n != math.Trunc(n) || math.IsInf(n, 0) || math.IsNaN(n) {
			return 0, fmt.Errorf("expected an integer, got %v", n)
		}
		if n > math.MaxInt || n < math.MinInt {
			return 0, fmt.Errorf("%v is out of range", n)
		}
		return int(n), nil
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return 0, fmt.Errorf("expected an integer, got %q", n)
		}
		return i, nil
	default:
		return 0, fmt.Errorf("expected an integer, got %T", v)
	}
}

// ToBool coerces booleans and their string forms.
func ToBool(v interface{}) (bool, error) {
	switch b := v.(type) {
	case bool:
		return b, nil
	case string:
		parsed, err := strconv.ParseBool(strings.TrimSpace(b))
		if err != nil {
			return false, fmt.Errorf("expected true or false, got %q", b)
		}
		return parsed, nil
	default:
		return false, fmt.Errorf("expected a boolean, got %T", v)
	}
}

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

// Package binding turns host-supplied argument values into activity
// Arguments.
//
// Hosts (an args file, CLI flags, HTTP query parameters, MCP tool calls)
// supply a Raw map keyed by argument name. Values are literals or, when a
// string starts with "=", expressions evaluated once the input image is
// known:
//
//	Width:  "=int(image.width / 3)"
//	Height: "=min(image.height, 64)"
//
// Division yields a float; a non-integral result is rejected, so wrap it
// in int() or round().
//
// InputImage and OutputImage hold references (paths or URIs); loading
// and saving is left to the caller.
package binding

import (
	"context"
	"fmt"
	"image"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/tombee/obfuscate/internal/action/obfuscate"
	obferrors "github.com/tombee/obfuscate/pkg/errors"
)

// ExpressionPrefix marks a string value as an expression.
const ExpressionPrefix = "="

// Raw is a loosely typed argument set keyed by argument name.
type Raw map[string]interface{}

// File is the on-disk form of an argument set.
type File struct {
	Arguments Raw                    `yaml:"arguments"`
	Vars      map[string]interface{} `yaml:"vars,omitempty"`
}

// LoadFile reads an argument file.
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, obferrors.Wrapf(err, "reading arguments file %s", path)
	}
	return ParseFile(data)
}

// ParseFile decodes an argument file from YAML (or JSON, a YAML subset).
func ParseFile(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, &obferrors.ValidationError{
			Field:      "arguments",
			Message:    fmt.Sprintf("invalid arguments file: %v", err),
			Suggestion: "the file needs a top-level 'arguments' mapping",
		}
	}
	if f.Arguments == nil {
		f.Arguments = Raw{}
	}
	return &f, nil
}

// Merge returns a copy of r with the present values of over applied on top.
func (r Raw) Merge(over Raw) Raw {
	out := make(Raw, len(r)+len(over))
	for k, v := range r {
		out[k] = v
	}
	for k, v := range over {
		if present(v) {
			out[k] = v
		}
	}
	return out
}

// Has reports whether name carries a value.
func (r Raw) Has(name string) bool {
	v, ok := r[name]
	return ok && present(v)
}

// Ref returns the string reference stored under name, such as the input
// image path.
func (r Raw) Ref(name string) (string, bool) {
	v, ok := r[name]
	if !ok || !present(v) {
		return "", false
	}
	s, isString := v.(string)
	if !isString {
		return "", false
	}
	return s, true
}

func present(v interface{}) bool {
	if v == nil {
		return false
	}
	if s, ok := v.(string); ok && strings.TrimSpace(s) == "" {
		return false
	}
	return true
}

// IsExpression reports whether v is an expression string.
func IsExpression(v interface{}) bool {
	s, ok := v.(string)
	return ok && strings.HasPrefix(strings.TrimSpace(s), ExpressionPrefix)
}

// Preflight checks an argument set before the image is loaded: required
// arguments must be present, literals must have the right type and
// expressions must compile. Every problem is reported.
func (e *Evaluator) Preflight(raw Raw) error {
	var errs obferrors.ValidationErrors

	if err := obfuscate.CheckRequired(raw.Has); err != nil {
		var missing obferrors.ValidationErrors
		if obferrors.As(err, &missing) {
			errs = append(errs, missing...)
		}
	}
	if raw.Has(obfuscate.ArgInputImage) {
		if _, ok := raw.Ref(obfuscate.ArgInputImage); !ok {
			errs = append(errs, &obferrors.ValidationError{
				Field:   obfuscate.ArgInputImage,
				Message: fmt.Sprintf("expected a path or URI, got %T", raw[obfuscate.ArgInputImage]),
			})
		}
	}

	for _, d := range obfuscate.Descriptors() {
		if d.Type == "image" {
			continue
		}
		v, ok := raw[d.Name]
		if !ok || !present(v) {
			continue
		}
		if IsExpression(v) {
			if _, err := e.compile(expressionBody(v.(string))); err != nil {
				errs = append(errs, &obferrors.ValidationError{
					Field:   d.Name,
					Message: fmt.Sprintf("invalid expression: %v", err),
				})
			}
			continue
		}
		if err := checkLiteral(d.Type, v); err != nil {
			errs = append(errs, &obferrors.ValidationError{Field: d.Name, Message: err.Error()})
		}
	}
	return errs.OrNil()
}

// Resolve evaluates raw against the loaded image and returns typed
// Arguments with img as InputImage.
func (e *Evaluator) Resolve(ctx context.Context, raw Raw, img image.Image, vars map[string]interface{}) (obfuscate.Arguments, error) {
	if err := ctx.Err(); err != nil {
		return obfuscate.Arguments{}, err
	}

	env := NewEnv(img, vars)
	inputs := make(map[string]interface{}, len(raw))
	var errs obferrors.ValidationErrors

	for _, d := range obfuscate.Descriptors() {
		if d.Direction != obfuscate.DirectionIn || d.Type == "image" {
			continue
		}
		v, ok := raw[d.Name]
		if !ok || !present(v) {
			continue
		}
		if IsExpression(v) {
			out, err := e.Eval(expressionBody(v.(string)), env)
			if err != nil {
				errs = append(errs, &obferrors.ValidationError{Field: d.Name, Message: err.Error()})
				continue
			}
			v = out
		}
		inputs[d.Name] = v
	}
	if img != nil {
		inputs[obfuscate.ArgInputImage] = img
	}
	if err := errs.OrNil(); err != nil {
		return obfuscate.Arguments{}, err
	}
	return obfuscate.ArgumentsFromMap(inputs)
}

func expressionBody(s string) string {
	return strings.TrimPrefix(strings.TrimSpace(s), ExpressionPrefix)
}

func checkLiteral(typ string, v interface{}) error {
	switch typ {
	case "integer":
		_, err := obfuscate.ToInt(v)
		return err
	case "boolean":
		_, err := obfuscate.ToBool(v)
		return err
	}
	return nil
}

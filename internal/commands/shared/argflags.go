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

package shared

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/tombee/obfuscate/internal/action/obfuscate"
	"github.com/tombee/obfuscate/internal/binding"
	obferrors "github.com/tombee/obfuscate/pkg/errors"
)

// ArgFlags are the activity arguments as command-line flags. Only flags
// the user actually set end up in the argument set, so an omitted
// required flag is reported as missing.
type ArgFlags struct {
	ArgsFile        string
	Input           string
	Output          string
	X               string
	Y               string
	Width           string
	Height          string
	Blur            bool
	BlurAmount      string
	TimeoutMS       string
	ContinueOnError bool
	Sets            []string
	Vars            []string
}

// flag name -> argument name
var argFlagNames = map[string]string{
	"input":             obfuscate.ArgInputImage,
	"output":            obfuscate.ArgOutputImage,
	"x":                 obfuscate.ArgPositionX,
	"y":                 obfuscate.ArgPositionY,
	"width":             obfuscate.ArgWidth,
	"height":            obfuscate.ArgHeight,
	"blur":              obfuscate.ArgBlur,
	"blur-amount":       obfuscate.ArgBlurAmount,
	"timeout-ms":        obfuscate.ArgTimeoutMS,
	"continue-on-error": obfuscate.ArgContinueOnError,
}

// Register adds the argument flags to fs.
func (f *ArgFlags) Register(fs *pflag.FlagSet) {
	fs.StringVarP(&f.ArgsFile, "args", "a", "", "YAML file with an 'arguments' mapping (and optional 'vars')")
	fs.StringVarP(&f.Input, "input", "i", "", "Input image: path, '-' for stdin, or s3://bucket/key")
	fs.StringVarP(&f.Output, "output", "o", "", "Output image: path, '-' for stdout, or s3://bucket/key")
	fs.StringVarP(&f.X, "x", "x", "", "Left edge of the area in pixels (or =expression)")
	fs.StringVarP(&f.Y, "y", "y", "", "Top edge of the area in pixels (or =expression)")
	fs.StringVarP(&f.Width, "width", "W", "", "Width of the area in pixels (or =expression)")
	fs.StringVarP(&f.Height, "height", "H", "", "Height of the area in pixels (or =expression)")
	fs.BoolVar(&f.Blur, "blur", false, "Blur the area instead of filling it with black")
	fs.StringVar(&f.BlurAmount, "blur-amount", "", "Blur radius in pixels (default 0)")
	fs.StringVar(&f.TimeoutMS, "timeout-ms", "", "Time budget in milliseconds (default 60000)")
	fs.BoolVar(&f.ContinueOnError, "continue-on-error", false, "Succeed without output when the redaction fails or times out")
	fs.StringArrayVar(&f.Sets, "set", nil, "Set an argument by name (Name=value), repeatable")
	fs.StringArrayVar(&f.Vars, "var", nil, "Set an expression variable (name=value), repeatable")
}

// Build assembles the argument set: the args file first, then --set,
// then the dedicated flags that were given on the command line.
func (f *ArgFlags) Build(fs *pflag.FlagSet) (binding.Raw, map[string]interface{}, error) {
	raw := binding.Raw{}
	vars := map[string]interface{}{}

	if f.ArgsFile != "" {
		file, err := binding.LoadFile(f.ArgsFile)
		if err != nil {
			return nil, nil, err
		}
		raw = raw.Merge(file.Arguments)
		for k, v := range file.Vars {
			vars[k] = v
		}
	}

	var errs obferrors.ValidationErrors

	sets := binding.Raw{}
	for _, kv := range f.Sets {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || name == "" {
			errs = append(errs, &obferrors.ValidationError{
				Field:      "set",
				Message:    fmt.Sprintf("expected Name=value, got %q", kv),
				Suggestion: "use --set Width=40",
			})
			continue
		}
		sets[strings.TrimSpace(name)] = value
	}
	raw = raw.Merge(sets)

	for _, kv := range f.Vars {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || name == "" {
			errs = append(errs, &obferrors.ValidationError{
				Field:   "var",
				Message: fmt.Sprintf("expected name=value, got %q", kv),
			})
			continue
		}
		vars[strings.TrimSpace(name)] = scalar(value)
	}

	flags := binding.Raw{}
	fs.Visit(func(fl *pflag.Flag) {
		name, ok := argFlagNames[fl.Name]
		if !ok {
			return
		}
		switch fl.Name {
		case "blur":
			flags[name] = f.Blur
		case "continue-on-error":
			flags[name] = f.ContinueOnError
		default:
			flags[name] = fl.Value.String()
		}
	})
	raw = raw.Merge(flags)

	if err := errs.OrNil(); err != nil {
		return nil, nil, err
	}
	return raw, vars, nil
}

// scalar decodes a YAML scalar so that --var n=3 yields an integer.
func scalar(s string) interface{} {
	var v interface{}
	if err := yaml.Unmarshal([]byte(s), &v); err != nil || v == nil {
		return s
	}
	switch v.(type) {
	case map[string]interface{}, []interface{}:
		return s
	}
	return v
}

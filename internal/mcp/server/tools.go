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

package server

import (
	"context"
	"errors"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/tombee/obfuscate/internal/action/obfuscate"
	"github.com/tombee/obfuscate/internal/binding"
	"github.com/tombee/obfuscate/internal/imageio"
	"github.com/tombee/obfuscate/internal/log"
	obferrors "github.com/tombee/obfuscate/pkg/errors"
)

// tool argument -> activity argument
var toolArguments = []struct {
	tool, activity, kind, description string
}{
	{"input_path", obfuscate.ArgInputImage, "string", "Path or s3:// URI of the image to obfuscate"},
	{"x", obfuscate.ArgPositionX, "integer", "Left edge of the area in pixels, or an expression such as '=image.width - 40'"},
	{"y", obfuscate.ArgPositionY, "integer", "Top edge of the area in pixels, or an expression"},
	{"width", obfuscate.ArgWidth, "integer", "Width of the area in pixels, or an expression"},
	{"height", obfuscate.ArgHeight, "integer", "Height of the area in pixels, or an expression"},
	{"blur", obfuscate.ArgBlur, "boolean", "Blur the area instead of filling it with black (default false)"},
	{"blur_amount", obfuscate.ArgBlurAmount, "integer", "Blur radius in pixels (default 0)"},
	{"timeout_ms", obfuscate.ArgTimeoutMS, "integer", "Time budget in milliseconds (default 60000)"},
	{"continue_on_error", obfuscate.ArgContinueOnError, "boolean", "Report success without output when the redaction fails"},
}

func argumentProperties(withOutput bool) map[string]interface{} {
	props := make(map[string]interface{}, len(toolArguments)+2)
	for _, a := range toolArguments {
		typ := interface{}(a.kind)
		if a.kind == "integer" {
			typ = []string{"integer", "string"}
		}
		props[a.tool] = map[string]interface{}{
			"type":        typ,
			"description": a.description,
		}
	}
	props["vars"] = map[string]interface{}{
		"type":        "object",
		"description": "Variables visible to expressions as vars.<name>",
	}
	if withOutput {
		props["output_path"] = map[string]interface{}{
			"type":        "string",
			"description": "Path or s3:// URI to write the obfuscated image to",
		}
	}
	return props
}

// FieldError is one rejected argument.
type FieldError struct {
	Field      string `json:"field,omitempty"`
	Message    string `json:"message"`
	Suggestion string `json:"suggestion,omitempty"`
}

// ToolResult is the JSON body of every tool response.
type ToolResult struct {
	Success   bool                   `json:"success"`
	Output    string                 `json:"output,omitempty"`
	Input     *imageio.Info          `json:"input,omitempty"`
	Continued bool                   `json:"continued,omitempty"`
	Arguments []string               `json:"arguments,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Errors    []FieldError           `json:"errors,omitempty"`
}

// rawArguments maps tool arguments onto activity argument names.
func rawArguments(args map[string]interface{}) (binding.Raw, map[string]interface{}) {
	raw := binding.Raw{}
	for _, a := range toolArguments {
		if v, ok := args[a.tool]; ok {
			raw[a.activity] = v
		}
	}
	vars, _ := args["vars"].(map[string]interface{})
	return raw, vars
}

func fieldErrors(err error) []FieldError {
	var verrs obferrors.ValidationErrors
	if errors.As(err, &verrs) {
		out := make([]FieldError, 0, len(verrs))
		for _, v := range verrs {
			out = append(out, FieldError{Field: v.Field, Message: v.Message, Suggestion: v.Suggestion})
		}
		return out
	}
	var verr *obferrors.ValidationError
	if errors.As(err, &verr) {
		return []FieldError{{Field: verr.Field, Message: verr.Message, Suggestion: verr.Suggestion}}
	}
	return []FieldError{{Message: err.Error()}}
}

func failure(err error) *mcp.CallToolResult {
	return jsonErrorResponse(ToolResult{Errors: fieldErrors(err)})
}

// preflight checks the arguments and, for obfuscate_image, the paths.
func (s *Server) preflight(raw binding.Raw, output string, needOutput bool) error {
	var errs obferrors.ValidationErrors
	if err := s.evaluator.Preflight(raw); err != nil && !errors.As(err, &errs) {
		return err
	}
	if ref, ok := raw.Ref(obfuscate.ArgInputImage); ok {
		if err := ValidatePath(ref); err != nil {
			errs = append(errs, &obferrors.ValidationError{Field: "input_path", Message: err.Error()})
		}
	}
	if needOutput {
		switch {
		case output == "":
			errs = append(errs, &obferrors.ValidationError{
				Field:   "output_path",
				Message: "no output path given",
			})
		default:
			if err := ValidatePath(output); err != nil {
				errs = append(errs, &obferrors.ValidationError{Field: "output_path", Message: err.Error()})
			}
		}
	}
	return errs.OrNil()
}

func (s *Server) handleObfuscate(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if !s.rateLimiter.AllowCall() || !s.rateLimiter.AllowRun() {
		return errorResponse("Rate limit exceeded. Please try again later."), nil
	}

	raw, vars := rawArguments(request.GetArguments())
	output := request.GetString("output_path", "")
	if err := s.preflight(raw, output, true); err != nil {
		return failure(err), nil
	}

	input, _ := raw.Ref(obfuscate.ArgInputImage)
	logger := s.logger.With(slog.String(log.ImageKey, input))

	img, info, err := s.store.Load(ctx, input)
	if err != nil {
		logger.Warn("tool failed to load image", slog.String(log.ErrorKey, err.Error()))
		return failure(err), nil
	}
	args, err := s.evaluator.Resolve(ctx, raw, img, vars)
	if err != nil {
		return failure(err), nil
	}
	res, err := s.action.Invoke(ctx, args)
	if err != nil {
		return failure(err), nil
	}

	result := ToolResult{Success: true, Input: &info, Metadata: res.Metadata}
	if res.Err != nil {
		result.Continued = true
		result.Errors = fieldErrors(res.Err)
		return jsonResponse(result), nil
	}

	if err := s.store.Save(ctx, output, res.OutputImage); err != nil {
		logger.Warn("tool failed to save image", slog.String(log.ErrorKey, err.Error()))
		return failure(err), nil
	}
	result.Output = output
	logger.Info("tool obfuscated image", slog.String("output", output))
	return jsonResponse(result), nil
}

func (s *Server) handleValidate(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if !s.rateLimiter.AllowCall() {
		return errorResponse("Rate limit exceeded. Please try again later."), nil
	}

	raw, _ := rawArguments(request.GetArguments())
	if err := s.preflight(raw, "", false); err != nil {
		return failure(err), nil
	}

	result := ToolResult{Success: true, Arguments: []string{}}
	for _, d := range obfuscate.Descriptors() {
		if raw.Has(d.Name) {
			result.Arguments = append(result.Arguments, d.Name)
		}
	}
	return jsonResponse(result), nil
}

func (s *Server) handleDescribe(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if !s.rateLimiter.AllowCall() {
		return errorResponse("Rate limit exceeded. Please try again later."), nil
	}
	lang := request.GetString("lang", "")
	return jsonResponse(obfuscate.Describe(obfuscate.MatchLanguage(lang))), nil
}

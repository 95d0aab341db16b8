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
	"encoding/json"
	"image/color"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/obfuscate/internal/action/obfuscate"
)

func callTool(t *testing.T, handler func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error), name string, args map[string]interface{}) (*mcp.CallToolResult, ToolResult) {
	t.Helper()
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args

	res, err := handler(context.Background(), req)
	require.NoError(t, err)
	require.NotEmpty(t, res.Content)

	text, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected text content, got %T", res.Content[0])

	var body ToolResult
	_ = json.Unmarshal([]byte(text.Text), &body)
	return res, body
}

func imageDir(t *testing.T) (dir, input string) {
	t.Helper()
	dir = t.TempDir()
	t.Setenv(AllowedPathsEnvVar, dir)
	input = filepath.Join(dir, "in.png")
	require.NoError(t, imaging.Save(imaging.New(16, 16, color.White), input))
	return dir, input
}

func TestObfuscateTool_WritesOutput(t *testing.T) {
	srv := newTestServer(t)
	dir, input := imageDir(t)
	output := filepath.Join(dir, "out.png")

	res, body := callTool(t, srv.handleObfuscate, ToolObfuscate, map[string]interface{}{
		"input_path":  input,
		"output_path": output,
		"x":           float64(2),
		"y":           float64(2),
		"width":       "=image.width / 2",
		"height":      float64(4),
	})
	require.False(t, res.IsError, "unexpected error: %+v", body.Errors)
	assert.True(t, body.Success)
	assert.Equal(t, output, body.Output)
	require.NotNil(t, body.Input)
	assert.Equal(t, 16, body.Input.Width)

	out, err := imaging.Open(output)
	require.NoError(t, err)
	r, _, _, _ := out.At(9, 3).RGBA()
	assert.Zero(t, r)
}

func TestObfuscateTool_ReportsEveryMissingArgument(t *testing.T) {
	srv := newTestServer(t)

	res, body := callTool(t, srv.handleObfuscate, ToolObfuscate, map[string]interface{}{})
	assert.True(t, res.IsError)

	var fields []string
	for _, e := range body.Errors {
		fields = append(fields, e.Field)
	}
	assert.Equal(t, []string{
		obfuscate.ArgInputImage, obfuscate.ArgPositionX, obfuscate.ArgPositionY,
		obfuscate.ArgWidth, obfuscate.ArgHeight, "output_path",
	}, fields)
}

func TestObfuscateTool_RejectsPathOutsideSandbox(t *testing.T) {
	srv := newTestServer(t)
	_, input := imageDir(t)

	res, body := callTool(t, srv.handleObfuscate, ToolObfuscate, map[string]interface{}{
		"input_path":  input,
		"output_path": "../escape.png",
		"x":           1, "y": 1, "width": 1, "height": 1,
	})
	assert.True(t, res.IsError)
	require.Len(t, body.Errors, 1)
	assert.Equal(t, "output_path", body.Errors[0].Field)
}

func TestObfuscateTool_ContinueOnError(t *testing.T) {
	srv := newTestServer(t)
	dir, input := imageDir(t)
	output := filepath.Join(dir, "out.png")

	res, body := callTool(t, srv.handleObfuscate, ToolObfuscate, map[string]interface{}{
		"input_path":        input,
		"output_path":       output,
		"x":                 1, "y": 1, "width": 4, "height": 4,
		"timeout_ms":        0,
		"continue_on_error": true,
	})
	assert.False(t, res.IsError)
	assert.True(t, body.Success)
	assert.True(t, body.Continued)
	assert.Empty(t, body.Output)
	assert.NoFileExists(t, output)
}

func TestValidateTool(t *testing.T) {
	srv := newTestServer(t)
	t.Setenv(AllowedPathsEnvVar, "")

	res, body := callTool(t, srv.handleValidate, ToolValidate, map[string]interface{}{
		"input_path": "photo.png",
		"x":          1, "y": 2, "width": 3, "height": 4,
		"blur":       true,
	})
	require.False(t, res.IsError, "unexpected error: %+v", body.Errors)
	assert.Equal(t, []string{"InputImage", "PositionX", "PositionY", "Width", "Height", "Blur"}, body.Arguments)

	res, body = callTool(t, srv.handleValidate, ToolValidate, map[string]interface{}{
		"input_path": "photo.png",
		"x":          "left", "y": 2, "width": 3, "height": 4,
	})
	assert.True(t, res.IsError)
	require.Len(t, body.Errors, 1)
	assert.Equal(t, obfuscate.ArgPositionX, body.Errors[0].Field)
}

func TestDescribeTool(t *testing.T) {
	srv := newTestServer(t)

	req := mcp.CallToolRequest{}
	req.Params.Name = ToolDescribe
	req.Params.Arguments = map[string]interface{}{"lang": "fr"}

	res, err := srv.handleDescribe(context.Background(), req)
	require.NoError(t, err)
	text := res.Content[0].(mcp.TextContent).Text

	var md obfuscate.Metadata
	require.NoError(t, json.Unmarshal([]byte(text), &md))
	assert.Equal(t, "Obscurcir", md.DisplayName)
	assert.Len(t, md.Arguments, len(obfuscate.Descriptors()))
}

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

// Package server implements an MCP server that exposes the obfuscate
// activity as tools.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/tombee/obfuscate/internal/action/obfuscate"
	"github.com/tombee/obfuscate/internal/binding"
	"github.com/tombee/obfuscate/internal/imageio"
	"github.com/tombee/obfuscate/internal/log"
)

// Tool names.
const (
	ToolObfuscate = "obfuscate_image"
	ToolValidate  = "obfuscate_validate"
	ToolDescribe  = "obfuscate_describe"
)

// Server wraps the MCP server and provides the obfuscate tools
type Server struct {
	mcpServer   *server.MCPServer
	name        string
	version     string
	rateLimiter *RateLimiter
	logger      *slog.Logger

	action    *obfuscate.ObfuscateAction
	store     *imageio.Store
	evaluator *binding.Evaluator
}

// ServerConfig configures the MCP server
type ServerConfig struct {
	// Name is the server name (default: "obfuscate")
	Name string

	// Version is the obfuscate version
	Version string

	// Logger must not write to stdout, which carries the protocol.
	Logger *slog.Logger

	Action    *obfuscate.ObfuscateAction
	Store     *imageio.Store
	Evaluator *binding.Evaluator

	// RunsPerMinute bounds obfuscate_image calls (default 30).
	RunsPerMinute int

	// CallsPerMinute bounds all tool calls (default 120).
	CallsPerMinute int
}

// NewServer creates a new MCP server instance
func NewServer(config ServerConfig) (*Server, error) {
	if config.Action == nil || config.Store == nil {
		return nil, fmt.Errorf("mcp server needs an action and an image store")
	}
	if config.Name == "" {
		config.Name = "obfuscate"
	}
	if config.Version == "" {
		config.Version = "dev"
	}
	if config.Logger == nil {
		config.Logger = log.Discard()
	}
	if config.Evaluator == nil {
		config.Evaluator = binding.NewEvaluator()
	}
	if config.RunsPerMinute <= 0 {
		config.RunsPerMinute = 30
	}
	if config.CallsPerMinute <= 0 {
		config.CallsPerMinute = 120
	}

	s := &Server{
		mcpServer:   server.NewMCPServer(config.Name, config.Version),
		name:        config.Name,
		version:     config.Version,
		rateLimiter: NewRateLimiter(config.RunsPerMinute, config.CallsPerMinute),
		logger:      log.WithComponent(config.Logger, "mcp"),
		action:      config.Action,
		store:       config.Store,
		evaluator:   config.Evaluator,
	}
	s.registerTools()
	return s, nil
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.Tool{
		Name:        ToolObfuscate,
		Description: "Hide a rectangular region of an image with a black fill or a Gaussian blur and write the result to a new image. The input file is not modified. All missing required arguments are reported together.",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: argumentProperties(true),
			Required:   []string{"input_path", "output_path", "x", "y", "width", "height"},
		},
	}, s.handleObfuscate)

	s.mcpServer.AddTool(mcp.Tool{
		Name:        ToolValidate,
		Description: "Check obfuscate arguments without reading the image. Returns every missing or malformed argument.",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: argumentProperties(false),
		},
	}, s.handleValidate)

	s.mcpServer.AddTool(mcp.Tool{
		Name:        ToolDescribe,
		Description: "Describe the obfuscate activity and its arguments.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"lang": map[string]interface{}{
					"type":        "string",
					"description": "Language for display strings (en or fr)",
				},
			},
		},
	}, s.handleDescribe)
}

// Run serves the protocol on in/out until ctx is cancelled or in closes.
func (s *Server) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	s.logger.Info("starting MCP server", slog.String("version", s.version))

	stdio := server.NewStdioServer(s.mcpServer)
	err := stdio.Listen(ctx, in, out)
	if err != nil && !errors.Is(err, io.EOF) && ctx.Err() == nil {
		return fmt.Errorf("MCP server error: %w", err)
	}
	return nil
}

// HandleMessage dispatches one JSON-RPC message.
func (s *Server) HandleMessage(ctx context.Context, msg json.RawMessage) mcp.JSONRPCMessage {
	return s.mcpServer.HandleMessage(ctx, msg)
}

func errorResponse(message string) *mcp.CallToolResult {
	return mcp.NewToolResultError(message)
}

func jsonResponse(v interface{}) *mcp.CallToolResult {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errorResponse(fmt.Sprintf("failed to encode result: %v", err))
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(string(data)),
		},
	}
}

func jsonErrorResponse(v interface{}) *mcp.CallToolResult {
	res := jsonResponse(v)
	res.IsError = true
	return res
}

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

package mcpserver

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tombee/obfuscate/internal/commands/shared"
	"github.com/tombee/obfuscate/internal/mcp/server"
)

// NewCommand creates the mcp-server command
func NewCommand() *cobra.Command {
	var (
		runsPerMinute  int
		callsPerMinute int
	)

	cmd := &cobra.Command{
		Use:   "mcp-server",
		Short: "Start the obfuscate MCP server",
		Annotations: map[string]string{
			"group": "server",
		},
		Long: `Start the obfuscate MCP (Model Context Protocol) server on stdio.

The server exposes these tools:
  - obfuscate_image:    Obfuscate a region of an image file
  - obfuscate_validate: Check arguments without reading the image
  - obfuscate_describe: Describe the activity and its arguments

Image paths must be inside the current directory or a directory listed in
OBFUSCATE_ALLOWED_PATHS. Logs go to stderr; stdout carries the protocol.

Configuration example for an MCP client:
  {
    "mcpServers": {
      "obfuscate": {
        "command": "obfuscate",
        "args": ["mcp-server"]
      }
    }
  }`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMCPServer(cmd, runsPerMinute, callsPerMinute)
		},
	}

	cmd.Flags().IntVar(&runsPerMinute, "runs-per-minute", 30, "Maximum obfuscate_image calls per minute")
	cmd.Flags().IntVar(&callsPerMinute, "calls-per-minute", 120, "Maximum tool calls per minute")

	return cmd
}

func runMCPServer(cmd *cobra.Command, runsPerMinute, callsPerMinute int) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := shared.NewRuntime(ctx, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close(context.Background()) }()

	versionStr, _, _ := shared.GetVersion()
	srv, err := server.NewServer(server.ServerConfig{
		Name:           "obfuscate",
		Version:        versionStr,
		Logger:         rt.Logger,
		Action:         rt.Action,
		Store:          rt.Store,
		Evaluator:      rt.Evaluator,
		RunsPerMinute:  runsPerMinute,
		CallsPerMinute: callsPerMinute,
	})
	if err != nil {
		return shared.NewExecutionError("failed to create MCP server", err)
	}

	if err := srv.Run(ctx, cmd.InOrStdin(), cmd.OutOrStdout()); err != nil {
		return shared.NewExecutionError(fmt.Sprintf("MCP server stopped: %v", err), nil)
	}
	return nil
}

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

/*
Package cli provides the root command and global flags for the obfuscate CLI.

Individual commands live in the internal/commands subpackages and are
attached in main.go.

# Command Tree

	obfuscate
	├── run          Obfuscate one image
	├── validate     Check an argument file without loading images
	├── describe     Show the activity's arguments
	├── serve        Serve the activity over HTTP
	├── mcp-server   Serve the activity as an MCP tool over stdio
	├── version      Show version
	└── help         Show help

# Global Flags

	--verbose, -v    Enable verbose output
	--quiet, -q      Suppress non-error output
	--json           Output in JSON format
	--config         Path to config file

# Exit Codes

  - 0: Success
  - 1: Redaction failed
  - 2: Invalid arguments or configuration
  - 3: Time budget exhausted
  - 4: Image could not be read or written

Use HandleExitError to report an error and exit with the matching code:

	if err := rootCmd.Execute(); err != nil {
	    cli.HandleExitError(err)
	}
*/
package cli

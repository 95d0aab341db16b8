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

package describe

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/tombee/obfuscate/internal/action/obfuscate"
	"github.com/tombee/obfuscate/internal/commands/shared"
)

// Response is the JSON output of describe.
type Response struct {
	shared.JSONResponse
	Activity obfuscate.Metadata `json:"activity"`
}

// NewCommand creates the describe command
func NewCommand() *cobra.Command {
	var (
		lang   string
		format string
	)

	cmd := &cobra.Command{
		Use:   "describe",
		Short: "Show the activity and its arguments",
		Annotations: map[string]string{
			"group": "info",
		},
		Long: `Describe prints the activity's display name, category and argument grid
as a designer would show them. Strings are translated when a supported
language is requested (en, fr); the language defaults to $LANG.`,
		Example: `  obfuscate describe
  obfuscate describe --lang fr
  obfuscate describe --format yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if lang == "" {
				lang = localeFromEnv()
			}
			md := obfuscate.Describe(obfuscate.MatchLanguage(lang))

			if shared.GetJSON() {
				format = "json"
			}
			switch format {
			case "json":
				return shared.EmitJSON(cmd.OutOrStdout(), Response{
					JSONResponse: shared.NewJSONResponse("describe", true),
					Activity:     md,
				})
			case "yaml":
				enc := yaml.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent(2)
				defer enc.Close()
				return enc.Encode(md)
			case "", "text":
				printCard(cmd.OutOrStdout(), md)
				return nil
			default:
				return shared.NewValidationError(fmt.Sprintf("unknown format %q (want text, json or yaml)", format), nil)
			}
		},
	}

	cmd.Flags().StringVar(&lang, "lang", "", "Language for display strings, e.g. fr or fr-CA")
	cmd.Flags().StringVar(&format, "format", "text", "Output format: text, json or yaml")

	return cmd
}

func printCard(w io.Writer, md obfuscate.Metadata) {
	var b strings.Builder
	b.WriteString(shared.Header.Render(md.DisplayName))
	b.WriteString("  ")
	b.WriteString(shared.Muted.Render(md.Category))
	b.WriteString("\n")
	b.WriteString(md.Description)

	category := ""
	for _, a := range md.Arguments {
		if a.Category != category {
			category = a.Category
			b.WriteString("\n\n")
			b.WriteString(shared.Bold.Render(category))
		}
		b.WriteString("\n  ")
		b.WriteString(fmt.Sprintf("%-16s", a.Name))
		b.WriteString(shared.Muted.Render(fmt.Sprintf("%-4s %-8s", a.Direction, a.Type)))
		switch {
		case a.Required:
			b.WriteString(shared.StatusWarn.Render(" required"))
		case a.Default != nil:
			b.WriteString(shared.Muted.Render(fmt.Sprintf(" default %v", a.Default)))
		}
		b.WriteString("\n    ")
		b.WriteString(a.DisplayName)
		b.WriteString(": ")
		b.WriteString(a.Description)
	}

	fmt.Fprintln(w, shared.Box.Render(b.String()))
}

// localeFromEnv turns a POSIX locale such as fr_FR.UTF-8 into a BCP 47 tag.
func localeFromEnv() string {
	for _, key := range []string{"LC_ALL", "LC_MESSAGES", "LANG"} {
		v := os.Getenv(key)
		if v == "" || v == "C" || v == "POSIX" {
			continue
		}
		if i := strings.IndexAny(v, ".@"); i >= 0 {
			v = v[:i]
		}
		return strings.ReplaceAll(v, "_", "-")
	}
	return ""
}

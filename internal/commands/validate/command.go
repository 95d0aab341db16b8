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

package validate

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tombee/obfuscate/internal/action/obfuscate"
	"github.com/tombee/obfuscate/internal/binding"
	"github.com/tombee/obfuscate/internal/commands/shared"
)

// Response is the JSON output of a successful validation.
type Response struct {
	shared.JSONResponse
	Arguments []string        `json:"arguments"`
	Resolved  *ResolvedRegion `json:"resolved,omitempty"`
}

// ResolvedRegion is the region after expressions were evaluated.
type ResolvedRegion struct {
	Mode   string `json:"mode"`
	Region string `json:"region"`
	Width  int    `json:"image_width"`
	Height int    `json:"image_height"`
}

// NewCommand creates the validate command
func NewCommand() *cobra.Command {
	var (
		flags   shared.ArgFlags
		resolve bool
	)

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check activity arguments without running",
		Annotations: map[string]string{
			"group": "execution",
		},
		Long: `Validate runs the pre-flight check of the activity: every missing
required argument is reported, literals are type-checked and expressions
are compiled. The input image is not read.

With --resolve the input image is loaded and expressions are evaluated
against it, so the effective region can be inspected.

See also: obfuscate run, obfuscate describe`,
		Example: `  # Check an arguments file
  obfuscate validate --args job.yaml

  # Show the region an expression resolves to
  obfuscate validate -i photo.jpg -x 0 -y 0 -W '=image.width / 2' -H 10 --resolve --json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd, &flags, resolve)
		},
	}

	flags.Register(cmd.Flags())
	cmd.Flags().BoolVar(&resolve, "resolve", false, "Load the input image and evaluate expressions")

	return cmd
}

func runValidate(cmd *cobra.Command, flags *shared.ArgFlags, resolve bool) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	useJSON := shared.GetJSON()

	raw, vars, err := flags.Build(cmd.Flags())
	if err == nil {
		err = binding.NewEvaluator().Preflight(raw)
	}
	if err != nil {
		return report(cmd, useJSON, shared.Classify("validation failed", err))
	}

	resp := Response{
		JSONResponse: shared.NewJSONResponse("validate", true),
		Arguments:    supplied(raw),
	}

	if resolve {
		resolved, err := resolveRegion(ctx, cmd, raw, vars)
		if err != nil {
			return report(cmd, useJSON, err)
		}
		resp.Resolved = resolved
	}

	if useJSON {
		return shared.EmitJSON(cmd.OutOrStdout(), resp)
	}
	if shared.GetQuiet() {
		return nil
	}
	cmd.Println(shared.RenderOK("arguments are valid"))
	if resp.Resolved != nil {
		cmd.Printf("  %s %s\n", shared.RenderLabel("mode:  "), resp.Resolved.Mode)
		cmd.Printf("  %s %s\n", shared.RenderLabel("region:"), resp.Resolved.Region)
		cmd.Printf("  %s %dx%d\n", shared.RenderLabel("image: "), resp.Resolved.Width, resp.Resolved.Height)
	}
	return nil
}

func resolveRegion(ctx context.Context, cmd *cobra.Command, raw binding.Raw, vars map[string]interface{}) (*ResolvedRegion, error) {
	rt, err := shared.NewRuntime(ctx, cmd.ErrOrStderr())
	if err != nil {
		return nil, err
	}
	defer func() { _ = rt.Close(context.Background()) }()

	rt.Store.SetStdio(cmd.InOrStdin(), cmd.OutOrStdout())
	ref, _ := raw.Ref(obfuscate.ArgInputImage)
	img, info, err := rt.Store.Load(ctx, ref)
	if err != nil {
		return nil, shared.Classify("failed to load input image", err)
	}

	args, err := rt.Evaluator.Resolve(ctx, raw, img, vars)
	if err == nil {
		err = args.Validate()
	}
	if err != nil {
		return nil, shared.NewValidationError("validation failed", err)
	}

	req := args.Request()
	return &ResolvedRegion{
		Mode:   req.Mode.String(),
		Region: req.Region.String(),
		Width:  info.Width,
		Height: info.Height,
	}, nil
}

// supplied lists the argument names that were given, in declaration order.
func supplied(raw binding.Raw) []string {
	out := []string{}
	for _, d := range obfuscate.Descriptors() {
		if raw.Has(d.Name) {
			out = append(out, d.Name)
		}
	}
	return out
}

func report(cmd *cobra.Command, useJSON bool, err error) error {
	if useJSON {
		_ = shared.EmitJSONError(cmd.OutOrStdout(), "validate", err)
		return err
	}
	for _, e := range shared.JSONErrorsFor(err) {
		fmt.Fprintf(cmd.ErrOrStderr(), "%s %s\n", shared.RenderError(e.Code), e.Message)
		if e.Suggestion != "" {
			fmt.Fprintf(cmd.ErrOrStderr(), "  Suggestion: %s\n", e.Suggestion)
		}
	}
	return err
}

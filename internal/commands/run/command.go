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

package run

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/tombee/obfuscate/internal/action/obfuscate"
	"github.com/tombee/obfuscate/internal/binding"
	"github.com/tombee/obfuscate/internal/commands/shared"
	"github.com/tombee/obfuscate/internal/imageio"
	obferrors "github.com/tombee/obfuscate/pkg/errors"
)

// Response is the JSON output of a run.
type Response struct {
	shared.JSONResponse
	Input     imageio.Info           `json:"input"`
	Output    string                 `json:"output,omitempty"`
	Continued bool                   `json:"continued,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Errors    []shared.JSONError     `json:"errors,omitempty"`
}

// NewCommand creates the run command
func NewCommand() *cobra.Command {
	var flags shared.ArgFlags

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Obfuscate a region of an image",
		Annotations: map[string]string{
			"group": "execution",
		},
		Long: `Run hides a rectangular region of the input image and writes the result
to a new image. The input is never modified.

Arguments come from flags, from an arguments file (--args) or both; flags
win. Any numeric argument may be an expression prefixed with '=', evaluated
against the loaded image:

  --width '=image.width / 2'
  --x '=image.width - vars.margin' --var margin=16

Missing required arguments are all reported before the image is read.

Images may be local paths, '-' for stdin/stdout, or s3://bucket/key.`,
		Example: `  # Black out a 120x40 box
  obfuscate run -i scan.png -o redacted.png -x 10 -y 20 -W 120 -H 40

  # Blur a face, 30s budget
  obfuscate run -i photo.jpg -o out.jpg -x 200 -y 80 -W 64 -H 64 --blur --blur-amount 12 --timeout-ms 30000

  # Read arguments from a file
  obfuscate run --args job.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runObfuscate(cmd, &flags)
		},
	}

	flags.Register(cmd.Flags())

	return cmd
}

func runObfuscate(cmd *cobra.Command, flags *shared.ArgFlags) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	raw, vars, err := flags.Build(cmd.Flags())
	if err != nil {
		return fail(cmd, shared.Classify("invalid arguments", err))
	}

	rt, err := shared.NewRuntime(ctx, cmd.ErrOrStderr())
	if err != nil {
		return fail(cmd, err)
	}
	defer func() { _ = rt.Close(context.Background()) }()

	if err := preflight(raw, rt.Evaluator.Preflight(raw)); err != nil {
		return fail(cmd, shared.NewValidationError("invalid arguments", err))
	}

	rt.Store.SetStdio(cmd.InOrStdin(), cmd.OutOrStdout())

	inRef, _ := raw.Ref(obfuscate.ArgInputImage)
	outRef, _ := raw.Ref(obfuscate.ArgOutputImage)
	img, info, err := rt.Store.Load(ctx, inRef)
	if err != nil {
		return fail(cmd, shared.Classify("failed to load input image", err))
	}

	args, err := rt.Evaluator.Resolve(ctx, raw, img, vars)
	if err != nil {
		return fail(cmd, shared.NewValidationError("invalid arguments", err))
	}

	res, err := rt.Action.Invoke(ctx, args)
	if err != nil {
		return fail(cmd, shared.Classify("obfuscate failed", err))
	}

	resp := Response{
		JSONResponse: shared.NewJSONResponse("run", true),
		Input:        info,
		Metadata:     res.Metadata,
	}

	if res.Err != nil {
		resp.Continued = true
		resp.Errors = shared.JSONErrorsFor(res.Err)
		if shared.GetJSON() {
			return shared.EmitJSON(reportWriter(cmd, outRef), resp)
		}
		fmt.Fprintln(cmd.ErrOrStderr(), shared.RenderWarn(fmt.Sprintf("continuing without output: %v", res.Err)))
		return nil
	}

	if err := rt.Store.Save(ctx, outRef, res.OutputImage); err != nil {
		return fail(cmd, shared.Classify("failed to write output image", err))
	}
	resp.Output = outRef

	if shared.GetJSON() {
		return shared.EmitJSON(reportWriter(cmd, outRef), resp)
	}
	if shared.GetQuiet() {
		return nil
	}

	w := reportWriter(cmd, outRef)
	fmt.Fprintln(w, shared.RenderOK(fmt.Sprintf("%s %v of %s -> %s",
		res.Metadata["mode"], res.Metadata["region"], inRef, outRef)))
	if info.Exif.Identifying() {
		fmt.Fprintln(w, shared.RenderWarn("input carried identifying EXIF metadata; it was not copied to the output"))
	}
	return nil
}

// preflight adds the output reference, which the command requires but
// the activity does not, to the argument check.
func preflight(raw binding.Raw, argErr error) error {
	var errs obferrors.ValidationErrors
	if argErr != nil && !obferrors.As(argErr, &errs) {
		return argErr
	}
	if _, ok := raw.Ref(obfuscate.ArgOutputImage); !ok {
		msg := "no output image given"
		if raw.Has(obfuscate.ArgOutputImage) {
			msg = "expected a path or URI"
		}
		errs = append(errs, &obferrors.ValidationError{
			Field:      obfuscate.ArgOutputImage,
			Message:    msg,
			Suggestion: "pass --output <file>, '-' for stdout or s3://bucket/key",
		})
	}
	return errs.OrNil()
}

func fail(cmd *cobra.Command, err error) error {
	if shared.GetJSON() {
		_ = shared.EmitJSONError(cmd.OutOrStdout(), "run", err)
	}
	return err
}

// Image data on stdout leaves no room for reports there.
func reportWriter(cmd *cobra.Command, outRef string) io.Writer {
	if outRef == imageio.StdioRef {
		return cmd.ErrOrStderr()
	}
	return cmd.OutOrStdout()
}

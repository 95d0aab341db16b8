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

// Package obfuscate provides the Obfuscate activity: it hides a
// rectangular region of an image behind a black fill or a Gaussian blur,
// within a time budget.
//
// Hosts call Run with typed Arguments, Invoke to also honour
// ContinueOnError, or Execute with a loosely typed input map.
package obfuscate

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tombee/obfuscate/internal/log"
	"github.com/tombee/obfuscate/internal/redact"
	"github.com/tombee/obfuscate/internal/timeout"
	obferrors "github.com/tombee/obfuscate/pkg/errors"
)

// ActionName is the activity identifier.
const ActionName = "obfuscate"

// Recorder receives per-invocation measurements.
type Recorder interface {
	RecordInvocation(ctx context.Context, mode, outcome string, duration time.Duration, pixels int64)
	RecordValidationFailure(ctx context.Context, field string)
}

// ObfuscateAction implements the Obfuscate activity.
type ObfuscateAction struct {
	config   *Config
	redactor *redact.Redactor
	logger   *slog.Logger
	tracer   trace.Tracer
	recorder Recorder

	// redactFn is redactor.Redact unless a test replaces it.
	redactFn func(context.Context, image.Image, redact.Request) (*image.NRGBA, error)
}

// Config holds configuration for the obfuscate action.
type Config struct {
	// Redact tunes the blur kernel and the input size limit.
	Redact redact.Options

	// DefaultTimeout applies when TimeoutMS is not supplied (default: 60s).
	DefaultTimeout time.Duration

	// Logger receives one line per invocation. Defaults to slog.Default().
	Logger *slog.Logger

	// Tracer starts one span per invocation. Defaults to the global provider.
	Tracer trace.Tracer

	// Recorder receives metrics. Optional.
	Recorder Recorder
}

// DefaultConfig returns sensible defaults for the obfuscate action.
func DefaultConfig() *Config {
	return &Config{
		Redact:         redact.DefaultOptions(),
		DefaultTimeout: DefaultTimeoutMS * time.Millisecond,
	}
}

// New creates a new obfuscate action instance.
func New(config *Config) (*ObfuscateAction, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if config.DefaultTimeout == 0 {
		config.DefaultTimeout = DefaultTimeoutMS * time.Millisecond
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	tracer := config.Tracer
	if tracer == nil {
		tracer = otel.Tracer("github.com/tombee/obfuscate/internal/action/obfuscate")
	}

	a := &ObfuscateAction{
		config:   config,
		redactor: redact.New(config.Redact),
		logger:   log.WithComponent(logger, ActionName),
		tracer:   tracer,
		recorder: config.Recorder,
	}
	a.redactFn = a.redactor.Redact
	return a, nil
}

// Name returns the action identifier.
func (a *ObfuscateAction) Name() string {
	return ActionName
}

// Operations returns the list of supported operations.
func (a *ObfuscateAction) Operations() []string {
	return []string{ActionName}
}

// Result is the output of one invocation.
type Result struct {
	// OutputImage is nil whenever the invocation did not complete.
	OutputImage *image.NRGBA

	// Err is the failure that ContinueOnError suppressed, if any.
	Err error

	Metadata map[string]interface{}
}

// Execute runs the named operation with loosely typed inputs. It honours
// ContinueOnError.
func (a *ObfuscateAction) Execute(ctx context.Context, operation string, inputs map[string]interface{}) (*Result, error) {
	if operation != ActionName {
		return nil, &obferrors.ValidationError{
			Field:      "operation",
			Message:    "unknown operation " + operation,
			Suggestion: "Valid operations: " + ActionName,
		}
	}

	args, err := ArgumentsFromMap(inputs)
	if err != nil {
		a.recordValidation(ctx, err)
		return nil, err
	}
	return a.Invoke(ctx, args)
}

// Invoke runs the activity and applies ContinueOnError: when set, a
// timeout or operation failure is logged and returned in Result.Err
// instead of as an error. Validation failures are never suppressed.
func (a *ObfuscateAction) Invoke(ctx context.Context, args Arguments) (*Result, error) {
	res, err := a.Run(ctx, args)
	if err == nil {
		return res, nil
	}

	var verrs obferrors.ValidationErrors
	var verr *obferrors.ValidationError
	if obferrors.As(err, &verrs) || obferrors.As(err, &verr) || !args.ContinueOnError.OrElse(false) {
		return nil, err
	}

	a.logger.WarnContext(ctx, "continuing after failure",
		slog.String(log.ErrorKey, err.Error()),
		slog.String(log.ErrorTypeKey, obferrors.TypeOf(err)),
	)
	return &Result{
		Err: err,
		Metadata: map[string]interface{}{
			"continued": true,
			"outcome":   string(timeout.Classify(err)),
		},
	}, nil
}

// Run validates args, then redacts the image under the time budget.
// Missing required arguments are reported before any work starts.
func (a *ObfuscateAction) Run(ctx context.Context, args Arguments) (*Result, error) {
	if err := args.Validate(); err != nil {
		a.recordValidation(ctx, err)
		return nil, err
	}

	req := args.Request()
	if req.Mode == redact.ModeBlur && req.BlurStrength > a.redactor.MaxBlurRadius() {
		err := &obferrors.ValidationError{
			Field:      ArgBlurAmount,
			Message:    fmt.Sprintf("must be at most %d, got %d", a.redactor.MaxBlurRadius(), req.BlurStrength),
			Suggestion: "raise redact.max_blur_radius if larger radii are needed",
		}
		a.recordValidation(ctx, err)
		return nil, err
	}
	budget := a.config.DefaultTimeout
	if args.TimeoutMS.IsSet() {
		budget = args.Timeout()
	}
	img, _ := args.InputImage.Get()
	size := img.Bounds().Size()

	ctx, span := a.tracer.Start(ctx, "obfuscate.run",
		trace.WithAttributes(
			attribute.String("obfuscate.mode", req.Mode.String()),
			attribute.String("obfuscate.region", req.Region.String()),
			attribute.Int("obfuscate.blur_amount", req.BlurStrength),
			attribute.Int64("obfuscate.timeout_ms", budget.Milliseconds()),
			attribute.Int("image.width", size.X),
			attribute.Int("image.height", size.Y),
		),
	)
	defer span.End()

	log.Trace(ctx, a.logger, "obfuscate starting",
		slog.Int("image_width", size.X),
		slog.Int("image_height", size.Y),
		slog.Int("blur_amount", req.BlurStrength),
		slog.Float64("sigma", a.redactor.Sigma()),
		slog.Int64("timeout_ms", budget.Milliseconds()),
	)

	start := time.Now()
	out, err := timeout.Run(ctx, budget, ActionName, func(ctx context.Context) (*image.NRGBA, error) {
		return a.redactFn(ctx, img, req)
	})
	elapsed := time.Since(start)
	outcome := timeout.Classify(err)

	if a.recorder != nil {
		a.recorder.RecordInvocation(ctx, req.Mode.String(), string(outcome), elapsed, int64(size.X)*int64(size.Y))
	}

	attrs := []any{
		slog.String(log.ModeKey, req.Mode.String()),
		slog.String(log.RegionKey, req.Region.String()),
		slog.String(log.OutcomeKey, string(outcome)),
		slog.Int64(log.DurationKey, elapsed.Milliseconds()),
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		a.logger.ErrorContext(ctx, "obfuscate failed", append(attrs, slog.String(log.ErrorKey, err.Error()))...)
		return nil, err
	}

	span.SetStatus(codes.Ok, "")
	a.logger.DebugContext(ctx, "obfuscate completed", attrs...)

	return &Result{
		OutputImage: out,
		Metadata: map[string]interface{}{
			"mode":        req.Mode.String(),
			"region":      req.Region.String(),
			"width":       out.Bounds().Dx(),
			"height":      out.Bounds().Dy(),
			"duration_ms": elapsed.Milliseconds(),
			"outcome":     string(outcome),
		},
	}, nil
}

func (a *ObfuscateAction) recordValidation(ctx context.Context, err error) {
	if a.recorder == nil {
		return
	}
	var verrs obferrors.ValidationErrors
	if obferrors.As(err, &verrs) {
		for _, f := range verrs.Fields() {
			a.recorder.RecordValidationFailure(ctx, f)
		}
		return
	}
	var verr *obferrors.ValidationError
	if obferrors.As(err, &verr) {
		a.recorder.RecordValidationFailure(ctx, verr.Field)
	}
}

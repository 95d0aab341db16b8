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
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/tombee/obfuscate/internal/action/obfuscate"
	"github.com/tombee/obfuscate/internal/binding"
	"github.com/tombee/obfuscate/internal/config"
	"github.com/tombee/obfuscate/internal/imageio"
	"github.com/tombee/obfuscate/internal/log"
	"github.com/tombee/obfuscate/internal/redact"
	"github.com/tombee/obfuscate/internal/tracing"
)

// Runtime is everything a command needs to run the activity.
type Runtime struct {
	Config    *config.Config
	Logger    *slog.Logger
	Telemetry *tracing.Provider
	Action    *obfuscate.ObfuscateAction
	Store     *imageio.Store
	Evaluator *binding.Evaluator
}

// NewRuntime loads configuration and wires the logger, telemetry, image
// store and activity. Logs and stdout-exported spans go to logOutput
// (stderr when nil).
func NewRuntime(ctx context.Context, logOutput io.Writer) (*Runtime, error) {
	if logOutput == nil {
		logOutput = os.Stderr
	}

	cfg, err := config.Load(config.ResolvePath(GetConfigPath()))
	if err != nil {
		return nil, NewValidationError("invalid configuration", err)
	}

	logger := log.New(loggerConfig(cfg, logOutput))

	version, _, _ := GetVersion()
	provider, err := tracing.NewProvider(ctx, tracing.Config{
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: version,
		Exporter:       cfg.Telemetry.Exporter,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		SampleRate:     cfg.Telemetry.SampleRate,
		Writer:         logOutput,
	})
	if err != nil {
		return nil, NewExecutionError("failed to start telemetry", err)
	}

	action, err := obfuscate.New(&obfuscate.Config{
		Redact: redact.Options{
			Sigma:         cfg.Redact.BlurSigma,
			MaxPixels:     int(cfg.Redact.MaxPixels),
			MaxBlurRadius: cfg.Redact.MaxBlurRadius,
		},
		DefaultTimeout: cfg.Redact.DefaultTimeout,
		Logger:         logger,
		Tracer:         provider.Tracer("github.com/tombee/obfuscate"),
		Recorder:       provider.MetricsCollector(),
	})
	if err != nil {
		_ = provider.Shutdown(ctx)
		return nil, NewExecutionError("failed to create activity", err)
	}

	store := imageio.NewStore(imageio.Options{
		JPEGQuality:   cfg.Output.JPEGQuality,
		DefaultFormat: cfg.Output.DefaultFormat,
		MaxPixels:     cfg.Redact.MaxPixels,
		S3: imageio.S3Options{
			Region:    cfg.Storage.S3Region,
			Endpoint:  cfg.Storage.S3Endpoint,
			PathStyle: cfg.Storage.S3PathStyle,
		},
		Logger: logger,
	})

	return &Runtime{
		Config:    cfg,
		Logger:    logger,
		Telemetry: provider,
		Action:    action,
		Store:     store,
		Evaluator: binding.NewEvaluator(),
	}, nil
}

// Close flushes telemetry.
func (r *Runtime) Close(ctx context.Context) error {
	return r.Telemetry.Shutdown(ctx)
}

func loggerConfig(cfg *config.Config, out io.Writer) *log.Config {
	lc := &log.Config{
		Level:     cfg.Log.Level,
		Format:    log.Format(cfg.Log.Format),
		Output:    out,
		AddSource: cfg.Log.AddSource,
	}
	if env := os.Getenv("OBFUSCATE_DEBUG"); env == "1" || env == "true" {
		lc.Level = "debug"
		lc.AddSource = true
	}
	switch {
	case GetVerbose():
		lc.Level = "debug"
	case GetQuiet():
		lc.Level = "error"
	}
	return lc
}

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

package serve

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tombee/obfuscate/internal/commands/shared"
	"github.com/tombee/obfuscate/internal/config"
	"github.com/tombee/obfuscate/internal/httpapi"
)

// NewCommand creates the serve command
func NewCommand() *cobra.Command {
	var (
		addr          string
		maxConcurrent int64
		rateLimit     string
		noMetrics     bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the activity over HTTP",
		Annotations: map[string]string{
			"group": "server",
		},
		Long: `Serve exposes the activity over HTTP until interrupted.

Routes:
  POST /v1/obfuscate   image body, arguments as query parameters
  GET  /v1/metadata    activity description (?lang=fr)
  GET  /healthz        liveness
  GET  /metrics        Prometheus metrics

On SIGINT or SIGTERM the server stops accepting connections and waits up
to server.shutdown_timeout for in-flight requests.`,
		Example: `  obfuscate serve --addr :8080
  curl --data-binary @photo.jpg -H 'Accept: image/png' \
    'http://localhost:8080/v1/obfuscate?x=10&y=10&width=100&height=40&blur=true&blur_amount=8' > out.png`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, addr, maxConcurrent, rateLimit, noMetrics)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from config: 127.0.0.1:8080)")
	cmd.Flags().Int64Var(&maxConcurrent, "max-concurrent", 0, "Maximum redactions running at once")
	cmd.Flags().StringVar(&rateLimit, "rate-limit", "", "Request rate limit, e.g. 10/second")
	cmd.Flags().BoolVar(&noMetrics, "no-metrics", false, "Do not expose /metrics")

	return cmd
}

func runServe(cmd *cobra.Command, addr string, maxConcurrent int64, rateLimit string, noMetrics bool) error {
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

	srvCfg := rt.Config.Server
	if addr != "" {
		srvCfg.Addr = addr
	}
	if maxConcurrent > 0 {
		srvCfg.MaxConcurrent = maxConcurrent
	}
	if rateLimit != "" {
		srvCfg.RateLimit = rateLimit
	}

	router, err := NewHandler(rt, srvCfg, !noMetrics)
	if err != nil {
		return err
	}

	srv := httpapi.NewServer(srvCfg.Addr, router, rt.Logger)
	startErr := srv.Start(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), srvCfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && startErr == nil {
		return shared.NewExecutionError("graceful shutdown failed", err)
	}
	if startErr != nil {
		return shared.NewExecutionError("http server failed", startErr)
	}
	return nil
}

// NewHandler builds the HTTP handler for rt with the given server settings.
func NewHandler(rt *shared.Runtime, srvCfg config.ServerConfig, metrics bool) (http.Handler, error) {
	opts := httpapi.Options{
		Action:        rt.Action,
		Store:         rt.Store,
		Evaluator:     rt.Evaluator,
		Logger:        rt.Logger,
		Tracer:        rt.Telemetry.Tracer("github.com/tombee/obfuscate/internal/httpapi"),
		Metrics:       rt.Telemetry.MetricsCollector(),
		MaxConcurrent: srvCfg.MaxConcurrent,
		RateBurst:     srvCfg.RateBurst,
	}
	if metrics {
		opts.MetricsHandler = rt.Telemetry.MetricsHandler()
	}
	if srvCfg.RateLimit != "" {
		limit, err := config.ParseRateLimit(srvCfg.RateLimit)
		if err != nil {
			return nil, shared.NewValidationError("invalid rate limit", err)
		}
		opts.RateLimit = limit.PerSecond()
	}
	return httpapi.NewRouter(opts)
}

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
Package tracing provides tracing and metrics for obfuscate.

# Overview

NewProvider builds an OpenTelemetry TracerProvider whose spans go to the
exporter named in Config (none, stdout, OTLP over gRPC or HTTP) and a
MeterProvider read by a Prometheus exporter. Both are installed globally.

# Quick Start

	provider, err := tracing.NewProvider(ctx, tracing.Config{
	    ServiceName: "obfuscate",
	    Exporter:    tracing.ExporterStdout,
	    SampleRate:  1.0,
	})
	if err != nil {
	    return err
	}
	defer provider.Shutdown(ctx)

	action, _ := obfuscate.New(&obfuscate.Config{
	    Tracer:   provider.Tracer("obfuscate"),
	    Recorder: provider.MetricsCollector(),
	})

# Metrics

  - obfuscate_invocations_total{mode,outcome}
  - obfuscate_duration_seconds{mode}
  - obfuscate_pixels_total{mode}
  - obfuscate_validation_failures_total{field}
  - obfuscate_in_flight

MetricsHandler serves them in the Prometheus text format.
*/
package tracing

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

package tracing

import (
	"context"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsCollector records obfuscate activity metrics.
type MetricsCollector struct {
	meter metric.Meter

	// Counters
	invocationsTotal   metric.Int64Counter
	pixelsTotal        metric.Int64Counter
	validationFailures metric.Int64Counter

	// Histograms
	duration metric.Float64Histogram

	// Gauges (observed)
	inFlight atomic.Int64
}

// NewMetricsCollector creates a new metrics collector using the given meter provider
func NewMetricsCollector(meterProvider metric.MeterProvider) (*MetricsCollector, error) {
	meter := meterProvider.Meter("obfuscate")

	mc := &MetricsCollector{
		meter: meter,
	}

	var err error

	mc.invocationsTotal, err = meter.Int64Counter(
		"obfuscate_invocations_total",
		metric.WithDescription("Total number of obfuscate invocations"),
		metric.WithUnit("{invocation}"),
	)
	if err != nil {
		return nil, err
	}

	mc.pixelsTotal, err = meter.Int64Counter(
		"obfuscate_pixels_total",
		metric.WithDescription("Total number of input pixels processed"),
		metric.WithUnit("{pixel}"),
	)
	if err != nil {
		return nil, err
	}

	mc.validationFailures, err = meter.Int64Counter(
		"obfuscate_validation_failures_total",
		metric.WithDescription("Missing or malformed arguments, by field"),
		metric.WithUnit("{failure}"),
	)
	if err != nil {
		return nil, err
	}

	mc.duration, err = meter.Float64Histogram(
		"obfuscate_duration_seconds",
		metric.WithDescription("Obfuscate invocation duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	_, err = meter.Int64ObservableGauge(
		"obfuscate_in_flight",
		metric.WithDescription("Number of invocations currently running"),
		metric.WithUnit("{invocation}"),
		metric.WithInt64Callback(func(ctx context.Context, observer metric.Int64Observer) error {
			observer.Observe(mc.inFlight.Load())
			return nil
		}),
	)
	if err != nil {
		return nil, err
	}

	return mc, nil
}

// RecordInvocation records one finished invocation.
func (mc *MetricsCollector) RecordInvocation(ctx context.Context, mode, outcome string, duration time.Duration, pixels int64) {
	modeAttr := attribute.String("mode", mode)

	mc.invocationsTotal.Add(ctx, 1, metric.WithAttributes(modeAttr, attribute.String("outcome", outcome)))
	mc.duration.Record(ctx, duration.Seconds(), metric.WithAttributes(modeAttr))
	if pixels > 0 {
		mc.pixelsTotal.Add(ctx, pixels, metric.WithAttributes(modeAttr))
	}
}

// RecordValidationFailure counts one missing or malformed argument.
func (mc *MetricsCollector) RecordValidationFailure(ctx context.Context, field string) {
	mc.validationFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("field", field)))
}

// TrackInFlight increments the in-flight gauge and returns the matching
// decrement.
func (mc *MetricsCollector) TrackInFlight() func() {
	mc.inFlight.Add(1)
	return func() { mc.inFlight.Add(-1) }
}

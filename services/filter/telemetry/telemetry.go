// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
)

// Config controls telemetry behavior.
type Config struct {
	// ServiceName identifies this tool in exported metrics.
	ServiceName string `json:"service_name"`

	// ExportInterval is how often metrics are flushed to the exporter.
	ExportInterval time.Duration `json:"export_interval"`
}

// DefaultConfig returns opinionated defaults.
func DefaultConfig() Config {
	return Config{
		ServiceName:    "tracefilter",
		ExportInterval: 10 * time.Second,
	}
}

// Init initializes the metric stack with a stdout exporter.
//
// Description:
//
//	Sets up an OpenTelemetry MeterProvider backed by the stdout metric
//	exporter and installs it globally. After Init returns successfully,
//	otel.Meter() can be used throughout the tool. The filter is a batch
//	CLI, so metrics are dumped to stdout at the export interval and on
//	shutdown rather than scraped.
//
// Outputs:
//
//	shutdown - Function to call on exit; flushes pending metrics.
//	error - Non-nil if initialization fails.
func Init(ctx context.Context, cfg Config) (func(context.Context) error, error) {
	exporter, err := stdoutmetric.New()
	if err != nil {
		return nil, fmt.Errorf("create stdout metric exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(attribute.String("service.name", cfg.ServiceName)),
	)
	if err != nil {
		return nil, fmt.Errorf("create telemetry resource: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter,
			sdkmetric.WithInterval(cfg.ExportInterval))),
	)
	otel.SetMeterProvider(provider)

	return provider.Shutdown, nil
}

// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package telemetry provides OpenTelemetry metrics for the record filter.
package telemetry

import (
	"fmt"

	"go.opentelemetry.io/otel/metric"
)

// Metrics contains pre-defined metrics for the record filter.
//
// Description:
//
//	Provides counters for record flow and shard lifecycle. All metrics
//	use the "filter_" prefix for consistent naming.
//
// Thread Safety: Safe for concurrent use after creation.
type Metrics struct {
	// RecordsIn counts records received across all shards.
	RecordsIn metric.Int64Counter

	// RecordsOut counts records written across all shards, including
	// synthesized markers.
	RecordsOut metric.Int64Counter

	// RecordsDropped counts logical units removed by filter stages.
	RecordsDropped metric.Int64Counter

	// MarkersSynthesized counts filter-endpoint markers emitted at
	// cutoff points.
	MarkersSynthesized metric.Int64Counter

	// ChunksOpened counts archive components opened across all shards.
	ChunksOpened metric.Int64Counter

	// ShardErrors counts shards that hit a fatal error.
	ShardErrors metric.Int64Counter

	// ActiveShards tracks shards currently between init and exit.
	ActiveShards metric.Int64UpDownCounter
}

// NewMetrics creates a new Metrics instance with all metrics registered.
//
// Inputs:
//
//	meter - The OTel meter to use for metric registration.
//
// Outputs:
//
//	*Metrics - The metrics instance with all counters initialized.
//	error - Non-nil if metric registration fails.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	if m.RecordsIn, err = meter.Int64Counter("filter_records_in_total",
		metric.WithDescription("Trace records received"),
	); err != nil {
		return nil, fmt.Errorf("create filter_records_in_total: %w", err)
	}
	if m.RecordsOut, err = meter.Int64Counter("filter_records_out_total",
		metric.WithDescription("Trace records written, including synthesized markers"),
	); err != nil {
		return nil, fmt.Errorf("create filter_records_out_total: %w", err)
	}
	if m.RecordsDropped, err = meter.Int64Counter("filter_records_dropped_total",
		metric.WithDescription("Logical record units removed by filter stages"),
	); err != nil {
		return nil, fmt.Errorf("create filter_records_dropped_total: %w", err)
	}
	if m.MarkersSynthesized, err = meter.Int64Counter("filter_markers_synthesized_total",
		metric.WithDescription("Filter-endpoint markers emitted at cutoff points"),
	); err != nil {
		return nil, fmt.Errorf("create filter_markers_synthesized_total: %w", err)
	}
	if m.ChunksOpened, err = meter.Int64Counter("filter_chunks_opened_total",
		metric.WithDescription("Archive chunk components opened"),
	); err != nil {
		return nil, fmt.Errorf("create filter_chunks_opened_total: %w", err)
	}
	if m.ShardErrors, err = meter.Int64Counter("filter_shard_errors_total",
		metric.WithDescription("Shards that hit a fatal error"),
	); err != nil {
		return nil, fmt.Errorf("create filter_shard_errors_total: %w", err)
	}
	if m.ActiveShards, err = meter.Int64UpDownCounter("filter_active_shards",
		metric.WithDescription("Shards currently being processed"),
	); err != nil {
		return nil, fmt.Errorf("create filter_active_shards: %w", err)
	}

	return m, nil
}

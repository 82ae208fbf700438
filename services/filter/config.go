// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package filter

import (
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/AleutianAI/tracefilter/services/filter/stage"
)

// Config describes one filter run. It is fixed before the first shard is
// created and never changes mid-run.
type Config struct {
	// OutputDir is the directory per-shard output files are written to.
	// It must exist; directory setup is the caller's concern.
	OutputDir string `json:"output_dir" validate:"required,dir"`

	// StopTimestamp disables filtering for the remainder of a shard once
	// the shard's observed timestamp reaches it. Zero means no cutoff.
	StopTimestamp uint64 `json:"stop_timestamp"`

	// RemoveKinds lists record kinds the kind stage removes.
	RemoveKinds []string `json:"remove_kinds" validate:"omitempty,dive,oneof=instr instr-no-fetch instr-maybe-fetch instr-bundle encoding marker data-read data-write"`

	// RemoveMarkers lists marker subtypes the kind stage removes.
	RemoveMarkers []string `json:"remove_markers" validate:"omitempty,dive,oneof=timestamp filetype chunk-footer record-ordinal filter-endpoint"`

	// KeepAddrRanges lists "low-high" address ranges; when non-empty, the
	// address-range stage removes every addressed record outside them.
	KeepAddrRanges []string `json:"keep_addr_ranges"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the configuration before any shard starts.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid filter config: %w", err)
	}
	// Range specs carry structure oneof cannot express; parse to check.
	if _, err := stage.ParseAddrRanges(c.KeepAddrRanges); err != nil {
		return fmt.Errorf("invalid filter config: %w", err)
	}
	return nil
}

// Stages builds the configured filter stages, in their fixed application
// order: kind removal first, then address ranges.
func (c *Config) Stages() ([]stage.Stage, error) {
	var stages []stage.Stage
	if len(c.RemoveKinds) > 0 || len(c.RemoveMarkers) > 0 {
		kinds, err := stage.ParseKinds(c.RemoveKinds)
		if err != nil {
			return nil, err
		}
		markers, err := stage.ParseMarkers(c.RemoveMarkers)
		if err != nil {
			return nil, err
		}
		stages = append(stages, stage.NewKindStage(kinds, markers))
	}
	if len(c.KeepAddrRanges) > 0 {
		ranges, err := stage.ParseAddrRanges(c.KeepAddrRanges)
		if err != nil {
			return nil, err
		}
		stages = append(stages, stage.NewAddrRangeStage(ranges))
	}
	return stages, nil
}

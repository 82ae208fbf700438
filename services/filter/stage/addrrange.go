// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package stage

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/AleutianAI/tracefilter/services/filter/record"
)

// AddrRange is an inclusive address interval.
type AddrRange struct {
	Low  uint64
	High uint64
}

// Contains reports whether addr falls inside the range.
func (r AddrRange) Contains(addr uint64) bool {
	return addr >= r.Low && addr <= r.High
}

// AddrRangeStage keeps instruction-like and data records only when their
// address falls inside one of the configured ranges. Records that carry no
// address (markers, encodings) always pass; encodings stay tied to their
// instruction through the processor's deferral machinery, so filtering the
// instruction is sufficient.
type AddrRangeStage struct {
	ranges []AddrRange
}

// NewAddrRangeStage builds a stage keeping only addresses inside ranges.
func NewAddrRangeStage(ranges []AddrRange) *AddrRangeStage {
	return &AddrRangeStage{ranges: ranges}
}

// Name implements Stage.
func (s *AddrRangeStage) Name() string { return "addr-range" }

// ShardInit implements Stage.
func (s *AddrRangeStage) ShardInit(shard Meta, cutoffConfigured bool) (any, error) {
	if len(s.ranges) == 0 {
		return nil, fmt.Errorf("addr-range stage configured with no ranges")
	}
	return nil, nil
}

// Keep implements Stage.
func (s *AddrRangeStage) Keep(rec *record.Record, state any) bool {
	switch rec.Kind {
	case record.KindInstrFetch, record.KindInstrNoFetch, record.KindInstrMaybeFetch,
		record.KindInstrBundle, record.KindDataRead, record.KindDataWrite:
		for _, r := range s.ranges {
			if r.Contains(rec.Value) {
				return true
			}
		}
		return false
	default:
		return true
	}
}

// ShardExit implements Stage.
func (s *AddrRangeStage) ShardExit(state any) error { return nil }

// ParseAddrRanges parses CLI range specs of the form "low-high" where each
// bound is decimal or 0x-prefixed hex, e.g. "0x1000-0x1fff".
func ParseAddrRanges(specs []string) ([]AddrRange, error) {
	ranges := make([]AddrRange, 0, len(specs))
	for _, spec := range specs {
		low, high, ok := strings.Cut(strings.TrimSpace(spec), "-")
		if !ok {
			return nil, fmt.Errorf("address range %q: want low-high", spec)
		}
		lo, err := strconv.ParseUint(low, 0, 64)
		if err != nil {
			return nil, fmt.Errorf("address range %q: %w", spec, err)
		}
		hi, err := strconv.ParseUint(high, 0, 64)
		if err != nil {
			return nil, fmt.Errorf("address range %q: %w", spec, err)
		}
		if hi < lo {
			return nil, fmt.Errorf("address range %q: high below low", spec)
		}
		ranges = append(ranges, AddrRange{Low: lo, High: hi})
	}
	return ranges, nil
}

var _ Stage = (*AddrRangeStage)(nil)

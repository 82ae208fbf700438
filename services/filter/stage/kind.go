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
	"strings"

	"github.com/AleutianAI/tracefilter/services/filter/record"
)

// KindStage removes records by kind, and marker records by marker subtype.
//
// It is stateless per shard: its per-shard state only carries the count of
// records it rejected, reported at debug level by callers that care.
type KindStage struct {
	removeKinds   map[record.Kind]bool
	removeMarkers map[uint16]bool
}

// kindShardState counts rejections for one shard.
type kindShardState struct {
	removed uint64
}

// NewKindStage builds a stage that rejects every record whose kind is in
// kinds, and every marker whose subtype is in markers. Non-marker records
// are never matched against markers.
func NewKindStage(kinds []record.Kind, markers []uint16) *KindStage {
	s := &KindStage{
		removeKinds:   make(map[record.Kind]bool, len(kinds)),
		removeMarkers: make(map[uint16]bool, len(markers)),
	}
	for _, k := range kinds {
		s.removeKinds[k] = true
	}
	for _, m := range markers {
		s.removeMarkers[m] = true
	}
	return s
}

// Name implements Stage.
func (s *KindStage) Name() string { return "kind" }

// ShardInit implements Stage.
func (s *KindStage) ShardInit(shard Meta, cutoffConfigured bool) (any, error) {
	return &kindShardState{}, nil
}

// Keep implements Stage.
func (s *KindStage) Keep(rec *record.Record, state any) bool {
	drop := s.removeKinds[rec.Kind] ||
		(rec.Kind == record.KindMarker && s.removeMarkers[rec.Subtype])
	if drop {
		state.(*kindShardState).removed++
	}
	return !drop
}

// ShardExit implements Stage.
func (s *KindStage) ShardExit(state any) error { return nil }

// kindNames maps the CLI spelling of each record kind.
var kindNames = map[string]record.Kind{
	"instr":             record.KindInstrFetch,
	"instr-no-fetch":    record.KindInstrNoFetch,
	"instr-maybe-fetch": record.KindInstrMaybeFetch,
	"instr-bundle":      record.KindInstrBundle,
	"encoding":          record.KindEncoding,
	"marker":            record.KindMarker,
	"data-read":         record.KindDataRead,
	"data-write":        record.KindDataWrite,
}

// markerNames maps the CLI spelling of each marker subtype.
var markerNames = map[string]uint16{
	"timestamp":       record.MarkerTimestamp,
	"filetype":        record.MarkerFiletype,
	"chunk-footer":    record.MarkerChunkFooter,
	"record-ordinal":  record.MarkerRecordOrdinal,
	"filter-endpoint": record.MarkerFilterEndpoint,
}

// ParseKinds converts CLI kind names to record kinds.
func ParseKinds(names []string) ([]record.Kind, error) {
	kinds := make([]record.Kind, 0, len(names))
	for _, name := range names {
		k, ok := kindNames[strings.TrimSpace(name)]
		if !ok {
			return nil, fmt.Errorf("unknown record kind %q", name)
		}
		kinds = append(kinds, k)
	}
	return kinds, nil
}

// ParseMarkers converts CLI marker names to marker subtypes.
func ParseMarkers(names []string) ([]uint16, error) {
	markers := make([]uint16, 0, len(names))
	for _, name := range names {
		m, ok := markerNames[strings.TrimSpace(name)]
		if !ok {
			return nil, fmt.Errorf("unknown marker subtype %q", name)
		}
		markers = append(markers, m)
	}
	return markers, nil
}

var _ Stage = (*KindStage)(nil)

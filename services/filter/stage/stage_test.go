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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/tracefilter/services/filter/record"
)

type fakeMeta struct{ name string }

func (m fakeMeta) Name() string { return m.name }

func (m fakeMeta) LastTimestamp() uint64 { return 0 }

func TestKindStage(t *testing.T) {
	t.Run("removes configured kinds", func(t *testing.T) {
		s := NewKindStage([]record.Kind{record.KindDataRead, record.KindDataWrite}, nil)
		state, err := s.ShardInit(fakeMeta{"s"}, false)
		require.NoError(t, err)

		assert.False(t, s.Keep(&record.Record{Kind: record.KindDataRead, Value: 8}, state))
		assert.False(t, s.Keep(&record.Record{Kind: record.KindDataWrite, Value: 8}, state))
		assert.True(t, s.Keep(&record.Record{Kind: record.KindInstrFetch, Value: 0x10}, state))
		assert.True(t, s.Keep(&record.Record{Kind: record.KindMarker, Subtype: record.MarkerTimestamp}, state))
		assert.NoError(t, s.ShardExit(state))
	})

	t.Run("marker removal matches subtype only on markers", func(t *testing.T) {
		s := NewKindStage(nil, []uint16{record.MarkerTimestamp})
		state, err := s.ShardInit(fakeMeta{"s"}, false)
		require.NoError(t, err)

		assert.False(t, s.Keep(&record.Record{Kind: record.KindMarker, Subtype: record.MarkerTimestamp}, state))
		// A non-marker whose subtype happens to collide is untouched.
		assert.True(t, s.Keep(&record.Record{Kind: record.KindDataRead, Subtype: record.MarkerTimestamp}, state))
	})
}

func TestAddrRangeStage(t *testing.T) {
	s := NewAddrRangeStage([]AddrRange{{Low: 0x1000, High: 0x1fff}})
	state, err := s.ShardInit(fakeMeta{"s"}, false)
	require.NoError(t, err)

	assert.True(t, s.Keep(&record.Record{Kind: record.KindInstrFetch, Value: 0x1000}, state))
	assert.True(t, s.Keep(&record.Record{Kind: record.KindDataWrite, Value: 0x1fff}, state))
	assert.False(t, s.Keep(&record.Record{Kind: record.KindInstrFetch, Value: 0x2000}, state))
	assert.False(t, s.Keep(&record.Record{Kind: record.KindDataRead, Value: 0xfff}, state))
	// Address-free records always pass.
	assert.True(t, s.Keep(&record.Record{Kind: record.KindMarker, Subtype: record.MarkerFiletype, Value: 5}, state))
	assert.True(t, s.Keep(&record.Record{Kind: record.KindEncoding, Value: 0x99}, state))

	t.Run("empty range set is a construction error", func(t *testing.T) {
		_, err := NewAddrRangeStage(nil).ShardInit(fakeMeta{"s"}, false)
		assert.Error(t, err)
	})
}

func TestParseKinds(t *testing.T) {
	kinds, err := ParseKinds([]string{"instr", "data-read"})
	require.NoError(t, err)
	assert.Equal(t, []record.Kind{record.KindInstrFetch, record.KindDataRead}, kinds)

	_, err = ParseKinds([]string{"bogus"})
	assert.ErrorContains(t, err, "unknown record kind")
}

func TestParseMarkers(t *testing.T) {
	markers, err := ParseMarkers([]string{"timestamp", "filetype"})
	require.NoError(t, err)
	assert.Equal(t, []uint16{record.MarkerTimestamp, record.MarkerFiletype}, markers)

	_, err = ParseMarkers([]string{"nope"})
	assert.ErrorContains(t, err, "unknown marker subtype")
}

func TestParseAddrRanges(t *testing.T) {
	t.Run("hex and decimal bounds", func(t *testing.T) {
		ranges, err := ParseAddrRanges([]string{"0x1000-0x1fff", "4096-8191"})
		require.NoError(t, err)
		assert.Equal(t, []AddrRange{
			{Low: 0x1000, High: 0x1fff},
			{Low: 4096, High: 8191},
		}, ranges)
	})

	t.Run("rejects malformed specs", func(t *testing.T) {
		for _, spec := range []string{"1234", "x-y", "0x2000-0x1000"} {
			_, err := ParseAddrRanges([]string{spec})
			assert.Error(t, err, "spec %q", spec)
		}
	})
}

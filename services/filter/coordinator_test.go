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
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/tracefilter/services/filter/record"
	"github.com/AleutianAI/tracefilter/services/filter/stage"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestNewCoordinator_RejectsBadConfig(t *testing.T) {
	_, err := NewCoordinator(Config{OutputDir: "/no/such/dir/anywhere"}, nil)
	assert.Error(t, err)
}

func TestCoordinator_SerialUnsupported(t *testing.T) {
	c := newTestCoordinator(t, Config{})
	assert.ErrorIs(t, c.Process(record.Record{}), ErrSerialUnsupported)
}

func TestCoordinator_ConcurrentShards(t *testing.T) {
	const shards = 8
	const recsPerShard = 200

	c := newTestCoordinator(t, Config{}, dropData())

	var g errgroup.Group
	for i := 0; i < shards; i++ {
		name := fmt.Sprintf("thread.%d", i)
		g.Go(func() error {
			stream := &testStream{name: name}
			sh := c.ShardInit(stream)
			if err := sh.Err(); err != nil {
				return err
			}
			for j := 0; j < recsPerShard; j++ {
				rec := record.Record{Kind: record.KindInstrFetch, Value: uint64(j)}
				if j%4 == 0 {
					rec = record.Record{Kind: record.KindDataRead, Value: uint64(j)}
				}
				if err := sh.Process(rec); err != nil {
					return err
				}
			}
			return sh.Exit()
		})
	}
	require.NoError(t, g.Wait())

	res := c.Results()
	assert.True(t, res.OK)
	assert.Equal(t, uint64(shards*recsPerShard), res.InputEntries)
	assert.Equal(t, uint64(shards*recsPerShard*3/4), res.OutputEntries)
	assert.Empty(t, c.ShardErrors())

	// Each shard produced its own intact output file.
	for i := 0; i < shards; i++ {
		out := readOutput(t, filepath.Join(c.cfg.OutputDir, fmt.Sprintf("thread.%d", i)))
		assert.Len(t, out, recsPerShard*3/4)
	}
}

func TestCoordinator_StageInitFailureIsolated(t *testing.T) {
	brokenInit := &initFailStage{failFor: "bad"}
	c := newTestCoordinator(t, Config{}, brokenInit)

	bad := c.ShardInit(&testStream{name: "bad"})
	require.Error(t, bad.Err())
	assert.ErrorIs(t, bad.Process(record.Record{Kind: record.KindInstrFetch}), ErrShardFailed)
	require.NoError(t, bad.Exit())

	good := c.ShardInit(&testStream{name: "good"})
	require.NoError(t, good.Err())
	require.NoError(t, good.Process(record.Record{Kind: record.KindInstrFetch, Value: 1}))
	require.NoError(t, good.Exit())

	res := c.Results()
	assert.False(t, res.OK)
	errs := c.ShardErrors()
	require.Len(t, errs, 1)
	assert.Contains(t, errs, "bad")

	out := readOutput(t, filepath.Join(c.cfg.OutputDir, "good"))
	assert.Len(t, out, 1, "healthy shard unaffected by its sibling's failure")
}

func TestCoordinator_ReportResults(t *testing.T) {
	c := newTestCoordinator(t, Config{}, dropData())
	stream := &testStream{name: "s"}
	sh := c.ShardInit(stream)
	require.NoError(t, sh.Err())

	feed(t, stream, sh,
		record.Record{Kind: record.KindInstrFetch, Value: 1},
		record.Record{Kind: record.KindDataRead, Value: 2},
		record.Record{Kind: record.KindInstrFetch, Value: 3},
	)
	require.NoError(t, sh.Exit())

	var buf bytes.Buffer
	c.ReportResults(&buf)
	assert.Equal(t, "Output 2 entries from 3 entries.\n", buf.String())
}

// initFailStage fails shard setup for one named shard only.
type initFailStage struct {
	failFor string
}

func (s *initFailStage) Name() string { return "init-fail" }

func (s *initFailStage) ShardInit(shard stage.Meta, _ bool) (any, error) {
	if shard.Name() == s.failFor {
		return nil, errors.New("synthetic setup failure")
	}
	return nil, nil
}

func (s *initFailStage) Keep(*record.Record, any) bool { return true }

func (s *initFailStage) ShardExit(any) error { return nil }

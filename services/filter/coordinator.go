// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package filter implements a one-pass streaming filter for binary
// execution-trace records.
//
// Records arrive ordered within a shard (one logical execution trace,
// typically one thread or core). Each record runs through a configurable
// pipeline of stateful filter stages; survivors are written to a per-shard
// output sink that may be a flat file, a compressed stream, or a chunked
// archive. Three behaviors stay consistent while streaming with no
// lookahead: deferred re-emission of instruction encodings whose owning
// instruction was filtered out, chunk-boundary maintenance with ordinal
// renumbering, and a timestamp-triggered cutoff that disables filtering
// mid-stream.
//
// Shards are processed under a parallel-shards model: each Shard owns
// disjoint state and is driven by exactly one goroutine. The Coordinator
// owns shard lifecycle and aggregates final statistics.
package filter

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/AleutianAI/tracefilter/services/filter/sink"
	"github.com/AleutianAI/tracefilter/services/filter/stage"
	"github.com/AleutianAI/tracefilter/services/filter/telemetry"
)

// Coordinator owns shard lifecycle for one filter run: creation, teardown,
// error aggregation, and the final report.
//
// Thread Safety: ShardInit and the counters may be called from many shard
// goroutines concurrently. The shard registry is guarded by a mutex held
// only for the brief insert, never across record processing. Results must
// only be called after all shards have finished.
type Coordinator struct {
	cfg    Config
	stages []stage.Stage
	log    *slog.Logger
	m      *telemetry.Metrics
	ctx    context.Context
	runID  string

	mu     sync.Mutex
	shards map[string]*Shard

	failed atomic.Bool
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(c *Coordinator) { c.log = log }
}

// WithMetrics enables OpenTelemetry instrumentation.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(c *Coordinator) { c.m = m }
}

// NewCoordinator validates cfg and creates a coordinator applying stages in
// the given fixed order.
func NewCoordinator(cfg Config, stages []stage.Stage, opts ...Option) (*Coordinator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c := &Coordinator{
		cfg:    cfg,
		stages: stages,
		log:    slog.Default(),
		ctx:    context.Background(),
		runID:  uuid.NewString(),
		shards: make(map[string]*Shard),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.With("run_id", c.runID)
	return c, nil
}

// RunID returns the unique identifier of this filter run.
func (c *Coordinator) RunID() string { return c.runID }

// ShardInit creates the processor state for one shard on first sight.
//
// The returned Shard always carries any construction failure in Err();
// sink or stage construction errors fail this shard without aborting
// others. Archive sinks get their first chunk component opened here,
// before any record is processed.
func (c *Coordinator) ShardInit(stream stage.Meta) *Shard {
	s := &Shard{
		coord:   c,
		stream:  stream,
		enabled: true,
		delayed: newEncodingCache(),
	}
	s.outputPath = filepath.Join(c.cfg.OutputDir, stream.Name())

	out, err := sink.Open(s.outputPath)
	if err != nil {
		s.err = fmt.Errorf("failure in opening writer: %w", err)
		c.recordFailure(stream.Name(), s.err)
	} else {
		s.out = out
		if archive, ok := out.(sink.ArchiveSink); ok {
			s.archive = archive
			if err := s.openChunk(); err != nil {
				s.err = fmt.Errorf("failure in opening writer: %w", err)
				c.recordFailure(stream.Name(), s.err)
			}
		}
	}

	if s.err == nil {
		for _, st := range c.stages {
			state, err := st.ShardInit(stream, c.cfg.StopTimestamp != 0)
			if err != nil && s.err == nil {
				s.err = fmt.Errorf("failure in initializing filter %s: %w", st.Name(), err)
				c.recordFailure(stream.Name(), s.err)
			}
			s.stageStates = append(s.stageStates, state)
		}
	}

	c.mu.Lock()
	c.shards[stream.Name()] = s
	c.mu.Unlock()

	if c.m != nil {
		c.m.ActiveShards.Add(c.ctx, 1)
	}
	c.log.Debug("shard initialized",
		"shard", stream.Name(),
		"output", s.outputPath,
		"archive", s.archive != nil,
	)
	return s
}

// Process rejects serial (non-sharded) use. Encoding-cache and chunk state
// are defined only per independent shard; route records through ShardInit
// and Shard.Process instead.
func (c *Coordinator) Process(_ any) error {
	return ErrSerialUnsupported
}

// Results is the aggregate outcome of a filter run.
type Results struct {
	// RunID identifies the run.
	RunID string

	// InputEntries is the total record count received across all shards.
	InputEntries uint64

	// OutputEntries is the total record count written across all shards,
	// synthesized markers included.
	OutputEntries uint64

	// OK is false if any shard hit a fatal error.
	OK bool
}

// Results folds every shard's counters into the final aggregate. Call only
// after all shards have finished.
func (c *Coordinator) Results() Results {
	res := Results{RunID: c.runID, OK: !c.failed.Load()}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range c.shards {
		res.InputEntries += s.inputCount
		res.OutputEntries += s.outputCount
	}
	return res
}

// ShardErrors returns the first error of every failed shard, keyed by
// shard identifier.
func (c *Coordinator) ShardErrors() map[string]error {
	errs := make(map[string]error)
	c.mu.Lock()
	defer c.mu.Unlock()
	for name, s := range c.shards {
		if s.err != nil {
			errs[name] = s.err
		}
	}
	return errs
}

// ReportResults prints the human-readable final report.
func (c *Coordinator) ReportResults(w io.Writer) {
	res := c.Results()
	fmt.Fprintf(w, "Output %d entries from %d entries.\n",
		res.OutputEntries, res.InputEntries)
}

// recordFailure marks the run failed. The flag is set, never unset.
func (c *Coordinator) recordFailure(shard string, err error) {
	c.failed.Store(true)
	if c.m != nil {
		c.m.ShardErrors.Add(c.ctx, 1)
	}
	c.log.Error("shard failed", "shard", shard, "error", err)
}

func (c *Coordinator) shardDone() {
	if c.m != nil {
		c.m.ActiveShards.Add(c.ctx, -1)
	}
}

func (c *Coordinator) countIn(n int64) {
	if c.m != nil {
		c.m.RecordsIn.Add(c.ctx, n)
	}
}

func (c *Coordinator) countOut(n int64) {
	if c.m != nil {
		c.m.RecordsOut.Add(c.ctx, n)
	}
}

func (c *Coordinator) countDropped(n int64) {
	if c.m != nil {
		c.m.RecordsDropped.Add(c.ctx, n)
	}
}

func (c *Coordinator) countSynthesized() {
	if c.m != nil {
		c.m.MarkersSynthesized.Add(c.ctx, 1)
	}
}

func (c *Coordinator) countChunk() {
	if c.m != nil {
		c.m.ChunksOpened.Add(c.ctx, 1)
	}
}

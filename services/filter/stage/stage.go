// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package stage defines the filter-stage contract consumed by the shard
// processor, plus the stock stage implementations shipped with the tool.
//
// A stage is a stateful, per-shard predicate over one trace record. The
// processor hands each stage an opaque state slot at shard creation and
// passes it back on every call; the processor never inspects it. Stages are
// applied in a fixed configured order, and every stage observes every
// record even when an earlier stage has already rejected it — stages may
// carry per-record state and must not assume short-circuiting.
package stage

import "github.com/AleutianAI/tracefilter/services/filter/record"

// Meta is the per-shard stream metadata a stage may consult.
type Meta interface {
	// Name returns the shard identifier.
	Name() string

	// LastTimestamp returns the latest timestamp marker value observed on
	// the shard's input stream, or zero if none yet.
	LastTimestamp() uint64
}

// Stage is the per-shard filter contract.
//
// Thread Safety: a Stage instance is shared across shards, but each shard's
// opaque state is owned by exactly one goroutine. Implementations must keep
// all mutable per-shard data in the state value, not on the receiver.
type Stage interface {
	// Name identifies the stage in errors and logs.
	Name() string

	// ShardInit is called once when a shard is created, before any record
	// is processed. cutoffConfigured reports whether a nonzero stop
	// timestamp is in effect for the run. The returned value is the
	// stage's opaque per-shard state.
	ShardInit(shard Meta, cutoffConfigured bool) (any, error)

	// Keep reports whether the record should be kept. The record pointer
	// is shared across stages for the duration of one processor call;
	// stages may adjust it in place.
	Keep(rec *record.Record, state any) bool

	// ShardExit is called once when the shard is torn down.
	ShardExit(state any) error
}

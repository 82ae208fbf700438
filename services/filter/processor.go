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
	"errors"
	"fmt"

	"github.com/AleutianAI/tracefilter/services/filter/record"
	"github.com/AleutianAI/tracefilter/services/filter/sink"
	"github.com/AleutianAI/tracefilter/services/filter/stage"
)

// Shard processes one shard's record stream against the configured filter
// stages and writes the survivors to the shard's sink.
//
// A Shard is created by Coordinator.ShardInit and owned exclusively by one
// goroutine; none of its state is shared with other shards. Once Process
// returns an error the shard is dead: further records are rejected with
// ErrShardFailed, and only Exit may still be called to release the sink.
type Shard struct {
	coord  *Coordinator
	stream stage.Meta

	outputPath string
	out        sink.Sink
	archive    sink.ArchiveSink // non-nil only for chunked output

	stageStates []any

	// enabled flips to false once the cutoff timestamp is reached and
	// never flips back.
	enabled bool

	chunkOrdinal         uint64
	removedFromPrevChunk uint64

	// lastEncoding buffers encoding records until the fate of the
	// instruction that owns them is known.
	lastEncoding []record.Record

	// delayed holds encodings whose owning instruction was filtered out,
	// keyed by address, until the same address recurs unfiltered.
	delayed *encodingCache

	inputCount  uint64
	outputCount uint64

	encodeBuf []byte

	err error
}

// Err returns the shard's first fatal error, if any.
func (s *Shard) Err() error { return s.err }

// Name returns the shard identifier.
func (s *Shard) Name() string { return s.stream.Name() }

// fail records the shard's first fatal error, flags the run as failed, and
// returns the error annotated with the shard name.
func (s *Shard) fail(err error) error {
	err = fmt.Errorf("shard %s: %w", s.stream.Name(), err)
	if s.err == nil {
		s.err = err
		s.coord.recordFailure(s.stream.Name(), err)
	}
	return err
}

// write appends one record to the sink and counts it as output.
func (s *Shard) write(rec record.Record) error {
	if _, err := s.out.Write(rec.Encode(s.scratch())); err != nil {
		return fmt.Errorf("write to output file %s: %w", s.outputPath, err)
	}
	s.outputCount++
	s.coord.countOut(1)
	return nil
}

// writeAll appends records in order.
func (s *Shard) writeAll(recs []record.Record) error {
	for _, rec := range recs {
		if err := s.write(rec); err != nil {
			return err
		}
	}
	return nil
}

// scratch returns the shard's reusable encode buffer, emptied.
func (s *Shard) scratch() []byte {
	if s.encodeBuf == nil {
		s.encodeBuf = make([]byte, 0, record.EncodedSize)
	}
	return s.encodeBuf[:0]
}

// openChunk opens the archive component for the shard's current chunk
// ordinal.
func (s *Shard) openChunk() error {
	name := record.ComponentName(s.chunkOrdinal)
	if err := s.archive.OpenComponent(name); err != nil {
		return err
	}
	s.coord.countChunk()
	return nil
}

// Process runs one record through the filter pipeline.
//
// The record passes through, in order: the cutoff check, every configured
// stage (all of them, even after one rejects — stages may keep per-record
// state), marker-specific bookkeeping, and encoding-cache resolution,
// before being written to the sink if it survived. Errors are fatal to
// this shard only.
func (s *Shard) Process(in record.Record) error {
	if s.err != nil {
		return fmt.Errorf("%w: %s", ErrShardFailed, s.stream.Name())
	}

	s.inputCount++
	s.coord.countIn(1)
	rec := in
	units := rec.Units()

	// Cutoff: one-shot and irreversible, announced at the exact
	// truncation point by a synthetic endpoint marker.
	if s.enabled && s.coord.cfg.StopTimestamp != 0 &&
		s.stream.LastTimestamp() >= s.coord.cfg.StopTimestamp {
		s.enabled = false
		endpoint := record.Record{Kind: record.KindMarker, Subtype: record.MarkerFilterEndpoint}
		if err := s.write(endpoint); err != nil {
			return s.fail(err)
		}
		s.coord.countSynthesized()
	}

	keep := true
	if s.enabled {
		// Logical AND across stages, deliberately without short-circuit:
		// every stage observes every record.
		for i, st := range s.coord.stages {
			if !st.Keep(&rec, s.stageStates[i]) {
				keep = false
			}
		}
		if !keep {
			if rec.IsInstr() && s.archive != nil {
				// Chunk boundaries are defined in units of instructions;
				// moving them would require re-counting and re-doing
				// timestamp duplication.
				return s.fail(ErrInstrRemovalFromArchive)
			}
			s.removedFromPrevChunk += uint64(units)
			s.coord.countDropped(int64(units))
		}
	}

	if rec.Kind == record.KindMarker {
		switch rec.Subtype {
		case record.MarkerFiletype:
			if s.coord.cfg.StopTimestamp != 0 {
				rec.Value |= record.FiletypeBimodalFiltered
			}
		case record.MarkerChunkFooter:
			if !keep {
				return s.fail(ErrChunkFooterRemoval)
			}
			if s.archive == nil {
				return s.fail(ErrChunkInNonArchive)
			}
			if rec.Value != s.chunkOrdinal {
				return s.fail(fmt.Errorf("%w: found %d expected %d",
					ErrChunkOrdinalMismatch, rec.Value, s.chunkOrdinal))
			}
			if err := s.write(rec); err != nil {
				return s.fail(err)
			}
			s.chunkOrdinal++
			if err := s.openChunk(); err != nil {
				return s.fail(err)
			}
			return nil
		case record.MarkerRecordOrdinal:
			if !keep {
				return s.fail(ErrOrdinalRemoval)
			}
			// Adjust the running count for records filtered out, so
			// downstream consumers see ordinals consistent with the
			// output.
			rec.Value -= s.removedFromPrevChunk
			s.removedFromPrevChunk = 0
		}
	}

	if !keep {
		if rec.IsInstr() && len(s.lastEncoding) > 0 {
			// Hold the encoding until an unfiltered occurrence of this
			// address shows up; overwrite any stale entry for it.
			s.delayed.Put(rec.Value, s.lastEncoding)
			s.lastEncoding = nil
		}
		return nil
	}

	if rec.Kind == record.KindEncoding {
		// Always buffered: the owning instruction's fate is unknown
		// until it arrives.
		s.lastEncoding = append(s.lastEncoding, rec)
		return nil
	}

	if rec.IsInstr() {
		if len(s.lastEncoding) > 0 {
			// This instruction arrived with a fresh encoding; output it
			// and drop any stale cached one for the same address.
			if err := s.writeAll(s.lastEncoding); err != nil {
				return s.fail(err)
			}
			s.lastEncoding = nil
			s.delayed.Evict(rec.Value)
		} else if seq, ok := s.delayed.Take(rec.Value); ok {
			// A previously filtered-out instance of this instruction
			// left its encoding behind; surface it now.
			if err := s.writeAll(seq); err != nil {
				return s.fail(err)
			}
		}
	}

	if err := s.write(rec); err != nil {
		return s.fail(err)
	}
	return nil
}

// Exit tears the shard down: every stage's teardown hook runs (failures
// are collected, not short-circuited), then the sink is closed. Closing,
// not flushing, is what guarantees the bytes reach the file.
func (s *Shard) Exit() error {
	var errs []error
	for i, st := range s.coord.stages {
		if i < len(s.stageStates) {
			if err := st.ShardExit(s.stageStates[i]); err != nil {
				errs = append(errs, fmt.Errorf("stage %s teardown: %w", st.Name(), err))
			}
		}
	}
	if s.out != nil {
		if err := s.out.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close output %s: %w", s.outputPath, err))
		}
		s.out = nil
		s.archive = nil
	}
	s.coord.shardDone()
	if len(errs) > 0 {
		err := fmt.Errorf("shard %s exit: %w", s.stream.Name(), errors.Join(errs...))
		if s.err == nil {
			s.err = err
			s.coord.recordFailure(s.stream.Name(), err)
		}
		return err
	}
	return nil
}

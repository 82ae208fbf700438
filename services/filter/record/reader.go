// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package record

import (
	"bufio"
	"errors"
	"fmt"
	"io"
)

// ErrTruncatedRecord indicates a shard stream ended mid-record.
var ErrTruncatedRecord = errors.New("truncated trace record")

// Reader decodes fixed-layout records from a byte stream.
//
// Thread Safety: not safe for concurrent use; each shard stream has exactly
// one owning goroutine.
type Reader struct {
	br *bufio.Reader
}

// NewReader wraps r for record-at-a-time decoding.
func NewReader(r io.Reader) *Reader {
	return &Reader{br: bufio.NewReader(r)}
}

// Next returns the next record from the stream.
//
// Outputs:
//
//	Record - the decoded record.
//	error - io.EOF at a clean record boundary, ErrTruncatedRecord if the
//	stream ends mid-record, or the underlying read error.
func (r *Reader) Next() (Record, error) {
	var buf [EncodedSize]byte
	n, err := io.ReadFull(r.br, buf[:])
	if err != nil {
		if err == io.EOF {
			return Record{}, io.EOF
		}
		if err == io.ErrUnexpectedEOF {
			return Record{}, fmt.Errorf("%w: %d trailing bytes", ErrTruncatedRecord, n)
		}
		return Record{}, fmt.Errorf("read record: %w", err)
	}
	return Decode(buf[:])
}

// ShardStream couples a record Reader with the per-shard stream metadata the
// filter consumes: the shard name and the latest observed timestamp.
//
// The timestamp is data-driven: it advances only when a timestamp marker is
// read from the stream, never from wall-clock time.
type ShardStream struct {
	name          string
	r             *Reader
	lastTimestamp uint64
}

// NewShardStream creates a stream for one shard. The name doubles as the
// shard identifier and the output file name (its suffix selects the sink
// implementation).
func NewShardStream(name string, r io.Reader) *ShardStream {
	return &ShardStream{name: name, r: NewReader(r)}
}

// Name returns the shard identifier.
func (s *ShardStream) Name() string { return s.name }

// LastTimestamp returns the most recent timestamp marker value observed on
// this stream, or zero if none has been seen yet.
func (s *ShardStream) LastTimestamp() uint64 { return s.lastTimestamp }

// Next returns the next record, updating the observed timestamp when the
// record is a timestamp marker.
func (s *ShardStream) Next() (Record, error) {
	rec, err := s.r.Next()
	if err != nil {
		return rec, err
	}
	if rec.IsMarker(MarkerTimestamp) {
		s.lastTimestamp = rec.Value
	}
	return rec, nil
}

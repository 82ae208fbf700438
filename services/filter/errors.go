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

import "errors"

// Sentinel errors for the record filter. All of them are fatal to the shard
// they occur in and non-fatal to sibling shards; none is retried.
var (
	// ErrInstrRemovalFromArchive indicates a stage rejected an
	// instruction-like record while writing to an archive sink. Chunk
	// boundaries are defined in units of instructions, so instructions
	// cannot be removed from chunked output.
	ErrInstrRemovalFromArchive = errors.New("removing instructions from archive output is not supported")

	// ErrChunkFooterRemoval indicates a stage rejected a chunk footer
	// marker, which would corrupt the chunk protocol.
	ErrChunkFooterRemoval = errors.New("removing chunk footers is not supported")

	// ErrOrdinalRemoval indicates a stage rejected a record-ordinal
	// marker, which downstream consumers rely on.
	ErrOrdinalRemoval = errors.New("removing ordinal markers is not supported")

	// ErrChunkInNonArchive indicates a chunk footer appeared in a shard
	// whose sink is not archive-structured.
	ErrChunkInNonArchive = errors.New("chunks found in non-archive output")

	// ErrChunkOrdinalMismatch indicates a chunk footer's value did not
	// match the shard's running chunk ordinal.
	ErrChunkOrdinalMismatch = errors.New("chunk ordinal mismatch")

	// ErrSerialUnsupported indicates the caller tried to process records
	// without a shard context. Encoding-cache and chunk state are defined
	// only per independent shard.
	ErrSerialUnsupported = errors.New("serial processing is not supported; records must be routed through per-shard processors")

	// ErrShardFailed indicates a record was delivered to a shard that has
	// already reported a fatal error.
	ErrShardFailed = errors.New("shard has already failed")
)

// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package record defines the fixed-layout execution-trace record that flows
// through the filter pipeline, together with its binary codec and stream
// reader.
//
// # Wire Format
//
// Every record occupies exactly 16 bytes, little-endian, in this order:
//
//	offset 0   kind      uint16
//	offset 2   subtype   uint16
//	offset 4   reserved  uint32  (always zero)
//	offset 8   value     uint64
//
// The layout is positional and fixed-width; the filter never varies it.
// Surviving records are written back byte-identical to their input form
// (modulo marker value adjustments made by the shard processor).
//
// # Record Taxonomy
//
// Kind selects the variant. Instruction-like kinds carry the instruction
// address in Value. Encoding records carry raw instruction bytes and always
// precede the instruction they describe. Marker records carry control
// metadata; their Subtype identifies the marker purpose and Value carries
// the marker payload. For data records Subtype doubles as a byte size.
package record

import (
	"encoding/binary"
	"fmt"
)

// EncodedSize is the on-disk size of one record in bytes.
const EncodedSize = 16

// Kind is the tagged variant selector of a trace record.
type Kind uint16

const (
	// KindInvalid is the zero value and never appears in a valid trace.
	KindInvalid Kind = 0

	// KindInstrFetch is an ordinary fetched instruction.
	KindInstrFetch Kind = 1

	// KindInstrNoFetch is an instruction known not to be fetched.
	KindInstrNoFetch Kind = 2

	// KindInstrMaybeFetch is an instruction that may or may not be fetched.
	KindInstrMaybeFetch Kind = 3

	// KindInstrBundle is a composite instruction record; its Subtype holds
	// the number of logical instructions it stands for.
	KindInstrBundle Kind = 4

	// KindEncoding carries raw instruction encoding bytes for the
	// instruction record that follows it.
	KindEncoding Kind = 5

	// KindMarker is a control/metadata record; see the Marker* subtypes.
	KindMarker Kind = 6

	// KindDataRead is a data load record; Subtype is the access size.
	KindDataRead Kind = 7

	// KindDataWrite is a data store record; Subtype is the access size.
	KindDataWrite Kind = 8
)

// Marker subtypes, meaningful only when Kind == KindMarker.
const (
	// MarkerTimestamp carries a trace timestamp in Value. The stream
	// tracks the latest one seen; the filter cutoff keys off it.
	MarkerTimestamp uint16 = 1

	// MarkerFiletype carries trace file type flag bits in Value.
	MarkerFiletype uint16 = 2

	// MarkerChunkFooter terminates one archive chunk; Value is the chunk
	// ordinal. Only legal in archive-structured output.
	MarkerChunkFooter uint16 = 3

	// MarkerRecordOrdinal carries a running count of records seen so far;
	// the filter adjusts it for records it removed.
	MarkerRecordOrdinal uint16 = 4

	// MarkerFilterEndpoint is synthesized by the filter at the cutoff
	// instant to announce that the remainder of the shard is unfiltered.
	MarkerFilterEndpoint uint16 = 5
)

// FiletypeBimodalFiltered is OR'd into the filetype marker value when a
// cutoff timestamp is configured, signaling downstream readers that the
// trace mixes filtered and unfiltered regions.
const FiletypeBimodalFiltered uint64 = 1 << 12

// ChunkPrefix is the fixed name prefix of archive chunk components.
const ChunkPrefix = "chunk."

// ComponentName returns the archive component name for a chunk ordinal,
// e.g. "chunk.0007".
func ComponentName(ordinal uint64) string {
	return fmt.Sprintf("%s%04d", ChunkPrefix, ordinal)
}

// Record is the atomic unit flowing through the filter pipeline.
//
// Records are treated as immutable by convention; the shard processor works
// on its own copy when it needs to adjust a marker value.
type Record struct {
	// Kind selects the record variant.
	Kind Kind

	// Subtype is the marker purpose for markers and a generic secondary
	// field (byte size, bundle length) for other kinds.
	Subtype uint16

	// Value is the 64-bit payload: address, marker payload, or count.
	Value uint64
}

// IsInstr reports whether the record is instruction-like, i.e. one of the
// kinds whose Value is an instruction address and which counts toward chunk
// instruction boundaries.
func (r Record) IsInstr() bool {
	switch r.Kind {
	case KindInstrFetch, KindInstrNoFetch, KindInstrMaybeFetch, KindInstrBundle:
		return true
	default:
		return false
	}
}

// IsMarker reports whether the record is a marker of the given subtype.
func (r Record) IsMarker(subtype uint16) bool {
	return r.Kind == KindMarker && r.Subtype == subtype
}

// Units returns how many logical output units the record corresponds to.
// Bundles count one unit per bundled instruction; everything else counts
// as one.
func (r Record) Units() int {
	if r.Kind == KindInstrBundle && r.Subtype > 0 {
		return int(r.Subtype)
	}
	return 1
}

// Encode appends the 16-byte wire form of the record to dst.
func (r Record) Encode(dst []byte) []byte {
	var buf [EncodedSize]byte
	binary.LittleEndian.PutUint16(buf[0:2], uint16(r.Kind))
	binary.LittleEndian.PutUint16(buf[2:4], r.Subtype)
	// buf[4:8] is the reserved field, kept zero.
	binary.LittleEndian.PutUint64(buf[8:16], r.Value)
	return append(dst, buf[:]...)
}

// Decode parses one record from the first EncodedSize bytes of src.
func Decode(src []byte) (Record, error) {
	if len(src) < EncodedSize {
		return Record{}, fmt.Errorf("%w: have %d bytes, need %d",
			ErrTruncatedRecord, len(src), EncodedSize)
	}
	return Record{
		Kind:    Kind(binary.LittleEndian.Uint16(src[0:2])),
		Subtype: binary.LittleEndian.Uint16(src[2:4]),
		Value:   binary.LittleEndian.Uint64(src[8:16]),
	}, nil
}

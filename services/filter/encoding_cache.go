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

import "github.com/AleutianAI/tracefilter/services/filter/record"

// encodingCache holds encoding record sequences for addresses whose owning
// instruction was filtered out. When a later, un-filtered occurrence of the
// same address appears, its cached encoding is surfaced ahead of it.
//
// At most one entry exists per address; a fresh encoding overwrites the
// previous one, since only the most recent encoding is valid there. There
// is no eviction policy beyond explicit Take/Evict: growth is bounded by
// the number of distinct filtered instruction addresses over the shard's
// lifetime, which trace address spaces keep small in practice.
//
// Thread Safety: owned exclusively by one shard's processor; no locking.
type encodingCache struct {
	byAddr map[uint64][]record.Record
}

func newEncodingCache() *encodingCache {
	return &encodingCache{byAddr: make(map[uint64][]record.Record)}
}

// Put stores seq as the pending encoding for addr, replacing any prior
// entry (last write wins).
func (c *encodingCache) Put(addr uint64, seq []record.Record) {
	c.byAddr[addr] = seq
}

// Take removes and returns the pending encoding for addr, if present.
func (c *encodingCache) Take(addr uint64) ([]record.Record, bool) {
	seq, ok := c.byAddr[addr]
	if ok {
		delete(c.byAddr, addr)
	}
	return seq, ok
}

// Evict removes any pending encoding for addr without returning it.
func (c *encodingCache) Evict(addr uint64) {
	delete(c.byAddr, addr)
}

// Len returns the number of addresses with pending encodings.
func (c *encodingCache) Len() int {
	return len(c.byAddr)
}

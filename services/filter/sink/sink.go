// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package sink provides the append-only byte destinations a shard writes
// its surviving records to.
//
// The sink implementation is selected once per shard from the output path
// suffix and fixed for the shard's lifetime:
//
//	.gz   gzip-compressed single stream
//	.zst  zstd-compressed single stream
//	.zip  archive with named chunk components
//	else  plain byte stream
//
// Archive sinks additionally implement ArchiveSink; the shard processor
// opens a new named component at every chunk boundary. Closing a sink is
// what guarantees the bytes reach the file; a flush alone is not enough for
// the compressed variants, whose trailers are only written on close.
package sink

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// Sink is an append-only byte destination for one shard's output.
type Sink interface {
	io.WriteCloser
}

// ArchiveSink is a sink structured as a sequence of named components.
type ArchiveSink interface {
	Sink

	// OpenComponent finishes the current component, if any, and starts a
	// new one with the given name. Subsequent writes go to it.
	OpenComponent(name string) error
}

// Open selects and opens the sink implementation for path by suffix.
// The caller type-asserts ArchiveSink to detect chunked output.
func Open(path string) (Sink, error) {
	switch {
	case strings.HasSuffix(path, ".gz"):
		return openGzip(path)
	case strings.HasSuffix(path, ".zst"):
		return openZstd(path)
	case strings.HasSuffix(path, ".zip"):
		return openZip(path)
	default:
		f, err := os.Create(path)
		if err != nil {
			return nil, fmt.Errorf("create %s: %w", path, err)
		}
		return f, nil
	}
}

// gzipSink compresses a single stream to a file.
type gzipSink struct {
	f  *os.File
	zw *gzip.Writer
}

func openGzip(path string) (*gzipSink, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", path, err)
	}
	return &gzipSink{f: f, zw: gzip.NewWriter(f)}, nil
}

func (s *gzipSink) Write(p []byte) (int, error) { return s.zw.Write(p) }

func (s *gzipSink) Close() error {
	if err := s.zw.Close(); err != nil {
		s.f.Close()
		return fmt.Errorf("close gzip stream: %w", err)
	}
	return s.f.Close()
}

// zstdSink compresses a single stream to a file.
type zstdSink struct {
	f   *os.File
	enc *zstd.Encoder
}

func openZstd(path string) (*zstdSink, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", path, err)
	}
	enc, err := zstd.NewWriter(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("create zstd writer: %w", err)
	}
	return &zstdSink{f: f, enc: enc}, nil
}

func (s *zstdSink) Write(p []byte) (int, error) { return s.enc.Write(p) }

func (s *zstdSink) Close() error {
	if err := s.enc.Close(); err != nil {
		s.f.Close()
		return fmt.Errorf("close zstd stream: %w", err)
	}
	return s.f.Close()
}

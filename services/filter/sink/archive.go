// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package sink

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/zip"
)

// ErrNoComponent indicates a write was attempted on an archive sink before
// any component was opened.
var ErrNoComponent = errors.New("archive sink has no open component")

// zipSink writes named, individually deflated components into one zip file.
//
// Components are written strictly sequentially; opening a new component
// finishes the previous one. This matches the chunk protocol: the shard
// processor opens component N+1 immediately after writing chunk N's footer.
type zipSink struct {
	f    *os.File
	zw   *zip.Writer
	comp io.Writer
}

func openZip(path string) (*zipSink, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", path, err)
	}
	return &zipSink{f: f, zw: zip.NewWriter(f)}, nil
}

// OpenComponent implements ArchiveSink.
func (s *zipSink) OpenComponent(name string) error {
	w, err := s.zw.CreateHeader(&zip.FileHeader{
		Name:   name,
		Method: zip.Deflate,
	})
	if err != nil {
		return fmt.Errorf("open archive component %s: %w", name, err)
	}
	s.comp = w
	return nil
}

func (s *zipSink) Write(p []byte) (int, error) {
	if s.comp == nil {
		return 0, ErrNoComponent
	}
	return s.comp.Write(p)
}

func (s *zipSink) Close() error {
	if err := s.zw.Close(); err != nil {
		s.f.Close()
		return fmt.Errorf("close archive: %w", err)
	}
	return s.f.Close()
}

var _ ArchiveSink = (*zipSink)(nil)

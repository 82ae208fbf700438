// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command tracefilter rewrites binary execution traces through a
// configurable filter pipeline.
//
// Each input file is one shard of a trace. Shards are processed
// concurrently; the output file keeps the input's base name, and its
// suffix selects the writer (.gz, .zst, .zip archive, or flat file).
//
// Usage:
//
//	tracefilter run --input trace_dir --output-dir out
//	tracefilter run --input thread.0 --input thread.1 --output-dir out \
//	    --remove-kinds data-read,data-write
//	tracefilter run --input trace_dir --output-dir out --stop-timestamp 171300211
package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:           "tracefilter",
	Short:         "Streaming filter for binary execution-trace records",
	SilenceUsage:  true,
	SilenceErrors: false,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

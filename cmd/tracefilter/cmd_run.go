// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sort"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/tracefilter/pkg/logging"
	"github.com/AleutianAI/tracefilter/services/filter"
	"github.com/AleutianAI/tracefilter/services/filter/record"
	"github.com/AleutianAI/tracefilter/services/filter/telemetry"
)

var (
	runInputs         []string
	runOutputDir      string
	runStopTimestamp  uint64
	runRemoveKinds    []string
	runRemoveMarkers  []string
	runKeepAddrRanges []string
	runJobs           int
	runMetrics        bool
	runLogLevel       string
	runLogDir         string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Filter trace shards into a new output directory",
	Long: `Run the filter pipeline over one shard per input file.

Input files are raw trace shards; directories are expanded one level
deep. Output files keep the input base name, so a .zip input produces
a chunked .zip archive and a .gz input a gzip stream.`,
	RunE: runFilter,
}

func init() {
	runCmd.Flags().StringArrayVar(&runInputs, "input", nil,
		"Trace shard file or directory of shards (repeatable)")
	runCmd.Flags().StringVar(&runOutputDir, "output-dir", "",
		"Directory for filtered shard files (must exist)")
	runCmd.Flags().Uint64Var(&runStopTimestamp, "stop-timestamp", 0,
		"Stop filtering each shard once its timestamp reaches this value (0 = never)")
	runCmd.Flags().StringSliceVar(&runRemoveKinds, "remove-kinds", nil,
		"Record kinds to remove (e.g. data-read,data-write)")
	runCmd.Flags().StringSliceVar(&runRemoveMarkers, "remove-markers", nil,
		"Marker subtypes to remove (e.g. timestamp)")
	runCmd.Flags().StringSliceVar(&runKeepAddrRanges, "keep-addr-ranges", nil,
		"Keep addressed records only inside these low-high ranges (e.g. 0x400000-0x500000)")
	runCmd.Flags().IntVar(&runJobs, "jobs", runtime.NumCPU(),
		"Maximum shards processed concurrently")
	runCmd.Flags().BoolVar(&runMetrics, "metrics", false,
		"Export OpenTelemetry metrics to stdout")
	runCmd.Flags().StringVar(&runLogLevel, "log-level", "info",
		"Log level: debug, info, warn, error")
	runCmd.Flags().StringVar(&runLogDir, "log-dir", "",
		"Also write JSON logs to this directory")

	_ = runCmd.MarkFlagRequired("input")
	_ = runCmd.MarkFlagRequired("output-dir")

	rootCmd.AddCommand(runCmd)
}

func runFilter(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	level, err := logging.ParseLevel(runLogLevel)
	if err != nil {
		return err
	}
	logger := logging.New(logging.Config{
		Level:   level,
		LogDir:  runLogDir,
		Service: "tracefilter",
	})
	defer logger.Close()

	inputs, err := collectInputs(runInputs)
	if err != nil {
		return err
	}
	if len(inputs) == 0 {
		return errors.New("no input shards found")
	}

	cfg := filter.Config{
		OutputDir:      runOutputDir,
		StopTimestamp:  runStopTimestamp,
		RemoveKinds:    runRemoveKinds,
		RemoveMarkers:  runRemoveMarkers,
		KeepAddrRanges: runKeepAddrRanges,
	}
	stages, err := cfg.Stages()
	if err != nil {
		return err
	}

	opts := []filter.Option{filter.WithLogger(logger.Slog())}
	if runMetrics {
		shutdown, err := telemetry.Init(ctx, telemetry.DefaultConfig())
		if err != nil {
			return fmt.Errorf("initializing telemetry: %w", err)
		}
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				logger.Warn("telemetry shutdown", "error", err)
			}
		}()
		m, err := telemetry.NewMetrics(otel.Meter("tracefilter"))
		if err != nil {
			return fmt.Errorf("initializing telemetry: %w", err)
		}
		opts = append(opts, filter.WithMetrics(m))
	}

	coord, err := filter.NewCoordinator(cfg, stages, opts...)
	if err != nil {
		return err
	}
	logger.Info("filter run starting",
		"run_id", coord.RunID(),
		"shards", len(inputs),
		"jobs", runJobs,
	)

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(runJobs)
	for _, path := range inputs {
		g.Go(func() error {
			return driveShard(coord, path)
		})
	}
	driveErr := g.Wait()

	coord.ReportResults(os.Stderr)
	res := coord.Results()
	logger.Info("filter run finished",
		"run_id", res.RunID,
		"input_entries", res.InputEntries,
		"output_entries", res.OutputEntries,
		"ok", res.OK,
	)

	if driveErr != nil {
		return driveErr
	}
	if !res.OK {
		return errors.New("one or more shards failed")
	}
	return nil
}

// driveShard feeds one input file through its own processor, start to
// finish. The shard's teardown runs even on a mid-stream error so the
// output file is closed.
func driveShard(coord *filter.Coordinator, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening shard %s: %w", path, err)
	}
	defer f.Close()

	stream := record.NewShardStream(filepath.Base(path), f)
	sh := coord.ShardInit(stream)
	if err := sh.Err(); err != nil {
		_ = sh.Exit()
		return err
	}

	for {
		rec, err := stream.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			_ = sh.Exit()
			return fmt.Errorf("reading shard %s: %w", path, err)
		}
		if err := sh.Process(rec); err != nil {
			_ = sh.Exit()
			return err
		}
	}
	return sh.Exit()
}

// collectInputs expands directory arguments one level deep into the
// shard files they contain, in sorted order. Nested directories and
// dotfiles are skipped.
func collectInputs(args []string) ([]string, error) {
	var inputs []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, fmt.Errorf("input %s: %w", arg, err)
		}
		if !info.IsDir() {
			inputs = append(inputs, arg)
			continue
		}
		entries, err := os.ReadDir(arg)
		if err != nil {
			return nil, fmt.Errorf("input %s: %w", arg, err)
		}
		for _, entry := range entries {
			if entry.IsDir() || entry.Name()[0] == '.' {
				continue
			}
			inputs = append(inputs, filepath.Join(arg, entry.Name()))
		}
	}
	sort.Strings(inputs)
	return inputs, nil
}

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
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/cutofftune/cmd/cutofftune/config"
	"github.com/AleutianAI/cutofftune/pkg/telemetry"
	"github.com/AleutianAI/cutofftune/pkg/ux"
	"github.com/AleutianAI/cutofftune/services/tuner"
	"github.com/AleutianAI/cutofftune/services/tuner/export"
	"github.com/AleutianAI/cutofftune/services/tuner/history"
	"github.com/AleutianAI/cutofftune/services/tuner/status"
)

const telemetryShutdownTimeout = 5 * time.Second

type tuneFlags struct {
	min, max, tolerance, repeat, workers int
	noApply, noHistory                   bool
	csvPath, jsonPath, statusAddr        string
}

func newTuneCmd(a *app) *cobra.Command {
	f := &tuneFlags{}
	cmd := &cobra.Command{
		Use:   "tune",
		Short: "Search for the fastest cutoff",
		Long: `Evaluates the range ends and midpoint, re-centers the range on the best
value and repeats until the range is no wider than the tolerance. The best
value seen is written back to the source file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f.apply(cmd, a.cfg)
			return a.runTune(cmd.Context())
		},
	}

	flags := cmd.Flags()
	flags.IntVar(&f.min, "min", 0, "lower bound of the search range")
	flags.IntVar(&f.max, "max", 0, "upper bound of the search range")
	flags.IntVar(&f.tolerance, "tolerance", 0, "stop once the range is this narrow")
	flags.IntVarP(&f.repeat, "repeat", "n", 0, "timed runs per value")
	flags.IntVarP(&f.workers, "workers", "w", 0, "NTHREADS passed to build and run")
	flags.BoolVar(&f.noApply, "no-apply", false, "leave the source file at the last tested value")
	flags.BoolVar(&f.noHistory, "no-history", false, "do not record the run in the history journal")
	flags.StringVar(&f.csvPath, "csv", "", "write every sample to this CSV file")
	flags.StringVar(&f.jsonPath, "json", "", "write the report to this JSON file")
	flags.StringVar(&f.statusAddr, "status", "", "serve /v1/status and /metrics on this address")
	return cmd
}

// apply overrides configuration with the flags the user set.
func (f *tuneFlags) apply(cmd *cobra.Command, cfg *config.Config) {
	changed := cmd.Flags().Changed
	if changed("min") {
		cfg.Search.Min = f.min
	}
	if changed("max") {
		cfg.Search.Max = f.max
	}
	if changed("tolerance") {
		cfg.Search.Tolerance = f.tolerance
	}
	if changed("repeat") {
		cfg.Search.Repeat = f.repeat
	}
	if changed("workers") {
		cfg.Task.Workers = f.workers
	}
	if f.noApply {
		cfg.Search.ApplyBest = false
	}
	if f.noHistory {
		cfg.History.Enabled = false
	}
	if f.csvPath != "" {
		cfg.Output.CSV = f.csvPath
	}
	if f.jsonPath != "" {
		cfg.Output.JSON = f.jsonPath
	}
	if f.statusAddr != "" {
		cfg.Status.Enabled = true
		cfg.Status.Addr = f.statusAddr
	}
}

func (a *app) runTune(parent context.Context) error {
	cfg := a.cfg
	if err := config.Validate(cfg); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdown, err := telemetry.Init(ctx, cfg.Telemetry)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), telemetryShutdownTimeout)
		defer cancel()
		if err := shutdown(sctx); err != nil {
			a.logger.Warn("Telemetry shutdown failed", slog.String("error", err.Error()))
		}
	}()

	p, err := newPipeline(cfg, a.logger)
	if err != nil {
		return err
	}

	tracker := status.NewTracker()
	observers := []tuner.Observer{ux.NewProgress(a.printer), tracker}

	if cfg.History.Enabled {
		hcfg := history.DefaultConfig(cfg.History.Path)
		hcfg.Logger = a.logger
		store, err := history.Open(hcfg, cfg.Task.Name)
		if err != nil {
			return err
		}
		defer store.Close()
		observers = append(observers, store)
	}

	if cfg.Influx.URL != "" {
		sink, err := export.NewInfluxSink(export.InfluxConfig{
			URL:    cfg.Influx.URL,
			Token:  cfg.Influx.Token,
			Org:    cfg.Influx.Org,
			Bucket: cfg.Influx.Bucket,
			Task:   cfg.Task.Name,
		}, a.logger)
		if err != nil {
			return err
		}
		defer sink.Close()
		observers = append(observers, sink)
	}

	search := tuner.NewSearch(p.tuning, p.runner, p.source, a.logger, tuner.WithObservers(observers...))

	report, err := a.runSearch(ctx, search, tracker)
	if err != nil {
		return err
	}
	return a.exportReport(ctx, report)
}

// runSearch runs the search, with the status server alongside it when enabled.
// The server is stopped as soon as the search returns.
func (a *app) runSearch(ctx context.Context, search *tuner.Search, tracker *status.Tracker) (*tuner.Report, error) {
	if !a.cfg.Status.Enabled {
		return search.Run(ctx)
	}

	srvCtx, stopServer := context.WithCancel(ctx)
	defer stopServer()

	srv := status.NewServer(a.cfg.Status.Addr, tracker, telemetry.MetricsHandler(), a.logger)

	var report *tuner.Report
	g, gctx := errgroup.WithContext(srvCtx)
	g.Go(func() error {
		return srv.Run(gctx)
	})
	g.Go(func() error {
		defer stopServer()
		var err error
		report, err = search.Run(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return report, nil
}

// exportReport writes the configured files and uploads them.
func (a *app) exportReport(ctx context.Context, report *tuner.Report) error {
	cfg := a.cfg
	meta := export.Meta{
		Task:       cfg.Task.Name,
		Version:    cfg.Task.Version,
		NumThreads: cfg.Task.Workers,
		Size:       cfg.Task.Size,
	}

	var written []string
	if cfg.Output.CSV != "" {
		if err := export.SaveCSV(cfg.Output.CSV, meta, report); err != nil {
			return err
		}
		written = append(written, cfg.Output.CSV)
		a.printer.Success(fmt.Sprintf("samples written to %s", cfg.Output.CSV))
	}
	if cfg.Output.JSON != "" {
		if err := export.SaveJSON(cfg.Output.JSON, meta, report); err != nil {
			return err
		}
		written = append(written, cfg.Output.JSON)
		a.printer.Success(fmt.Sprintf("report written to %s", cfg.Output.JSON))
	}

	if cfg.GCS.Bucket == "" || len(written) == 0 {
		return nil
	}
	uploader, err := export.NewGCSUploader(ctx, export.GCSConfig{
		Bucket:          cfg.GCS.Bucket,
		Prefix:          cfg.GCS.Prefix,
		CredentialsFile: cfg.GCS.CredentialsFile,
	}, a.logger)
	if err != nil {
		return err
	}
	defer uploader.Close()

	uris, err := uploader.Upload(ctx, report.RunID, written...)
	for _, uri := range uris {
		a.printer.Success(fmt.Sprintf("uploaded %s", uri))
	}
	if err != nil {
		return fmt.Errorf("upload incomplete: %w", err)
	}
	return nil
}

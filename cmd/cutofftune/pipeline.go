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
	"log/slog"
	"path/filepath"
	"strconv"

	"github.com/AleutianAI/cutofftune/cmd/cutofftune/config"
	"github.com/AleutianAI/cutofftune/services/tuner"
	"github.com/AleutianAI/cutofftune/services/tuner/target"
)

// pipeline is the set -> build -> execute chain for one task.
type pipeline struct {
	source *target.SourceFile
	runner *tuner.BenchmarkRunner
	tuning *tuner.Config
}

func newPipeline(cfg *config.Config, logger *slog.Logger) (*pipeline, error) {
	path := cfg.Task.SourceFile
	if !filepath.IsAbs(path) {
		path = filepath.Join(cfg.Task.Dir, path)
	}
	source, err := target.NewSourceFile(path, cfg.Task.Pattern, logger)
	if err != nil {
		return nil, err
	}

	env := map[string]string{"NTHREADS": strconv.Itoa(cfg.Task.Workers)}
	build := target.NewCommand(target.CommandSpec{
		Label:   "build",
		Argv:    target.ParseCommandLine(cfg.Build.Command),
		Dir:     cfg.Task.Dir,
		Env:     env,
		Timeout: cfg.Build.Timeout,
	}, logger)
	run := target.NewCommand(target.CommandSpec{
		Label:   "run",
		Argv:    target.ParseCommandLine(cfg.Run.Command),
		Dir:     cfg.Task.Dir,
		Env:     env,
		Timeout: cfg.Run.Timeout,
	}, logger)

	tuning := cfg.TunerConfig()
	return &pipeline{
		source: source,
		runner: tuner.NewBenchmarkRunner(tuning, source, build, run, logger),
		tuning: tuning,
	}, nil
}

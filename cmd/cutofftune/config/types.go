// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the cutofftune configuration file.
//
// Precedence, lowest first: built-in defaults, cutofftune.yaml, CUTOFFTUNE_*
// environment variables, command line flags. Flags are applied by the
// command package after Load returns.
package config

import (
	"time"

	"github.com/AleutianAI/cutofftune/pkg/telemetry"
	"github.com/AleutianAI/cutofftune/services/tuner"
	"github.com/AleutianAI/cutofftune/services/tuner/target"
)

// CurrentConfigVersion is written to new files by config init.
const CurrentConfigVersion = "1"

// DefaultPath is the configuration file looked up in the working directory.
const DefaultPath = "cutofftune.yaml"

// Config is the complete cutofftune configuration.
type Config struct {
	Meta      MetaConfig       `yaml:"meta"`
	Task      TaskConfig       `yaml:"task"`
	Search    SearchConfig     `yaml:"search"`
	Build     CommandConfig    `yaml:"build"`
	Run       CommandConfig    `yaml:"run"`
	Output    OutputConfig     `yaml:"output"`
	History   HistoryConfig    `yaml:"history"`
	Status    StatusConfig     `yaml:"status"`
	Logging   LoggingConfig    `yaml:"logging"`
	Telemetry telemetry.Config `yaml:"telemetry" validate:"-"`
	GCS       GCSConfig        `yaml:"gcs"`
	Influx    InfluxConfig     `yaml:"influx"`
}

// MetaConfig versions the file layout.
type MetaConfig struct {
	Version string `yaml:"version"`
}

// TaskConfig locates the benchmarked task and labels its results.
type TaskConfig struct {
	// Name labels exports and history (e.g. "merge-sort").
	Name string `yaml:"name" validate:"required"`

	// Version distinguishes implementations in exported CSV rows.
	Version string `yaml:"version"`

	// Size labels the input size in exported CSV rows.
	Size string `yaml:"size"`

	// Dir is the working directory for build and run commands.
	Dir string `yaml:"dir"`

	// SourceFile holds the cutoff literal, relative to Dir.
	SourceFile string `yaml:"source_file" validate:"required"`

	// Pattern matches the cutoff literal with exactly one capture group.
	Pattern string `yaml:"pattern" validate:"required,onegroup"`

	// Workers is exported to both commands as NTHREADS.
	Workers int `yaml:"workers" validate:"min=1"`
}

// SearchConfig maps onto tuner.Config.
type SearchConfig struct {
	Min           int     `yaml:"min" validate:"min=0"`
	Max           int     `yaml:"max" validate:"gtfield=Min"`
	Tolerance     int     `yaml:"tolerance" validate:"min=1"`
	Repeat        int     `yaml:"repeat" validate:"min=1,max=1000"`
	PenaltyWeight float64 `yaml:"penalty_weight" validate:"min=0"`
	ApplyBest     bool    `yaml:"apply_best"`
}

// CommandConfig is one external command.
type CommandConfig struct {
	// Command is split on whitespace.
	Command string `yaml:"command" validate:"required"`

	// Timeout bounds a single invocation, e.g. "30m".
	Timeout time.Duration `yaml:"timeout"`
}

// OutputConfig controls terminal output and exported files.
type OutputConfig struct {
	// Mode is "auto", "rich" or "plain".
	Mode string `yaml:"mode" validate:"oneof=auto rich plain"`

	// CSV receives one row per sample. Empty disables it.
	CSV string `yaml:"csv"`

	// JSON receives the full report. Empty disables it.
	JSON string `yaml:"json"`
}

// HistoryConfig controls the run journal.
type HistoryConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path" validate:"required_if=Enabled true"`
}

// StatusConfig controls the local status server.
type StatusConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr" validate:"required_if=Enabled true"`
}

// LoggingConfig maps onto logging.Config.
type LoggingConfig struct {
	Level string `yaml:"level" validate:"oneof=debug info warn error"`
	Dir   string `yaml:"dir"`
	JSON  bool   `yaml:"json"`
}

// GCSConfig enables report upload when Bucket is set.
type GCSConfig struct {
	Bucket          string `yaml:"bucket"`
	Prefix          string `yaml:"prefix"`
	CredentialsFile string `yaml:"credentials_file"`
}

// InfluxConfig enables the sample sink when URL is set.
type InfluxConfig struct {
	URL    string `yaml:"url" validate:"omitempty,url"`
	Token  string `yaml:"token"`
	Org    string `yaml:"org" validate:"required_with=URL"`
	Bucket string `yaml:"bucket" validate:"required_with=URL"`
}

// Default returns the built-in configuration for the merge sort task.
func Default() Config {
	search := tuner.DefaultConfig()
	return Config{
		Meta: MetaConfig{Version: CurrentConfigVersion},
		Task: TaskConfig{
			Name:       "merge-sort",
			Version:    "parallel",
			Size:       "large",
			Dir:        ".",
			SourceFile: target.DefaultFile,
			Pattern:    target.DefaultPattern,
			Workers:    96,
		},
		Search: SearchConfig{
			Min:           search.MinCutoff,
			Max:           search.MaxCutoff,
			Tolerance:     search.Tolerance,
			Repeat:        search.RepeatCount,
			PenaltyWeight: search.PenaltyWeight,
			ApplyBest:     search.ApplyBest,
		},
		Build: CommandConfig{Command: "make clean build", Timeout: target.DefaultTimeout},
		Run:   CommandConfig{Command: "make run-large", Timeout: target.DefaultTimeout},
		Output: OutputConfig{
			Mode: "auto",
		},
		History: HistoryConfig{
			Enabled: true,
			Path:    ".cutofftune/history",
		},
		Status: StatusConfig{
			Addr: "127.0.0.1:9464",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Telemetry: telemetry.DefaultConfig(),
	}
}

// TunerConfig converts the search section.
func (c *Config) TunerConfig() *tuner.Config {
	return tuner.NewConfig(
		tuner.WithBounds(c.Search.Min, c.Search.Max),
		tuner.WithTolerance(c.Search.Tolerance),
		tuner.WithRepeatCount(c.Search.Repeat),
		tuner.WithPenaltyWeight(c.Search.PenaltyWeight),
		tuner.WithApplyBest(c.Search.ApplyBest),
	)
}

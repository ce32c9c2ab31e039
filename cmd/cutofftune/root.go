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
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/cutofftune/cmd/cutofftune/config"
	"github.com/AleutianAI/cutofftune/pkg/logging"
	"github.com/AleutianAI/cutofftune/pkg/ux"
)

// app carries state shared by every subcommand.
type app struct {
	// Persistent flags
	configPath string
	logLevel   string
	logJSON    bool
	outputMode string

	cfg     *config.Config
	logs    *logging.Logger
	logger  *slog.Logger
	printer *ux.Printer
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "cutofftune",
		Short: "Tune a compile-time cutoff by benchmarking candidate values",
		Long: `cutofftune rewrites a threshold literal in a source file, rebuilds the
program, times repeated runs and narrows the search range until the
fastest cutoff is found.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.teardown()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&a.configPath, "config", "c", config.DefaultPath, "configuration file")
	flags.StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error")
	flags.BoolVar(&a.logJSON, "log-json", false, "write console logs as JSON")
	flags.StringVarP(&a.outputMode, "output", "o", "", "terminal output: auto, rich, plain")

	root.AddCommand(
		newTuneCmd(a),
		newEvaluateCmd(a),
		newHistoryCmd(a),
		newConfigCmd(a),
	)

	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return fmt.Errorf("%w\n\n%s", err, cmd.UsageString())
	})
	return root
}

// execute runs the command tree and reports a failure on stderr.
func execute(root *cobra.Command) error {
	err := root.Execute()
	if err != nil {
		fmt.Fprintln(root.ErrOrStderr(), "Error:", err)
	}
	return err
}

// setup loads configuration and builds the logger and printer.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	// config init creates the file, so it never requires one.
	required := cmd.Flags().Changed("config") && cmd.Name() != "init"
	cfg, err := config.Load(a.configPath, required)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
	}
	if a.logJSON {
		cfg.Logging.JSON = true
	}
	if a.outputMode != "" {
		cfg.Output.Mode = a.outputMode
	}
	a.cfg = cfg

	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return err
	}
	logs, err := logging.New(logging.Config{
		Level:   level,
		LogDir:  cfg.Logging.Dir,
		Service: "cutofftune",
		JSON:    cfg.Logging.JSON,
		Output:  cmd.ErrOrStderr(),
	})
	if err != nil {
		return err
	}
	a.logs = logs
	a.logger = logs.Slog()
	slog.SetDefault(a.logger)

	a.printer = ux.NewPrinter(cmd.OutOrStdout(), ux.ParseMode(cfg.Output.Mode, os.Stdout))
	return nil
}

func (a *app) teardown() error {
	if a.logs == nil {
		return nil
	}
	return a.logs.Close()
}

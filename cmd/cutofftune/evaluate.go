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
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/cutofftune/cmd/cutofftune/config"
	"github.com/AleutianAI/cutofftune/pkg/ux"
	"github.com/AleutianAI/cutofftune/services/tuner/target"
)

func newEvaluateCmd(a *app) *cobra.Command {
	var (
		repeat int
		keep   bool
	)
	cmd := &cobra.Command{
		Use:   "evaluate <cutoff>",
		Short: "Benchmark a single cutoff value",
		Long: `Writes the cutoff into the source file, rebuilds, times the configured
number of runs and prints the score. The source file is restored afterwards
unless --keep is given.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			value, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("cutoff must be an integer: %w", err)
			}
			if cmd.Flags().Changed("repeat") {
				a.cfg.Search.Repeat = repeat
			}
			return a.runEvaluate(cmd, value, keep)
		},
	}
	cmd.Flags().IntVarP(&repeat, "repeat", "n", 0, "timed runs")
	cmd.Flags().BoolVar(&keep, "keep", false, "leave the cutoff in the source file")
	return cmd
}

func (a *app) runEvaluate(cmd *cobra.Command, value int, keep bool) (err error) {
	if err := config.Validate(a.cfg); err != nil {
		return err
	}
	p, err := newPipeline(a.cfg, a.logger)
	if err != nil {
		return err
	}

	if !keep {
		defer func() {
			rerr := p.source.Restore()
			if rerr == nil || errors.Is(rerr, target.ErrNothingToRestore) {
				return
			}
			a.logger.Error("Restore failed",
				slog.String("path", p.source.Path()),
				slog.String("error", rerr.Error()),
			)
			err = errors.Join(err, rerr)
		}()
	}

	result, err := p.runner.Evaluate(cmd.Context(), value)
	if err != nil {
		return err
	}
	return ux.NewProgress(a.printer).OnEvaluated(cmd.Context(), "", result)
}

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
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/cutofftune/services/tuner/history"
)

func newHistoryCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect recorded tuning runs",
	}

	var (
		limit  int
		asJSON bool
	)
	list := &cobra.Command{
		Use:   "list",
		Short: "List runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withHistory(func(store *history.Store) error {
				runs, err := store.ListRuns(limit)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, runs)
				}
				a.printRuns(runs)
				return nil
			})
		},
	}
	list.Flags().IntVarP(&limit, "limit", "l", 20, "maximum runs to show, 0 for all")
	list.Flags().BoolVar(&asJSON, "json", false, "print JSON")

	show := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show the candidates and rounds of one run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withHistory(func(store *history.Store) error {
				detail, err := store.GetRun(args[0])
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, detail)
				}
				a.printRunDetail(detail)
				return nil
			})
		},
	}
	show.Flags().BoolVar(&asJSON, "json", false, "print JSON")

	cmd.AddCommand(list, show)
	return cmd
}

func (a *app) withHistory(fn func(*history.Store) error) error {
	hcfg := history.DefaultConfig(a.cfg.History.Path)
	hcfg.GCInterval = 0
	hcfg.Logger = a.logger
	store, err := history.Open(hcfg, a.cfg.Task.Name)
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(store)
}

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (a *app) printRuns(runs []history.RunRecord) {
	if len(runs) == 0 {
		a.printer.Info("no runs recorded")
		return
	}
	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		best, score := "-", "-"
		if r.Status == history.StatusConverged {
			best = strconv.Itoa(r.BestValue)
			score = fmt.Sprintf("%.4f", r.BestScore)
		}
		rows = append(rows, []string{
			r.RunID,
			r.Task,
			string(r.Status),
			r.Initial.String(),
			best,
			score,
			strconv.Itoa(r.Evaluations),
			strconv.Itoa(r.Rounds),
			r.StartedAt.Local().Format(time.DateTime),
		})
	}
	a.printer.Table(
		[]string{"RUN", "TASK", "STATUS", "RANGE", "BEST", "SCORE", "EVALS", "ROUNDS", "STARTED"},
		rows,
	)
}

func (a *app) printRunDetail(d *history.RunDetail) {
	r := d.Run
	lines := []string{
		fmt.Sprintf("task %s, status %s", r.Task, r.Status),
		fmt.Sprintf("range %s to %s, tolerance %d, %d runs per value", r.Initial, r.Final, r.Tolerance, r.RepeatCount),
	}
	if r.Status == history.StatusConverged {
		lines = append(lines, fmt.Sprintf("best %d, score %.4f", r.BestValue, r.BestScore))
	}
	if r.Error != "" {
		lines = append(lines, "error: "+r.Error)
	}
	a.printer.Box("Run "+r.RunID, lines...)

	candidates := make([][]string, 0, len(d.Candidates))
	for _, c := range d.Candidates {
		candidates = append(candidates, []string{
			strconv.Itoa(c.Order),
			strconv.Itoa(c.Value),
			fmt.Sprintf("%.4f", c.Mean()),
			fmt.Sprintf("%.4f", c.Stdev()),
			fmt.Sprintf("%.4f", c.Score()),
			strconv.Itoa(len(c.Samples)),
			strconv.Itoa(c.Dropped),
		})
	}
	a.printer.Table([]string{"#", "CUTOFF", "MEAN", "STDEV", "SCORE", "SAMPLES", "DROPPED"}, candidates)

	if len(d.Rounds) == 0 {
		return
	}
	rounds := make([][]string, 0, len(d.Rounds))
	for _, rd := range d.Rounds {
		rounds = append(rounds, []string{
			strconv.Itoa(rd.Index),
			rd.Before.String(),
			strconv.Itoa(rd.Mid),
			strconv.Itoa(rd.BestValue),
			rd.After.String(),
		})
	}
	a.printer.Table([]string{"ROUND", "RANGE", "MID", "BEST", "NEXT"}, rounds)
}

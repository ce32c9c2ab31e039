// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package export writes search reports to files, object storage and a
// time-series database.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/AleutianAI/cutofftune/services/tuner"
)

// CSVHeader is the column layout of the samples file, compatible with the
// benchmark visualizer.
var CSVHeader = []string{"task", "version", "num_threads", "size", "run", "cutoff", "time"}

// Meta labels exported samples.
type Meta struct {
	// Task is the benchmarked task (e.g. "merge-sort").
	Task string `json:"task"`

	// Version distinguishes implementations of the task.
	Version string `json:"version"`

	// NumThreads is the worker count the runs used.
	NumThreads int `json:"num_threads"`

	// Size is the input size label (e.g. "large").
	Size string `json:"size"`
}

// WriteCSV writes one row per accepted sample, in evaluation order.
func WriteCSV(w io.Writer, meta Meta, report *tuner.Report) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return err
	}
	threads := strconv.Itoa(meta.NumThreads)
	for _, r := range report.Results {
		cutoff := strconv.Itoa(r.Value)
		for i, secs := range r.Samples {
			row := []string{
				meta.Task,
				meta.Version,
				threads,
				meta.Size,
				strconv.Itoa(i),
				cutoff,
				strconv.FormatFloat(secs, 'f', -1, 64),
			}
			if err := cw.Write(row); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

// reportDocument is the JSON layout of an exported report.
type reportDocument struct {
	Meta   Meta          `json:"meta"`
	Report *tuner.Report `json:"report"`
	Best   *scoreSummary `json:"best,omitempty"`
}

type scoreSummary struct {
	Value int     `json:"value"`
	Mean  float64 `json:"mean"`
	Stdev float64 `json:"stdev"`
	Score float64 `json:"score"`
}

// WriteJSON writes the full report with a derived summary of the winner.
func WriteJSON(w io.Writer, meta Meta, report *tuner.Report) error {
	doc := reportDocument{Meta: meta, Report: report}
	if report.Best != nil {
		doc.Best = &scoreSummary{
			Value: report.Best.Value,
			Mean:  report.Best.Mean(),
			Stdev: report.Best.Stdev(),
			Score: report.Best.Score(),
		}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

// SaveCSV writes the samples file at path, creating parent directories.
func SaveCSV(path string, meta Meta, report *tuner.Report) error {
	return saveFile(path, func(w io.Writer) error {
		return WriteCSV(w, meta, report)
	})
}

// SaveJSON writes the report file at path, creating parent directories.
func SaveJSON(path string, meta Meta, report *tuner.Report) error {
	return saveFile(path, func(w io.Writer) error {
		return WriteJSON(w, meta, report)
	})
}

func saveFile(path string, write func(io.Writer) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create directory for %s: %w", path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

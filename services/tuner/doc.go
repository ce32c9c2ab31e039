// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package tuner searches for the cutoff value that minimizes the measured
// runtime of an externally built program.
//
// A cutoff is a scalar threshold compiled into the target (for example the
// array size below which a parallel merge sort stops spawning tasks). Each
// candidate value is evaluated by a closed loop:
//
//  1. SET     - Write the value into the target's source (idempotent)
//  2. BUILD   - Clean and rebuild the target, synchronously
//  3. EXECUTE - Run the target N times with a fixed worker count
//  4. PARSE   - Take the first "took <seconds> sec" token of each run
//  5. SCORE   - mean + 0.1 * stdev of the accepted samples
//
// # Search
//
// Search drives a modified binary search over [Min, Max]. Every round it
// evaluates low, mid and high, picks the best score among all evaluated values
// inside the bracket and re-centers:
//
//   - best == low:  [low, mid]
//   - best == high: [mid, high]
//   - interior:     [best - width/4, best + width/4], clamped to the bracket
//
// The loop stops once high - low <= Tolerance and returns the best result over
// every value evaluated, not only the final bracket. The quarter-width rule is
// a heuristic for unimodal but noisy objectives. It carries no proof of global
// convergence under noise.
//
// Results are memoized per search, so each distinct value is rebuilt and
// executed at most once.
//
// # Failures
//
// Sample-level failures (nonzero exit, missing duration token) drop the
// sample. Pattern errors, build failures, timeouts and candidates without any
// accepted sample abort the search. Already written configuration is not
// rolled back.
//
// # Thread Safety
//
// Search instances are NOT safe for concurrent use. Evaluations are strictly
// sequential because every candidate shares the same build artifact.
//
// # Example Usage
//
//	cfg := tuner.NewConfig(tuner.WithBounds(1000, 100000), tuner.WithRepeatCount(3))
//	tgt, _ := target.NewSourceFile("tasks/merge-sort/main.cpp", target.DefaultPattern, logger)
//	runner := tuner.NewBenchmarkRunner(cfg, tgt,
//	    target.NewCommand(buildSpec, logger),
//	    target.NewCommand(runSpec, logger),
//	    logger,
//	)
//
//	search := tuner.NewSearch(cfg, runner, tgt, logger, tuner.WithObservers(progress))
//	report, err := search.Run(ctx)
//	if err == nil {
//	    fmt.Printf("optimal cutoff: %d\n", report.Best.Value)
//	}
package tuner

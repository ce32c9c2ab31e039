// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tuner

import (
	"regexp"
	"strconv"
)

// durationTokenRegex matches the target's "took <seconds> sec" report.
var durationTokenRegex = regexp.MustCompile(`took\s+(\d+(?:\.\d+)?(?:[eE][-+]?\d+)?)\s+sec`)

// ParseDuration extracts the first duration token from run output.
//
// Description:
//
//	Scans output for "took <float> sec" and returns the float of the first
//	match. Later matches are ignored.
//
// Inputs:
//
//	output - Captured standard output of one run
//
// Outputs:
//
//	float64 - Duration in seconds
//	bool - False if no well-formed token was found
func ParseDuration(output string) (float64, bool) {
	m := durationTokenRegex.FindStringSubmatch(output)
	if m == nil {
		return 0, false
	}
	secs, err := strconv.ParseFloat(m[1], 64)
	if err != nil || secs < 0 {
		return 0, false
	}
	return secs, true
}

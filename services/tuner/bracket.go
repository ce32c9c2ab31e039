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

import "fmt"

// Bracket is the closed interval [Low, High] believed to hold the optimum.
type Bracket struct {
	Low  int `json:"low"`
	High int `json:"high"`
}

// String returns "[low, high]".
func (b Bracket) String() string {
	return fmt.Sprintf("[%d, %d]", b.Low, b.High)
}

// Width returns High - Low.
func (b Bracket) Width() int {
	return b.High - b.Low
}

// Mid returns the floor midpoint of the bracket.
func (b Bracket) Mid() int {
	return (b.Low + b.High) / 2
}

// Contains reports whether v lies in [Low, High].
func (b Bracket) Contains(v int) bool {
	return v >= b.Low && v <= b.High
}

// Converged reports whether the width is at or below tolerance.
func (b Bracket) Converged(tolerance int) bool {
	return b.Width() <= tolerance
}

// Narrow re-centers the bracket around best.
//
// Description:
//
//	best == Low shrinks to [Low, Mid], best == High shrinks to [Mid, High].
//	An interior best shrinks to best +/- Width/4, clamped to the bracket.
//	For any width >= 2 the result is strictly narrower.
//
// Inputs:
//
//	best - The best-scoring evaluated value inside the bracket
//
// Outputs:
//
//	Bracket - The narrowed bracket
func (b Bracket) Narrow(best int) Bracket {
	mid := b.Mid()
	switch best {
	case b.Low:
		return Bracket{Low: b.Low, High: mid}
	case b.High:
		return Bracket{Low: mid, High: b.High}
	}
	quarter := b.Width() / 4
	return Bracket{
		Low:  max(b.Low, best-quarter),
		High: min(b.High, best+quarter),
	}
}

// validateBracket checks the initial search domain.
func validateBracket(b Bracket, tolerance int) error {
	if b.Low < 0 {
		return fmt.Errorf("%w: min %d is negative", ErrInvalidBracket, b.Low)
	}
	if tolerance < 1 {
		return fmt.Errorf("%w: tolerance %d must be at least 1", ErrInvalidBracket, tolerance)
	}
	if b.Width() <= tolerance {
		return fmt.Errorf("%w: width of %s must exceed tolerance %d", ErrInvalidBracket, b, tolerance)
	}
	return nil
}

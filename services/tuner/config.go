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

// =============================================================================
// CONFIGURATION
// =============================================================================

// Config holds configuration for a search.
type Config struct {
	// MinCutoff is the lower bound of the search domain.
	// Default: 1000
	MinCutoff int

	// MaxCutoff is the upper bound of the search domain.
	// Default: 100000
	MaxCutoff int

	// Tolerance is the bracket width at which the search stops.
	// Default: 2000
	Tolerance int

	// RepeatCount is the number of timed runs per candidate.
	// Default: 3
	RepeatCount int

	// PenaltyWeight is the stdev weight of the score.
	// Default: 0.1
	PenaltyWeight float64

	// ApplyBest writes the winning cutoff back to the target on convergence.
	// Default: true
	ApplyBest bool
}

// DefaultConfig returns a Config with sensible defaults.
//
// Outputs:
//
//	*Config - Configuration with default values
func DefaultConfig() *Config {
	return &Config{
		MinCutoff:     1000,
		MaxCutoff:     100000,
		Tolerance:     2000,
		RepeatCount:   3,
		PenaltyWeight: DefaultPenaltyWeight,
		ApplyBest:     true,
	}
}

// Validate checks that the configuration is valid.
//
// Description:
//
//	Clamps RepeatCount and PenaltyWeight into range. The search domain is
//	not clamped: an invalid bracket or tolerance returns ErrInvalidBracket.
//
// Outputs:
//
//	error - Non-nil if the search domain is invalid
func (c *Config) Validate() error {
	if c.RepeatCount < 1 {
		c.RepeatCount = 1
	}
	if c.PenaltyWeight < 0 {
		c.PenaltyWeight = 0
	}
	return validateBracket(c.Bracket(), c.Tolerance)
}

// Bracket returns the initial search bracket.
func (c *Config) Bracket() Bracket {
	return Bracket{Low: c.MinCutoff, High: c.MaxCutoff}
}

// Reducer returns the score reducer for this configuration.
func (c *Config) Reducer() ScoreReducer {
	return ScoreReducer{PenaltyWeight: c.PenaltyWeight}
}

// =============================================================================
// CONFIGURATION OPTIONS
// =============================================================================

// Option is a function that modifies Config.
type Option func(*Config)

// WithBounds sets the search domain.
func WithBounds(minCutoff, maxCutoff int) Option {
	return func(c *Config) {
		c.MinCutoff = minCutoff
		c.MaxCutoff = maxCutoff
	}
}

// WithTolerance sets the convergence width.
func WithTolerance(n int) Option {
	return func(c *Config) {
		c.Tolerance = n
	}
}

// WithRepeatCount sets the number of timed runs per candidate.
func WithRepeatCount(n int) Option {
	return func(c *Config) {
		c.RepeatCount = n
	}
}

// WithPenaltyWeight sets the stdev weight of the score.
func WithPenaltyWeight(w float64) Option {
	return func(c *Config) {
		c.PenaltyWeight = w
	}
}

// WithApplyBest enables or disables writing the winner back to the target.
func WithApplyBest(enabled bool) Option {
	return func(c *Config) {
		c.ApplyBest = enabled
	}
}

// NewConfig creates a Config with the given options applied.
//
// The result is not validated; Search.Run validates before starting.
//
// Inputs:
//
//	opts - Options to apply to the default config
//
// Outputs:
//
//	*Config - Configuration with options applied
func NewConfig(opts ...Option) *Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

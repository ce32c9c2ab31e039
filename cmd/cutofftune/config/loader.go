// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"
)

var (
	// ErrInvalid indicates the configuration failed validation.
	ErrInvalid = errors.New("invalid configuration")

	// ErrExists indicates config init would overwrite a file.
	ErrExists = errors.New("configuration file already exists")
)

// Environment overrides.
const (
	EnvMin       = "CUTOFFTUNE_MIN"
	EnvMax       = "CUTOFFTUNE_MAX"
	EnvTolerance = "CUTOFFTUNE_TOLERANCE"
	EnvRepeat    = "CUTOFFTUNE_REPEAT"
	EnvWorkers   = "CUTOFFTUNE_WORKERS"
)

// configValidate is initialized in init() with custom validators.
var configValidate *validator.Validate

func init() {
	configValidate = validator.New()
	_ = configValidate.RegisterValidation("onegroup", validateOneGroup)
}

// validateOneGroup accepts a regular expression with exactly one capture group.
func validateOneGroup(fl validator.FieldLevel) bool {
	re, err := regexp.Compile(fl.Field().String())
	if err != nil {
		return false
	}
	return re.NumSubexp() == 1
}

// Load reads the configuration.
//
// Description:
//
//	Starts from Default, overlays the YAML file at path, then applies
//	CUTOFFTUNE_* environment overrides. A missing file is an error only when
//	required is true. The result is not validated; call Validate after
//	applying flags.
//
// Inputs:
//
//	path - YAML file path
//	required - Fail if the file does not exist
//
// Outputs:
//
//	*Config - Loaded configuration
//	error - Read, parse or environment conversion failure
func Load(path string, required bool) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !required:
	default:
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	if err := ApplyEnv(&cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyEnv overrides search bounds, tolerance, repeat count and workers from
// the environment. Values are converted with cast, so "4096" and "4096.0"
// are both accepted.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	overrides := []struct {
		key string
		dst *int
	}{
		{EnvMin, &cfg.Search.Min},
		{EnvMax, &cfg.Search.Max},
		{EnvTolerance, &cfg.Search.Tolerance},
		{EnvRepeat, &cfg.Search.Repeat},
		{EnvWorkers, &cfg.Task.Workers},
	}
	for _, o := range overrides {
		raw, ok := lookup(o.key)
		if !ok || strings.TrimSpace(raw) == "" {
			continue
		}
		v, err := cast.ToIntE(strings.TrimSpace(raw))
		if err != nil {
			return fmt.Errorf("%s=%q: %w", o.key, raw, err)
		}
		*o.dst = v
	}
	return nil
}

// Validate checks struct tags and returns one error listing every problem.
func Validate(cfg *Config) error {
	err := configValidate.Struct(cfg)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	problems := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		problems = append(problems, describe(fe))
	}
	return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
}

func describe(fe validator.FieldError) string {
	field := strings.TrimPrefix(fe.Namespace(), "Config.")
	switch fe.Tag() {
	case "required", "required_if", "required_with":
		return field + " is required"
	case "gtfield":
		return fmt.Sprintf("%s must be greater than %s", field, fe.Param())
	case "onegroup":
		return field + " must be a regular expression with exactly one capture group"
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed %s=%s", field, fe.Tag(), fe.Param())
	}
}

// Write saves cfg as YAML. An existing file is only replaced when force is set.
func Write(path string, cfg Config, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%w: %s", ErrExists, path)
		}
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

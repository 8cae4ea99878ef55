// Package common provides shared utilities for the allysync CLI commands.
//
// This package contains the helpers used across the standalone service
// binaries (gateway, agent) to reduce code duplication:
//
//   - Structured logger setup with colored or JSON output
//   - YAML configuration loading with unknown-field rejection
package common

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"gopkg.in/yaml.v3"
)

// ParseLogLevel maps a level name to its slog level. Empty means info.
func ParseLogLevel(name string) (slog.Level, error) {
	switch strings.ToLower(name) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", name)
}

// SetupLogger creates the process logger: colored tint output for
// terminals, plain JSON when jsonOutput is set.
func SetupLogger(levelName string, jsonOutput bool) (*slog.Logger, error) {
	level, err := ParseLogLevel(levelName)
	if err != nil {
		return nil, err
	}

	var handler slog.Handler
	if jsonOutput {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	} else {
		handler = tint.NewHandler(os.Stderr, &tint.Options{
			Level:      level,
			TimeFormat: time.TimeOnly,
		})
	}
	return slog.New(handler), nil
}

// LoadYAML reads a YAML configuration file into cfg. Unknown fields are
// rejected so typos in config files fail loudly.
func LoadYAML(path string, cfg any) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening config: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return fmt.Errorf("parsing config %s: %w", path, err)
	}
	return nil
}

// Package obslog implements structured logging using slog.
package obslog

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Config controls where and how the runtime's ambient logger writes.
type Config struct {
	Level   string       `mapstructure:"level"`
	Format  string       `mapstructure:"format"`
	Outputs []OutputSpec `mapstructure:"outputs"`
}

// OutputSpec describes one log sink. Type is "stdout", "stderr" or "file".
type OutputSpec struct {
	Type string     `mapstructure:"type"`
	File FileRotator `mapstructure:"file"`
}

// FileRotator configures lumberjack rotation for a "file" output.
type FileRotator struct {
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	MaxBackups int    `mapstructure:"max_backups"`
	Compress   bool   `mapstructure:"compress"`
}

// DefaultConfig returns the fallback logger configuration: info level,
// text format, stdout only.
func DefaultConfig() Config {
	return Config{
		Level:  "info",
		Format: "text",
		Outputs: []OutputSpec{
			{Type: "stdout"},
		},
	}
}

// Init installs a process-wide slog logger built from cfg as the default
// logger. Every pipeline component logs through slog's package-level
// functions once this has run.
func Init(cfg Config) error {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}

	var writers []io.Writer
	for i, output := range cfg.Outputs {
		writer, err := createWriter(output)
		if err != nil {
			return fmt.Errorf("failed to create output[%d] (%s): %w", i, output.Type, err)
		}
		if writer != nil {
			writers = append(writers, writer)
		}
	}
	if len(writers) == 0 {
		writers = append(writers, os.Stdout)
	}
	multiWriter := io.MultiWriter(writers...)

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}
	switch strings.ToLower(cfg.Format) {
	case "json":
		handler = slog.NewJSONHandler(multiWriter, opts)
	case "text", "":
		handler = slog.NewTextHandler(multiWriter, opts)
	default:
		return fmt.Errorf("unsupported log format: %s (must be json or text)", cfg.Format)
	}

	slog.SetDefault(slog.New(handler))
	return nil
}

func createWriter(spec OutputSpec) (io.Writer, error) {
	switch strings.ToLower(spec.Type) {
	case "stdout", "":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	case "file":
		if spec.File.Path == "" {
			return nil, fmt.Errorf("file output requires a path")
		}
		return &lumberjack.Logger{
			Filename:   spec.File.Path,
			MaxSize:    orDefault(spec.File.MaxSizeMB, 100),
			MaxAge:     spec.File.MaxAgeDays,
			MaxBackups: spec.File.MaxBackups,
			Compress:   spec.File.Compress,
		}, nil
	default:
		return nil, fmt.Errorf("unknown output type: %s", spec.Type)
	}
}

func parseLevel(levelStr string) (slog.Level, error) {
	switch strings.ToLower(levelStr) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown level: %s", levelStr)
	}
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

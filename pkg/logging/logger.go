// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package logging sets up structured logging for service binaries.
//
// Built on the standard library slog package: JSON records to stdout
// for the containerized services, with optional file logging for bare
// deployments. The returned logger is installed as the slog default so
// library packages log through the process-wide logger without carrying
// a logging dependency.
//
// # Basic Usage
//
//	logger := logging.Setup(logging.Config{Service: "completion"})
//	defer logger.Close()
//	slog.Info("starting", "port", cfg.Port)
//
// # Security Considerations
//
// This package does NOT automatically redact sensitive data. Bearer
// tokens are user identities in this system; log their presence, never
// their value:
//
//	// BAD: logs the identity
//	slog.Info("request", "user", user)
//
//	// GOOD: log metadata only
//	slog.Info("request", "user_present", user != "")
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// =============================================================================
// Configuration
// =============================================================================

// Config controls logger construction.
//
// Fields:
//   - Service: Component name stamped on every record and used in the
//     log file name. Required.
//   - Level: Minimum level as a string ("debug", "info", "warn",
//     "error"). Default: "info".
//   - LogDir: Directory for file logging, created if missing. Empty
//     disables file logging.
//   - Output: Primary destination. Default: os.Stdout.
type Config struct {
	Service string
	Level   string
	LogDir  string
	Output  io.Writer
}

// parseLevel maps the config string to a slog level.
func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// =============================================================================
// Logger
// =============================================================================

// Logger owns the process logging resources.
//
// # Thread Safety
//
// Safe for concurrent use; slog handlers serialize writes internally.
type Logger struct {
	slogger *slog.Logger
	file    *os.File
}

// Setup builds the process logger and installs it as the slog default.
//
// # Description
//
// JSON records go to the configured output (stdout by default). When
// LogDir is set, records are duplicated to {service}_{date}.log in that
// directory; a file that cannot be opened degrades to output-only with
// a warning rather than failing startup.
//
// # Inputs
//
//   - cfg: Logger configuration. Service is required.
//
// # Outputs
//
//   - *Logger: The installed logger. Caller should defer Close().
func Setup(cfg Config) *Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}

	l := &Logger{}
	writer := out

	if cfg.LogDir != "" {
		if file, err := openLogFile(cfg.LogDir, cfg.Service); err != nil {
			fmt.Fprintf(os.Stderr, "logging: file logging disabled: %v\n", err)
		} else {
			l.file = file
			writer = io.MultiWriter(out, file)
		}
	}

	handler := slog.NewJSONHandler(writer, &slog.HandlerOptions{
		Level: parseLevel(cfg.Level),
	})
	l.slogger = slog.New(handler).With("service", cfg.Service)
	slog.SetDefault(l.slogger)
	return l
}

// Slog returns the underlying slog.Logger for explicit injection.
func (l *Logger) Slog() *slog.Logger {
	return l.slogger
}

// Close releases the log file, if any.
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}

// openLogFile opens the dated per-service log file, creating the
// directory as needed.
func openLogFile(dir, service string) (*os.File, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("create log directory %s: %w", dir, err)
	}
	name := fmt.Sprintf("%s_%s.log", service, time.Now().Format("2006-01-02"))
	file, err := os.OpenFile(filepath.Join(dir, name),
		os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0640)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return file, nil
}

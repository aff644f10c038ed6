// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command completion starts the AleutianComplete HTTP server.
//
// This is the main entry point for the containerized completion study
// service. It reads configuration from environment variables and starts
// the server.
//
// # Environment Variables
//
//   - COMPLETION_PORT: HTTP server port (default: 12220)
//   - COMPLETION_STORE_PATH: BadgerDB directory for records (default: ./data/records)
//   - COMPLETION_STUDY_CONFIG: study YAML config file (optional)
//   - COMPLETION_PROVIDER_CONFIG: provider YAML config file (default: ./config/providers.yaml)
//   - COMPLETION_SURVEY_LINK: survey URL template with {user_id} (optional)
//   - COMPLETION_LOG_LEVEL: minimum log level (default: info)
//   - COMPLETION_LOG_DIR: directory for file logging (optional)
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OpenTelemetry collector (optional)
//
// # Usage
//
//	# Build
//	go build -o completion ./cmd/completion
//
//	# Run
//	./completion
//
//	# Or via container
//	podman-compose up completion
package main

import (
	"log"
	"log/slog"
	"os"
	"strconv"

	"github.com/AleutianAI/AleutianComplete/pkg/logging"
	"github.com/AleutianAI/AleutianComplete/services/completion"
)

func main() {
	// Setup structured logging
	logger := logging.Setup(logging.Config{
		Service: "completion",
		Level:   os.Getenv("COMPLETION_LOG_LEVEL"),
		LogDir:  os.Getenv("COMPLETION_LOG_DIR"),
	})
	defer logger.Close()

	// Build configuration from environment variables
	cfg := completion.Config{
		Port:               getEnvInt("COMPLETION_PORT", 12220),
		StorePath:          getEnvString("COMPLETION_STORE_PATH", "./data/records"),
		StudyConfigPath:    os.Getenv("COMPLETION_STUDY_CONFIG"),
		ProviderConfigPath: getEnvString("COMPLETION_PROVIDER_CONFIG", "./config/providers.yaml"),
		SurveyLink:         os.Getenv("COMPLETION_SURVEY_LINK"),
		OTelEndpoint:       os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	slog.Info("Starting completion service",
		"port", cfg.Port,
		"store_path", cfg.StorePath,
		"provider_config", cfg.ProviderConfigPath,
	)

	svc, err := completion.New(cfg)
	if err != nil {
		log.Fatalf("Failed to create completion service: %v", err)
	}

	// Run the server (blocks until shutdown)
	if err := svc.Run(); err != nil {
		log.Fatalf("Completion service error: %v", err)
	}
}

// getEnvString returns the environment variable value or a default.
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns the environment variable as int or a default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

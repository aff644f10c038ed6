// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package providers defines the completion-provider boundary.
//
// A provider is an opaque external backend that turns a (prefix, suffix)
// pair into a completion string. The neural models behind it are out of
// scope; this package only knows the interface, the two concrete
// transports (an OpenAI-compatible API and an Ollama-style HTTP server),
// and the one failure mode that is fatal to the whole process.
package providers

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrResourceExhausted signals unrecoverable accelerator memory exhaustion
// in a provider backend.
//
// Shared accelerator memory corruption cannot be contained locally, so
// this error is fatal to the whole process: the dispatcher propagates it
// unwrapped and the orchestrator terminates, relying on the supervisor to
// restart the service. It is never retried or isolated.
var ErrResourceExhausted = errors.New("provider resource exhausted")

// Provider generates completions for a cursor position.
//
// # Thread Safety
//
// Implementations must be safe for concurrent Generate calls; the
// dispatcher fans out across providers in parallel.
type Provider interface {
	// Name identifies the provider in responses and stored records.
	Name() string

	// Generate returns the completion for the given context.
	//
	// Must not fail for ordinary empty or short input. May return
	// ErrResourceExhausted to signal the fatal exhaustion condition.
	Generate(ctx context.Context, prefix, suffix string) (string, error)
}

// =============================================================================
// Configuration
// =============================================================================

// ProviderConfig describes one provider backend.
//
// Fields:
//   - Name: Provider identity used in responses and records. Required.
//   - Type: "openai", "http", or "static".
//   - BaseURL: Backend base URL ("http" type) or API base override ("openai").
//   - Model: Model identifier passed to the backend.
//   - APIKeyEnv: Environment variable holding the API key ("openai" type).
//   - Timeout: Per-request bound. Default: 30s.
//   - Completion: Fixed completion text ("static" type, dev/testing).
type ProviderConfig struct {
	Name       string        `yaml:"name"`
	Type       string        `yaml:"type"`
	BaseURL    string        `yaml:"base_url"`
	Model      string        `yaml:"model"`
	APIKeyEnv  string        `yaml:"api_key_env"`
	Timeout    time.Duration `yaml:"timeout"`
	Completion string        `yaml:"completion"`
}

// UnmarshalYAML decodes one provider entry, accepting Go duration
// strings ("30s", "2m") for timeout.
func (c *ProviderConfig) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		Name       string `yaml:"name"`
		Type       string `yaml:"type"`
		BaseURL    string `yaml:"base_url"`
		Model      string `yaml:"model"`
		APIKeyEnv  string `yaml:"api_key_env"`
		Timeout    string `yaml:"timeout"`
		Completion string `yaml:"completion"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	c.Name = raw.Name
	c.Type = raw.Type
	c.BaseURL = raw.BaseURL
	c.Model = raw.Model
	c.APIKeyEnv = raw.APIKeyEnv
	c.Completion = raw.Completion
	if raw.Timeout != "" {
		d, err := time.ParseDuration(raw.Timeout)
		if err != nil {
			return fmt.Errorf("provider %s: parse timeout: %w", raw.Name, err)
		}
		c.Timeout = d
	}
	return nil
}

// Config is the provider set for one deployment.
type Config struct {
	Providers []ProviderConfig `yaml:"providers"`
}

// LoadConfig reads a YAML provider configuration file.
func LoadConfig(path string) (Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read provider config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse provider config %s: %w", path, err)
	}
	if len(cfg.Providers) == 0 {
		return cfg, fmt.Errorf("provider config %s: no providers defined", path)
	}
	return cfg, nil
}

// Build constructs the configured providers.
//
// Description:
//
//	Provider names must be unique; duplicate names would collide in the
//	predictions map keyed by provider identity.
//
// Outputs:
//
//	[]Provider - One provider per config entry, in order.
//	error - Non-nil on unknown type, duplicate name, or backend setup
//	failure.
func Build(cfg Config) ([]Provider, error) {
	seen := make(map[string]bool, len(cfg.Providers))
	out := make([]Provider, 0, len(cfg.Providers))
	for _, pc := range cfg.Providers {
		if pc.Name == "" {
			return nil, errors.New("provider config: name is required")
		}
		if seen[pc.Name] {
			return nil, fmt.Errorf("provider config: duplicate name %q", pc.Name)
		}
		seen[pc.Name] = true

		var (
			p   Provider
			err error
		)
		switch strings.ToLower(pc.Type) {
		case "openai":
			p, err = NewOpenAIProvider(pc)
		case "http":
			p, err = NewHTTPProvider(pc)
		case "static":
			p = NewStaticProvider(pc.Name, pc.Completion)
		default:
			err = fmt.Errorf("provider config: unknown type %q for %q", pc.Type, pc.Name)
		}
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

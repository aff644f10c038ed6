// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package providers

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// OpenAIProvider generates completions through an OpenAI-compatible API.
//
// Uses the legacy completions endpoint with a suffix so the backend does
// fill-in-the-middle rather than plain continuation. Works against any
// server speaking the OpenAI wire protocol (vLLM, llama.cpp server, the
// hosted API).
type OpenAIProvider struct {
	name   string
	client *openai.Client
	model  string
}

// NewOpenAIProvider creates a provider from its config entry.
//
// Description:
//
//	Reads the API key from the environment variable named by APIKeyEnv
//	(default OPENAI_API_KEY), falling back to the container secret path
//	when unset. BaseURL overrides the API endpoint for self-hosted
//	OpenAI-compatible servers.
//
// Outputs:
//
//	*OpenAIProvider - Ready for concurrent use.
//	error - Non-nil if no API key can be found or Model is empty.
func NewOpenAIProvider(cfg ProviderConfig) (*OpenAIProvider, error) {
	keyEnv := cfg.APIKeyEnv
	if keyEnv == "" {
		keyEnv = "OPENAI_API_KEY"
	}
	apiKey := os.Getenv(keyEnv)
	if apiKey == "" {
		secretPath := "/run/secrets/openai_api_key"
		apiKeyBytes, err := os.ReadFile(secretPath)
		if err != nil {
			return nil, fmt.Errorf("provider %s: %s not set and secret not found at %s", cfg.Name, keyEnv, secretPath)
		}
		apiKey = strings.TrimSpace(string(apiKeyBytes))
		slog.Info("Read the provider API key from container secrets", "provider", cfg.Name)
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("provider %s: model is required", cfg.Name)
	}

	clientCfg := openai.DefaultConfig(apiKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	}

	slog.Info("Initializing OpenAI-compatible provider",
		"provider", cfg.Name, "model", cfg.Model, "base_url", cfg.BaseURL)
	return &OpenAIProvider{
		name:   cfg.Name,
		client: openai.NewClientWithConfig(clientCfg),
		model:  cfg.Model,
	}, nil
}

// Name implements the Provider interface.
func (p *OpenAIProvider) Name() string { return p.name }

// Generate implements the Provider interface.
func (p *OpenAIProvider) Generate(ctx context.Context, prefix, suffix string) (string, error) {
	req := openai.CompletionRequest{
		Model:       p.model,
		Prompt:      prefix,
		Suffix:      suffix,
		MaxTokens:   64,
		Temperature: 0,
		Stop:        []string{"\n\n"},
	}

	resp, err := p.client.CreateCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("provider %s: completion call failed: %w", p.name, err)
	}
	if len(resp.Choices) == 0 {
		slog.Warn("provider returned no choices", "provider", p.name)
		return "", nil
	}
	return resp.Choices[0].Text, nil
}

var _ Provider = (*OpenAIProvider)(nil)

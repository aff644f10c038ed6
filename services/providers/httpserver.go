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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("aleutian.providers.http")

// HTTPProvider generates completions through a self-hosted model server
// speaking an Ollama-style JSON generate protocol.
type HTTPProvider struct {
	name       string
	httpClient *http.Client
	baseURL    string
	model      string
}

// generate request/response structures for the model server API.
type generateRequest struct {
	Model  string `json:"model"`
	Prefix string `json:"prefix"`
	Suffix string `json:"suffix"`
}

type generateResponse struct {
	Model      string `json:"model"`
	Completion string `json:"completion"`
	Error      string `json:"error,omitempty"`
}

// NewHTTPProvider creates a provider from its config entry.
func NewHTTPProvider(cfg ProviderConfig) (*HTTPProvider, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("provider %s: base_url is required", cfg.Name)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	slog.Info("Initializing HTTP provider", "provider", cfg.Name, "base_url", baseURL, "model", cfg.Model)
	return &HTTPProvider{
		name:       cfg.Name,
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		model:      cfg.Model,
	}, nil
}

// Name implements the Provider interface.
func (p *HTTPProvider) Name() string { return p.name }

// Generate implements the Provider interface.
//
// # Description
//
// POSTs the context to the model server's /api/generate endpoint. A 507
// status, or an error body mentioning memory exhaustion, maps to
// ErrResourceExhausted: the GPU state behind the server is assumed
// corrupt and the whole process must restart.
func (p *HTTPProvider) Generate(ctx context.Context, prefix, suffix string) (string, error) {
	ctx, span := tracer.Start(ctx, "HTTPProvider.Generate")
	defer span.End()
	span.SetAttributes(
		attribute.String("provider.name", p.name),
		attribute.String("provider.model", p.model),
	)

	payload := generateRequest{Model: p.model, Prefix: prefix, Suffix: suffix}
	reqBody, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("provider %s: marshal request: %w", p.name, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.baseURL+"/api/generate", bytes.NewReader(reqBody))
	if err != nil {
		return "", fmt.Errorf("provider %s: build request: %w", p.name, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("provider %s: request failed: %w", p.name, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("provider %s: read response: %w", p.name, err)
	}

	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode == http.StatusInsufficientStorage || isOOMBody(body) {
			span.SetStatus(codes.Error, "resource exhausted")
			slog.Error("provider reported accelerator memory exhaustion",
				"provider", p.name, "status", resp.StatusCode)
			return "", ErrResourceExhausted
		}
		span.SetStatus(codes.Error, fmt.Sprintf("status %d", resp.StatusCode))
		return "", fmt.Errorf("provider %s: status %d: %s", p.name, resp.StatusCode, string(body))
	}

	var out generateResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("provider %s: decode response: %w", p.name, err)
	}
	if out.Error != "" {
		return "", fmt.Errorf("provider %s: backend error: %s", p.name, out.Error)
	}
	return out.Completion, nil
}

// isOOMBody detects accelerator OOM reports from servers that return 500
// with a descriptive body instead of 507.
func isOOMBody(body []byte) bool {
	s := strings.ToLower(string(body))
	return strings.Contains(s, "out of memory") || strings.Contains(s, "cuda oom")
}

var _ Provider = (*HTTPProvider)(nil)

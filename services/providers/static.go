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

import "context"

// StaticProvider returns a fixed completion. Used for local development
// and tests where no model server is available.
type StaticProvider struct {
	name       string
	completion string
}

// NewStaticProvider creates a provider that always returns completion.
func NewStaticProvider(name, completion string) *StaticProvider {
	return &StaticProvider{name: name, completion: completion}
}

// Name implements the Provider interface.
func (p *StaticProvider) Name() string { return p.name }

// Generate implements the Provider interface.
func (p *StaticProvider) Generate(ctx context.Context, prefix, suffix string) (string, error) {
	return p.completion, nil
}

var _ Provider = (*StaticProvider)(nil)

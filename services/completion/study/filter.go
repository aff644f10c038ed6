// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package study

import (
	"fmt"
	"os"
	"time"

	"github.com/AleutianAI/AleutianComplete/services/completion/datatypes"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// Study Configuration
// =============================================================================

// Config is the study-side configuration surface.
//
// Fields:
//   - Arms: Enabled arm identifiers. Empty means all four.
//   - Cache: Session cache tuning (timeout, capacity seed).
//   - FeatureWeights: Parameters of the feature arm's predicate.
//   - MinContextLength: Combined prefix+suffix length below which a
//     request is filtered unconditionally. Default: 10.
type Config struct {
	Arms             []Arm          `yaml:"arms"`
	Cache            CacheConfig    `yaml:"cache"`
	FeatureWeights   FeatureWeights `yaml:"feature_weights"`
	MinContextLength int            `yaml:"min_context_length"`
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		Arms:             DefaultArms,
		Cache:            DefaultCacheConfig(),
		FeatureWeights:   DefaultFeatureWeights(),
		MinContextLength: 10,
	}
}

// LoadConfig reads a YAML study configuration file.
//
// Description:
//
//	Unknown arms are rejected rather than silently dropped, since a typo
//	in the arm list would skew the experiment. Zero-valued fields keep
//	their defaults.
//
// Inputs:
//
//	path - YAML file path.
//
// Outputs:
//
//	Config - Parsed configuration with defaults applied.
//	error - Non-nil if the file is unreadable, malformed, or names an
//	unknown arm.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read study config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse study config %s: %w", path, err)
	}

	known := map[Arm]bool{ArmNoFilter: true, ArmFeature: true, ArmContext: true, ArmJoint: true}
	for _, arm := range cfg.Arms {
		if !known[arm] {
			return cfg, fmt.Errorf("study config %s: unknown arm %q", path, arm)
		}
	}
	if cfg.MinContextLength <= 0 {
		cfg.MinContextLength = DefaultConfig().MinContextLength
	}
	return cfg, nil
}

// =============================================================================
// Filter Decision
// =============================================================================

// Study couples the arm registry and the session cache into the single
// filter-decision operation the orchestrator calls.
type Study struct {
	registry         Registry
	cache            *SessionCache
	minContextLength int
}

// New creates a Study from configuration.
//
// Inputs:
//
//	cfg - Study configuration.
//	classifier - Backend for the context/joint arms. Nil means a no-op
//	classifier that never filters.
func New(cfg Config, classifier Classifier) *Study {
	if classifier == nil {
		classifier = NewNopClassifier()
	}
	reg := NewRegistry(cfg.Arms, cfg.FeatureWeights, classifier)
	minLen := cfg.MinContextLength
	if minLen <= 0 {
		minLen = DefaultConfig().MinContextLength
	}
	return &Study{
		registry:         reg,
		cache:            NewSessionCache(reg, cfg.Cache),
		minContextLength: minLen,
	}
}

// Decision is the outcome of the filter stage for one request.
type Decision struct {
	Arm          Arm
	ShouldFilter bool
	Elapsed      time.Duration
}

// FilterRequest resolves the user's arm and applies its predicate.
//
// # Description
//
// Resolves the arm through the session cache (refreshing the session
// window), then applies the arm's predicate to the request augmented with
// the time since the user's last completion. Degenerate short contexts
// are filtered regardless of arm. Elapsed covers the whole decision,
// predicate included, since predicate latency is a study measurement.
//
// # Inputs
//
//   - user: Opaque user identity.
//   - req: The validated completion request.
//   - now: Wall-clock time of the request.
//
// # Outputs
//
//   - Decision: Arm, filter verdict, and decision latency.
func (s *Study) FilterRequest(user string, req *datatypes.CompletionRequest, now time.Time) Decision {
	arm, sinceLast := s.cache.Resolve(user, now)

	var shouldFilter bool
	if req.ContextLength() < s.minContextLength {
		shouldFilter = true
	} else {
		shouldFilter = s.registry[arm](FilterInput{
			Prefix:                  req.Prefix,
			Suffix:                  req.Suffix,
			Language:                req.Language,
			IDE:                     req.IDE,
			TimeSinceLastCompletion: sinceLast.Seconds(),
		})
	}

	return Decision{
		Arm:          arm,
		ShouldFilter: shouldFilter,
		Elapsed:      time.Since(now),
	}
}

// Cache exposes the session cache for observability and tests.
func (s *Study) Cache() *SessionCache {
	return s.cache
}

// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package study implements the experiment-arm half of the completion study:
// the closed set of arms, the per-arm filter predicates, and the
// session-scoped arm assignment cache with adaptive eviction.
//
// # Arms and Predicates
//
// An arm is a plain identifier; its filter behavior lives in a separate
// registry keyed by that identifier. This keeps the data (which arm a user
// is in) and the behavior (what that arm filters) independently testable.
//
// # Sessions
//
// A session is a sliding window of continuous activity from one user.
// While the session is active the user's arm never changes; once the gap
// since the last completion exceeds the session timeout, the next request
// draws a fresh arm uniformly at random.
package study

import (
	"math"
	"strings"
)

// =============================================================================
// Arm Identifiers
// =============================================================================

// Arm identifies one variant of the filtering experiment.
//
// Valid Values:
//   - "no_filter": Control arm; every suggestion is shown.
//   - "feature": Logistic predicate over cheap request features.
//   - "context": Classifier over the code context around the cursor.
//   - "joint": Classifier over context plus request features.
type Arm string

const (
	ArmNoFilter Arm = "no_filter"
	ArmFeature  Arm = "feature"
	ArmContext  Arm = "context"
	ArmJoint    Arm = "joint"
)

// DefaultArms is the arm set used when configuration does not name one.
var DefaultArms = []Arm{ArmNoFilter, ArmFeature, ArmContext, ArmJoint}

// =============================================================================
// Filter Predicates
// =============================================================================

// FilterInput is the view of a request that filter predicates see.
//
// TimeSinceLastCompletion is taken from the arm cache at resolve time:
// zero for a fresh session, the elapsed gap otherwise.
type FilterInput struct {
	Prefix                  string
	Suffix                  string
	Language                string
	IDE                     string
	TimeSinceLastCompletion float64 // seconds
}

// FilterFunc decides whether the suggestion for a request is withheld.
// True means filter out (do not dispatch, do not show).
type FilterFunc func(in FilterInput) bool

// Classifier scores a completion context for the model-backed arms.
//
// Description:
//
//	The context and joint arms delegate to an external classifier service;
//	it is an opaque collaborator here, like the completion providers.
//	Implementations return true to filter the request out.
type Classifier interface {
	ShouldFilter(in FilterInput, withFeatures bool) bool
}

// nopClassifier never filters. Used when no classifier backend is wired.
type nopClassifier struct{}

func (nopClassifier) ShouldFilter(FilterInput, bool) bool { return false }

// NewNopClassifier returns a classifier that never filters.
func NewNopClassifier() Classifier { return nopClassifier{} }

// FeatureWeights parameterizes the feature arm's logistic predicate.
//
// The predicate computes intercept + w·x over the feature vector below and
// filters the request when the score is not positive.
type FeatureWeights struct {
	Intercept             float64 `yaml:"intercept"`
	TimeSinceLast         float64 `yaml:"time_since_last"`
	DocumentLength        float64 `yaml:"document_length"`
	Offset                float64 `yaml:"offset"`
	OffsetPercentage      float64 `yaml:"offset_percentage"`
	WhitespaceAfterCursor float64 `yaml:"whitespace_after_cursor"`
	LastLineLength        float64 `yaml:"last_line_length"`
	LastLineStripped      float64 `yaml:"last_line_stripped"`
}

// DefaultFeatureWeights returns the production predicate parameters.
//
// The intercept matches the trained model's bias; with zero feature
// weights the predicate shows every suggestion, which is the safe default
// when weights are not configured.
func DefaultFeatureWeights() FeatureWeights {
	return FeatureWeights{Intercept: 3.73303724}
}

// featureFilter builds the feature arm's predicate from its weights.
func featureFilter(w FeatureWeights) FilterFunc {
	return func(in FilterInput) bool {
		docLen := len(in.Prefix) + len(in.Suffix)
		offset := len(in.Prefix)
		offsetPct := 0.0
		if docLen > 0 {
			offsetPct = float64(offset) / float64(docLen)
		}
		whitespaceAfter := 0.0
		if len(in.Suffix) >= 1 && in.Suffix[0] == ' ' {
			whitespaceAfter = 1.0
		}
		lastLine := in.Prefix
		if i := strings.LastIndexByte(in.Prefix, '\n'); i >= 0 {
			lastLine = in.Prefix[i+1:]
		}
		lastLineStripped := strings.TrimRight(lastLine, " \t")

		score := w.Intercept +
			w.TimeSinceLast*math.Log(1+in.TimeSinceLastCompletion) +
			w.DocumentLength*math.Log(1+float64(docLen)) +
			w.Offset*math.Log(1+float64(offset)) +
			w.OffsetPercentage*offsetPct +
			w.WhitespaceAfterCursor*whitespaceAfter +
			w.LastLineLength*math.Log(1+float64(len(lastLine))) +
			w.LastLineStripped*math.Log(1+float64(len(lastLineStripped)))

		// Positive score means the suggestion is worth showing.
		return score <= 0
	}
}

// =============================================================================
// Registry
// =============================================================================

// Registry maps arm identifiers to their filter predicates.
//
// The set of keys is the arm pool the session cache draws from.
type Registry map[Arm]FilterFunc

// NewRegistry builds the predicate registry for the given arm set.
//
// Description:
//
//	Unknown arm identifiers are dropped with the caller expected to have
//	validated configuration beforehand; an empty arm list falls back to
//	DefaultArms. The classifier backs the context and joint arms; pass
//	NewNopClassifier() when no classifier service is deployed.
//
// Inputs:
//
//	arms - Enabled arm identifiers. Empty means DefaultArms.
//	weights - Feature predicate parameters.
//	classifier - Backend for the context/joint arms. Must not be nil.
//
// Outputs:
//
//	Registry - Predicates keyed by arm.
func NewRegistry(arms []Arm, weights FeatureWeights, classifier Classifier) Registry {
	if len(arms) == 0 {
		arms = DefaultArms
	}
	reg := make(Registry, len(arms))
	for _, arm := range arms {
		switch arm {
		case ArmNoFilter:
			reg[arm] = func(FilterInput) bool { return false }
		case ArmFeature:
			reg[arm] = featureFilter(weights)
		case ArmContext:
			reg[arm] = func(in FilterInput) bool { return classifier.ShouldFilter(in, false) }
		case ArmJoint:
			reg[arm] = func(in FilterInput) bool { return classifier.ShouldFilter(in, true) }
		}
	}
	return reg
}

// Arms returns the registry's arm identifiers in unspecified order.
func (r Registry) Arms() []Arm {
	arms := make([]Arm, 0, len(r))
	for arm := range r {
		arms = append(arms, arm)
	}
	return arms
}

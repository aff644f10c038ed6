// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes provides type definitions for the completion study service.
//
// This file contains the wire and storage types for the two-phase
// completion/verification protocol: the inbound completion request, the
// persisted completion record, and the verification request that attaches
// ground truth to a record exactly once.
package datatypes

import (
	"fmt"
	"strings"
	"time"
)

// =============================================================================
// ENUMS
// =============================================================================

// Trigger indicates how a completion request was initiated in the editor.
//
// Description:
//
//	Auto triggers fire as the user types; manual triggers are an explicit
//	keybind. Manual triggers always dispatch to the providers, regardless
//	of the filter decision, because the user explicitly asked.
//
// Valid Values:
//   - "auto": Fired by the editor as the user types
//   - "manual": Fired by an explicit user keybind
type Trigger string

const (
	TriggerAuto   Trigger = "auto"
	TriggerManual Trigger = "manual"
)

// IsValid checks if the Trigger is a valid value.
func (t Trigger) IsValid() bool {
	return t == TriggerAuto || t == TriggerManual
}

// =============================================================================
// Completion Request
// =============================================================================

// CompletionRequest is the inbound body of POST /prediction/autocomplete.
//
// Description:
//
//	Carries the editor context around the cursor plus request metadata.
//	Immutable once received; the handler never mutates it.
//
// Fields:
//   - Prefix: Document text before the cursor. May be empty.
//   - Suffix: Document text after the cursor. May be empty.
//   - Trigger: How the completion was initiated. Defaults to "auto".
//   - Language: Source language identifier (e.g. "python"). Required.
//   - IDE: Editor identifier (e.g. "vsc", "jetbrains"). Required.
//   - IDEMetadata: Free-form editor metadata (plugin version, keybind, ...).
type CompletionRequest struct {
	Prefix      string            `json:"prefix"`
	Suffix      string            `json:"suffix"`
	Trigger     Trigger           `json:"trigger"`
	Language    string            `json:"language"`
	IDE         string            `json:"ide"`
	IDEMetadata map[string]string `json:"ideMetadata,omitempty"`
}

// Validate checks required fields and normalizes enum and identifier casing.
//
// Description:
//
//	Applies the "auto" default when Trigger is absent, lowercases the
//	language and IDE identifiers, and rejects unknown trigger values.
//	Returns a field-naming error suitable for a 400 response.
//
// Outputs:
//   - error: Non-nil with the offending field name if the request is invalid.
func (r *CompletionRequest) Validate() error {
	if r.Trigger == "" {
		r.Trigger = TriggerAuto
	}
	if !r.Trigger.IsValid() {
		return fmt.Errorf("key 'trigger' must be one of 'auto', 'manual'")
	}
	if r.Language == "" {
		return fmt.Errorf("missing key 'language' in request body")
	}
	if r.IDE == "" {
		return fmt.Errorf("missing key 'ide' in request body")
	}
	r.Language = strings.ToLower(r.Language)
	r.IDE = strings.ToLower(r.IDE)
	return nil
}

// ContextLength returns the combined prefix+suffix length in bytes.
//
// Degenerate short contexts below the configured minimum are filtered
// unconditionally, since no provider produces a meaningful suggestion
// for them.
func (r *CompletionRequest) ContextLength() int {
	return len(r.Prefix) + len(r.Suffix)
}

// =============================================================================
// Completion Record
// =============================================================================

// CompletionRecord is the persisted record of one completion exchange.
//
// Description:
//
//	One record is written per shown-or-filtered request, keyed by
//	(user identity, verify token). A record is created exactly once and,
//	only if providers were dispatched, mutated exactly once more by the
//	verification call that attaches ChosenPrediction and GroundTruth.
//
// Fields:
//
//	The request fields are copied verbatim at creation time. FilterTimeMs
//	and PredictTimeMs are wall-clock spans in milliseconds. WasFiltered is
//	the arm predicate's verdict; Dispatched records whether providers were
//	actually consulted, which differs on manual triggers that override a
//	filter verdict. Only dispatched records are eligible for verification.
//	GroundTruth is a pointer so "record already carries ground truth" is
//	distinguishable from an empty-string ground truth.
type CompletionRecord struct {
	Prefix      string            `json:"prefix"`
	Suffix      string            `json:"suffix"`
	Trigger     Trigger           `json:"trigger"`
	Language    string            `json:"language"`
	IDE         string            `json:"ide"`
	IDEMetadata map[string]string `json:"ideMetadata,omitempty"`

	Timestamp     time.Time         `json:"timestamp"`
	Arm           string            `json:"arm"`
	FilterTimeMs  float64           `json:"filterTimeMs"`
	WasFiltered   bool              `json:"wasFiltered"`
	Dispatched    bool              `json:"dispatched"`
	PredictTimeMs float64           `json:"predictTimeMs"`
	Predictions   map[string]string `json:"predictions"`
	SurveyFlag    bool              `json:"survey"`
	StudyVersion  string            `json:"studyVersion"`

	// Set exactly once by verification. Nil until then.
	ChosenPrediction *string `json:"chosenPrediction,omitempty"`
	GroundTruth      *string `json:"groundTruth,omitempty"`
}

// Verified reports whether the record already carries ground truth.
func (r *CompletionRecord) Verified() bool {
	return r.GroundTruth != nil
}

// =============================================================================
// Verification
// =============================================================================

// VerifyRequest is the inbound body of POST /prediction/verify.
//
// ChosenPrediction is optional (the user may have dismissed the
// suggestion); GroundTruth is what the user actually typed.
type VerifyRequest struct {
	VerifyToken      string  `json:"verifyToken"`
	ChosenPrediction *string `json:"chosenPrediction,omitempty"`
	GroundTruth      *string `json:"groundTruth"`
}

// Validate checks required fields.
func (r *VerifyRequest) Validate() error {
	if r.VerifyToken == "" {
		return fmt.Errorf("missing key 'verifyToken' in request body")
	}
	if r.GroundTruth == nil {
		return fmt.Errorf("missing key 'groundTruth' in request body")
	}
	return nil
}

// VerifyPatch is the mutation applied to a CompletionRecord by verification.
type VerifyPatch struct {
	ChosenPrediction *string
	GroundTruth      *string
}

// =============================================================================
// Responses
// =============================================================================

// CompletionResponse is the success body of POST /prediction/autocomplete.
//
// VerifyToken is empty when the request was filtered: filtered requests
// mint no token and are never eligible for verification.
type CompletionResponse struct {
	Predictions map[string]string `json:"predictions"`
	VerifyToken string            `json:"verifyToken,omitempty"`
	Survey      bool              `json:"survey"`
}

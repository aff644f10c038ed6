// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// Tests for completion request/record datatypes

package datatypes

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// CompletionRequest Tests
// =============================================================================

func TestCompletionRequestValidate_Defaults(t *testing.T) {
	req := CompletionRequest{
		Prefix:   "def main():",
		Language: "Python",
		IDE:      "JetBrains",
	}
	require.NoError(t, req.Validate())

	assert.Equal(t, TriggerAuto, req.Trigger)
	assert.Equal(t, "python", req.Language)
	assert.Equal(t, "jetbrains", req.IDE)
}

func TestCompletionRequestValidate_MissingLanguage(t *testing.T) {
	req := CompletionRequest{IDE: "vsc"}
	err := req.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "language")
}

func TestCompletionRequestValidate_MissingIDE(t *testing.T) {
	req := CompletionRequest{Language: "go"}
	err := req.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ide")
}

func TestCompletionRequestValidate_UnknownTrigger(t *testing.T) {
	req := CompletionRequest{Language: "go", IDE: "vsc", Trigger: "hover"}
	err := req.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "trigger")
}

func TestCompletionRequest_ContextLength(t *testing.T) {
	req := CompletionRequest{Prefix: "abc", Suffix: "de"}
	assert.Equal(t, 5, req.ContextLength())
}

// =============================================================================
// VerifyRequest Tests
// =============================================================================

func TestVerifyRequestValidate(t *testing.T) {
	truth := "x + y"
	valid := VerifyRequest{VerifyToken: "tok", GroundTruth: &truth}
	assert.NoError(t, valid.Validate())

	missingToken := VerifyRequest{GroundTruth: &truth}
	assert.Error(t, missingToken.Validate())

	missingTruth := VerifyRequest{VerifyToken: "tok"}
	assert.Error(t, missingTruth.Validate())

	// Empty-string ground truth is legitimate: the user typed nothing.
	empty := ""
	dismissed := VerifyRequest{VerifyToken: "tok", GroundTruth: &empty}
	assert.NoError(t, dismissed.Validate())
}

// =============================================================================
// CompletionRecord Tests
// =============================================================================

func TestCompletionRecord_Verified(t *testing.T) {
	record := CompletionRecord{}
	assert.False(t, record.Verified())

	empty := ""
	record.GroundTruth = &empty
	assert.True(t, record.Verified())
}

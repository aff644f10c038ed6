// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// Tests for the verify handler

package handlers

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/AleutianAI/AleutianComplete/services/completion/datatypes"
	"github.com/AleutianAI/AleutianComplete/services/completion/study"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// completeOnce runs one successful autocomplete and returns its token.
func completeOnce(t *testing.T, env *testEnv) string {
	t.Helper()
	w := env.post(t, "/prediction/autocomplete", validRequestBody())
	require.Equal(t, http.StatusOK, w.Code)

	var resp datatypes.CompletionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.VerifyToken)
	return resp.VerifyToken
}

// =============================================================================
// HandleVerify Tests
// =============================================================================

func TestHandleVerify_RoundTrip(t *testing.T) {
	env := newTestEnv(t, study.ArmNoFilter)
	token := completeOnce(t, env)

	w := env.post(t, "/prediction/verify", map[string]any{
		"verifyToken":      token,
		"chosenPrediction": "completed()",
		"groundTruth":      "completed(ctx)",
	})
	require.Equal(t, http.StatusOK, w.Code)

	record, err := env.store.Get(t.Context(), "user-token-1", token)
	require.NoError(t, err)
	require.True(t, record.Verified())
	assert.Equal(t, "completed(ctx)", *record.GroundTruth)
	assert.Equal(t, "completed()", *record.ChosenPrediction)
}

func TestHandleVerify_SecondUseRejected(t *testing.T) {
	env := newTestEnv(t, study.ArmNoFilter)
	token := completeOnce(t, env)

	first := env.post(t, "/prediction/verify", map[string]any{
		"verifyToken": token,
		"groundTruth": "first",
	})
	require.Equal(t, http.StatusOK, first.Code)

	second := env.post(t, "/prediction/verify", map[string]any{
		"verifyToken": token,
		"groundTruth": "second",
	})
	assert.Equal(t, http.StatusBadRequest, second.Code)

	var resp map[string]string
	json.Unmarshal(second.Body.Bytes(), &resp)
	assert.Contains(t, resp["error"], "already used")

	// The first ground truth sticks.
	record, err := env.store.Get(t.Context(), "user-token-1", token)
	require.NoError(t, err)
	assert.Equal(t, "first", *record.GroundTruth)
}

func TestHandleVerify_UnknownToken(t *testing.T) {
	env := newTestEnv(t, study.ArmNoFilter)

	w := env.post(t, "/prediction/verify", map[string]any{
		"verifyToken": "deadbeefdeadbeefdeadbeefdeadbeef",
		"groundTruth": "x",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	var resp map[string]string
	json.Unmarshal(w.Body.Bytes(), &resp)
	assert.Contains(t, resp["error"], "invalid verify token")
}

func TestHandleVerify_TokenScopedToUser(t *testing.T) {
	env := newTestEnv(t, study.ArmNoFilter)
	token := completeOnce(t, env)

	// Another user replaying the token does not reach the record.
	w := env.postAs(t, "other-user", "/prediction/verify", map[string]any{
		"verifyToken": token,
		"groundTruth": "x",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleVerify_MissingGroundTruth(t *testing.T) {
	env := newTestEnv(t, study.ArmNoFilter)
	token := completeOnce(t, env)

	w := env.post(t, "/prediction/verify", map[string]any{
		"verifyToken": token,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	var resp map[string]string
	json.Unmarshal(w.Body.Bytes(), &resp)
	assert.Contains(t, resp["error"], "groundTruth")
}

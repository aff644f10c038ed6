// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// Tests for the autocomplete handler

package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/AleutianAI/AleutianComplete/services/completion/datatypes"
	"github.com/AleutianAI/AleutianComplete/services/completion/dispatch"
	"github.com/AleutianAI/AleutianComplete/services/completion/middleware"
	"github.com/AleutianAI/AleutianComplete/services/completion/store"
	"github.com/AleutianAI/AleutianComplete/services/completion/study"
	"github.com/AleutianAI/AleutianComplete/services/providers"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testEnv bundles the components one handler test needs.
type testEnv struct {
	router *gin.Engine
	store  *store.Store
}

// newTestEnv builds a router with the autocomplete and verify routes
// over an in-memory store, a single static provider, and a study pinned
// to the given arm.
func newTestEnv(t *testing.T, arm study.Arm) *testEnv {
	cfg := study.DefaultConfig()
	cfg.Arms = []study.Arm{arm}
	return newTestEnvWithStudy(t, cfg)
}

func newTestEnvWithStudy(t *testing.T, cfg study.Config) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	st := study.New(cfg, nil)

	d, err := dispatch.New([]providers.Provider{
		providers.NewStaticProvider("model-a", "completed()"),
	}, 0)
	require.NoError(t, err)

	s, err := store.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	env := &testEnv{store: s}
	fatal := func() { t.Error("unexpected process termination") }

	router := gin.New()
	authed := router.Group("/", middleware.AuthMiddleware())
	authed.POST("/prediction/autocomplete", HandleAutocomplete(st, d, s, fatal))
	authed.POST("/prediction/verify", HandleVerify(s))
	env.router = router
	return env
}

func (e *testEnv) post(t *testing.T, path string, body any) *httptest.ResponseRecorder {
	return e.postAs(t, "user-token-1", path, body)
}

func (e *testEnv) postAs(t *testing.T, user, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+user)
	e.router.ServeHTTP(w, req)
	return w
}

func validRequestBody() map[string]any {
	return map[string]any{
		"prefix":   "func handleRequest(w http.ResponseWriter) {\n\t",
		"suffix":   "\n}",
		"language": "go",
		"ide":      "goland",
	}
}

// =============================================================================
// HandleAutocomplete Tests
// =============================================================================

func TestHandleAutocomplete_ShownSuggestion(t *testing.T) {
	env := newTestEnv(t, study.ArmNoFilter)

	w := env.post(t, "/prediction/autocomplete", validRequestBody())
	require.Equal(t, http.StatusOK, w.Code)

	var resp datatypes.CompletionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	assert.Equal(t, "completed()", resp.Predictions["model-a"])
	assert.NotEmpty(t, resp.VerifyToken)
	assert.False(t, resp.Survey)
}

func TestHandleAutocomplete_MissingRequiredField(t *testing.T) {
	env := newTestEnv(t, study.ArmNoFilter)

	body := validRequestBody()
	delete(body, "language")
	w := env.post(t, "/prediction/autocomplete", body)

	assert.Equal(t, http.StatusBadRequest, w.Code)

	var resp map[string]string
	json.Unmarshal(w.Body.Bytes(), &resp)
	assert.Contains(t, resp["error"], "language")
}

func TestHandleAutocomplete_InvalidJSON(t *testing.T) {
	env := newTestEnv(t, study.ArmNoFilter)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/prediction/autocomplete", bytes.NewReader([]byte("{not json")))
	req.Header.Set("Authorization", "Bearer user-token-1")
	env.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleAutocomplete_MissingBearerToken(t *testing.T) {
	env := newTestEnv(t, study.ArmNoFilter)

	data, _ := json.Marshal(validRequestBody())
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/prediction/autocomplete", bytes.NewReader(data))
	env.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestHandleAutocomplete_FilteredMintsNoToken(t *testing.T) {
	env := newTestEnv(t, study.ArmNoFilter)

	// Degenerate short context is filtered on every arm.
	body := validRequestBody()
	body["prefix"] = "x"
	body["suffix"] = ""
	w := env.post(t, "/prediction/autocomplete", body)
	require.Equal(t, http.StatusOK, w.Code)

	var resp datatypes.CompletionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	assert.Empty(t, resp.VerifyToken)
	assert.Empty(t, resp.Predictions)
}

func TestHandleAutocomplete_ManualTriggerOverridesFilter(t *testing.T) {
	env := newTestEnv(t, study.ArmNoFilter)

	body := validRequestBody()
	body["prefix"] = "x"
	body["suffix"] = ""
	body["trigger"] = "manual"
	w := env.post(t, "/prediction/autocomplete", body)
	require.Equal(t, http.StatusOK, w.Code)

	var resp datatypes.CompletionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	// The user explicitly asked: dispatch happens despite the filter.
	assert.NotEmpty(t, resp.VerifyToken)
	assert.Equal(t, "completed()", resp.Predictions["model-a"])
}

func TestHandleAutocomplete_ManualTriggerTokenVerifies(t *testing.T) {
	// An arm predicate that always filters: with a negative intercept the
	// logistic score stays below zero for any context.
	cfg := study.DefaultConfig()
	cfg.Arms = []study.Arm{study.ArmFeature}
	cfg.FeatureWeights = study.FeatureWeights{Intercept: -1}
	env := newTestEnvWithStudy(t, cfg)

	body := validRequestBody()
	body["trigger"] = "manual"
	w := env.post(t, "/prediction/autocomplete", body)
	require.Equal(t, http.StatusOK, w.Code)

	var resp datatypes.CompletionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.VerifyToken)

	// The disclosed token must accept ground truth even though the study
	// recorded the request as filtered.
	verify := env.post(t, "/prediction/verify", map[string]any{
		"verifyToken": resp.VerifyToken,
		"groundTruth": "completed()",
	})
	require.Equal(t, http.StatusOK, verify.Code, verify.Body.String())

	record, err := env.store.Get(t.Context(), "user-token-1", resp.VerifyToken)
	require.NoError(t, err)
	assert.True(t, record.WasFiltered)
	assert.True(t, record.Dispatched)
	assert.True(t, record.Verified())
}

func TestHandleAutocomplete_FilteredRequestStillRecorded(t *testing.T) {
	env := newTestEnv(t, study.ArmNoFilter)

	body := validRequestBody()
	body["prefix"] = "x"
	body["suffix"] = ""
	w := env.post(t, "/prediction/autocomplete", body)
	require.Equal(t, http.StatusOK, w.Code)

	count, err := env.store.CountForUser(t.Context(), "user-token-1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestHandleAutocomplete_ResourceExhaustionTerminates(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cfg := study.DefaultConfig()
	cfg.Arms = []study.Arm{study.ArmNoFilter}
	st := study.New(cfg, nil)

	d, err := dispatch.New([]providers.Provider{exhaustedProvider{}}, 0)
	require.NoError(t, err)

	s, err := store.OpenInMemory()
	require.NoError(t, err)
	defer s.Close()

	fatals := 0
	router := gin.New()
	router.POST("/prediction/autocomplete",
		middleware.AuthMiddleware(),
		HandleAutocomplete(st, d, s, func() { fatals++ }))

	data, _ := json.Marshal(validRequestBody())
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/prediction/autocomplete", bytes.NewReader(data))
	req.Header.Set("Authorization", "Bearer user-a")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, 1, fatals)
}

// exhaustedProvider always reports accelerator memory exhaustion.
type exhaustedProvider struct{}

func (exhaustedProvider) Name() string { return "model-oom" }

func (exhaustedProvider) Generate(context.Context, string, string) (string, error) {
	return "", providers.ErrResourceExhausted
}

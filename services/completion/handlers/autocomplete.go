// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package handlers contains the HTTP handlers for the completion study
// service: the autocomplete endpoint (the request orchestrator), the
// verification endpoint, and the survey redirect.
package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/AleutianAI/AleutianComplete/services/completion/datatypes"
	"github.com/AleutianAI/AleutianComplete/services/completion/dispatch"
	"github.com/AleutianAI/AleutianComplete/services/completion/middleware"
	"github.com/AleutianAI/AleutianComplete/services/completion/observability"
	"github.com/AleutianAI/AleutianComplete/services/completion/store"
	"github.com/AleutianAI/AleutianComplete/services/completion/study"
	"github.com/AleutianAI/AleutianComplete/services/providers"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// StudyVersion tags every stored record with the protocol revision that
// produced it.
const StudyVersion = "1.0.0"

// FatalFunc terminates the process after an unrecoverable provider
// failure. Overridable in tests; production wires os.Exit.
type FatalFunc func()

// newToken mints a single-use opaque identifier (uuid4 without dashes,
// matching the tokens already issued to deployed plugins).
func newToken() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// internalError logs err with full context under a fresh correlation id
// and reports only that id to the caller.
func internalError(c *gin.Context, op string, err error) {
	errorID := uuid.NewString()
	slog.Error("internal failure", "op", op, "error_id", errorID, "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{
		"error":    "internal error",
		"error_id": errorID,
	})
}

// HandleAutocomplete returns the handler for POST /prediction/autocomplete.
//
// # Description
//
// The request orchestrator. Each request walks the lifecycle
//
//	RECEIVED → ARM_RESOLVED → FILTER_DECIDED → {DISPATCHED | SKIPPED}
//	         → RECORDED → RESPONDED
//
// Arm resolution and the filter decision happen in the study component;
// dispatch fans out to all providers in parallel and only occurs when
// the request is not filtered or the trigger is manual (the user
// explicitly asked). Every shown-or-filtered request persists exactly
// one completion record; only dispatched requests mint a verify token.
//
// Any stage failure lands in FAILED: a correlation id is logged with
// full context and returned to the caller in place of internals. A
// provider resource-exhaustion failure is not recoverable; the process
// logs and terminates via fatal, relying on the supervisor to restart.
//
// # Inputs
//
//   - st: Study component (arm cache + filter registry). Must not be nil.
//   - dispatcher: Provider fan-out. Must not be nil.
//   - recordStore: Completion record store. Must not be nil.
//   - fatal: Process termination hook for provider exhaustion.
//
// # Outputs
//
//   - gin.HandlerFunc: The configured handler.
func HandleAutocomplete(st *study.Study, dispatcher *dispatch.Dispatcher,
	recordStore *store.Store, fatal FatalFunc) gin.HandlerFunc {

	return func(c *gin.Context) {
		user := middleware.GetUser(c)
		metrics := observability.DefaultMetrics

		var req datatypes.CompletionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "malformed request body"})
			return
		}
		if err := req.Validate(); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		now := time.Now()
		decision := st.FilterRequest(user, &req, now)
		metrics.RecordFilterDecision(string(decision.Arm), decision.ShouldFilter)

		dispatched := !decision.ShouldFilter || req.Trigger == datatypes.TriggerManual

		var (
			predictions = map[string]string{}
			predictTime time.Duration
		)
		if dispatched {
			var err error
			predictTime, predictions, err = dispatcher.Dispatch(c.Request.Context(), req.Prefix, req.Suffix)
			if err != nil {
				if errors.Is(err, providers.ErrResourceExhausted) {
					// Shared accelerator memory is assumed corrupt; the
					// process must restart. No partial response.
					slog.Error("provider resource exhaustion, terminating", "user_present", user != "")
					c.JSON(http.StatusServiceUnavailable, gin.H{"error": "service restarting"})
					fatal()
					return
				}
				metrics.RecordRequest("error")
				internalError(c, "dispatch", err)
				return
			}
			metrics.RecordDispatch(predictTime.Seconds())
		}

		// Requests that skipped dispatch mint no verify token and are
		// never eligible for verification; their record key is an
		// internal id.
		token := newToken()

		record := &datatypes.CompletionRecord{
			Prefix:        req.Prefix,
			Suffix:        req.Suffix,
			Trigger:       req.Trigger,
			Language:      req.Language,
			IDE:           req.IDE,
			IDEMetadata:   req.IDEMetadata,
			Timestamp:     now,
			Arm:           string(decision.Arm),
			FilterTimeMs:  float64(decision.Elapsed.Microseconds()) / 1000.0,
			WasFiltered:   decision.ShouldFilter,
			Dispatched:    dispatched,
			PredictTimeMs: float64(predictTime.Microseconds()) / 1000.0,
			Predictions:   predictions,
			StudyVersion:  StudyVersion,
		}

		surveyFlag, err := recordStore.Create(c.Request.Context(), user, token, record)
		if err != nil {
			metrics.RecordStoreError("create")
			metrics.RecordRequest("error")
			internalError(c, "store.create", err)
			return
		}

		resp := datatypes.CompletionResponse{
			Predictions: predictions,
			Survey:      surveyFlag,
		}
		if dispatched {
			resp.VerifyToken = token
			metrics.RecordRequest("shown")
		} else {
			metrics.RecordRequest("filtered")
		}
		c.JSON(http.StatusOK, resp)
	}
}

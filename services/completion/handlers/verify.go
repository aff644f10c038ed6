// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"errors"
	"net/http"

	"github.com/AleutianAI/AleutianComplete/pkg/validation"
	"github.com/AleutianAI/AleutianComplete/services/completion/datatypes"
	"github.com/AleutianAI/AleutianComplete/services/completion/middleware"
	"github.com/AleutianAI/AleutianComplete/services/completion/observability"
	"github.com/AleutianAI/AleutianComplete/services/completion/store"
	"github.com/gin-gonic/gin"
)

// HandleVerify returns the handler for POST /prediction/verify.
//
// # Description
//
// The verification half of the two-phase protocol: a single follow-up
// call that attaches the ground truth (and optionally the prediction the
// user chose) to the record its verify token addresses. The record moves
// PENDING → VERIFIED exactly once; the store serializes concurrent
// attempts on the same token, so at most one succeeds. An absent record
// and an already-verified record are both terminal business errors, not
// internal failures.
//
// # Outputs
//
//   - gin.HandlerFunc: The configured handler.
func HandleVerify(recordStore *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := middleware.GetUser(c)
		metrics := observability.DefaultMetrics

		var req datatypes.VerifyRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "malformed request body"})
			return
		}
		if err := req.Validate(); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		// A token the service could never have minted is rejected
		// without a store lookup, indistinguishable from an unknown one.
		if err := validation.ValidateVerifyToken(req.VerifyToken); err != nil {
			metrics.RecordVerify("unknown_token")
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid verify token"})
			return
		}

		_, err := recordStore.Update(c.Request.Context(), user, req.VerifyToken, datatypes.VerifyPatch{
			ChosenPrediction: req.ChosenPrediction,
			GroundTruth:      req.GroundTruth,
		})
		switch {
		case errors.Is(err, store.ErrUnknownToken):
			metrics.RecordVerify("unknown_token")
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid verify token"})
		case errors.Is(err, store.ErrAlreadyVerified):
			metrics.RecordVerify("already_verified")
			c.JSON(http.StatusBadRequest, gin.H{"error": "already used verify token"})
		case err != nil:
			metrics.RecordVerify("error")
			metrics.RecordStoreError("update")
			internalError(c, "store.update", err)
		default:
			metrics.RecordVerify("success")
			c.JSON(http.StatusOK, gin.H{"success": true})
		}
	}
}

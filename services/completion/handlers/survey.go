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
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// HandleSurvey returns the handler for GET /survey.
//
// Redirects the user to the external survey form, substituting their
// user id into the configured link template's {user_id} placeholder.
func HandleSurvey(surveyLink string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if surveyLink == "" {
			c.JSON(http.StatusNotFound, gin.H{"error": "no survey configured"})
			return
		}
		userID := c.Query("user_id")
		c.Redirect(http.StatusFound, strings.ReplaceAll(surveyLink, "{user_id}", userID))
	}
}

// HealthCheck returns 200 with a static body for liveness probes.
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

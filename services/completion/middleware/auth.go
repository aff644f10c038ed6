// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package middleware provides HTTP middleware for the completion service.
//
// # Authentication Flow
//
// The study identifies users by an opaque bearer token issued at plugin
// install time. The auth middleware extracts it from the Authorization
// header and stores it in the Gin context as the user identity; there is
// no further validation step, since the token itself is the identity.
//
//	Request
//	   │
//	   ▼
//	AuthMiddleware
//	   │
//	   ├─► Extract token from "Authorization: Bearer <token>"
//	   │
//	   └─► Store user identity in context
//	           │
//	           ▼
//	       Handler (retrieves via GetUser)
//
// A missing or malformed header aborts the request with 401 before any
// state change.
package middleware

import (
	"net/http"
	"strings"

	"github.com/AleutianAI/AleutianComplete/pkg/validation"
	"github.com/gin-gonic/gin"
)

// userKey is the context key for storing the user identity.
// Using a typed key prevents collisions with other context values.
const userKey = "aleutian_user_identity"

// GetUser retrieves the authenticated user identity from the Gin context.
//
// Returns empty string if the request did not pass AuthMiddleware.
func GetUser(c *gin.Context) string {
	if v, exists := c.Get(userKey); exists {
		if user, ok := v.(string); ok {
			return user
		}
	}
	return ""
}

// AuthMiddleware creates a Gin middleware that authenticates requests.
//
// # Description
//
// Extracts the bearer token from the Authorization header and stores it
// in the context as the user identity. Aborts with 401 when the header
// is missing or malformed.
//
// # Outputs
//
//   - gin.HandlerFunc: Middleware function ready for use with Gin
//
// # Thread Safety
//
// Thread-safe. The returned middleware can be used concurrently.
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractBearerToken(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "missing bearer token",
			})
			return
		}

		// The identity becomes a record store key segment; reject
		// anything that could address another user's namespace.
		if err := validation.ValidateIdentity(token); err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "invalid bearer token",
			})
			return
		}

		c.Set(userKey, token)
		c.Next()
	}
}

// extractBearerToken extracts the token from the Authorization header.
//
// Parses the header expecting format: "Bearer <token>". Returns empty
// string if the header is missing or malformed. The "Bearer" prefix is
// case-insensitive per RFC 7235.
func extractBearerToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return ""
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}

	return strings.TrimSpace(parts[1])
}

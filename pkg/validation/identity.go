// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validation provides input validation for security-critical
// identifiers.
//
// User identities and verify tokens become segments of record store
// keys. Validating them at the trust boundary prevents key forgery: an
// identity containing a path separator could address another user's
// namespace.
package validation

import (
	"fmt"
	"regexp"
)

// identityPattern matches valid user identity tokens.
// Allows: letters, digits, dots, hyphens, underscores.
// Max length: 128 characters.
var identityPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._\-]{0,127}$`)

// verifyTokenPattern matches verify tokens as minted by the service:
// a uuid4 with the dashes removed.
var verifyTokenPattern = regexp.MustCompile(`^[0-9a-f]{32}$`)

// ValidateIdentity validates a user identity token before it is used as
// a record store key segment.
//
// Valid identities:
//   - 1-128 characters
//   - Letters, digits, dots, hyphens, underscores
//   - No path separators or control characters
//
// Returns an error if the identity is invalid.
//
// Example:
//
//	if err := validation.ValidateIdentity(user); err != nil {
//	    c.AbortWithStatusJSON(http.StatusUnauthorized, ...)
//	}
func ValidateIdentity(identity string) error {
	if identity == "" {
		return fmt.Errorf("identity cannot be empty")
	}

	if !identityPattern.MatchString(identity) {
		return fmt.Errorf("invalid identity format (must be 1-128 alphanumeric chars, dots, hyphens, or underscores)")
	}

	return nil
}

// ValidateVerifyToken validates a verify token's shape before the store
// is consulted.
//
// A token the service could never have minted is rejected without a
// lookup; the caller reports it exactly like an unknown token, so the
// two cases are indistinguishable to the client.
func ValidateVerifyToken(token string) error {
	if token == "" {
		return fmt.Errorf("verify token cannot be empty")
	}

	if !verifyTokenPattern.MatchString(token) {
		return fmt.Errorf("invalid verify token format")
	}

	return nil
}

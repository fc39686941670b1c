// SPDX-FileCopyrightText: Copyright 2026 mcpgate authors
// SPDX-License-Identifier: Apache-2.0

package provider

import (
	"errors"
	"fmt"
)

// OAuth 2.1 error codes used on the wire (RFC 6749 Section 5.2 plus
// access_denied and temporarily_unavailable).
const (
	CodeInvalidRequest         = "invalid_request"
	CodeInvalidClient          = "invalid_client"
	CodeInvalidGrant           = "invalid_grant"
	CodeUnauthorizedClient     = "unauthorized_client"
	CodeUnsupportedGrantType   = "unsupported_grant_type"
	CodeInvalidScope           = "invalid_scope"
	CodeAccessDenied           = "access_denied"
	CodeServerError            = "server_error"
	CodeTemporarilyUnavailable = "temporarily_unavailable"
)

// Error is an OAuth protocol error. It renders as JSON at the token
// endpoint, as a redirect parameter pair when a safe redirect URI is known,
// and as HTML otherwise.
type Error struct {
	Code        string `json:"error"`
	Description string `json:"error_description,omitempty"`
}

// NewError creates an OAuth protocol error.
func NewError(code, description string) *Error {
	return &Error{Code: code, Description: description}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Description == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// AsError coerces any error into an *Error, wrapping unknown errors as
// server_error so internal details never reach the wire.
func AsError(err error) *Error {
	var oauthErr *Error
	if errors.As(err, &oauthErr) {
		return oauthErr
	}
	return NewError(CodeServerError, "internal server error")
}

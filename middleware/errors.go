package middleware

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/pb33f/libopenapi-validator/errors"
)

// ValidationError wraps libopenapi-validator errors with HTTP semantics.
type ValidationError struct {
	StatusCode int
	Message    string
	Errors     []*errors.ValidationError
}

func (e *ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Message, e.Errors[0].Message)
}

// Details flattens the underlying validator errors for a JSON body.
func (e *ValidationError) Details() []map[string]any {
	var result []map[string]any
	for _, v := range e.Errors {
		item := map[string]any{
			"message": v.Message,
		}
		if v.Reason != "" {
			item["reason"] = v.Reason
		}
		if v.HowToFix != "" {
			item["howToFix"] = v.HowToFix
		}
		result = append(result, item)
	}
	return result
}

// AuthError represents authentication/authorization failures.
type AuthError struct {
	StatusCode int
	Scheme     string
	Message    string
	Scopes     []string
	// Code is the RFC 6750 error code: invalid_token or insufficient_scope.
	Code string
}

func (e *AuthError) Error() string {
	return e.Message
}

// IsUnauthorized returns true if error is 401 (missing/invalid credentials).
func (e *AuthError) IsUnauthorized() bool {
	return e.StatusCode == http.StatusUnauthorized
}

// IsForbidden returns true if error is 403 (valid credentials, insufficient permissions).
func (e *AuthError) IsForbidden() bool {
	return e.StatusCode == http.StatusForbidden
}

// NewUnauthorizedError creates a 401 error.
func NewUnauthorizedError(scheme, message string) *AuthError {
	return &AuthError{
		StatusCode: http.StatusUnauthorized,
		Scheme:     scheme,
		Message:    message,
	}
}

// NewInvalidTokenError creates a 401 error for a credential that was
// presented but rejected.
func NewInvalidTokenError(scheme, message string) *AuthError {
	return &AuthError{
		StatusCode: http.StatusUnauthorized,
		Scheme:     scheme,
		Message:    message,
		Code:       "invalid_token",
	}
}

// NewForbiddenError creates a 403 error.
func NewForbiddenError(scheme, message string, scopes []string) *AuthError {
	return &AuthError{
		StatusCode: http.StatusForbidden,
		Scheme:     scheme,
		Message:    message,
		Scopes:     scopes,
		Code:       "insufficient_scope",
	}
}

// ErrorHandler writes an error response.
type ErrorHandler func(w http.ResponseWriter, r *http.Request, err error)

// WriteAuthError renders err as JSON. A 401 carries a WWW-Authenticate
// challenge; resourceMetadata, when set, points clients at the protected
// resource metadata document.
func WriteAuthError(w http.ResponseWriter, err *AuthError, resourceMetadata string) {
	if err.IsUnauthorized() || err.Code == "insufficient_scope" {
		w.Header().Set("WWW-Authenticate", challenge(err, resourceMetadata))
	}

	response := map[string]any{
		"error":   "authentication_error",
		"message": err.Message,
	}
	if err.IsForbidden() {
		response["error"] = "insufficient_scope"
	}
	if len(err.Scopes) > 0 {
		response["required_scopes"] = err.Scopes
	}
	writeJSON(w, err.StatusCode, response)
}

func challenge(err *AuthError, resourceMetadata string) string {
	params := []string{`realm="mcp"`}
	if err.Code != "" {
		params = append(params, fmt.Sprintf("error=%q", err.Code))
		params = append(params, fmt.Sprintf("error_description=%q", err.Message))
	}
	if len(err.Scopes) > 0 {
		params = append(params, fmt.Sprintf("scope=%q", strings.Join(err.Scopes, " ")))
	}
	if resourceMetadata != "" {
		params = append(params, fmt.Sprintf("resource_metadata=%q", resourceMetadata))
	}
	return "Bearer " + strings.Join(params, ", ")
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

package middleware

import (
	"log/slog"

	"github.com/golang-jwt/jwt/v5"
)

// Options supplies what descriptors cannot carry: live dependencies and
// runtime switches.
type Options struct {
	Logger *slog.Logger
	// ValidateTokens verifies bearer tokens against the JWKS. When false
	// tokens are accepted as presented and forwarded to the backend.
	ValidateTokens bool
	// Keyfunc replaces the JWKS lookup, mainly for tests.
	Keyfunc jwt.Keyfunc
	// APIKeyVerifier checks API keys for apiKey schemes. Nil accepts any.
	APIKeyVerifier APIKeyVerifier
	// Tools feeds scope enforcement.
	Tools               map[string]ToolAccess
	ResourceMetadataURL string
	ErrorHandler        ErrorHandler
}

// DefaultOptions returns options with sensible defaults.
func DefaultOptions() Options {
	return Options{
		Logger:         slog.Default(),
		ValidateTokens: true,
	}
}

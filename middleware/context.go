package middleware

import (
	"context"
	"slices"
	"time"
)

type contextKey string

const (
	principalKey contextKey = "mcpforge:principal"
	requestIDKey contextKey = "mcpforge:request-id"
	startKey     contextKey = "mcpforge:start"
)

// Principal is the authenticated caller of one request.
type Principal struct {
	// Scheme is the security scheme that accepted the credential.
	Scheme  string
	Subject string
	Scopes  []string
	// Token is the raw credential, forwarded to the backend on tool calls.
	Token string
	// Verified is false when the token was accepted without validation.
	Verified bool
	Claims   map[string]any
}

// HasScopes reports whether p carries every scope in required.
func (p *Principal) HasScopes(required []string) bool {
	for _, s := range required {
		if !slices.Contains(p.Scopes, s) {
			return false
		}
	}
	return true
}

// Missing returns the scopes in required that p does not carry.
func (p *Principal) Missing(required []string) []string {
	var out []string
	for _, s := range required {
		if !slices.Contains(p.Scopes, s) {
			out = append(out, s)
		}
	}
	return out
}

// WithPrincipal stores the authenticated caller in ctx.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// GetPrincipal returns the authenticated caller, or nil.
func GetPrincipal(ctx context.Context) *Principal {
	if v, ok := ctx.Value(principalKey).(*Principal); ok {
		return v
	}
	return nil
}

// GetRequestID returns the id the logging stage assigned to the request.
func GetRequestID(ctx context.Context) string {
	v, _ := ctx.Value(requestIDKey).(string)
	return v
}

func requestStart(ctx context.Context) (time.Time, bool) {
	v, ok := ctx.Value(startKey).(time.Time)
	return v, ok
}

func contextWithStart(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, startKey, t)
}

func contextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

package middleware

import (
	"context"
	"fmt"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
)

// NewJWKSKeyfunc fetches the key set at jwksURI and keeps it refreshed in
// the background until ctx is done.
func NewJWKSKeyfunc(ctx context.Context, jwksURI string) (jwt.Keyfunc, error) {
	k, err := keyfunc.NewDefaultCtx(ctx, []string{jwksURI})
	if err != nil {
		return nil, fmt.Errorf("loading JWKS from %s: %w", jwksURI, err)
	}
	return k.Keyfunc, nil
}

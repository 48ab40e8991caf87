package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenVerifier checks a bearer token and returns the caller it identifies.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*Principal, error)
}

// APIKeyVerifier checks an API key.
type APIKeyVerifier func(ctx context.Context, key string) (*Principal, error)

// JWTVerifier validates signed JWTs. Keys come from Keyfunc, usually a
// JWKS-backed one from NewJWKSKeyfunc.
type JWTVerifier struct {
	Scheme   string
	Keyfunc  jwt.Keyfunc
	Issuer   string
	Audience string
	Leeway   time.Duration
}

// Verify implements TokenVerifier.
func (v *JWTVerifier) Verify(_ context.Context, token string) (*Principal, error) {
	opts := []jwt.ParserOption{
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(v.Leeway),
	}
	if v.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.Issuer))
	}
	if v.Audience != "" {
		opts = append(opts, jwt.WithAudience(v.Audience))
	}

	claims := jwt.MapClaims{}
	if _, err := jwt.ParseWithClaims(token, claims, v.Keyfunc, opts...); err != nil {
		return nil, NewInvalidTokenError(v.Scheme, describeTokenError(err))
	}

	subject, _ := claims.GetSubject()
	return &Principal{
		Scheme:   v.Scheme,
		Subject:  subject,
		Scopes:   claimScopes(claims),
		Token:    token,
		Verified: true,
		Claims:   claims,
	}, nil
}

// PassthroughVerifier accepts any token without checking it. The backend
// is left to reject bad credentials.
type PassthroughVerifier struct {
	Scheme string
}

// Verify implements TokenVerifier.
func (v PassthroughVerifier) Verify(_ context.Context, token string) (*Principal, error) {
	return &Principal{Scheme: v.Scheme, Token: token}, nil
}

// APIKeyScheme describes where an API key is carried.
type APIKeyScheme struct {
	Name   string
	In     string
	Param  string
	Verify APIKeyVerifier
}

func (s APIKeyScheme) authenticate(r *http.Request) (*Principal, error) {
	key := ExtractAPIKey(r, s.In, s.Param)
	if key == "" {
		return nil, nil
	}
	if s.Verify == nil {
		return &Principal{Scheme: s.Name, Token: key}, nil
	}
	p, err := s.Verify(r.Context(), key)
	if err != nil {
		var authErr *AuthError
		if errors.As(err, &authErr) {
			return nil, authErr
		}
		return nil, NewInvalidTokenError(s.Name, err.Error())
	}
	if p.Scheme == "" {
		p.Scheme = s.Name
	}
	p.Token = key
	return p, nil
}

// ExtractBearerToken extracts the bearer token from the Authorization header.
func ExtractBearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if len(auth) > 7 && strings.EqualFold(auth[:7], "Bearer ") {
		return auth[7:]
	}
	return ""
}

// ExtractAPIKey extracts an API key from the specified location.
func ExtractAPIKey(r *http.Request, location, name string) string {
	switch location {
	case "header":
		return r.Header.Get(name)
	case "query":
		return r.URL.Query().Get(name)
	case "cookie":
		if c, err := r.Cookie(name); err == nil {
			return c.Value
		}
	}
	return ""
}

// claimScopes reads OAuth2 scopes from the "scope" claim (space separated)
// or the "scp" claim (string or list).
func claimScopes(claims jwt.MapClaims) []string {
	if s, ok := claims["scope"].(string); ok {
		return strings.Fields(s)
	}
	switch scp := claims["scp"].(type) {
	case string:
		return strings.Fields(scp)
	case []any:
		out := make([]string, 0, len(scp))
		for _, v := range scp {
			if s, ok := v.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func describeTokenError(err error) string {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return "token has expired"
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return "token issuer is not accepted"
	case errors.Is(err, jwt.ErrTokenInvalidAudience):
		return "token audience is not accepted"
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return "token signature is invalid"
	case errors.Is(err, jwt.ErrTokenMalformed):
		return "token is malformed"
	}
	return fmt.Sprintf("invalid token: %v", err)
}

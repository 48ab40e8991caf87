package middleware

import (
	"context"
	"fmt"
	"log/slog"
)

// Stage kinds, outermost first.
const (
	KindErrorHandling    = "error_handling"
	KindAuthentication   = "authentication"
	KindScopeEnforcement = "scope_enforcement"
	KindTiming           = "timing"
	KindLogging          = "logging"
)

// Credential validation methods.
const (
	ValidationJWKS   = "jwks"
	ValidationAPIKey = "api_key"
	ValidationNone   = "none"
)

// Descriptor is the serialized form of one stage.
type Descriptor struct {
	Kind   string              `json:"kind"`
	Auth   *AuthDescriptor     `json:"auth,omitempty"`
	Scopes map[string][]string `json:"scopes,omitempty"`
}

// AuthDescriptor parameterizes the authentication stage.
type AuthDescriptor struct {
	Schemes      []SchemeDescriptor `json:"schemes"`
	JWKSURI      string             `json:"jwks_uri"`
	Issuer       string             `json:"issuer"`
	Audience     string             `json:"audience"`
	BearerFormat string             `json:"bearer_format"`
}

// SchemeDescriptor is one accepted security scheme.
type SchemeDescriptor struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	Validation string `json:"validation"`
	In         string `json:"in,omitempty"`
	ParamName  string `json:"param_name,omitempty"`
}

// Build turns descriptors into a middleware chain. ctx bounds background
// work such as JWKS refresh.
func Build(ctx context.Context, descs []Descriptor, opts Options) (Middleware, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	stages := make([]Middleware, 0, len(descs))
	for _, d := range descs {
		switch d.Kind {
		case KindErrorHandling:
			stages = append(stages, ErrorHandling(logger))
		case KindAuthentication:
			if d.Auth == nil {
				return nil, fmt.Errorf("authentication stage has no policy")
			}
			cfg, err := authConfig(ctx, d.Auth, opts)
			if err != nil {
				return nil, err
			}
			stages = append(stages, Authentication(cfg))
		case KindScopeEnforcement:
			stages = append(stages, ScopeEnforcement(ScopePolicy{
				Modules:             d.Scopes,
				Tools:               opts.Tools,
				ResourceMetadataURL: opts.ResourceMetadataURL,
				ErrorHandler:        opts.ErrorHandler,
			}))
		case KindTiming:
			stages = append(stages, Timing())
		case KindLogging:
			stages = append(stages, Logging(logger))
		default:
			return nil, fmt.Errorf("unknown middleware stage: %s", d.Kind)
		}
	}
	return Chain(stages...), nil
}

func authConfig(ctx context.Context, policy *AuthDescriptor, opts Options) (AuthConfig, error) {
	cfg := AuthConfig{
		ResourceMetadataURL: opts.ResourceMetadataURL,
		ErrorHandler:        opts.ErrorHandler,
	}

	tokenScheme := ""
	for _, s := range policy.Schemes {
		switch s.Validation {
		case ValidationJWKS:
			if tokenScheme == "" {
				tokenScheme = s.Name
			}
		case ValidationAPIKey:
			cfg.APIKeys = append(cfg.APIKeys, APIKeyScheme{
				Name:   s.Name,
				In:     s.In,
				Param:  s.ParamName,
				Verify: opts.APIKeyVerifier,
			})
		}
	}
	if tokenScheme == "" {
		return cfg, nil
	}

	if !opts.ValidateTokens {
		cfg.Verifier = PassthroughVerifier{Scheme: tokenScheme}
		return cfg, nil
	}

	keyfunc := opts.Keyfunc
	if keyfunc == nil {
		var err error
		keyfunc, err = NewJWKSKeyfunc(ctx, policy.JWKSURI)
		if err != nil {
			return AuthConfig{}, err
		}
	}
	cfg.Verifier = &JWTVerifier{
		Scheme:   tokenScheme,
		Keyfunc:  keyfunc,
		Issuer:   policy.Issuer,
		Audience: policy.Audience,
	}
	return cfg, nil
}

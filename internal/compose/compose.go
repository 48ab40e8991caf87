// Package compose assembles the middleware chain and OAuth2 provider
// configuration of a generated server from its authentication plan.
package compose

import (
	"sort"

	"github.com/kolah/mcpforge/internal/authplan"
	"github.com/kolah/mcpforge/internal/model"
)

// StageKind identifies one middleware stage.
type StageKind string

const (
	StageErrorHandling    StageKind = "error_handling"
	StageAuthentication   StageKind = "authentication"
	StageScopeEnforcement StageKind = "scope_enforcement"
	StageTiming           StageKind = "timing"
	StageLogging          StageKind = "logging"
)

// Validation names how a credential is checked.
type Validation string

const (
	ValidationJWKS   Validation = "jwks"
	ValidationAPIKey Validation = "api_key"
	ValidationNone   Validation = "none"
)

// AcceptedScheme is one scheme the authentication stage accepts.
type AcceptedScheme struct {
	Name       string     `json:"name"`
	Type       string     `json:"type"`
	Validation Validation `json:"validation"`
	In         string     `json:"in,omitempty"`
	ParamName  string     `json:"param_name,omitempty"`
}

// AuthPolicy parameterizes the authentication stage.
type AuthPolicy struct {
	Schemes      []AcceptedScheme `json:"schemes"`
	JWKSURI      string           `json:"jwks_uri"`
	Issuer       string           `json:"issuer"`
	Audience     string           `json:"audience"`
	BearerFormat string           `json:"bearer_format"`
}

// Stage is a middleware stage descriptor. Only the field matching Kind is set.
type Stage struct {
	Kind StageKind   `json:"kind"`
	Auth *AuthPolicy `json:"auth,omitempty"`
	// Scopes maps module name to the scopes a token must carry to reach it.
	Scopes map[string][]string `json:"scopes,omitempty"`
}

// Chain is the ordered list of stages. The outermost stage comes first.
type Chain struct {
	Stages []Stage `json:"stages"`
}

// Kinds lists the stage kinds in order.
func (c Chain) Kinds() []StageKind {
	out := make([]StageKind, 0, len(c.Stages))
	for _, s := range c.Stages {
		out = append(out, s.Kind)
	}
	return out
}

// Stage returns the stage of the given kind.
func (c Chain) Stage(kind StageKind) (Stage, bool) {
	for _, s := range c.Stages {
		if s.Kind == kind {
			return s, true
		}
	}
	return Stage{}, false
}

// Compose builds the chain: error handling, then authentication when any
// scheme is referenced, then scope enforcement when any module requires
// scopes, then timing and logging.
func Compose(plan *authplan.Plan, moduleScopes map[string][]string) Chain {
	chain := Chain{Stages: []Stage{{Kind: StageErrorHandling}}}

	if plan != nil && plan.AuthenticationEnabled() {
		chain.Stages = append(chain.Stages, Stage{
			Kind: StageAuthentication,
			Auth: authPolicy(plan),
		})
	}

	if scopes := nonEmpty(moduleScopes); len(scopes) > 0 {
		chain.Stages = append(chain.Stages, Stage{
			Kind:   StageScopeEnforcement,
			Scopes: scopes,
		})
	}

	chain.Stages = append(chain.Stages, Stage{Kind: StageTiming}, Stage{Kind: StageLogging})
	return chain
}

func authPolicy(plan *authplan.Plan) *AuthPolicy {
	policy := &AuthPolicy{
		JWKSURI:      plan.JWKSURI.Value,
		Issuer:       plan.Issuer.Value,
		Audience:     plan.Audience.Value,
		BearerFormat: plan.BearerFormat,
	}
	for _, s := range plan.Schemes {
		accepted := AcceptedScheme{
			Name:       s.Name,
			Type:       string(s.Type),
			Validation: ValidationNone,
		}
		switch {
		case s.IsTokenBased():
			accepted.Validation = ValidationJWKS
		case s.Type == model.SecurityTypeAPIKey:
			accepted.Validation = ValidationAPIKey
			accepted.In = s.In
			accepted.ParamName = s.ParamName
		}
		policy.Schemes = append(policy.Schemes, accepted)
	}
	return policy
}

func nonEmpty(moduleScopes map[string][]string) map[string][]string {
	out := make(map[string][]string)
	for module, scopes := range moduleScopes {
		if len(scopes) == 0 {
			continue
		}
		sorted := append([]string(nil), scopes...)
		sort.Strings(sorted)
		out[module] = sorted
	}
	return out
}

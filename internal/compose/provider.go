package compose

import (
	"sort"

	"github.com/kolah/mcpforge/internal/authplan"
)

// ProviderFlow is one OAuth2 grant the generated server advertises.
type ProviderFlow struct {
	Kind             string   `json:"kind"`
	AuthorizationURL string   `json:"authorization_url,omitempty"`
	TokenURL         string   `json:"token_url,omitempty"`
	RefreshURL       string   `json:"refresh_url,omitempty"`
	Scopes           []string `json:"scopes,omitempty"`
}

// Provider is the OAuth2 provider configuration matching the chain's
// authentication stage.
type Provider struct {
	Enabled         bool           `json:"enabled"`
	Issuer          string         `json:"issuer,omitempty"`
	JWKSURI         string         `json:"jwks_uri,omitempty"`
	Audience        string         `json:"audience,omitempty"`
	BearerFormat    string         `json:"bearer_format,omitempty"`
	Flows           []ProviderFlow `json:"flows,omitempty"`
	ScopesSupported []string       `json:"scopes_supported,omitempty"`
	DefaultScopes   []string       `json:"default_scopes,omitempty"`
}

// NewProvider derives the provider configuration from plan.
func NewProvider(plan *authplan.Plan) Provider {
	if plan == nil || !plan.AuthenticationEnabled() {
		return Provider{}
	}
	p := Provider{
		Enabled:         true,
		Issuer:          plan.Issuer.Value,
		JWKSURI:         plan.JWKSURI.Value,
		Audience:        plan.Audience.Value,
		BearerFormat:    plan.BearerFormat,
		ScopesSupported: plan.AllScopes,
		DefaultScopes:   plan.DefaultScopes,
	}
	for _, scheme := range plan.Schemes {
		for _, nf := range scheme.Flows.Each() {
			scopes := make([]string, 0, len(nf.Flow.Scopes))
			for s := range nf.Flow.Scopes {
				scopes = append(scopes, s)
			}
			sort.Strings(scopes)
			p.Flows = append(p.Flows, ProviderFlow{
				Kind:             string(nf.Kind),
				AuthorizationURL: nf.Flow.AuthorizationURL,
				TokenURL:         nf.Flow.TokenURL,
				RefreshURL:       nf.Flow.RefreshURL,
				Scopes:           scopes,
			})
		}
	}
	return p
}

// Flow returns the first advertised flow of the given kind.
func (p Provider) Flow(kind string) (ProviderFlow, bool) {
	for _, f := range p.Flows {
		if f.Kind == kind {
			return f, true
		}
	}
	return ProviderFlow{}, false
}

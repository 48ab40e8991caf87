package runtime

import (
	"encoding/json"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// ResourceMetadataPath serves the OAuth 2.0 protected resource metadata
// document (RFC 9728).
const ResourceMetadataPath = "/.well-known/oauth-protected-resource"

// Provider is the OAuth2 configuration inferred for the wrapped API.
type Provider struct {
	Enabled         bool     `json:"enabled"`
	Issuer          string   `json:"issuer,omitempty"`
	JWKSURI         string   `json:"jwks_uri,omitempty"`
	Audience        string   `json:"audience,omitempty"`
	BearerFormat    string   `json:"bearer_format,omitempty"`
	Flows           []Flow   `json:"flows,omitempty"`
	ScopesSupported []string `json:"scopes_supported,omitempty"`
	DefaultScopes   []string `json:"default_scopes,omitempty"`
}

// Flow is one OAuth2 grant the API accepts.
type Flow struct {
	Kind             string   `json:"kind"`
	AuthorizationURL string   `json:"authorization_url,omitempty"`
	TokenURL         string   `json:"token_url,omitempty"`
	RefreshURL       string   `json:"refresh_url,omitempty"`
	Scopes           []string `json:"scopes,omitempty"`
}

// Flow returns the flow of the given kind.
func (p Provider) Flow(kind string) (Flow, bool) {
	for _, f := range p.Flows {
		if f.Kind == kind {
			return f, true
		}
	}
	return Flow{}, false
}

// OAuth2Config builds an authorization code client configuration.
func (p Provider) OAuth2Config(clientID, clientSecret, redirectURL string) (*oauth2.Config, error) {
	f, ok := p.Flow("authorizationCode")
	if !ok {
		return nil, fmt.Errorf("provider has no authorizationCode flow")
	}
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Endpoint: oauth2.Endpoint{
			AuthURL:  f.AuthorizationURL,
			TokenURL: f.TokenURL,
		},
		Scopes: p.scopesFor(f),
	}, nil
}

// ClientCredentials builds a client credentials configuration used by the
// runtime to authenticate to the backend on its own behalf.
func (p Provider) ClientCredentials(clientID, clientSecret string) (*clientcredentials.Config, error) {
	f, ok := p.Flow("clientCredentials")
	if !ok {
		return nil, fmt.Errorf("provider has no clientCredentials flow")
	}
	return &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     f.TokenURL,
		Scopes:       p.scopesFor(f),
	}, nil
}

func (p Provider) scopesFor(f Flow) []string {
	if len(p.DefaultScopes) > 0 {
		return p.DefaultScopes
	}
	return f.Scopes
}

// ProtectedResourceMetadata is the RFC 9728 document advertised to MCP
// clients so they can discover where to obtain tokens.
type ProtectedResourceMetadata struct {
	Resource               string   `json:"resource"`
	AuthorizationServers   []string `json:"authorization_servers,omitempty"`
	ScopesSupported        []string `json:"scopes_supported,omitempty"`
	BearerMethodsSupported []string `json:"bearer_methods_supported"`
	JWKSURI                string   `json:"jwks_uri,omitempty"`
}

// ResourceMetadata describes resource as protected by this provider.
func (p Provider) ResourceMetadata(resource string) ProtectedResourceMetadata {
	md := ProtectedResourceMetadata{
		Resource:               resource,
		ScopesSupported:        p.ScopesSupported,
		BearerMethodsSupported: []string{"header"},
		JWKSURI:                p.JWKSURI,
	}
	if p.Issuer != "" {
		md.AuthorizationServers = []string{p.Issuer}
	}
	return md
}

// ResourceMetadataHandler serves md as JSON.
func ResourceMetadataHandler(md ProtectedResourceMetadata) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(md)
	})
}

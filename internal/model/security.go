package model

import "sort"

type SecurityScheme struct {
	Name             string
	Type             SecuritySchemeType
	Description      string
	In               string
	ParamName        string
	Scheme           string
	BearerFormat     string
	OpenIDConnectURL string
	Flows            *OAuthFlows
	Extensions       Extensions
}

// IsTokenBased reports whether the scheme carries a bearer token that can be
// validated against a JWKS.
func (s SecurityScheme) IsTokenBased() bool {
	switch s.Type {
	case SecurityTypeOAuth2, SecurityTypeOpenIDConnect:
		return true
	case SecurityTypeHTTP:
		return s.Scheme == "bearer"
	}
	return false
}

type SecuritySchemeType string

const (
	SecurityTypeAPIKey        SecuritySchemeType = "apiKey"
	SecurityTypeHTTP          SecuritySchemeType = "http"
	SecurityTypeOAuth2        SecuritySchemeType = "oauth2"
	SecurityTypeOpenIDConnect SecuritySchemeType = "openIdConnect"
	SecurityTypeMutualTLS     SecuritySchemeType = "mutualTLS"
)

// FlowKind names an OAuth2 grant flow the way OpenAPI spells it.
type FlowKind string

const (
	FlowImplicit          FlowKind = "implicit"
	FlowPassword          FlowKind = "password"
	FlowClientCredentials FlowKind = "clientCredentials"
	FlowAuthorizationCode FlowKind = "authorizationCode"
	FlowDeviceCode        FlowKind = "deviceAuthorization" // OpenAPI 3.2
)

type OAuthFlows struct {
	Implicit          *OAuthFlow
	Password          *OAuthFlow
	ClientCredentials *OAuthFlow
	AuthorizationCode *OAuthFlow
	DeviceCode        *OAuthFlow // OpenAPI 3.2
}

// Each returns the declared flows keyed by kind, in a fixed order.
func (f *OAuthFlows) Each() []NamedFlow {
	if f == nil {
		return nil
	}
	var out []NamedFlow
	for _, nf := range []NamedFlow{
		{FlowAuthorizationCode, f.AuthorizationCode},
		{FlowClientCredentials, f.ClientCredentials},
		{FlowDeviceCode, f.DeviceCode},
		{FlowImplicit, f.Implicit},
		{FlowPassword, f.Password},
	} {
		if nf.Flow != nil {
			out = append(out, nf)
		}
	}
	return out
}

// DeclaredScopes returns the sorted union of scopes declared by every flow.
func (f *OAuthFlows) DeclaredScopes() []string {
	seen := make(map[string]bool)
	for _, nf := range f.Each() {
		for s := range nf.Flow.Scopes {
			seen[s] = true
		}
	}
	out := make([]string, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

type NamedFlow struct {
	Kind FlowKind
	Flow *OAuthFlow
}

type OAuthFlow struct {
	AuthorizationURL string
	TokenURL         string
	RefreshURL       string
	DeviceAuthURL    string // OpenAPI 3.2
	Scopes           map[string]string
}

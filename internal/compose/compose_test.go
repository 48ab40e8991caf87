package compose

import (
	"testing"

	"github.com/kolah/mcpforge/internal/authplan"
	"github.com/kolah/mcpforge/internal/model"
	"github.com/stretchr/testify/require"
)

func planWith(schemes ...model.SecurityScheme) *authplan.Plan {
	return &authplan.Plan{
		Schemes:       schemes,
		JWKSURI:       authplan.Value{Value: "https://api.example.com/.well-known/jwks.json", Source: authplan.SourceDefault},
		Issuer:        authplan.Value{Value: "https://api.example.com", Source: authplan.SourceDefault},
		Audience:      authplan.Value{Value: "backend-api", Source: authplan.SourceDefault},
		BearerFormat:  "JWT",
		AllScopes:     []string{"pets:read", "pets:write"},
		DefaultScopes: []string{"pets:read"},
	}
}

var oauth = model.SecurityScheme{
	Name: "oauth",
	Type: model.SecurityTypeOAuth2,
	Flows: &model.OAuthFlows{
		AuthorizationCode: &model.OAuthFlow{
			AuthorizationURL: "https://auth.example.com/authorize",
			TokenURL:         "https://auth.example.com/token",
			Scopes:           map[string]string{"pets:write": "", "pets:read": ""},
		},
		ClientCredentials: &model.OAuthFlow{
			TokenURL: "https://auth.example.com/token",
			Scopes:   map[string]string{"pets:read": ""},
		},
	},
}

func TestComposeStageOrder(t *testing.T) {
	tests := []struct {
		name     string
		plan     *authplan.Plan
		scopes   map[string][]string
		expected []StageKind
	}{
		{
			name:     "no security",
			plan:     &authplan.Plan{},
			expected: []StageKind{StageErrorHandling, StageTiming, StageLogging},
		},
		{
			name:     "nil plan",
			expected: []StageKind{StageErrorHandling, StageTiming, StageLogging},
		},
		{
			name:     "authentication without scopes",
			plan:     planWith(model.SecurityScheme{Name: "bearer", Type: model.SecurityTypeHTTP, Scheme: "bearer"}),
			scopes:   map[string][]string{"default": nil},
			expected: []StageKind{StageErrorHandling, StageAuthentication, StageTiming, StageLogging},
		},
		{
			name:     "full chain",
			plan:     planWith(oauth),
			scopes:   map[string][]string{"pet": {"pets:write", "pets:read"}, "default": {}},
			expected: []StageKind{StageErrorHandling, StageAuthentication, StageScopeEnforcement, StageTiming, StageLogging},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chain := Compose(tt.plan, tt.scopes)
			require.Equal(t, tt.expected, chain.Kinds())
		})
	}
}

func TestComposeScopeStagePerModule(t *testing.T) {
	chain := Compose(planWith(oauth), map[string][]string{
		"pet":     {"pets:write", "pets:read"},
		"store":   {"pets:read"},
		"default": nil,
	})

	stage, ok := chain.Stage(StageScopeEnforcement)
	require.True(t, ok)
	require.Equal(t, map[string][]string{
		"pet":   {"pets:read", "pets:write"},
		"store": {"pets:read"},
	}, stage.Scopes)
}

func TestComposeAuthPolicy(t *testing.T) {
	apiKey := model.SecurityScheme{Name: "key", Type: model.SecurityTypeAPIKey, In: "header", ParamName: "X-API-Key"}
	basic := model.SecurityScheme{Name: "basic", Type: model.SecurityTypeHTTP, Scheme: "basic"}
	chain := Compose(planWith(basic, apiKey, oauth), nil)

	stage, ok := chain.Stage(StageAuthentication)
	require.True(t, ok)
	require.Equal(t, &AuthPolicy{
		Schemes: []AcceptedScheme{
			{Name: "basic", Type: "http", Validation: ValidationNone},
			{Name: "key", Type: "apiKey", Validation: ValidationAPIKey, In: "header", ParamName: "X-API-Key"},
			{Name: "oauth", Type: "oauth2", Validation: ValidationJWKS},
		},
		JWKSURI:      "https://api.example.com/.well-known/jwks.json",
		Issuer:       "https://api.example.com",
		Audience:     "backend-api",
		BearerFormat: "JWT",
	}, stage.Auth)

	_, ok = chain.Stage(StageScopeEnforcement)
	require.False(t, ok)
}

func TestNewProvider(t *testing.T) {
	require.Equal(t, Provider{}, NewProvider(&authplan.Plan{}))

	p := NewProvider(planWith(oauth))
	require.True(t, p.Enabled)
	require.Equal(t, "https://api.example.com", p.Issuer)
	require.Equal(t, []string{"pets:read", "pets:write"}, p.ScopesSupported)
	require.Len(t, p.Flows, 2)

	code, ok := p.Flow("authorizationCode")
	require.True(t, ok)
	require.Equal(t, "https://auth.example.com/authorize", code.AuthorizationURL)
	require.Equal(t, []string{"pets:read", "pets:write"}, code.Scopes)

	_, ok = p.Flow("implicit")
	require.False(t, ok)
}

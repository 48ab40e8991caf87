package model

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSynthesizeOperationID(t *testing.T) {
	tests := []struct {
		method   Method
		path     string
		expected string
	}{
		{MethodGet, "/pets", "get_pets"},
		{MethodGet, "/pets/{petId}", "get_pets_by_petId"},
		{MethodPost, "/stores/{storeId}/orders", "post_stores_by_storeId_orders"},
		{MethodDelete, "/", "delete"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			require.Equal(t, tt.expected, SynthesizeOperationID(tt.method, tt.path))
		})
	}
}

func TestOperationScopesDeduplicated(t *testing.T) {
	op := Operation{
		Security: []SecurityRequirementSet{
			{{Name: "oauth", Scopes: []string{"read", "write"}}},
			{{Name: "oidc", Scopes: []string{"write", "admin"}}},
		},
	}
	require.Equal(t, []string{"read", "write", "admin"}, op.Scopes())
	require.Empty(t, (&Operation{}).Scopes())
}

func TestPathSegments(t *testing.T) {
	require.Equal(t, []string{"users", "id", "posts"}, PathSegments("/users/{id}/posts"))
	require.Empty(t, PathSegments("/"))
}

func TestSchemaJSONSchemaResolvesRefs(t *testing.T) {
	spec := &Spec{
		Schemas: []Schema{
			{
				Name: "Node",
				Type: TypeObject,
				Properties: []Property{
					{Name: "label", Schema: &Schema{Type: TypeString}},
					{Name: "child", Schema: &Schema{Ref: "#/components/schemas/Node"}},
				},
			},
		},
	}

	root := &Schema{Ref: "#/components/schemas/Node", Description: "tree"}
	out := root.JSONSchema(spec)
	require.Equal(t, "object", out["type"])
	require.Equal(t, "tree", out["description"])

	props := out["properties"].(map[string]any)
	require.Equal(t, map[string]any{"type": "string"}, props["label"])

	// recursion terminates
	depth := 0
	node := out
	for {
		p, ok := node["properties"].(map[string]any)
		if !ok {
			break
		}
		node = p["child"].(map[string]any)
		depth++
	}
	require.Greater(t, depth, 1)
}

func TestOAuthFlowsDeclaredScopes(t *testing.T) {
	flows := &OAuthFlows{
		AuthorizationCode: &OAuthFlow{Scopes: map[string]string{"b": "", "a": ""}},
		ClientCredentials: &OAuthFlow{Scopes: map[string]string{"c": "", "a": ""}},
	}
	require.Equal(t, []string{"a", "b", "c"}, flows.DeclaredScopes())

	kinds := []FlowKind{}
	for _, nf := range flows.Each() {
		kinds = append(kinds, nf.Kind)
	}
	require.Equal(t, []FlowKind{FlowAuthorizationCode, FlowClientCredentials}, kinds)

	var none *OAuthFlows
	require.Empty(t, none.Each())
}

func TestSecuritySchemeIsTokenBased(t *testing.T) {
	require.True(t, SecurityScheme{Type: SecurityTypeHTTP, Scheme: "bearer"}.IsTokenBased())
	require.False(t, SecurityScheme{Type: SecurityTypeHTTP, Scheme: "basic"}.IsTokenBased())
	require.True(t, SecurityScheme{Type: SecurityTypeOAuth2}.IsTokenBased())
	require.False(t, SecurityScheme{Type: SecurityTypeAPIKey}.IsTokenBased())
}

package loader

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/kolah/mcpforge/internal/model"
	"github.com/stretchr/testify/require"
)

const securedSpec = `
openapi: "3.1.0"
info:
  title: Pet Store
  version: "1.2.0"
  contact:
    name: API Team
    email: api@example.com
  license:
    name: MIT
servers:
  - url: https://api.example.com/
x-jwks-uri: https://auth.example.com/jwks
x-issuer: https://auth.example.com
security:
  - oauth: [pets:read]
paths:
  /pets:
    parameters:
      - name: X-Trace
        in: header
        schema:
          type: string
    get:
      operationId: listPets
      tags: [pets]
      parameters:
        - name: limit
          in: query
          schema:
            type: integer
            default: 20
      responses:
        "200":
          description: OK
    post:
      tags: [pets]
      security:
        - oauth: [pets:write]
      requestBody:
        required: true
        content:
          application/json:
            schema:
              $ref: "#/components/schemas/Pet"
      responses:
        "201":
          description: Created
  /health:
    get:
      operationId: health
      security: []
      responses:
        "200":
          description: OK
components:
  schemas:
    Pet:
      type: object
      required: [name]
      properties:
        name:
          type: string
        status:
          type: string
          enum: [available, sold]
  securitySchemes:
    oauth:
      type: oauth2
      x-audience: pets-api
      flows:
        clientCredentials:
          tokenUrl: https://auth.example.com/token
          scopes:
            pets:read: Read pets
            pets:write: Write pets
`

func load(t *testing.T, doc string) *model.Spec {
	t.Helper()
	result, err := LoadBytes([]byte(doc))
	require.NoError(t, err)
	spec, err := Transform(result)
	require.NoError(t, err)
	return spec
}

func TestTransformOperationsInDocumentOrder(t *testing.T) {
	spec := load(t, securedSpec)

	var ids []string
	for _, op := range spec.Operations {
		ids = append(ids, op.ID)
	}
	require.Equal(t, []string{"listPets", "post_pets", "health"}, ids)
	require.True(t, spec.Operations[1].IDSynthesized)
	require.False(t, spec.Operations[0].IDSynthesized)
}

func TestTransformEffectiveSecurity(t *testing.T) {
	spec := load(t, securedSpec)

	list, _ := spec.Operation("listPets")
	require.False(t, list.SecurityDeclared)
	require.Equal(t, []string{"pets:read"}, list.Scopes())

	create, _ := spec.Operation("post_pets")
	require.True(t, create.SecurityDeclared)
	require.Equal(t, []string{"pets:write"}, create.Scopes())

	health, _ := spec.Operation("health")
	require.True(t, health.SecurityDeclared)
	require.Empty(t, health.Security)

	require.Equal(t, []model.SecurityRequirement{{Name: "oauth", Scopes: []string{"pets:read"}}}, spec.GlobalSecurity)
}

func TestTransformExtensionsAndSchemes(t *testing.T) {
	spec := load(t, securedSpec)

	require.Equal(t, "https://auth.example.com/jwks", spec.Extensions.JWKSURI)
	require.Equal(t, "https://auth.example.com", spec.Extensions.Issuer)
	require.Empty(t, spec.Extensions.Audience)

	scheme, ok := spec.SchemeByName("oauth")
	require.True(t, ok)
	require.Equal(t, model.SecurityTypeOAuth2, scheme.Type)
	require.Equal(t, "pets-api", scheme.Extensions.Audience)
	require.NotNil(t, scheme.Flows.ClientCredentials)
	require.Equal(t, []string{"pets:read", "pets:write"}, scheme.Flows.DeclaredScopes())
}

func TestTransformInfoAndServers(t *testing.T) {
	spec := load(t, securedSpec)

	require.Equal(t, "Pet Store", spec.Info.Title)
	require.Equal(t, "API Team", spec.Info.Contact.Name)
	require.Equal(t, "MIT", spec.Info.License.Name)
	require.Equal(t, "https://api.example.com", spec.BackendURL("http://localhost:3001"))
	require.Equal(t, "3.1.0", spec.Version)
}

func TestTransformParametersMergePathLevel(t *testing.T) {
	spec := load(t, securedSpec)

	list, _ := spec.Operation("listPets")
	require.Len(t, list.Parameters, 2)
	require.Equal(t, "X-Trace", list.Parameters[0].Name)
	require.Equal(t, model.LocationHeader, list.Parameters[0].In)
	require.Equal(t, "limit", list.Parameters[1].Name)
	require.EqualValues(t, 20, list.Parameters[1].Schema.Default)

	create, _ := spec.Operation("post_pets")
	body := create.RequestBody.JSONSchema()
	require.Equal(t, "#/components/schemas/Pet", body.Ref)
	rendered := body.JSONSchema(spec)
	require.Equal(t, "object", rendered["type"])
	require.Equal(t, []string{"name"}, rendered["required"])
}

func TestLoadRejectsSwagger(t *testing.T) {
	_, err := LoadBytes([]byte("swagger: \"2.0\"\ninfo:\n  title: x\n  version: \"1\"\npaths: {}\n"))
	require.Error(t, err)
}

func TestLoadFileWarnsOn30(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "api.yaml")
	doc := "openapi: \"3.0.3\"\ninfo:\n  title: x\n  version: \"1\"\npaths: {}\n"
	require.NoError(t, os.WriteFile(path, []byte(doc), 0644))

	result, err := LoadFile(path)
	require.NoError(t, err)
	require.Equal(t, "3.0.3", result.Version)
	require.Len(t, result.Warnings, 1)
	require.Contains(t, result.Warnings[0], "3.0.x")
}

func TestLoadFileMissing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorContains(t, err, "reading spec file")
}

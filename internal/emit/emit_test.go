package emit

import (
	"encoding/base64"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/kolah/mcpforge/internal/loader"
	"github.com/kolah/mcpforge/internal/partition"
	"github.com/kolah/mcpforge/internal/pipeline"
	"github.com/kolah/mcpforge/middleware"
	"github.com/kolah/mcpforge/runtime"
	"github.com/stretchr/testify/require"
)

const petstore = `
openapi: 3.1.0
info:
  title: Pet Store
  description: Manage pets.
  version: 2.1.0
  contact:
    name: API Team
    email: api@example.com
  license:
    name: MIT
servers:
  - url: https://api.example.com
tags:
  - name: pet
    description: Everything about pets
security:
  - oauth: [pets:read]
paths:
  /pet:
    post:
      operationId: addPet
      summary: Add a pet
      tags: [pet]
      security:
        - oauth: [pets:write]
      requestBody:
        required: true
        content:
          application/json:
            schema:
              $ref: '#/components/schemas/Pet'
      responses:
        "200": {description: ok}
  /pet/{petId}:
    get:
      operationId: getPetById
      summary: Find pet by ID
      tags: [pet]
      parameters:
        - name: petId
          in: path
          required: true
          description: ID of pet to return
          schema: {type: integer}
        - name: X-Trace
          in: header
          schema: {type: string}
      responses:
        "200": {description: ok}
  /health:
    get:
      operationId: health
      security: []
      responses:
        "200": {description: ok}
components:
  schemas:
    Pet:
      type: object
      required: [name]
      properties:
        name: {type: string}
        tag: {type: string}
  securitySchemes:
    oauth:
      type: oauth2
      flows:
        clientCredentials:
          tokenUrl: https://auth.example.com/token
          scopes:
            pets:read: read pets
            pets:write: write pets
`

const anonymous = `
openapi: 3.1.0
info:
  title: Status
  version: 1.0.0
paths:
  /status:
    get:
      operationId: getStatus
      responses:
        "200": {description: ok}
`

func buildPlan(t *testing.T, doc string, opts pipeline.Options) *pipeline.Plan {
	t.Helper()
	result, err := loader.LoadBytes([]byte(doc))
	require.NoError(t, err)
	spec, err := loader.Transform(result)
	require.NoError(t, err)
	plan, err := pipeline.Build(spec, opts)
	require.NoError(t, err)
	return plan
}

func TestBuildManifest(t *testing.T) {
	plan := buildPlan(t, petstore, pipeline.Options{})
	m, err := BuildManifest(plan, []byte(petstore), EventStoreSettings{MaxEventsPerStream: 50, GracePeriod: time.Minute})
	require.NoError(t, err)

	require.Equal(t, "pet_store", m.Name)
	require.Equal(t, "2.1.0", m.Version)
	require.Equal(t, "Manage pets.", m.Instructions)
	require.Equal(t, "https://api.example.com", m.BackendURL)
	require.Equal(t, 3, m.Metadata.ToolCount)
	require.Equal(t, "API Team", m.Metadata.Contact.Name)
	require.Equal(t, "MIT", m.Metadata.License.Name)
	require.Equal(t, runtime.StrategyMount, m.Composition.Strategy)

	require.Equal(t, runtime.EventStoreSettings{Enabled: true, MaxEventsPerStream: 50, GracePeriodSeconds: 60}, m.EventStore)

	decoded, err := base64.StdEncoding.DecodeString(m.OpenAPI)
	require.NoError(t, err)
	require.Equal(t, petstore, string(decoded))

	var kinds []string
	for _, d := range m.Middleware {
		kinds = append(kinds, d.Kind)
	}
	require.Equal(t, []string{
		middleware.KindErrorHandling,
		middleware.KindAuthentication,
		middleware.KindScopeEnforcement,
		middleware.KindTiming,
		middleware.KindLogging,
	}, kinds)
	require.Equal(t, "oauth", m.Middleware[1].Auth.Schemes[0].Name)
	require.Equal(t, middleware.ValidationJWKS, m.Middleware[1].Auth.Schemes[0].Validation)
	require.Equal(t, []string{"pets:read", "pets:write"}, m.Middleware[2].Scopes["pet"])

	require.True(t, m.Provider.Enabled)
	flow, ok := m.Provider.Flow("clientCredentials")
	require.True(t, ok)
	require.Equal(t, "https://auth.example.com/token", flow.TokenURL)

	require.Len(t, m.Modules, 2)
	require.Equal(t, "default", m.Modules[0].Name)
	require.Equal(t, "pet", m.Modules[1].Name)
	require.Equal(t, "Everything about pets", m.Modules[1].Description)
	require.Equal(t, []string{"pets:read", "pets:write"}, m.Modules[1].RequiredScopes)
}

func TestBuildManifestTools(t *testing.T) {
	plan := buildPlan(t, petstore, pipeline.Options{})
	m, err := BuildManifest(plan, nil, EventStoreSettings{})
	require.NoError(t, err)
	require.Empty(t, m.OpenAPI)

	health, module, ok := m.Tool("health")
	require.True(t, ok)
	require.Equal(t, "default", module)
	require.False(t, health.Secured)
	require.Empty(t, health.Scopes)
	require.Equal(t, "GET /health", health.Description)

	add, _, ok := m.Tool("add_pet")
	require.True(t, ok)
	require.True(t, add.Secured)
	require.Equal(t, []string{"pets:write"}, add.Scopes)
	require.Equal(t, "POST", add.Method)
	require.Equal(t, &runtime.Body{Required: true, ContentType: "application/json"}, add.Body)
	require.Equal(t, []string{runtime.BodyArgument}, add.InputSchema["required"])
	body := add.InputSchema["properties"].(map[string]any)[runtime.BodyArgument].(map[string]any)
	require.Equal(t, "object", body["type"])
	require.Equal(t, []string{"name"}, body["required"])

	get, _, ok := m.Tool("get_pet_by_id")
	require.True(t, ok)
	require.Equal(t, "Find pet by ID", get.Description)
	require.Equal(t, []runtime.Parameter{
		{Name: "petId", In: "path", Required: true, Type: "integer"},
		{Name: "X-Trace", In: "header", Type: "string"},
	}, get.Parameters)
	props := get.InputSchema["properties"].(map[string]any)
	require.Equal(t, "ID of pet to return", props["petId"].(map[string]any)["description"])
	require.Equal(t, []string{"petId"}, get.InputSchema["required"])
}

func TestBuildManifestResourcePrefix(t *testing.T) {
	tests := []struct {
		name   string
		format partition.PrefixFormat
		want   string
	}{
		{name: "path", format: partition.PrefixPath, want: "pet://pet/pet/{petId}"},
		{name: "protocol", format: partition.PrefixProtocol, want: "pet+pet://pet/{petId}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := buildPlan(t, petstore, pipeline.Options{PrefixFormat: tt.format})
			m, err := BuildManifest(plan, nil, EventStoreSettings{})
			require.NoError(t, err)
			require.Len(t, m.Modules[1].Resources, 1)
			res := m.Modules[1].Resources[0]
			require.Equal(t, tt.want, res.URITemplate)
			require.Equal(t, "get_pet_by_id", res.Tool)
		})
	}
}

func TestBuildManifestWithoutAuth(t *testing.T) {
	plan := buildPlan(t, anonymous, pipeline.Options{Strategy: partition.StrategyImport})
	m, err := BuildManifest(plan, nil, EventStoreSettings{MaxEventsPerStream: 10})
	require.NoError(t, err)

	require.False(t, m.EventStore.Enabled)
	require.False(t, m.Provider.Enabled)
	require.Equal(t, runtime.StrategyImport, m.Composition.Strategy)
	for _, d := range m.Middleware {
		require.NotEqual(t, middleware.KindAuthentication, d.Kind)
		require.NotEqual(t, middleware.KindScopeEnforcement, d.Kind)
	}
}

func TestBuildManifestEventStoreDefaults(t *testing.T) {
	plan := buildPlan(t, petstore, pipeline.Options{})
	m, err := BuildManifest(plan, nil, EventStoreSettings{GracePeriod: -1})
	require.NoError(t, err)
	require.Equal(t, 1000, m.EventStore.MaxEventsPerStream)
	require.Equal(t, 300, m.EventStore.GracePeriodSeconds)
}

func TestGenerate(t *testing.T) {
	plan := buildPlan(t, petstore, pipeline.Options{})
	gen, err := New(Settings{GeneratorVersion: "v1.2.3"})
	require.NoError(t, err)

	outputs, err := gen.Generate(plan, []byte(petstore))
	require.NoError(t, err)

	files := make(map[string]string)
	var names []string
	for _, o := range outputs {
		files[o.Filename] = o.Content
		names = append(names, o.Filename)
	}
	require.Equal(t, []string{ManifestFile, MainFile, ReadmeFile}, names)

	loaded, err := runtime.LoadManifest([]byte(files[ManifestFile]))
	require.NoError(t, err)
	require.Equal(t, "pet_store", loaded.Name)

	main := files[MainFile]
	require.Contains(t, main, "// Code generated by mcpforge v1.2.3. DO NOT EDIT.")
	require.Contains(t, main, "//go:embed manifest.json")
	require.Contains(t, main, "runtime.Run(ctx, manifest, opts)")
	require.Regexp(t, `Use:\s+"pet_store",`, main)
	require.Contains(t, main, `"github.com/kolah/mcpforge/runtime"`)

	readme := files[ReadmeFile]
	require.Contains(t, readme, "# pet_store")
	require.Contains(t, readme, "## Authentication")
	require.Contains(t, readme, "`get_pet_by_id`")
	require.Contains(t, readme, "`pet://pet/pet/{petId}`")
	require.Contains(t, readme, "Required scopes: `pets:read`, `pets:write`")
}

func TestGenerateStorageDefaults(t *testing.T) {
	tests := []struct {
		name     string
		settings StorageSettings
		want     runtime.StorageSettings
	}{
		{name: "disabled", settings: StorageSettings{CacheTTL: time.Minute}, want: runtime.StorageSettings{}},
		{
			name:     "filesystem with cache",
			settings: StorageSettings{Backend: "filesystem", Dir: ".mcp_storage", CacheTTL: 90 * time.Second},
			want:     runtime.StorageSettings{Backend: "filesystem", Dir: ".mcp_storage", CacheTTLSeconds: 90},
		},
		{
			name:     "negative ttl",
			settings: StorageSettings{Backend: "memory", CacheTTL: -time.Second},
			want:     runtime.StorageSettings{Backend: "memory"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen, err := New(Settings{Storage: tt.settings})
			require.NoError(t, err)
			outputs, err := gen.Generate(buildPlan(t, petstore, pipeline.Options{}), nil)
			require.NoError(t, err)

			loaded, err := runtime.LoadManifest([]byte(outputs[0].Content))
			require.NoError(t, err)
			require.Equal(t, tt.want, loaded.Storage)
			require.Contains(t, outputs[1].Content, `"github.com/kolah/mcpforge/storage"`)
			require.Contains(t, outputs[1].Content, `"cache-ttl"`)
		})
	}
}

func TestGenerateDeterministic(t *testing.T) {
	gen, err := New(Settings{})
	require.NoError(t, err)

	first, err := gen.Generate(buildPlan(t, petstore, pipeline.Options{}), []byte(petstore))
	require.NoError(t, err)
	second, err := gen.Generate(buildPlan(t, petstore, pipeline.Options{}), []byte(petstore))
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestGenerateCustomTemplates(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "mcp"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "mcp", "README.md.tmpl"), []byte("custom {{ .Manifest.Name }}\n"), 0o644))

	gen, err := New(Settings{TemplatesDir: dir})
	require.NoError(t, err)
	outputs, err := gen.Generate(buildPlan(t, anonymous, pipeline.Options{}), nil)
	require.NoError(t, err)

	for _, o := range outputs {
		if o.Filename == ReadmeFile {
			require.Equal(t, "custom status\n", o.Content)
		}
	}
}

func TestEngine(t *testing.T) {
	tree := fstest.MapFS{
		"a/hello.tmpl": {Data: []byte(`{{ upper . }}`)},
		"skip.txt":     {Data: []byte(`{{`)},
	}
	e, err := NewEngine(tree, "", TemplateFuncs())
	require.NoError(t, err)

	out, err := e.Execute("a/hello.tmpl", "hi")
	require.NoError(t, err)
	require.Equal(t, "HI", out)

	_, err = e.Execute("missing.tmpl", nil)
	require.ErrorContains(t, err, "template not found")

	_, err = NewEngine(fstest.MapFS{"bad.tmpl": {Data: []byte(`{{ .`)}}, "", nil)
	require.ErrorContains(t, err, "parsing embedded template bad.tmpl")

	e, err = NewEngine(tree, filepath.Join(t.TempDir(), "absent"), TemplateFuncs())
	require.NoError(t, err)
	_, err = e.Execute("a/hello.tmpl", "x")
	require.NoError(t, err)
}

func TestTemplateFuncs(t *testing.T) {
	tests := []struct {
		name string
		got  string
		want string
	}{
		{name: "comment", got: GoComment("one\n\ntwo "), want: "// one\n//\n// two"},
		{name: "empty comment", got: GoComment("  "), want: ""},
		{name: "cell", got: MarkdownCell("a |\n b"), want: `a \| b`},
		{name: "first line", got: FirstLine("\n  head \nrest"), want: "head"},
		{name: "title", got: Title("pet store"), want: "Pet Store"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, tt.got)
		})
	}
}

func TestManifestJSONShape(t *testing.T) {
	plan := buildPlan(t, anonymous, pipeline.Options{})
	gen, err := New(Settings{})
	require.NoError(t, err)
	outputs, err := gen.Generate(plan, nil)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal([]byte(outputs[0].Content), &raw))
	for _, key := range []string{"name", "version", "metadata", "backend_url", "modules", "composition", "middleware", "provider", "event_store"} {
		require.Contains(t, raw, key)
	}
	require.True(t, strings.HasSuffix(outputs[0].Content, "\n"))
}

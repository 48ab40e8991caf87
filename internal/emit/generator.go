// Package emit renders a finished plan into the files of a generated MCP
// server: the manifest the runtime loads, a main package and a README.
package emit

import (
	"encoding/json"
	"fmt"

	"github.com/kolah/mcpforge/internal/pipeline"
	"github.com/kolah/mcpforge/runtime"
	embeddedtmpl "github.com/kolah/mcpforge/templates"
)

// Generated file names.
const (
	ManifestFile = "manifest.json"
	MainFile     = "main.go"
	ReadmeFile   = "README.md"
)

const (
	mainTemplate   = "mcp/main.go.tmpl"
	readmeTemplate = "mcp/README.md.tmpl"
)

// Settings controls emission.
type Settings struct {
	// TemplatesDir overrides embedded templates by relative path.
	TemplatesDir     string
	// GeneratorVersion is recorded in generated file headers.
	GeneratorVersion string
	// ValidateTokens is the generated server's default for --validate-tokens.
	ValidateTokens   bool
	EventStore       EventStoreSettings
	Storage          StorageSettings
}

type Generator struct {
	settings Settings
	engine   Engine
}

type Output struct {
	Filename string
	Content  string
}

// templateData is what main.go.tmpl and README.md.tmpl see.
type templateData struct {
	Manifest         *runtime.Manifest
	GeneratorVersion string
	Transport        string
	Addr             string
	ValidateTokens   bool
}

func New(settings Settings) (*Generator, error) {
	engine, err := NewEngine(embeddedtmpl.FS, settings.TemplatesDir, TemplateFuncs())
	if err != nil {
		return nil, fmt.Errorf("creating template engine: %w", err)
	}
	if settings.GeneratorVersion == "" {
		settings.GeneratorVersion = "dev"
	}
	return &Generator{
		settings: settings,
		engine:   engine,
	}, nil
}

// Generate renders every output for plan. Nothing is written to disk.
func (g *Generator) Generate(plan *pipeline.Plan, specData []byte) ([]Output, error) {
	manifest, err := BuildManifest(plan, specData, g.settings.EventStore)
	if err != nil {
		return nil, err
	}
	manifest.Storage = g.settings.Storage.manifest()
	encoded, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding manifest: %w", err)
	}

	data := templateData{
		Manifest:         manifest,
		GeneratorVersion: g.settings.GeneratorVersion,
		Transport:        runtime.TransportStdio,
		Addr:             ":8080",
		ValidateTokens:   g.settings.ValidateTokens,
	}

	mainSrc, err := g.engine.Execute(mainTemplate, data)
	if err != nil {
		return nil, fmt.Errorf("generating main: %w", err)
	}
	formatted, err := FormatGo(MainFile, []byte(mainSrc))
	if err != nil {
		return nil, fmt.Errorf("formatting main: %w", err)
	}

	readme, err := g.engine.Execute(readmeTemplate, data)
	if err != nil {
		return nil, fmt.Errorf("generating readme: %w", err)
	}

	return []Output{
		{Filename: ManifestFile, Content: string(encoded) + "\n"},
		{Filename: MainFile, Content: string(formatted)},
		{Filename: ReadmeFile, Content: readme},
	}, nil
}

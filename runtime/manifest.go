package runtime

import (
	"encoding/json"
	"fmt"

	"github.com/kolah/mcpforge/middleware"
)

// Composition strategies.
const (
	StrategyMount  = "mount"
	StrategyImport = "import"
)

// Manifest is everything a generated server needs at runtime. mcpforge
// writes it next to the generated main and embeds it in the binary.
type Manifest struct {
	Name         string                  `json:"name"`
	Version      string                  `json:"version"`
	Instructions string                  `json:"instructions,omitempty"`
	Metadata     Metadata                `json:"metadata"`
	BackendURL   string                  `json:"backend_url"`
	Modules      []Module                `json:"modules"`
	Composition  Composition             `json:"composition"`
	Middleware   []middleware.Descriptor `json:"middleware"`
	Provider     Provider                `json:"provider"`
	EventStore   EventStoreSettings      `json:"event_store"`
	Storage      StorageSettings         `json:"storage"`
	// OpenAPI is the base64-encoded source document, used to validate
	// backend requests before they are sent.
	OpenAPI string `json:"openapi,omitempty"`
}

// Metadata describes the wrapped API.
type Metadata struct {
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Version     string   `json:"version"`
	Contact     *Contact `json:"contact,omitempty"`
	License     *License `json:"license,omitempty"`
	DocsURL     string   `json:"docs_url,omitempty"`
	ToolCount   int      `json:"tool_count"`
}

type Contact struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	URL   string `json:"url,omitempty"`
}

type License struct {
	Name string `json:"name"`
	URL  string `json:"url,omitempty"`
}

// Module is one sub-server.
type Module struct {
	Name           string     `json:"name"`
	Title          string     `json:"title"`
	Description    string     `json:"description,omitempty"`
	Prefix         string     `json:"prefix"`
	RequiredScopes []string   `json:"required_scopes,omitempty"`
	Tools          []Tool     `json:"tools"`
	Resources      []Resource `json:"resources,omitempty"`
}

// Tool maps one MCP tool onto one backend operation.
type Tool struct {
	Name        string         `json:"name"`
	OperationID string         `json:"operation_id"`
	Description string         `json:"description,omitempty"`
	Method      string         `json:"method"`
	Path        string         `json:"path"`
	Parameters  []Parameter    `json:"parameters,omitempty"`
	Body        *Body          `json:"body,omitempty"`
	InputSchema map[string]any `json:"input_schema"`
	Scopes      []string       `json:"scopes,omitempty"`
	Secured     bool           `json:"secured"`
	Deprecated  bool           `json:"deprecated,omitempty"`
}

// Parameter is an operation parameter exposed as a tool argument.
type Parameter struct {
	Name     string `json:"name"`
	In       string `json:"in"`
	Required bool   `json:"required,omitempty"`
	Type     string `json:"type,omitempty"`
}

// Body describes the request body, passed as the "body" argument.
type Body struct {
	Required    bool   `json:"required,omitempty"`
	ContentType string `json:"content_type"`
}

// BodyArgument is the tool argument that carries the request body.
const BodyArgument = "body"

// Resource is an MCP resource template backed by a GET operation.
type Resource struct {
	Name        string `json:"name"`
	URITemplate string `json:"uri_template"`
	Description string `json:"description,omitempty"`
	// Tool is the tool whose operation serves reads.
	Tool string `json:"tool"`
}

// Composition records how modules attach to the root server.
type Composition struct {
	Strategy     string `json:"strategy"`
	PrefixFormat string `json:"resource_prefix_format"`
}

// EventStoreSettings configures resumable streams.
type EventStoreSettings struct {
	Enabled            bool `json:"enabled"`
	MaxEventsPerStream int  `json:"max_events_per_stream"`
	GracePeriodSeconds int  `json:"grace_period_seconds"`
}

// StorageSettings are the generated defaults for response caching and
// token persistence. An empty Backend disables both.
type StorageSettings struct {
	Backend         string `json:"backend,omitempty"`
	Dir             string `json:"dir,omitempty"`
	CacheTTLSeconds int    `json:"cache_ttl_seconds,omitempty"`
}

// LoadManifest decodes and checks a manifest.
func LoadManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decoding manifest: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate checks internal references.
func (m *Manifest) Validate() error {
	if m.Name == "" {
		return fmt.Errorf("manifest has no server name")
	}
	switch m.Composition.Strategy {
	case "", StrategyMount, StrategyImport:
	default:
		return fmt.Errorf("unknown composition strategy: %s", m.Composition.Strategy)
	}

	seen := make(map[string]string)
	for _, mod := range m.Modules {
		tools := make(map[string]bool)
		for _, t := range mod.Tools {
			if owner, dup := seen[t.Name]; dup {
				return fmt.Errorf("tool %q appears in modules %q and %q", t.Name, owner, mod.Name)
			}
			seen[t.Name] = mod.Name
			tools[t.Name] = true
		}
		for _, r := range mod.Resources {
			if !tools[r.Tool] {
				return fmt.Errorf("resource %q in module %q refers to unknown tool %q", r.Name, mod.Name, r.Tool)
			}
		}
	}
	return nil
}

// Tool looks up a tool by name.
func (m *Manifest) Tool(name string) (Tool, string, bool) {
	for _, mod := range m.Modules {
		for _, t := range mod.Tools {
			if t.Name == name {
				return t, mod.Name, true
			}
		}
	}
	return Tool{}, "", false
}

// ToolAccess summarizes every tool for scope enforcement.
func (m *Manifest) ToolAccess() map[string]middleware.ToolAccess {
	out := make(map[string]middleware.ToolAccess)
	for _, mod := range m.Modules {
		for _, t := range mod.Tools {
			out[t.Name] = middleware.ToolAccess{
				Module:  mod.Name,
				Scopes:  t.Scopes,
				Secured: t.Secured,
			}
		}
	}
	return out
}

// forwardHeaders lists the headers carrying credentials that are passed
// through to the backend.
func (m *Manifest) forwardHeaders() []string {
	headers := []string{"Authorization"}
	for _, d := range m.Middleware {
		if d.Auth == nil {
			continue
		}
		for _, s := range d.Auth.Schemes {
			if s.Validation == middleware.ValidationAPIKey && s.In == "header" && s.ParamName != "" {
				headers = append(headers, s.ParamName)
			}
		}
	}
	return headers
}

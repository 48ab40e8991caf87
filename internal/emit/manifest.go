package emit

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/kolah/mcpforge/eventstore"
	"github.com/kolah/mcpforge/internal/compose"
	"github.com/kolah/mcpforge/internal/model"
	"github.com/kolah/mcpforge/internal/partition"
	"github.com/kolah/mcpforge/internal/pipeline"
	"github.com/kolah/mcpforge/middleware"
	"github.com/kolah/mcpforge/runtime"
)

// EventStoreSettings sizes the generated server's event store.
type EventStoreSettings struct {
	MaxEventsPerStream int
	GracePeriod        time.Duration
}

// StorageSettings are the generated server's defaults for response
// caching and backend token persistence. An empty Backend disables both.
type StorageSettings struct {
	Backend  string
	Dir      string
	CacheTTL time.Duration
}

func (s StorageSettings) manifest() runtime.StorageSettings {
	if s.Backend == "" {
		return runtime.StorageSettings{}
	}
	return runtime.StorageSettings{
		Backend:         s.Backend,
		Dir:             s.Dir,
		CacheTTLSeconds: int(max(s.CacheTTL, 0) / time.Second),
	}
}

// BuildManifest serializes plan into the document the generated server
// loads at startup. specData, when given, is embedded for request
// validation.
func BuildManifest(plan *pipeline.Plan, specData []byte, events EventStoreSettings) (*runtime.Manifest, error) {
	spec := plan.Spec
	m := &runtime.Manifest{
		Name:         plan.ServerName,
		Version:      spec.Info.Version,
		Instructions: strings.TrimSpace(spec.Info.Description),
		Metadata:     metadata(spec.Info, len(plan.Tools())),
		BackendURL:   plan.BackendURL,
		Composition: runtime.Composition{
			Strategy:     string(plan.Graph.Strategy),
			PrefixFormat: string(plan.Graph.PrefixFormat),
		},
		Middleware: descriptors(plan.Chain),
		Provider:   provider(plan.Provider),
	}
	if m.Version == "" {
		m.Version = "0.0.0"
	}

	if plan.EventStoreEnabled() {
		if events.MaxEventsPerStream <= 0 {
			events.MaxEventsPerStream = eventstore.DefaultMaxEvents
		}
		if events.GracePeriod < 0 {
			events.GracePeriod = eventstore.DefaultGracePeriod
		}
		m.EventStore = runtime.EventStoreSettings{
			Enabled:            true,
			MaxEventsPerStream: events.MaxEventsPerStream,
			GracePeriodSeconds: int(events.GracePeriod / time.Second),
		}
	}

	if len(specData) > 0 {
		m.OpenAPI = base64.StdEncoding.EncodeToString(specData)
	}

	prefixes := make(map[string]string, len(plan.Graph.Mounts))
	for _, mount := range plan.Graph.Mounts {
		prefixes[mount.Module] = mount.Prefix
	}

	for _, mod := range plan.Modules {
		out, err := module(plan, mod, prefixes[mod.Name])
		if err != nil {
			return nil, err
		}
		m.Modules = append(m.Modules, out)
	}

	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("building manifest: %w", err)
	}
	return m, nil
}

func metadata(info model.Info, tools int) runtime.Metadata {
	md := runtime.Metadata{
		Title:       info.Title,
		Description: info.Description,
		Version:     info.Version,
		DocsURL:     info.DocsURL,
		ToolCount:   tools,
	}
	if c := info.Contact; c != nil {
		md.Contact = &runtime.Contact{Name: c.Name, Email: c.Email, URL: c.URL}
	}
	if l := info.License; l != nil {
		md.License = &runtime.License{Name: l.Name, URL: l.URL}
	}
	return md
}

func module(plan *pipeline.Plan, mod partition.Module, prefix string) (runtime.Module, error) {
	if len(mod.Tools) != len(mod.Operations) {
		return runtime.Module{}, fmt.Errorf("module %s has %d operations but %d tool names", mod.Name, len(mod.Operations), len(mod.Tools))
	}

	out := runtime.Module{
		Name:           mod.Name,
		Title:          mod.Title,
		Description:    mod.Description,
		Prefix:         prefix,
		RequiredScopes: mod.RequiredScopes,
	}
	toolByOp := make(map[string]string, len(mod.Tools))
	for i, op := range mod.Operations {
		name := mod.Tools[i].Name
		toolByOp[op.ID] = name
		out.Tools = append(out.Tools, tool(plan.Spec, name, op))
	}
	for _, rt := range mod.Resources {
		name, ok := toolByOp[rt.OperationID]
		if !ok {
			continue
		}
		out.Resources = append(out.Resources, runtime.Resource{
			Name:        name,
			URITemplate: plan.Graph.PrefixURI(prefix, rt.URITemplate),
			Description: rt.Description,
			Tool:        name,
		})
	}
	return out, nil
}

func tool(spec *model.Spec, name string, op model.Operation) runtime.Tool {
	t := runtime.Tool{
		Name:        name,
		OperationID: op.ID,
		Description: description(op),
		Method:      string(op.Method),
		Path:        op.Path,
		Scopes:      op.Scopes(),
		Secured:     secured(op),
		Deprecated:  op.Deprecated,
	}

	properties := make(map[string]any)
	var required []string
	for _, p := range op.Parameters {
		prop := p.Schema.JSONSchema(spec)
		if _, ok := prop["description"]; !ok && p.Description != "" {
			prop["description"] = p.Description
		}
		properties[p.Name] = prop

		param := runtime.Parameter{
			Name:     p.Name,
			In:       string(p.In),
			Required: p.Required,
			Type:     string(model.TypeString),
		}
		if p.Schema != nil && p.Schema.Type != "" {
			param.Type = string(p.Schema.Type)
		}
		t.Parameters = append(t.Parameters, param)
		if p.Required {
			required = append(required, p.Name)
		}
	}

	if body := op.RequestBody; body != nil && len(body.Content) > 0 {
		t.Body = &runtime.Body{
			Required:    body.Required,
			ContentType: bodyContentType(body),
		}
		prop := body.JSONSchema().JSONSchema(spec)
		if _, ok := prop["description"]; !ok && body.Description != "" {
			prop["description"] = body.Description
		}
		properties[runtime.BodyArgument] = prop
		if body.Required {
			required = append(required, runtime.BodyArgument)
		}
	}

	t.InputSchema = map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		t.InputSchema["required"] = required
	}
	return t
}

// secured reports whether every alternative of op's requirement names a
// scheme. An empty alternative makes credentials optional.
func secured(op model.Operation) bool {
	if len(op.Security) == 0 {
		return false
	}
	for _, set := range op.Security {
		if len(set) == 0 {
			return false
		}
	}
	return true
}

func description(op model.Operation) string {
	summary := strings.TrimSpace(op.Summary)
	detail := strings.TrimSpace(op.Description)
	switch {
	case summary != "" && detail != "" && detail != summary:
		return summary + "\n\n" + detail
	case summary != "":
		return summary
	case detail != "":
		return detail
	}
	return strings.ToUpper(string(op.Method)) + " " + op.Path
}

func bodyContentType(body *model.RequestBody) string {
	for _, c := range body.Content {
		if c.MediaType == "application/json" {
			return c.MediaType
		}
	}
	return body.Content[0].MediaType
}

func descriptors(chain compose.Chain) []middleware.Descriptor {
	out := make([]middleware.Descriptor, 0, len(chain.Stages))
	for _, s := range chain.Stages {
		d := middleware.Descriptor{Kind: string(s.Kind), Scopes: s.Scopes}
		if s.Auth != nil {
			d.Auth = &middleware.AuthDescriptor{
				JWKSURI:      s.Auth.JWKSURI,
				Issuer:       s.Auth.Issuer,
				Audience:     s.Auth.Audience,
				BearerFormat: s.Auth.BearerFormat,
			}
			for _, a := range s.Auth.Schemes {
				d.Auth.Schemes = append(d.Auth.Schemes, middleware.SchemeDescriptor{
					Name:       a.Name,
					Type:       a.Type,
					Validation: string(a.Validation),
					In:         a.In,
					ParamName:  a.ParamName,
				})
			}
		}
		out = append(out, d)
	}
	return out
}

func provider(p compose.Provider) runtime.Provider {
	out := runtime.Provider{
		Enabled:         p.Enabled,
		Issuer:          p.Issuer,
		JWKSURI:         p.JWKSURI,
		Audience:        p.Audience,
		BearerFormat:    p.BearerFormat,
		ScopesSupported: p.ScopesSupported,
		DefaultScopes:   p.DefaultScopes,
	}
	for _, f := range p.Flows {
		out.Flows = append(out.Flows, runtime.Flow{
			Kind:             f.Kind,
			AuthorizationURL: f.AuthorizationURL,
			TokenURL:         f.TokenURL,
			RefreshURL:       f.RefreshURL,
			Scopes:           f.Scopes,
		})
	}
	return out
}

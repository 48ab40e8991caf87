// Package pipeline runs the generation core over a parsed document and
// returns the finished plan the emission layer renders.
package pipeline

import (
	"fmt"

	"github.com/kolah/mcpforge/internal/authplan"
	"github.com/kolah/mcpforge/internal/compose"
	"github.com/kolah/mcpforge/internal/diag"
	"github.com/kolah/mcpforge/internal/model"
	"github.com/kolah/mcpforge/internal/naming"
	"github.com/kolah/mcpforge/internal/partition"
)

// DefaultBackendURL is used when neither configuration nor the document
// names a server.
const DefaultBackendURL = "http://localhost:3001"

// Options is everything the core reads besides the document itself.
type Options struct {
	ServerName   string
	BackendURL   string
	Naming       naming.Options
	Strategy     partition.Strategy
	PrefixFormat partition.PrefixFormat
}

// Plan is the complete, immutable result of one generation run.
type Plan struct {
	Spec       *model.Spec
	ServerName string
	BackendURL string
	Modules    []partition.Module
	Auth       *authplan.Plan
	Chain      compose.Chain
	Provider   compose.Provider
	Graph      partition.Graph
	Warnings   diag.Warnings
}

// EventStoreEnabled reports whether the generated server keeps resumable
// streams. It does so only when authentication is configured.
func (p *Plan) EventStoreEnabled() bool {
	return p.Auth.AuthenticationEnabled()
}

// Tools returns every allocated tool in traversal order.
func (p *Plan) Tools() []naming.Tool {
	var out []naming.Tool
	for _, m := range p.Modules {
		out = append(out, m.Tools...)
	}
	return out
}

// Build runs inference, partitioning, naming and composition in that order.
// The first fatal error stops the run and no plan is returned.
func Build(spec *model.Spec, opts Options) (*Plan, error) {
	backendURL := opts.BackendURL
	if backendURL == "" {
		backendURL = spec.BackendURL(DefaultBackendURL)
	}
	serverName := opts.ServerName
	if serverName == "" {
		serverName = naming.NormalizeIdentifier(spec.Info.Title)
	}

	auth, err := authplan.Infer(spec, backendURL)
	if err != nil {
		return nil, fmt.Errorf("inferring authentication: %w", err)
	}

	modules := partition.Partition(spec)

	allocator := naming.NewAllocator(opts.Naming)
	tools, warnings, err := allocator.AllocateAll(partition.Groups(modules))
	if err != nil {
		return nil, fmt.Errorf("allocating tool names: %w", err)
	}
	i := 0
	for m := range modules {
		n := len(modules[m].Operations)
		modules[m].Tools = tools[i : i+n : i+n]
		i += n
	}

	graph, err := partition.BuildGraph(serverName, modules, opts.Strategy, opts.PrefixFormat)
	if err != nil {
		return nil, err
	}

	return &Plan{
		Spec:       spec,
		ServerName: serverName,
		BackendURL: backendURL,
		Modules:    modules,
		Auth:       auth,
		Chain:      compose.Compose(auth, partition.ModuleScopes(modules)),
		Provider:   compose.NewProvider(auth),
		Graph:      graph,
		Warnings:   warnings,
	}, nil
}

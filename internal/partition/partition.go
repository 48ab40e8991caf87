// Package partition groups operations into modules, one per API tag, and
// describes how those modules compose under the root server.
package partition

import (
	"sort"

	"github.com/kolah/mcpforge/internal/model"
	"github.com/kolah/mcpforge/internal/naming"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Module is one sub-server: the operations that share a first tag.
type Module struct {
	// Name is the normalized, unique identifier of the module.
	Name string
	// Tag is the tag text as written in the document; empty for the
	// default module.
	Tag         string
	Title       string
	Description string
	Operations  []model.Operation
	// RequiredScopes is the sorted union of every member's scopes.
	RequiredScopes []string
	Resources      []ResourceTemplate

	// Tools is filled in by name allocation, parallel to Operations.
	Tools []naming.Tool
}

// Partition groups spec's operations by their first declared tag.
//
// Untagged operations form the "default" module, which always comes first.
// Tagged modules follow in the order their tag is first seen, and members
// keep document order. Tag text is normalized to an identifier; normalized
// collisions get a numeric suffix.
func Partition(spec *model.Spec) []Module {
	var untagged []model.Operation
	var order []string
	byTag := make(map[string][]model.Operation)

	for _, op := range spec.Operations {
		tag := op.FirstTag()
		if tag == "" {
			untagged = append(untagged, op)
			continue
		}
		if _, ok := byTag[tag]; !ok {
			order = append(order, tag)
		}
		byTag[tag] = append(byTag[tag], op)
	}

	taken := make(map[string]bool)
	isTaken := func(s string) bool { return taken[s] }

	var modules []Module
	if len(untagged) > 0 {
		taken[naming.DefaultModule] = true
		modules = append(modules, newModule(spec, naming.DefaultModule, "", untagged))
	}
	for _, tag := range order {
		name, _, _ := naming.Disambiguate(naming.NormalizeIdentifier(tag), 0, isTaken)
		taken[name] = true
		modules = append(modules, newModule(spec, name, tag, byTag[tag]))
	}
	return modules
}

func newModule(spec *model.Spec, name, tag string, ops []model.Operation) Module {
	m := Module{
		Name:       name,
		Tag:        tag,
		Operations: ops,
	}
	titler := cases.Title(language.English)
	if tag == "" {
		m.Title = titler.String(naming.DefaultModule)
	} else {
		m.Title = titler.String(tag)
	}
	for _, t := range spec.Tags {
		if t.Name == tag {
			m.Description = t.Description
			if m.Description == "" {
				m.Description = t.Summary
			}
			break
		}
	}

	scopes := make(map[string]bool)
	for _, op := range ops {
		for _, s := range op.Scopes() {
			scopes[s] = true
		}
		if rt, ok := resourceTemplate(op); ok {
			m.Resources = append(m.Resources, rt)
		}
	}
	for s := range scopes {
		m.RequiredScopes = append(m.RequiredScopes, s)
	}
	sort.Strings(m.RequiredScopes)
	return m
}

// ModuleScopes maps each module name to its required scopes.
func ModuleScopes(modules []Module) map[string][]string {
	out := make(map[string][]string, len(modules))
	for _, m := range modules {
		out[m.Name] = m.RequiredScopes
	}
	return out
}

// Groups returns the allocation traversal order for modules.
func Groups(modules []Module) []naming.Group {
	out := make([]naming.Group, 0, len(modules))
	for _, m := range modules {
		out = append(out, naming.Group{Module: m.Name, Operations: m.Operations})
	}
	return out
}

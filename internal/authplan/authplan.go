// Package authplan infers the authentication topology of a generated server
// from the security declarations of an OpenAPI document.
package authplan

import (
	"fmt"
	"sort"
	"strings"

	"github.com/kolah/mcpforge/internal/diag"
	"github.com/kolah/mcpforge/internal/model"
)

const (
	DefaultAudience     = "backend-api"
	DefaultBearerFormat = "JWT"
	jwksWellKnownPath   = "/.well-known/jwks.json"
)

// DefaultScopes is used when the document declares no global requirement.
var DefaultScopes = []string{"backend:read"}

// Source records where a resolved token-validation value came from.
type Source string

const (
	SourceScheme   Source = "scheme"
	SourceDocument Source = "document"
	SourceDefault  Source = "default"
)

// Value is a resolved setting together with its provenance.
type Value struct {
	Value  string `json:"value"`
	Source Source `json:"source"`
}

// Plan is the inferred authentication topology. It is built once per
// generation run and never modified afterwards.
type Plan struct {
	// Schemes holds only the schemes some operation references, sorted by name.
	Schemes        []model.SecurityScheme
	EffectiveFlows []model.FlowKind
	AllScopes      []string

	JWKSURI  Value
	Issuer   Value
	Audience Value

	BearerFormat  string
	DefaultScopes []string
	BackendURL    string
}

// AuthenticationEnabled reports whether the generated server needs an
// authentication stage at all.
func (p *Plan) AuthenticationEnabled() bool {
	return len(p.Schemes) > 0
}

// HasScope reports whether scope is referenced by some operation.
func (p *Plan) HasScope(scope string) bool {
	i := sort.SearchStrings(p.AllScopes, scope)
	return i < len(p.AllScopes) && p.AllScopes[i] == scope
}

// SchemeNames returns the names of the referenced schemes.
func (p *Plan) SchemeNames() []string {
	out := make([]string, 0, len(p.Schemes))
	for _, s := range p.Schemes {
		out = append(out, s.Name)
	}
	return out
}

// Infer builds the Plan for spec. backendURL seeds the JWKS, issuer and
// audience defaults when neither a scheme nor the document declares them.
//
// A document without security yields an empty plan. Malformed or
// contradictory declarations are reported as *diag.SpecValidationError.
func Infer(spec *model.Spec, backendURL string) (*Plan, error) {
	backendURL = strings.TrimSuffix(backendURL, "/")
	plan := &Plan{
		BackendURL:    backendURL,
		BearerFormat:  DefaultBearerFormat,
		DefaultScopes: defaultScopes(spec),
	}

	referenced, err := referencedSchemes(spec)
	if err != nil {
		return nil, err
	}
	plan.Schemes = referenced

	flows := make(map[model.FlowKind]bool)
	for _, scheme := range referenced {
		if scheme.BearerFormat != "" && plan.BearerFormat == DefaultBearerFormat {
			plan.BearerFormat = scheme.BearerFormat
		}
		if scheme.Type != model.SecurityTypeOAuth2 {
			continue
		}
		declared := scheme.Flows.Each()
		if len(declared) == 0 {
			return nil, &diag.SpecValidationError{
				Scheme: scheme.Name,
				Reason: "oauth2 scheme declares no flows",
			}
		}
		for _, nf := range declared {
			flows[nf.Kind] = true
		}
	}
	plan.EffectiveFlows = sortedKeys(flows)

	scopes, err := collectScopes(spec)
	if err != nil {
		return nil, err
	}
	plan.AllScopes = scopes

	if plan.JWKSURI, err = resolve(referenced, spec.Extensions.JWKSURI, backendURL+jwksWellKnownPath, "x-jwks-uri",
		func(e model.Extensions) string { return e.JWKSURI }); err != nil {
		return nil, err
	}
	if plan.Issuer, err = resolve(referenced, spec.Extensions.Issuer, backendURL, "x-issuer",
		func(e model.Extensions) string { return e.Issuer }); err != nil {
		return nil, err
	}
	if plan.Audience, err = resolve(referenced, spec.Extensions.Audience, DefaultAudience, "x-audience",
		func(e model.Extensions) string { return e.Audience }); err != nil {
		return nil, err
	}

	return plan, nil
}

func referencedSchemes(spec *model.Spec) ([]model.SecurityScheme, error) {
	seen := make(map[string]bool)
	var out []model.SecurityScheme
	for _, op := range spec.Operations {
		for _, set := range op.Security {
			for _, req := range set {
				if seen[req.Name] {
					continue
				}
				scheme, ok := spec.SchemeByName(req.Name)
				if !ok {
					return nil, &diag.SpecValidationError{
						Scheme:    req.Name,
						Operation: op.ID,
						Reason:    "security requirement references an undeclared scheme",
					}
				}
				seen[req.Name] = true
				out = append(out, scheme)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// collectScopes unions every scope referenced by any operation. Scopes
// required from an OAuth2 scheme must be declared by one of its flows.
func collectScopes(spec *model.Spec) ([]string, error) {
	all := make(map[string]bool)
	for _, op := range spec.Operations {
		for _, set := range op.Security {
			for _, req := range set {
				scheme, _ := spec.SchemeByName(req.Name)
				var declared map[string]bool
				if scheme.Type == model.SecurityTypeOAuth2 {
					declared = make(map[string]bool)
					for _, s := range scheme.Flows.DeclaredScopes() {
						declared[s] = true
					}
				}
				for _, scope := range req.Scopes {
					if declared != nil && !declared[scope] {
						return nil, &diag.SpecValidationError{
							Scheme:    req.Name,
							Operation: op.ID,
							Reason:    fmt.Sprintf("scope %q is not declared by any flow", scope),
						}
					}
					all[scope] = true
				}
			}
		}
	}
	return sortedKeys(all), nil
}

// resolve applies the precedence scheme extension > document extension >
// default. Referenced schemes that declare conflicting values are an error.
func resolve(schemes []model.SecurityScheme, document, fallback, key string, get func(model.Extensions) string) (Value, error) {
	var found Value
	var owner string
	for _, scheme := range schemes {
		v := get(scheme.Extensions)
		if v == "" {
			continue
		}
		if found.Value != "" && found.Value != v {
			return Value{}, &diag.SpecValidationError{
				Scheme: scheme.Name,
				Reason: fmt.Sprintf("%s %q contradicts %q declared by scheme %q", key, v, found.Value, owner),
			}
		}
		if found.Value == "" {
			found = Value{Value: v, Source: SourceScheme}
			owner = scheme.Name
		}
	}
	if found.Value != "" {
		return found, nil
	}
	if document != "" {
		return Value{Value: document, Source: SourceDocument}, nil
	}
	return Value{Value: fallback, Source: SourceDefault}, nil
}

func defaultScopes(spec *model.Spec) []string {
	var out []string
	seen := make(map[string]bool)
	for _, req := range spec.GlobalSecurity {
		for _, s := range req.Scopes {
			if !seen[s] {
				seen[s] = true
				out = append(out, s)
			}
		}
	}
	if len(out) == 0 {
		return append([]string(nil), DefaultScopes...)
	}
	return out
}

func sortedKeys[K ~string](m map[K]bool) []K {
	out := make([]K, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

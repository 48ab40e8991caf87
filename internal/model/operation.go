package model

import "strings"

type Operation struct {
	ID          string
	Method      Method
	Path        string
	Summary     string
	Description string
	Tags        []string
	Parameters  []Parameter
	RequestBody *RequestBody
	Responses   []Response
	Deprecated  bool

	// Security is the effective requirement after inheritance. Each entry is
	// one alternative; an empty slice means the operation is public.
	Security []SecurityRequirementSet

	// SecurityDeclared is true when the operation declared its own security
	// instead of inheriting the document-level requirement.
	SecurityDeclared bool

	// IDSynthesized is true when the document had no operationId.
	IDSynthesized bool
}

// FirstTag returns the first declared tag, or "" for untagged operations.
func (o *Operation) FirstTag() string {
	if len(o.Tags) == 0 {
		return ""
	}
	return o.Tags[0]
}

// Scopes returns every scope referenced by the operation's requirements,
// in first-seen order without duplicates.
func (o *Operation) Scopes() []string {
	seen := make(map[string]bool)
	var out []string
	for _, set := range o.Security {
		for _, req := range set {
			for _, s := range req.Scopes {
				if !seen[s] {
					seen[s] = true
					out = append(out, s)
				}
			}
		}
	}
	return out
}

// ParametersIn returns the parameters declared at the given location.
func (o *Operation) ParametersIn(loc ParameterLocation) []Parameter {
	var out []Parameter
	for _, p := range o.Parameters {
		if p.In == loc {
			out = append(out, p)
		}
	}
	return out
}

// SynthesizeOperationID builds an id for an operation that declares none:
// the lowercased method followed by the path segments, with each path
// parameter rendered as "by_{name}".
func SynthesizeOperationID(method Method, path string) string {
	parts := []string{strings.ToLower(string(method))}
	for _, seg := range strings.Split(path, "/") {
		if seg == "" {
			continue
		}
		if strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, "}") {
			parts = append(parts, "by", strings.Trim(seg, "{}"))
			continue
		}
		parts = append(parts, seg)
	}
	return strings.Join(parts, "_")
}

// PathSegments returns the non-empty segments of the path template with
// parameter braces removed.
func PathSegments(path string) []string {
	var out []string
	for _, seg := range strings.Split(path, "/") {
		seg = strings.Trim(seg, "{}")
		if seg != "" {
			out = append(out, seg)
		}
	}
	return out
}

type Method string

const (
	MethodGet     Method = "GET"
	MethodPost    Method = "POST"
	MethodPut     Method = "PUT"
	MethodDelete  Method = "DELETE"
	MethodPatch   Method = "PATCH"
	MethodHead    Method = "HEAD"
	MethodOptions Method = "OPTIONS"
	MethodTrace   Method = "TRACE"
	MethodQuery   Method = "QUERY" // OpenAPI 3.2
)

type ParameterLocation string

const (
	LocationPath   ParameterLocation = "path"
	LocationQuery  ParameterLocation = "query"
	LocationHeader ParameterLocation = "header"
	LocationCookie ParameterLocation = "cookie"
)

type Parameter struct {
	Name        string
	In          ParameterLocation
	Description string
	Required    bool
	Deprecated  bool
	Schema      *Schema
}

type RequestBody struct {
	Description string
	Required    bool
	Content     []MediaTypeContent
}

// JSONSchema returns the schema of the application/json content, falling
// back to the first declared media type.
func (b *RequestBody) JSONSchema() *Schema {
	if b == nil || len(b.Content) == 0 {
		return nil
	}
	for _, c := range b.Content {
		if c.MediaType == "application/json" {
			return c.Schema
		}
	}
	return b.Content[0].Schema
}

type MediaTypeContent struct {
	MediaType string
	Schema    *Schema
}

type Response struct {
	StatusCode  string
	Description string
	Content     []MediaTypeContent
}

// SecurityRequirement names one scheme and the scopes it must grant.
type SecurityRequirement struct {
	Name   string
	Scopes []string
}

// SecurityRequirementSet is one alternative of a security requirement list:
// every scheme in the set must be satisfied together.
type SecurityRequirementSet []SecurityRequirement

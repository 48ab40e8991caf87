package model

import "strings"

// Spec is the parsed, read-only view of an OpenAPI document that the
// generator works on. Slices keep declaration order.
type Spec struct {
	Version    string
	Info       Info
	Servers    []Server
	Tags       []Tag
	Operations []Operation
	Schemas    []Schema
	Security   []SecurityScheme

	// GlobalSecurity is the document-level security requirement. Operations
	// that do not declare their own inherit it during loading.
	GlobalSecurity []SecurityRequirement

	// Extensions holds document-level x-* values that the generator reads.
	Extensions Extensions
}

// SchemaByRef returns a schema by its $ref path (e.g., "#/components/schemas/User").
// Returns nil if the schema is not found.
func (s *Spec) SchemaByRef(ref string) *Schema {
	parts := strings.Split(ref, "/")
	if len(parts) == 0 {
		return nil
	}
	name := parts[len(parts)-1]
	for i := range s.Schemas {
		if s.Schemas[i].Name == name {
			return &s.Schemas[i]
		}
	}
	return nil
}

// SchemeByName returns the declared security scheme with the given name.
func (s *Spec) SchemeByName(name string) (SecurityScheme, bool) {
	for _, sc := range s.Security {
		if sc.Name == name {
			return sc, true
		}
	}
	return SecurityScheme{}, false
}

// Operation returns the operation with the given id.
func (s *Spec) Operation(id string) (Operation, bool) {
	for _, op := range s.Operations {
		if op.ID == id {
			return op, true
		}
	}
	return Operation{}, false
}

// BackendURL is the first declared server URL, or fallback when none is declared.
func (s *Spec) BackendURL(fallback string) string {
	if len(s.Servers) > 0 && s.Servers[0].URL != "" {
		return strings.TrimSuffix(s.Servers[0].URL, "/")
	}
	return fallback
}

type Info struct {
	Title       string
	Description string
	Version     string
	Contact     *Contact
	License     *License
	DocsURL     string
}

type Contact struct {
	Name  string
	URL   string
	Email string
}

type License struct {
	Name string
	URL  string
}

type Server struct {
	URL         string
	Description string
}

type Tag struct {
	Name        string
	Summary     string // OpenAPI 3.2
	Description string
}

// Extensions carries the x-jwks-uri, x-issuer and x-audience values
// recognised on the document root and on security schemes.
type Extensions struct {
	JWKSURI  string
	Issuer   string
	Audience string
}

// IsZero reports whether no extension value is set.
func (e Extensions) IsZero() bool {
	return e.JWKSURI == "" && e.Issuer == "" && e.Audience == ""
}

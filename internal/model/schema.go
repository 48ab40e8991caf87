package model

type Schema struct {
	Name        string
	Description string
	Type        SchemaType
	Format      string
	Nullable    bool
	Default     any
	Example     any

	// Object properties
	Properties []Property
	Required   []string

	// Array items
	Items *Schema

	// Enum values
	Enum []any

	// Composition
	AllOf []*Schema
	OneOf []*Schema
	AnyOf []*Schema

	// Reference
	Ref string

	// Additional properties for maps
	AdditionalProperties *Schema

	// Constraints
	Minimum   *float64
	Maximum   *float64
	MinLength *int64
	MaxLength *int64
	Pattern   string
}

type SchemaType string

const (
	TypeString  SchemaType = "string"
	TypeNumber  SchemaType = "number"
	TypeInteger SchemaType = "integer"
	TypeBoolean SchemaType = "boolean"
	TypeArray   SchemaType = "array"
	TypeObject  SchemaType = "object"
	TypeNull    SchemaType = "null"
)

type Property struct {
	Name   string
	Schema *Schema
}

// maxSchemaDepth bounds $ref expansion for recursive component schemas.
const maxSchemaDepth = 8

// JSONSchema renders s as a JSON Schema document suitable for an MCP tool
// input. References are expanded through spec; recursion past a fixed depth
// collapses to an untyped object.
func (s *Schema) JSONSchema(spec *Spec) map[string]any {
	return s.jsonSchema(spec, 0)
}

func (s *Schema) jsonSchema(spec *Spec, depth int) map[string]any {
	if s == nil {
		return map[string]any{}
	}
	if depth > maxSchemaDepth {
		return map[string]any{"type": "object"}
	}
	if s.Ref != "" && spec != nil {
		if target := spec.SchemaByRef(s.Ref); target != nil && target != s {
			out := target.jsonSchema(spec, depth+1)
			if s.Description != "" {
				out["description"] = s.Description
			}
			return out
		}
	}

	out := make(map[string]any)
	if s.Type != "" {
		out["type"] = string(s.Type)
	}
	if s.Description != "" {
		out["description"] = s.Description
	}
	if s.Format != "" {
		out["format"] = s.Format
	}
	if s.Default != nil {
		out["default"] = s.Default
	}
	if len(s.Enum) > 0 {
		out["enum"] = s.Enum
	}
	if s.Pattern != "" {
		out["pattern"] = s.Pattern
	}
	if s.Minimum != nil {
		out["minimum"] = *s.Minimum
	}
	if s.Maximum != nil {
		out["maximum"] = *s.Maximum
	}
	if s.MinLength != nil {
		out["minLength"] = *s.MinLength
	}
	if s.MaxLength != nil {
		out["maxLength"] = *s.MaxLength
	}
	if s.Items != nil {
		out["items"] = s.Items.jsonSchema(spec, depth+1)
	}
	if len(s.Properties) > 0 {
		props := make(map[string]any, len(s.Properties))
		for _, p := range s.Properties {
			props[p.Name] = p.Schema.jsonSchema(spec, depth+1)
		}
		out["properties"] = props
	}
	if len(s.Required) > 0 {
		out["required"] = s.Required
	}
	if s.AdditionalProperties != nil {
		out["additionalProperties"] = s.AdditionalProperties.jsonSchema(spec, depth+1)
	}
	for key, list := range map[string][]*Schema{"allOf": s.AllOf, "oneOf": s.OneOf, "anyOf": s.AnyOf} {
		if len(list) == 0 {
			continue
		}
		items := make([]any, 0, len(list))
		for _, sub := range list {
			items = append(items, sub.jsonSchema(spec, depth+1))
		}
		out[key] = items
	}
	return out
}

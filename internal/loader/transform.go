package loader

import (
	"strings"

	"github.com/kolah/mcpforge/internal/model"
	"github.com/pb33f/libopenapi/datamodel/high/base"
	v3 "github.com/pb33f/libopenapi/datamodel/high/v3"
	"github.com/pb33f/libopenapi/orderedmap"
	"go.yaml.in/yaml/v4"
)

type transformer struct {
	componentSchemas map[*base.Schema]string
	global           []model.SecurityRequirementSet
}

// Transform converts the libopenapi model into the generator's spec model.
// Operations keep document order: paths as declared, then methods in a fixed
// order within each path. Security requirements are resolved to their
// effective value so later stages never consult the document root again.
func Transform(result *Result) (*model.Spec, error) {
	doc := result.Document.Model

	t := &transformer{
		componentSchemas: make(map[*base.Schema]string),
	}

	if doc.Components != nil && doc.Components.Schemas != nil {
		for name, schemaProxy := range doc.Components.Schemas.FromOldest() {
			t.componentSchemas[schemaProxy.Schema()] = "#/components/schemas/" + name
		}
	}

	spec := &model.Spec{
		Version:    result.Version,
		Info:       transformInfo(doc.Info),
		Servers:    transformServers(doc.Servers),
		Tags:       transformTags(doc.Tags),
		Extensions: parseExtensions(doc.Extensions),
	}
	if doc.ExternalDocs != nil {
		spec.Info.DocsURL = doc.ExternalDocs.URL
	}

	t.global = transformRequirements(doc.Security)
	for _, set := range t.global {
		spec.GlobalSecurity = append(spec.GlobalSecurity, set...)
	}

	if doc.Components != nil && doc.Components.Schemas != nil {
		for name, schemaProxy := range doc.Components.Schemas.FromOldest() {
			schema := t.transformSchema(name, schemaProxy.Schema())
			spec.Schemas = append(spec.Schemas, *schema)
		}
	}

	if doc.Paths != nil && doc.Paths.PathItems != nil {
		for pathStr, pathItem := range doc.Paths.PathItems.FromOldest() {
			spec.Operations = append(spec.Operations, t.transformPath(pathStr, pathItem)...)
		}
	}

	if doc.Components != nil && doc.Components.SecuritySchemes != nil {
		for name, scheme := range doc.Components.SecuritySchemes.FromOldest() {
			spec.Security = append(spec.Security, transformSecurityScheme(name, scheme))
		}
	}

	return spec, nil
}

func transformInfo(info *base.Info) model.Info {
	if info == nil {
		return model.Info{}
	}
	out := model.Info{
		Title:       info.Title,
		Description: info.Description,
		Version:     info.Version,
	}
	if info.Contact != nil {
		out.Contact = &model.Contact{
			Name:  info.Contact.Name,
			URL:   info.Contact.URL,
			Email: info.Contact.Email,
		}
	}
	if info.License != nil {
		out.License = &model.License{
			Name: info.License.Name,
			URL:  info.License.URL,
		}
	}
	return out
}

func transformServers(servers []*v3.Server) []model.Server {
	var result []model.Server
	for _, s := range servers {
		result = append(result, model.Server{
			URL:         s.URL,
			Description: s.Description,
		})
	}
	return result
}

func transformTags(tags []*base.Tag) []model.Tag {
	var result []model.Tag
	for _, t := range tags {
		result = append(result, model.Tag{
			Name:        t.Name,
			Summary:     t.Summary,
			Description: t.Description,
		})
	}
	return result
}

func (t *transformer) transformPath(pathStr string, pathItem *v3.PathItem) []model.Operation {
	var ops []model.Operation

	// Use a slice for deterministic ordering
	methods := []struct {
		method model.Method
		op     *v3.Operation
	}{
		{model.MethodGet, pathItem.Get},
		{model.MethodPost, pathItem.Post},
		{model.MethodPut, pathItem.Put},
		{model.MethodDelete, pathItem.Delete},
		{model.MethodPatch, pathItem.Patch},
		{model.MethodHead, pathItem.Head},
		{model.MethodOptions, pathItem.Options},
		{model.MethodTrace, pathItem.Trace},
		{model.MethodQuery, pathItem.Query}, // OpenAPI 3.2
	}

	var shared []model.Parameter
	for _, p := range pathItem.Parameters {
		shared = append(shared, t.transformParameter(p))
	}

	for _, m := range methods {
		if m.op == nil {
			continue
		}
		ops = append(ops, t.transformOperation(m.method, pathStr, m.op, shared))
	}

	return ops
}

func (t *transformer) transformOperation(method model.Method, path string, op *v3.Operation, shared []model.Parameter) model.Operation {
	operation := model.Operation{
		ID:          op.OperationId,
		Method:      method,
		Path:        path,
		Summary:     op.Summary,
		Description: op.Description,
		Tags:        op.Tags,
		Deprecated:  boolPtr(op.Deprecated),
	}
	if operation.ID == "" {
		operation.ID = model.SynthesizeOperationID(method, path)
		operation.IDSynthesized = true
	}

	for _, p := range op.Parameters {
		operation.Parameters = append(operation.Parameters, t.transformParameter(p))
	}
	operation.Parameters = mergeParameters(shared, operation.Parameters)

	if op.RequestBody != nil {
		operation.RequestBody = t.transformRequestBody(op.RequestBody)
	}

	if op.Responses != nil && op.Responses.Codes != nil {
		for code, resp := range op.Responses.Codes.FromOldest() {
			operation.Responses = append(operation.Responses, t.transformResponse(code, resp))
		}
	}

	// A nil slice means the operation inherits the document requirement;
	// an explicit empty list makes it public.
	if op.Security != nil {
		operation.SecurityDeclared = true
		operation.Security = transformRequirements(op.Security)
	} else {
		operation.Security = t.global
	}

	return operation
}

// mergeParameters overlays operation parameters on path-item parameters.
// An operation parameter replaces a shared one with the same name and location.
func mergeParameters(shared, own []model.Parameter) []model.Parameter {
	if len(shared) == 0 {
		return own
	}
	type key struct {
		name string
		in   model.ParameterLocation
	}
	overridden := make(map[key]bool, len(own))
	for _, p := range own {
		overridden[key{p.Name, p.In}] = true
	}
	var out []model.Parameter
	for _, p := range shared {
		if !overridden[key{p.Name, p.In}] {
			out = append(out, p)
		}
	}
	return append(out, own...)
}

func transformRequirements(reqs []*base.SecurityRequirement) []model.SecurityRequirementSet {
	if reqs == nil {
		return nil
	}
	sets := make([]model.SecurityRequirementSet, 0, len(reqs))
	for _, secReq := range reqs {
		set := model.SecurityRequirementSet{}
		if secReq.Requirements != nil {
			for name, scopes := range secReq.Requirements.FromOldest() {
				set = append(set, model.SecurityRequirement{
					Name:   name,
					Scopes: scopes,
				})
			}
		}
		sets = append(sets, set)
	}
	return sets
}

func (t *transformer) transformParameter(p *v3.Parameter) model.Parameter {
	param := model.Parameter{
		Name:        p.Name,
		In:          model.ParameterLocation(strings.ToLower(p.In)),
		Description: p.Description,
		Required:    boolPtr(p.Required),
		Deprecated:  p.Deprecated,
	}

	if p.Schema != nil {
		param.Schema = t.transformSchemaProxy(p.Schema)
	} else if p.Content != nil {
		for _, content := range p.Content.FromOldest() {
			if content.Schema != nil {
				param.Schema = t.transformSchemaProxy(content.Schema)
				break
			}
		}
	}

	return param
}

func (t *transformer) transformRequestBody(rb *v3.RequestBody) *model.RequestBody {
	body := &model.RequestBody{
		Description: rb.Description,
		Required:    boolPtr(rb.Required),
	}

	if rb.Content != nil {
		for mediaType, content := range rb.Content.FromOldest() {
			mtc := model.MediaTypeContent{MediaType: mediaType}
			if content.Schema != nil {
				mtc.Schema = t.transformSchemaProxy(content.Schema)
			}
			body.Content = append(body.Content, mtc)
		}
	}

	return body
}

func (t *transformer) transformResponse(code string, resp *v3.Response) model.Response {
	response := model.Response{
		StatusCode:  code,
		Description: resp.Description,
	}

	if resp.Content != nil {
		for mediaType, content := range resp.Content.FromOldest() {
			mtc := model.MediaTypeContent{MediaType: mediaType}
			if content.Schema != nil {
				mtc.Schema = t.transformSchemaProxy(content.Schema)
			}
			response.Content = append(response.Content, mtc)
		}
	}

	return response
}

func (t *transformer) transformSchemaProxy(proxy *base.SchemaProxy) *model.Schema {
	if proxy == nil {
		return nil
	}

	ref := proxy.GetReference()
	if ref == "" {
		if resolved, ok := t.componentSchemas[proxy.Schema()]; ok {
			return &model.Schema{Ref: resolved}
		}
	} else if strings.HasPrefix(ref, "#/components/schemas/") {
		return &model.Schema{Ref: ref}
	}

	schema := t.transformSchema("", proxy.Schema())
	if schema != nil && ref != "" {
		schema.Ref = ref
	}
	return schema
}

func (t *transformer) transformSchema(name string, s *base.Schema) *model.Schema {
	if s == nil {
		return &model.Schema{Name: name}
	}

	schema := &model.Schema{
		Name:        name,
		Description: s.Description,
		Format:      s.Format,
		Nullable:    boolPtr(s.Nullable),
		Pattern:     s.Pattern,
	}
	if s.Default != nil {
		schema.Default = nodeValue(s.Default)
	}
	if s.Example != nil {
		schema.Example = nodeValue(s.Example)
	}

	if len(s.Type) > 0 {
		schema.Type = model.SchemaType(s.Type[0])
	}

	for _, e := range s.Enum {
		schema.Enum = append(schema.Enum, nodeValue(e))
	}

	if s.Properties != nil {
		for propName, propProxy := range s.Properties.FromOldest() {
			schema.Properties = append(schema.Properties, model.Property{
				Name:   propName,
				Schema: t.transformSchemaProxy(propProxy),
			})
		}
	}

	schema.Required = s.Required

	if s.Items != nil && s.Items.A != nil {
		schema.Items = t.transformSchemaProxy(s.Items.A)
	}

	if s.AdditionalProperties != nil && s.AdditionalProperties.A != nil {
		schema.AdditionalProperties = t.transformSchemaProxy(s.AdditionalProperties.A)
	}

	for _, proxy := range s.AllOf {
		schema.AllOf = append(schema.AllOf, t.transformSchemaProxy(proxy))
	}
	for _, proxy := range s.OneOf {
		schema.OneOf = append(schema.OneOf, t.transformSchemaProxy(proxy))
	}
	for _, proxy := range s.AnyOf {
		schema.AnyOf = append(schema.AnyOf, t.transformSchemaProxy(proxy))
	}

	if s.Minimum != nil {
		v := float64(*s.Minimum)
		schema.Minimum = &v
	}
	if s.Maximum != nil {
		v := float64(*s.Maximum)
		schema.Maximum = &v
	}
	if s.MinLength != nil {
		v := int64(*s.MinLength)
		schema.MinLength = &v
	}
	if s.MaxLength != nil {
		v := int64(*s.MaxLength)
		schema.MaxLength = &v
	}

	return schema
}

// nodeValue decodes a YAML node into a plain Go value for JSON output.
func nodeValue(node *yaml.Node) any {
	if node == nil {
		return nil
	}
	var v any
	if err := node.Decode(&v); err != nil {
		return node.Value
	}
	return v
}

// parseExtensions reads the x-jwks-uri, x-issuer and x-audience extensions.
// Other extensions are ignored.
func parseExtensions(extensions *orderedmap.Map[string, *yaml.Node]) model.Extensions {
	var ext model.Extensions
	if extensions == nil {
		return ext
	}

	for pair := extensions.First(); pair != nil; pair = pair.Next() {
		node := pair.Value()
		if node == nil || node.Kind != yaml.ScalarNode {
			continue
		}
		switch pair.Key() {
		case "x-jwks-uri":
			ext.JWKSURI = node.Value
		case "x-issuer":
			ext.Issuer = node.Value
		case "x-audience":
			ext.Audience = node.Value
		}
	}

	return ext
}

func transformSecurityScheme(name string, scheme *v3.SecurityScheme) model.SecurityScheme {
	ss := model.SecurityScheme{
		Name:             name,
		Type:             model.SecuritySchemeType(scheme.Type),
		Description:      scheme.Description,
		In:               scheme.In,
		ParamName:        scheme.Name,
		Scheme:           strings.ToLower(scheme.Scheme),
		BearerFormat:     scheme.BearerFormat,
		OpenIDConnectURL: scheme.OpenIdConnectUrl,
		Extensions:       parseExtensions(scheme.Extensions),
	}

	if scheme.Flows != nil {
		ss.Flows = &model.OAuthFlows{}
		if scheme.Flows.Implicit != nil {
			ss.Flows.Implicit = transformOAuthFlow(scheme.Flows.Implicit)
		}
		if scheme.Flows.Password != nil {
			ss.Flows.Password = transformOAuthFlow(scheme.Flows.Password)
		}
		if scheme.Flows.ClientCredentials != nil {
			ss.Flows.ClientCredentials = transformOAuthFlow(scheme.Flows.ClientCredentials)
		}
		if scheme.Flows.AuthorizationCode != nil {
			ss.Flows.AuthorizationCode = transformOAuthFlow(scheme.Flows.AuthorizationCode)
		}
	}

	return ss
}

func transformOAuthFlow(flow *v3.OAuthFlow) *model.OAuthFlow {
	f := &model.OAuthFlow{
		AuthorizationURL: flow.AuthorizationUrl,
		TokenURL:         flow.TokenUrl,
		RefreshURL:       flow.RefreshUrl,
		Scopes:           make(map[string]string),
	}

	if flow.Scopes != nil {
		for scope, desc := range flow.Scopes.FromOldest() {
			f.Scopes[scope] = desc
		}
	}

	return f
}

func boolPtr(b *bool) bool {
	if b == nil {
		return false
	}
	return *b
}

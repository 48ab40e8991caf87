package partition

import (
	"strings"

	"github.com/kolah/mcpforge/internal/model"
	"github.com/yosida95/uritemplate/v3"
)

// ResourceTemplate exposes a parameterized GET operation as an MCP
// resource template.
type ResourceTemplate struct {
	OperationID string   `json:"operation_id"`
	Name        string   `json:"name"`
	URITemplate string   `json:"uri_template"`
	Description string   `json:"description,omitempty"`
	PathParams  []string `json:"path_params,omitempty"`
	QueryParams []string `json:"query_params,omitempty"`
}

// resourceTemplate builds "{resource}://{path}{?query}" for a GET operation,
// where resource is the last static path segment. Operations without any
// path or query parameter are not resources.
func resourceTemplate(op model.Operation) (ResourceTemplate, bool) {
	if op.Method != model.MethodGet {
		return ResourceTemplate{}, false
	}

	rt := ResourceTemplate{
		OperationID: op.ID,
		Name:        op.ID,
		Description: op.Summary,
	}
	if rt.Description == "" {
		rt.Description = op.Description
	}
	for _, p := range op.Parameters {
		switch p.In {
		case model.LocationPath:
			rt.PathParams = append(rt.PathParams, p.Name)
		case model.LocationQuery:
			rt.QueryParams = append(rt.QueryParams, p.Name)
		}
	}
	if len(rt.PathParams) == 0 && len(rt.QueryParams) == 0 {
		return ResourceTemplate{}, false
	}

	scheme := resourceScheme(op)
	uri := scheme + "://" + strings.TrimPrefix(op.Path, "/")
	if len(rt.QueryParams) > 0 {
		uri += "{?" + strings.Join(rt.QueryParams, ",") + "}"
	}
	if _, err := uritemplate.New(uri); err != nil {
		return ResourceTemplate{}, false
	}
	rt.URITemplate = uri
	return rt, true
}

// resourceScheme picks the last static path segment, reduced to characters
// valid in a URI scheme.
func resourceScheme(op model.Operation) string {
	var last string
	for _, seg := range strings.Split(op.Path, "/") {
		if seg != "" && !strings.HasPrefix(seg, "{") {
			last = seg
		}
	}
	if last == "" {
		last = strings.ReplaceAll(strings.TrimPrefix(op.ID, "get"), "_", "-")
	}

	var b strings.Builder
	for _, r := range strings.ToLower(last) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' || r == '+' || r == '.' {
			b.WriteRune(r)
		}
	}
	scheme := strings.TrimLeft(b.String(), "0123456789-+.")
	if scheme == "" {
		return "resource"
	}
	return scheme
}

package runtime

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/kolah/mcpforge/middleware"
	"github.com/spf13/cast"
)

// maxResponseBytes caps how much of a backend response becomes tool output.
const maxResponseBytes = 8 << 20

type backendResponse struct {
	Status      int
	ContentType string
	Body        []byte
}

// backend proxies tool calls to the wrapped REST API.
type backend struct {
	baseURL string
	client  *http.Client
	// service authenticates with client credentials when the caller
	// presented no token of its own; nil when not configured.
	service   *http.Client
	validator *middleware.RequestValidator
	forward   []string
	logger    *slog.Logger
}

// caller identifies the credential an incoming request carries by the
// forwarded header values. It is empty for anonymous calls.
func (b *backend) caller(incoming http.Header) string {
	var parts []string
	for _, h := range b.forward {
		if v := incoming.Get(h); v != "" {
			parts = append(parts, h+"="+v)
		}
	}
	return strings.Join(parts, "\n")
}

// call performs t's operation with args. incoming is the header of the
// MCP request, if any; credential headers in it are forwarded.
func (b *backend) call(ctx context.Context, t Tool, args map[string]any, incoming http.Header) (*backendResponse, error) {
	path, query, header, cookies, err := bindParameters(t, args)
	if err != nil {
		return nil, err
	}
	body, contentType, err := encodeBody(t, args)
	if err != nil {
		return nil, err
	}

	target := path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	if b.validator != nil {
		vreq, err := newRequest(ctx, t.Method, target, body, contentType, header, cookies)
		if err != nil {
			return nil, err
		}
		if err := b.validator.Validate(vreq); err != nil {
			return nil, err
		}
	}

	req, err := newRequest(ctx, t.Method, b.baseURL+target, body, contentType, header, cookies)
	if err != nil {
		return nil, err
	}

	client := b.client
	forwarded := false
	for _, h := range b.forward {
		if v := incoming.Get(h); v != "" {
			req.Header.Set(h, v)
			forwarded = true
		}
	}
	if !forwarded && b.service != nil {
		client = b.service
	}

	b.logger.Debug("backend request", "tool", t.Name, "method", t.Method, "url", req.URL.String())
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling backend: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("reading backend response: %w", err)
	}
	return &backendResponse{
		Status:      resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        data,
	}, nil
}

func newRequest(ctx context.Context, method, target string, body []byte, contentType string, header http.Header, cookies []*http.Cookie) (*http.Request, error) {
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, r)
	if err != nil {
		return nil, fmt.Errorf("building backend request: %w", err)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	if body != nil {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

// bindParameters places each argument where the operation expects it.
func bindParameters(t Tool, args map[string]any) (string, url.Values, http.Header, []*http.Cookie, error) {
	path := t.Path
	query := url.Values{}
	header := http.Header{}
	var cookies []*http.Cookie

	for _, p := range t.Parameters {
		v, ok := args[p.Name]
		if !ok || v == nil {
			if p.Required {
				return "", nil, nil, nil, fmt.Errorf("missing required argument %q", p.Name)
			}
			continue
		}
		values, err := stringValues(v)
		if err != nil {
			return "", nil, nil, nil, fmt.Errorf("argument %q: %w", p.Name, err)
		}

		switch p.In {
		case "path":
			path = strings.ReplaceAll(path, "{"+p.Name+"}", url.PathEscape(strings.Join(values, ",")))
		case "query":
			for _, s := range values {
				query.Add(p.Name, s)
			}
		case "header":
			header.Set(p.Name, strings.Join(values, ","))
		case "cookie":
			cookies = append(cookies, &http.Cookie{Name: p.Name, Value: strings.Join(values, ",")})
		}
	}
	return path, query, header, cookies, nil
}

func encodeBody(t Tool, args map[string]any) ([]byte, string, error) {
	if t.Body == nil {
		return nil, "", nil
	}
	v, ok := args[BodyArgument]
	if !ok || v == nil {
		if t.Body.Required {
			return nil, "", fmt.Errorf("missing required argument %q", BodyArgument)
		}
		return nil, "", nil
	}

	contentType := t.Body.ContentType
	if contentType == "" {
		contentType = "application/json"
	}
	if s, ok := v.(string); ok && !strings.Contains(contentType, "json") {
		return []byte(s), contentType, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, "", fmt.Errorf("encoding body: %w", err)
	}
	return data, contentType, nil
}

// stringValues renders a JSON argument as one or more parameter values.
func stringValues(v any) ([]string, error) {
	if list, ok := v.([]any); ok {
		out := make([]string, 0, len(list))
		for _, item := range list {
			s, err := cast.ToStringE(item)
			if err != nil {
				return nil, err
			}
			out = append(out, s)
		}
		return out, nil
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		data, jerr := json.Marshal(v)
		if jerr != nil {
			return nil, err
		}
		s = string(data)
	}
	return []string{s}, nil
}

// coerce converts a string matched out of a resource URI to the JSON type
// the parameter declares.
func coerce(s, typ string) (any, error) {
	switch typ {
	case "integer":
		return cast.ToInt64E(s)
	case "number":
		return cast.ToFloat64E(s)
	case "boolean":
		return cast.ToBoolE(s)
	}
	return s, nil
}

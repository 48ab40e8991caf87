// Package middleware provides the HTTP stages a generated MCP server wraps
// around its streamable HTTP endpoint: panic recovery, bearer token
// authentication, per-module scope enforcement, timing and request logging.
package middleware

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// RequestIDHeader carries the request id assigned by Logging.
const RequestIDHeader = "X-Request-ID"

// maxPeekBytes bounds how much of a JSON-RPC body scope enforcement reads.
const maxPeekBytes = 4 << 20

// Middleware wraps a handler.
type Middleware func(http.Handler) http.Handler

// Chain composes stages so the first one is outermost.
func Chain(stages ...Middleware) Middleware {
	return func(next http.Handler) http.Handler {
		for i := len(stages) - 1; i >= 0; i-- {
			next = stages[i](next)
		}
		return next
	}
}

// ErrorHandling turns a panic in any inner stage into a 500 JSON response.
func ErrorHandling(logger *slog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				logger.Error("panic serving request",
					"method", r.Method,
					"path", r.URL.Path,
					"panic", fmt.Sprint(rec),
				)
				writeJSON(w, http.StatusInternalServerError, map[string]any{
					"error":   "internal_error",
					"message": "internal server error",
				})
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// AuthConfig configures the Authentication stage.
type AuthConfig struct {
	// Verifier checks bearer tokens. Nil ignores the Authorization header.
	Verifier TokenVerifier
	APIKeys  []APIKeyScheme
	// Required rejects requests that carry no credential at all.
	Required bool
	// ResourceMetadataURL is advertised in WWW-Authenticate challenges.
	ResourceMetadataURL string
	ErrorHandler        ErrorHandler
}

// Authentication identifies the caller and stores a Principal in the
// request context. A presented but invalid credential is always rejected;
// a missing one only when Required is set.
func Authentication(cfg AuthConfig) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, err := authenticate(r, cfg)
			if err == nil && p == nil && cfg.Required {
				err = NewUnauthorizedError("", "authentication required")
			}
			if err != nil {
				handleAuthError(w, r, err, cfg.ErrorHandler, cfg.ResourceMetadataURL)
				return
			}
			if p != nil {
				r = r.WithContext(WithPrincipal(r.Context(), p))
			}
			next.ServeHTTP(w, r)
		})
	}
}

func authenticate(r *http.Request, cfg AuthConfig) (*Principal, error) {
	if token := ExtractBearerToken(r); token != "" && cfg.Verifier != nil {
		return cfg.Verifier.Verify(r.Context(), token)
	}
	for _, scheme := range cfg.APIKeys {
		p, err := scheme.authenticate(r)
		if err != nil || p != nil {
			return p, err
		}
	}
	return nil, nil
}

// ToolAccess is what scope enforcement knows about one tool.
type ToolAccess struct {
	Module  string
	Scopes  []string
	Secured bool
}

// ScopePolicy configures the ScopeEnforcement stage.
type ScopePolicy struct {
	// Modules maps a module to the scopes that gate it.
	Modules map[string][]string
	// Tools maps a tool name to its module and own scopes.
	Tools               map[string]ToolAccess
	ResourceMetadataURL string
	ErrorHandler        ErrorHandler
}

// ScopeEnforcement inspects JSON-RPC tools/call requests and checks the
// caller's scopes against the target tool. A verified caller needs every
// scope of the tool's module and every scope of the tool itself. Unverified
// callers pass through; their token goes to the backend as is.
func ScopeEnforcement(policy ScopePolicy) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost || r.Body == nil {
				next.ServeHTTP(w, r)
				return
			}

			body, err := io.ReadAll(io.LimitReader(r.Body, maxPeekBytes))
			_ = r.Body.Close()
			if err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]any{
					"error":   "invalid_request",
					"message": "reading request body failed",
				})
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			for _, tool := range calledTools(body) {
				if err := policy.check(r, tool); err != nil {
					handleAuthError(w, r, err, policy.ErrorHandler, policy.ResourceMetadataURL)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (p ScopePolicy) check(r *http.Request, tool string) error {
	access, ok := p.Tools[tool]
	if !ok {
		return nil
	}
	moduleScopes := p.Modules[access.Module]

	principal := GetPrincipal(r.Context())
	if principal == nil {
		if access.Secured || len(access.Scopes) > 0 || len(moduleScopes) > 0 {
			return NewUnauthorizedError("", fmt.Sprintf("tool %q requires authentication", tool))
		}
		return nil
	}
	if !principal.Verified {
		return nil
	}

	if missing := principal.Missing(moduleScopes); len(missing) > 0 {
		return NewForbiddenError(principal.Scheme,
			fmt.Sprintf("module %q requires additional scopes", access.Module), missing)
	}
	if missing := principal.Missing(access.Scopes); len(missing) > 0 {
		return NewForbiddenError(principal.Scheme,
			fmt.Sprintf("tool %q requires additional scopes", tool), missing)
	}
	return nil
}

type rpcCall struct {
	Method string `json:"method"`
	Params struct {
		Name string `json:"name"`
	} `json:"params"`
}

// calledTools returns the tool names of every tools/call in a JSON-RPC
// message or batch. Bodies that are not JSON-RPC yield nothing.
func calledTools(body []byte) []string {
	body = bytes.TrimSpace(body)
	var calls []rpcCall
	if len(body) > 0 && body[0] == '[' {
		if err := json.Unmarshal(body, &calls); err != nil {
			return nil
		}
	} else {
		var call rpcCall
		if err := json.Unmarshal(body, &call); err != nil {
			return nil
		}
		calls = append(calls, call)
	}

	var tools []string
	for _, c := range calls {
		if c.Method == "tools/call" && c.Params.Name != "" {
			tools = append(tools, c.Params.Name)
		}
	}
	return tools
}

// Timing measures how long the rest of the chain takes and reports it in a
// Server-Timing response header.
func Timing() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := wrap(w)
			rw.beforeHeader = func(h http.Header) {
				h.Set("Server-Timing", fmt.Sprintf("app;dur=%.1f", float64(time.Since(start).Microseconds())/1000))
			}
			ctx := r.Context()
			if _, ok := requestStart(ctx); !ok {
				ctx = contextWithStart(ctx, start)
			}
			next.ServeHTTP(rw, r.WithContext(ctx))
		})
	}
}

// Logging assigns a request id and logs one line per request.
func Logging(logger *slog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(RequestIDHeader)
			if id == "" {
				id = uuid.NewString()
			}
			w.Header().Set(RequestIDHeader, id)

			start, ok := requestStart(r.Context())
			if !ok {
				start = time.Now()
			}
			rw := wrap(w)
			next.ServeHTTP(rw, r.WithContext(contextWithRequestID(r.Context(), id)))

			attrs := []any{
				"method", r.Method,
				"path", r.URL.Path,
				"status", rw.Status(),
				"duration", time.Since(start),
				"request_id", id,
			}
			if p := GetPrincipal(r.Context()); p != nil && p.Subject != "" {
				attrs = append(attrs, "subject", p.Subject)
			}
			logger.Info("request", attrs...)
		})
	}
}

func handleAuthError(w http.ResponseWriter, r *http.Request, err error, handler ErrorHandler, resourceMetadata string) {
	var authErr *AuthError
	if !errors.As(err, &authErr) {
		authErr = NewUnauthorizedError("", err.Error())
	}
	if handler != nil {
		handler(w, r, authErr)
		return
	}
	WriteAuthError(w, authErr, resourceMetadata)
}

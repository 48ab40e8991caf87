// Package runtime hosts a generated MCP server. It reads the manifest that
// mcpforge emits, registers one MCP tool per API operation and one resource
// template per parameterized GET, and proxies calls to the backend REST API
// over stdio or streamable HTTP.
package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/kolah/mcpforge/eventstore"
	"github.com/kolah/mcpforge/middleware"
	"github.com/kolah/mcpforge/storage"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/yosida95/uritemplate/v3"
	"golang.org/x/oauth2"
)

// Transports.
const (
	TransportStdio = "stdio"
	TransportHTTP  = "http"
)

// MCPPath is where the root server is served over HTTP. Mounted modules
// are served below it.
const MCPPath = "/mcp"

// EventsPath serves stream replay when the event store is enabled.
const EventsPath = "/events"

// Options are the runtime switches of a generated server.
type Options struct {
	Transport string
	Addr      string
	// BackendURL overrides the URL recorded in the manifest.
	BackendURL string
	// ValidateTokens verifies bearer tokens against the JWKS. HTTP only.
	ValidateTokens bool
	// ValidateRequests checks backend requests against the embedded
	// OpenAPI document before sending them.
	ValidateRequests bool
	// PublicURL is the externally visible base URL, used in protected
	// resource metadata.
	PublicURL string
	// ClientID and ClientSecret enable client credentials authentication
	// to the backend for calls that carry no caller token.
	ClientID     string
	ClientSecret string
	HTTPClient   *http.Client
	// Storage selects the backend for cached results and backend tokens:
	// memory or filesystem. Empty uses the manifest default.
	Storage    string
	StorageDir string
	// StorageKey encrypts the filesystem backend; nil uses a key file.
	StorageKey *[storage.KeySize]byte
	// CacheTTL caches GET tool results; zero uses the manifest default and
	// a negative value disables caching.
	CacheTTL time.Duration
	// Keyfunc replaces the JWKS lookup.
	Keyfunc jwt.Keyfunc
	Logger  *slog.Logger
}

// Server is a running generated server.
type Server struct {
	manifest *Manifest
	opts     Options
	logger   *slog.Logger
	root     *mcp.Server
	modules  map[string]*mcp.Server
	backend  *backend
	events   *eventstore.Store
	sessions *eventstore.SessionStore
	storage  storage.Backend
	cache    *toolCache
}

// Run decodes manifestJSON and serves it until ctx is done.
func Run(ctx context.Context, manifestJSON []byte, opts Options) error {
	m, err := LoadManifest(manifestJSON)
	if err != nil {
		return err
	}
	s, err := New(ctx, m, opts)
	if err != nil {
		return err
	}
	return s.Run(ctx)
}

// New builds the MCP servers described by m.
func New(ctx context.Context, m *Manifest, opts Options) (*Server, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	baseURL := opts.BackendURL
	if baseURL == "" {
		baseURL = m.BackendURL
	}

	s := &Server{
		manifest: m,
		opts:     opts,
		logger:   logger,
		modules:  make(map[string]*mcp.Server),
		backend: &backend{
			baseURL: strings.TrimSuffix(baseURL, "/"),
			client:  httpClient,
			forward: m.forwardHeaders(),
			logger:  logger,
		},
	}

	if opts.ValidateRequests && m.OpenAPI != "" {
		v, err := middleware.NewRequestValidatorFromBase64(m.OpenAPI)
		if err != nil {
			return nil, fmt.Errorf("loading embedded OpenAPI document: %w", err)
		}
		s.backend.validator = v
	}

	if err := s.openStorage(); err != nil {
		return nil, err
	}

	if opts.ClientID != "" {
		cc, err := m.Provider.ClientCredentials(opts.ClientID, opts.ClientSecret)
		if err != nil {
			return nil, fmt.Errorf("configuring backend credentials: %w", err)
		}
		tokenCtx := context.WithValue(ctx, oauth2.HTTPClient, httpClient)
		source := cc.TokenSource(tokenCtx)
		if s.storage != nil {
			source = oauth2.ReuseTokenSource(nil,
				storage.NewTokenStore(s.storage).TokenSource(ctx, opts.ClientID, source, logger))
		}
		s.backend.service = oauth2.NewClient(tokenCtx, source)
	}

	if m.EventStore.Enabled {
		s.events = eventstore.New(
			eventstore.WithMaxEvents(m.EventStore.MaxEventsPerStream),
			eventstore.WithGracePeriod(time.Duration(m.EventStore.GracePeriodSeconds)*time.Second),
			eventstore.WithLogger(logger),
		)
		s.sessions = eventstore.NewSessionStore(s.events)
		logger.Info("event store enabled", "max_events_per_stream", s.events.MaxEvents())
	}

	s.root = mcp.NewServer(
		&mcp.Implementation{Name: m.Name, Version: m.Version},
		&mcp.ServerOptions{Instructions: m.Instructions},
	)
	if err := s.compose(); err != nil {
		return nil, err
	}
	return s, nil
}

// openStorage opens the storage backend and the tool cache on it. Options
// take precedence over the manifest.
func (s *Server) openStorage() error {
	kind := s.opts.Storage
	if kind == "" {
		kind = s.manifest.Storage.Backend
	}
	if kind == "" {
		return nil
	}
	dir := s.opts.StorageDir
	if dir == "" {
		dir = s.manifest.Storage.Dir
	}

	backend, err := storage.Open(storage.Config{Kind: kind, Dir: dir, Key: s.opts.StorageKey})
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	s.storage = backend

	ttl := s.opts.CacheTTL
	if ttl == 0 {
		ttl = time.Duration(s.manifest.Storage.CacheTTLSeconds) * time.Second
	}
	if ttl > 0 {
		s.cache = &toolCache{backend: backend, ttl: ttl, logger: s.logger}
	}
	s.logger.Info("storage enabled", "backend", kind, "cache_ttl", max(ttl, 0))
	return nil
}

func (s *Server) compose() error {
	strategy := s.manifest.Composition.Strategy
	if strategy == "" {
		strategy = StrategyMount
	}

	for _, mod := range s.manifest.Modules {
		targets := []*mcp.Server{s.root}
		if strategy == StrategyMount {
			sub := mcp.NewServer(
				&mcp.Implementation{Name: s.manifest.Name + "_" + mod.Name, Version: s.manifest.Version},
				&mcp.ServerOptions{Instructions: mod.Description},
			)
			s.modules[mod.Name] = sub
			targets = append(targets, sub)
		}

		tools := make(map[string]Tool, len(mod.Tools))
		for _, t := range mod.Tools {
			tools[t.Name] = t
			for _, srv := range targets {
				srv.AddTool(mcpTool(t), s.toolHandler(t))
			}
		}
		for _, r := range mod.Resources {
			handler, err := s.resourceHandler(r, tools[r.Tool])
			if err != nil {
				return fmt.Errorf("module %s: %w", mod.Name, err)
			}
			for _, srv := range targets {
				srv.AddResourceTemplate(&mcp.ResourceTemplate{
					Name:        r.Name,
					URITemplate: r.URITemplate,
					Description: r.Description,
					MIMEType:    "application/json",
				}, handler)
			}
		}

		s.logger.Info("module composed",
			"module", mod.Name,
			"strategy", strategy,
			"tools", len(mod.Tools),
			"resources", len(mod.Resources),
		)
	}
	s.logger.Info("server ready", "name", s.manifest.Name, "tools", s.manifest.Metadata.ToolCount, "modules", len(s.manifest.Modules))
	return nil
}

// MCP returns the root server.
func (s *Server) MCP() *mcp.Server {
	return s.root
}

// Module returns the server of a mounted module.
func (s *Server) Module(name string) (*mcp.Server, bool) {
	srv, ok := s.modules[name]
	return srv, ok
}

// Events returns the event store, or nil when it is disabled.
func (s *Server) Events() *eventstore.Store {
	return s.events
}

// Sessions returns the streamable HTTP view of the event store, or nil
// when it is disabled.
func (s *Server) Sessions() *eventstore.SessionStore {
	return s.sessions
}

// Handler returns the HTTP surface: the root server, mounted modules,
// stream replay and resource metadata, all behind the middleware chain.
func (s *Server) Handler(ctx context.Context) (http.Handler, error) {
	opts := middleware.Options{
		Logger:         s.logger,
		ValidateTokens: s.opts.ValidateTokens,
		Keyfunc:        s.opts.Keyfunc,
		Tools:          s.manifest.ToolAccess(),
	}
	publicURL := strings.TrimSuffix(s.opts.PublicURL, "/")
	if s.manifest.Provider.Enabled && publicURL != "" {
		opts.ResourceMetadataURL = publicURL + ResourceMetadataPath
	}

	chain, err := middleware.Build(ctx, s.manifest.Middleware, opts)
	if err != nil {
		return nil, fmt.Errorf("building middleware: %w", err)
	}

	streamOpts := &mcp.StreamableHTTPOptions{Logger: s.logger}
	if s.sessions != nil {
		streamOpts.EventStore = s.sessions
	}

	mux := http.NewServeMux()
	root := s.root
	mux.Handle(MCPPath, chain(mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return root }, streamOpts)))
	for name, srv := range s.modules {
		mux.Handle(MCPPath+"/"+name, chain(mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return srv }, streamOpts)))
	}
	if s.events != nil {
		mux.Handle(EventsPath, chain(eventstore.Handler(s.events)))
	}
	if s.manifest.Provider.Enabled {
		md := s.manifest.Provider.ResourceMetadata(publicURL + MCPPath)
		mux.Handle(ResourceMetadataPath, ResourceMetadataHandler(md))
	}
	return mux, nil
}

// Run serves over the configured transport until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	switch s.opts.Transport {
	case "", TransportStdio:
		if s.opts.ValidateTokens {
			s.logger.Warn("token validation only applies to the http transport; ignoring")
		}
		return s.root.Run(ctx, &mcp.StdioTransport{})
	case TransportHTTP:
		return s.serveHTTP(ctx)
	default:
		return fmt.Errorf("unknown transport: %s (valid: stdio, http)", s.opts.Transport)
	}
}

func (s *Server) serveHTTP(ctx context.Context) error {
	handler, err := s.Handler(ctx)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Addr:              s.opts.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info("serving streamable HTTP", "addr", s.opts.Addr, "path", MCPPath)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func mcpTool(t Tool) *mcp.Tool {
	schema := t.InputSchema
	if schema == nil {
		schema = map[string]any{"type": "object", "properties": map[string]any{}}
	}
	description := t.Description
	if t.Deprecated {
		description = "[deprecated] " + description
	}
	return &mcp.Tool{
		Name:        t.Name,
		Description: description,
		InputSchema: schema,
		Annotations: &mcp.ToolAnnotations{
			ReadOnlyHint:   t.Method == http.MethodGet,
			IdempotentHint: t.Method == http.MethodGet || t.Method == http.MethodPut || t.Method == http.MethodDelete,
		},
	}
}

func (s *Server) toolHandler(t Tool) mcp.ToolHandler {
	return func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := make(map[string]any)
		if raw := req.Params.Arguments; len(raw) > 0 {
			if err := json.Unmarshal(raw, &args); err != nil {
				return errorResult(fmt.Sprintf("invalid arguments: %v", err)), nil
			}
		}

		var header http.Header
		if req.Extra != nil {
			header = req.Extra.Header
		}

		cached := s.cache.cacheable(t)
		caller := s.backend.caller(header)
		if cached {
			if text, ok := s.cache.get(ctx, t.Name, args, caller); ok {
				return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: text}}}, nil
			}
		}

		resp, err := s.backend.call(ctx, t, args, header)

		var result *mcp.CallToolResult
		switch {
		case err != nil:
			result = errorResult(err.Error())
		case resp.Status >= http.StatusBadRequest:
			result = errorResult(fmt.Sprintf("backend returned %d: %s", resp.Status, strings.TrimSpace(string(resp.Body))))
		default:
			text := string(resp.Body)
			if text == "" {
				text = fmt.Sprintf("backend returned %d", resp.Status)
			}
			result = &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: text}}}
			if cached {
				s.cache.set(ctx, t.Name, args, caller, text)
			}
		}

		return result, nil
	}
}

func (s *Server) resourceHandler(r Resource, t Tool) (mcp.ResourceHandler, error) {
	tmpl, err := uritemplate.New(r.URITemplate)
	if err != nil {
		return nil, fmt.Errorf("resource %s: %w", r.Name, err)
	}

	return func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		uri := req.Params.URI
		values := tmpl.Match(uri)
		if values == nil {
			return nil, mcp.ResourceNotFoundError(uri)
		}

		args := make(map[string]any)
		for _, p := range t.Parameters {
			v := values.Get(p.Name)
			if len(v.V) == 0 || v.String() == "" {
				continue
			}
			arg, err := coerce(v.String(), p.Type)
			if err != nil {
				return nil, fmt.Errorf("parameter %s: %w", p.Name, err)
			}
			args[p.Name] = arg
		}

		var header http.Header
		if req.Extra != nil {
			header = req.Extra.Header
		}
		resp, err := s.backend.call(ctx, t, args, header)
		if err != nil {
			return nil, err
		}
		if resp.Status == http.StatusNotFound {
			return nil, mcp.ResourceNotFoundError(uri)
		}
		if resp.Status >= http.StatusBadRequest {
			return nil, fmt.Errorf("backend returned %d: %s", resp.Status, strings.TrimSpace(string(resp.Body)))
		}

		mimeType := resp.ContentType
		if mimeType == "" {
			mimeType = "application/json"
		}
		return &mcp.ReadResourceResult{
			Contents: []*mcp.ResourceContents{{URI: uri, MIMEType: mimeType, Text: string(resp.Body)}},
		}, nil
	}, nil
}

func errorResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{&mcp.TextContent{Text: msg}},
	}
}

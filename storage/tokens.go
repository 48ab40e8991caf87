package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/oauth2"
)

// TokenStore persists OAuth2 tokens per client id.
type TokenStore struct {
	backend Backend
}

func NewTokenStore(backend Backend) *TokenStore {
	return &TokenStore{backend: backend}
}

func tokenKey(clientID string) string {
	return "oauth:token:" + clientID
}

// Save stores tok for clientID. Tokens do not expire in the backend; the
// oauth2 expiry decides validity on load.
func (s *TokenStore) Save(ctx context.Context, clientID string, tok *oauth2.Token) error {
	data, err := json.Marshal(tok)
	if err != nil {
		return fmt.Errorf("encoding token: %w", err)
	}
	return s.backend.Set(ctx, tokenKey(clientID), data, 0)
}

// Load returns the stored token for clientID, or nil when none is stored.
func (s *TokenStore) Load(ctx context.Context, clientID string) (*oauth2.Token, error) {
	data, ok, err := s.backend.Get(ctx, tokenKey(clientID))
	if err != nil || !ok {
		return nil, err
	}
	var tok oauth2.Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, fmt.Errorf("decoding token: %w", err)
	}
	return &tok, nil
}

func (s *TokenStore) Delete(ctx context.Context, clientID string) error {
	return s.backend.Delete(ctx, tokenKey(clientID))
}

// TokenSource returns a source that serves the stored token while it is
// valid and otherwise fetches from src and stores the result. Storage
// failures are logged and do not fail the token request.
func (s *TokenStore) TokenSource(ctx context.Context, clientID string, src oauth2.TokenSource, logger *slog.Logger) oauth2.TokenSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &persistentSource{ctx: ctx, store: s, clientID: clientID, src: src, logger: logger}
}

type persistentSource struct {
	mu       sync.Mutex
	ctx      context.Context
	store    *TokenStore
	clientID string
	src      oauth2.TokenSource
	logger   *slog.Logger
}

func (p *persistentSource) Token() (*oauth2.Token, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	tok, err := p.store.Load(p.ctx, p.clientID)
	if err != nil {
		p.logger.Warn("loading stored token", "client_id", p.clientID, "error", err)
	}
	if tok.Valid() {
		return tok, nil
	}

	tok, err = p.src.Token()
	if err != nil {
		return nil, err
	}
	if err := p.store.Save(p.ctx, p.clientID, tok); err != nil {
		p.logger.Warn("storing token", "client_id", p.clientID, "error", err)
	}
	return tok, nil
}

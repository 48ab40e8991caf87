package runtime

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/kolah/mcpforge/storage"
)

// toolCache keeps successful GET tool results for a fixed time.
type toolCache struct {
	backend storage.Backend
	ttl     time.Duration
	logger  *slog.Logger
}

// cacheable reports whether results of t may be served from the cache.
func (c *toolCache) cacheable(t Tool) bool {
	return c != nil && c.ttl > 0 && t.Method == http.MethodGet
}

// cacheKey is "cache:{tool}:{first 16 hex chars of sha256(tool|args|caller)}".
// encoding/json sorts map keys, so equal arguments give equal keys. caller
// is the credential the request carried, so callers never share entries.
func cacheKey(tool string, args map[string]any, caller string) string {
	encoded, _ := json.Marshal(args)
	h := sha256.New()
	h.Write([]byte(tool + "|"))
	h.Write(encoded)
	h.Write([]byte("|" + caller))
	return "cache:" + tool + ":" + hex.EncodeToString(h.Sum(nil))[:16]
}

func (c *toolCache) get(ctx context.Context, tool string, args map[string]any, caller string) (string, bool) {
	data, ok, err := c.backend.Get(ctx, cacheKey(tool, args, caller))
	if err != nil {
		c.logger.Warn("cache get failed", "tool", tool, "error", err)
		return "", false
	}
	if ok {
		c.logger.Debug("cache hit", "tool", tool)
	}
	return string(data), ok
}

func (c *toolCache) set(ctx context.Context, tool string, args map[string]any, caller, text string) {
	if err := c.backend.Set(ctx, cacheKey(tool, args, caller), []byte(text), c.ttl); err != nil {
		c.logger.Warn("cache set failed", "tool", tool, "error", err)
	}
}

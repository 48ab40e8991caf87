// Package storage is the key-value persistence used by generated servers
// for cached tool results and backend OAuth tokens. Two backends exist:
// an in-process map and a directory of optionally encrypted files.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Backend kinds.
const (
	KindMemory     = "memory"
	KindFilesystem = "filesystem"
)

// DefaultDir is where the filesystem backend keeps its files.
const DefaultDir = ".mcp_storage"

// ErrUnknownBackend is returned by Open for an unsupported kind.
var ErrUnknownBackend = errors.New("unknown storage backend")

// Backend stores opaque values by key. A zero ttl means no expiry.
// Expired values behave as missing.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
}

// Config selects and configures a backend.
type Config struct {
	Kind string
	// Dir is the filesystem backend's directory.
	Dir string
	// Key encrypts filesystem values. When nil the filesystem backend
	// loads or creates a key file inside Dir.
	Key *[KeySize]byte
	// Plaintext disables filesystem encryption.
	Plaintext bool
}

// Open returns the backend cfg names.
func Open(cfg Config) (Backend, error) {
	switch cfg.Kind {
	case KindMemory:
		return NewMemory(), nil
	case KindFilesystem:
		dir := cfg.Dir
		if dir == "" {
			dir = DefaultDir
		}
		return NewFilesystem(dir, cfg.Key, !cfg.Plaintext)
	default:
		return nil, fmt.Errorf("%w: %q (valid: memory, filesystem)", ErrUnknownBackend, cfg.Kind)
	}
}

func expiry(now time.Time, ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return now.Add(ttl)
}

func expired(now, expiresAt time.Time) bool {
	return !expiresAt.IsZero() && !now.Before(expiresAt)
}

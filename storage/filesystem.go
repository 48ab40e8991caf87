package storage

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/crypto/nacl/secretbox"
)

// KeySize is the length of a filesystem encryption key.
const KeySize = 32

const (
	keyFile   = ".encryption_key"
	fileExt   = ".dat"
	nonceSize = 24
)

type fileEntry struct {
	Value     []byte    `json:"value"`
	ExpiresAt time.Time `json:"expires_at,omitzero"`
}

// Filesystem stores one file per key. Values are sealed with NaCl
// secretbox unless encryption is disabled.
type Filesystem struct {
	dir string
	key *[KeySize]byte
	now func() time.Time
}

// NewFilesystem creates dir if needed. With encrypt set and key nil, the
// key is read from dir/.encryption_key, or generated and written there
// with mode 0600.
func NewFilesystem(dir string, key *[KeySize]byte, encrypt bool) (*Filesystem, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("creating storage directory: %w", err)
	}
	f := &Filesystem{dir: dir, now: time.Now}
	if encrypt {
		if key == nil {
			var err error
			if key, err = loadOrCreateKey(filepath.Join(dir, keyFile)); err != nil {
				return nil, err
			}
		}
		f.key = key
	}
	return f, nil
}

// ParseKey decodes a base64 encryption key.
func ParseKey(s string) (*[KeySize]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("decoding storage key: %w", err)
	}
	if len(raw) != KeySize {
		return nil, fmt.Errorf("storage key must be %d bytes, got %d", KeySize, len(raw))
	}
	var key [KeySize]byte
	copy(key[:], raw)
	return &key, nil
}

func loadOrCreateKey(path string) (*[KeySize]byte, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		return ParseKey(string(data))
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("reading storage key: %w", err)
	}

	var key [KeySize]byte
	if _, err := rand.Read(key[:]); err != nil {
		return nil, fmt.Errorf("generating storage key: %w", err)
	}
	if err := os.WriteFile(path, []byte(base64.StdEncoding.EncodeToString(key[:])), 0600); err != nil {
		return nil, fmt.Errorf("writing storage key: %w", err)
	}
	return &key, nil
}

func (f *Filesystem) path(key string) string {
	return filepath.Join(f.dir, base64.RawURLEncoding.EncodeToString([]byte(key))+fileExt)
}

func (f *Filesystem) Get(_ context.Context, key string) ([]byte, bool, error) {
	data, err := os.ReadFile(f.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("reading %s: %w", key, err)
	}

	if f.key != nil {
		if len(data) < nonceSize {
			return nil, false, fmt.Errorf("reading %s: sealed value too short", key)
		}
		var nonce [nonceSize]byte
		copy(nonce[:], data[:nonceSize])
		opened, ok := secretbox.Open(nil, data[nonceSize:], &nonce, f.key)
		if !ok {
			return nil, false, fmt.Errorf("reading %s: decryption failed", key)
		}
		data = opened
	}

	var e fileEntry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, false, fmt.Errorf("decoding %s: %w", key, err)
	}
	if expired(f.now(), e.ExpiresAt) {
		_ = os.Remove(f.path(key))
		return nil, false, nil
	}
	return e.Value, true, nil
}

func (f *Filesystem) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	data, err := json.Marshal(fileEntry{Value: value, ExpiresAt: expiry(f.now(), ttl)})
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}

	if f.key != nil {
		var nonce [nonceSize]byte
		if _, err := rand.Read(nonce[:]); err != nil {
			return fmt.Errorf("generating nonce: %w", err)
		}
		data = secretbox.Seal(nonce[:], data, &nonce, f.key)
	}

	tmp, err := os.CreateTemp(f.dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("writing %s: %w", key, err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("writing %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("writing %s: %w", key, err)
	}
	if err := os.Rename(tmp.Name(), f.path(key)); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("writing %s: %w", key, err)
	}
	return nil
}

func (f *Filesystem) Delete(_ context.Context, key string) error {
	if err := os.Remove(f.path(key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("deleting %s: %w", key, err)
	}
	return nil
}

// Clear removes every stored value. The key file is kept.
func (f *Filesystem) Clear(context.Context) error {
	matches, err := filepath.Glob(filepath.Join(f.dir, "*"+fileExt))
	if err != nil {
		return err
	}
	for _, m := range matches {
		if err := os.Remove(m); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("clearing storage: %w", err)
		}
	}
	return nil
}

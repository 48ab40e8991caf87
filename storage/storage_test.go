package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func backends(t *testing.T) map[string]Backend {
	t.Helper()
	fsEncrypted, err := NewFilesystem(t.TempDir(), nil, true)
	require.NoError(t, err)
	fsPlain, err := NewFilesystem(t.TempDir(), nil, false)
	require.NoError(t, err)
	return map[string]Backend{
		"memory":               NewMemory(),
		"filesystem":           fsEncrypted,
		"filesystem plaintext": fsPlain,
	}
}

func TestBackendRoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, ok, err := b.Get(ctx, "missing")
			require.NoError(t, err)
			require.False(t, ok)

			require.NoError(t, b.Set(ctx, "cache:list_pets:abc", []byte(`{"a":1}`), 0))
			got, ok, err := b.Get(ctx, "cache:list_pets:abc")
			require.NoError(t, err)
			require.True(t, ok)
			require.Equal(t, `{"a":1}`, string(got))

			require.NoError(t, b.Delete(ctx, "cache:list_pets:abc"))
			_, ok, err = b.Get(ctx, "cache:list_pets:abc")
			require.NoError(t, err)
			require.False(t, ok)

			require.NoError(t, b.Set(ctx, "a", []byte("1"), 0))
			require.NoError(t, b.Set(ctx, "b/c", []byte("2"), 0))
			require.NoError(t, b.Clear(ctx))
			_, ok, _ = b.Get(ctx, "b/c")
			require.False(t, ok)
		})
	}
}

func TestBackendExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	mem := NewMemory()
	mem.now = clock
	fsb, err := NewFilesystem(t.TempDir(), nil, true)
	require.NoError(t, err)
	fsb.now = clock

	for name, b := range map[string]Backend{"memory": mem, "filesystem": fsb} {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, b.Set(ctx, "k", []byte("v"), time.Minute))
			_, ok, err := b.Get(ctx, "k")
			require.NoError(t, err)
			require.True(t, ok)

			now = now.Add(2 * time.Minute)
			_, ok, err = b.Get(ctx, "k")
			require.NoError(t, err)
			require.False(t, ok)
		})
	}
}

func TestFilesystemEncryptsAtRest(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	b, err := NewFilesystem(dir, nil, true)
	require.NoError(t, err)
	require.NoError(t, b.Set(ctx, "secret", []byte("access-token-value"), 0))

	files, err := filepath.Glob(filepath.Join(dir, "*"+fileExt))
	require.NoError(t, err)
	require.Len(t, files, 1)
	raw, err := os.ReadFile(files[0])
	require.NoError(t, err)
	require.NotContains(t, string(raw), "access-token-value")

	info, err := os.Stat(filepath.Join(dir, keyFile))
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0600), info.Mode().Perm())

	reopened, err := NewFilesystem(dir, nil, true)
	require.NoError(t, err)
	got, ok, err := reopened.Get(ctx, "secret")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "access-token-value", string(got))

	var other [KeySize]byte
	other[0] = 1
	wrongKey, err := NewFilesystem(dir, &other, true)
	require.NoError(t, err)
	_, _, err = wrongKey.Get(ctx, "secret")
	require.ErrorContains(t, err, "decryption failed")
}

func TestParseKey(t *testing.T) {
	_, err := ParseKey("not base64!")
	require.Error(t, err)
	_, err = ParseKey("c2hvcnQ=")
	require.ErrorContains(t, err, "must be 32 bytes")

	key, err := ParseKey(strings.Repeat("A", 43) + "=")
	require.NoError(t, err)
	require.Equal(t, [KeySize]byte{}, *key)
}

func TestOpen(t *testing.T) {
	b, err := Open(Config{Kind: KindMemory})
	require.NoError(t, err)
	require.IsType(t, &Memory{}, b)

	b, err = Open(Config{Kind: KindFilesystem, Dir: t.TempDir(), Plaintext: true})
	require.NoError(t, err)
	require.IsType(t, &Filesystem{}, b)

	_, err = Open(Config{Kind: "redis"})
	require.ErrorIs(t, err, ErrUnknownBackend)
}

type countingSource struct {
	calls int
	tok   *oauth2.Token
	err   error
}

func (c *countingSource) Token() (*oauth2.Token, error) {
	c.calls++
	return c.tok, c.err
}

func TestTokenSourcePersists(t *testing.T) {
	ctx := context.Background()
	backend := NewMemory()
	store := NewTokenStore(backend)

	src := &countingSource{tok: &oauth2.Token{AccessToken: "service-token", TokenType: "Bearer", Expiry: time.Now().Add(time.Hour)}}
	ts := store.TokenSource(ctx, "client-a", src, nil)

	tok, err := ts.Token()
	require.NoError(t, err)
	require.Equal(t, "service-token", tok.AccessToken)
	require.Equal(t, 1, src.calls)

	// A fresh source over the same backend, as after a restart.
	again := &countingSource{err: errors.New("should not be called")}
	tok, err = store.TokenSource(ctx, "client-a", again, nil).Token()
	require.NoError(t, err)
	require.Equal(t, "service-token", tok.AccessToken)
	require.Zero(t, again.calls)

	stored, err := store.Load(ctx, "client-a")
	require.NoError(t, err)
	require.Equal(t, "service-token", stored.AccessToken)

	require.NoError(t, store.Delete(ctx, "client-a"))
	stored, err = store.Load(ctx, "client-a")
	require.NoError(t, err)
	require.Nil(t, stored)
}

func TestTokenSourceRefreshesExpired(t *testing.T) {
	ctx := context.Background()
	store := NewTokenStore(NewMemory())
	require.NoError(t, store.Save(ctx, "client-a", &oauth2.Token{AccessToken: "old", Expiry: time.Now().Add(-time.Minute)}))

	src := &countingSource{tok: &oauth2.Token{AccessToken: "new", Expiry: time.Now().Add(time.Hour)}}
	tok, err := store.TokenSource(ctx, "client-a", src, nil).Token()
	require.NoError(t, err)
	require.Equal(t, "new", tok.AccessToken)
	require.Equal(t, 1, src.calls)
}

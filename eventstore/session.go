package eventstore

import (
	"context"
	"fmt"
	"iter"
	"sort"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// ErrTruncated is returned by SessionStore.After when events the client
// has not seen were already evicted. It wraps mcp.ErrEventsPurged.
var ErrTruncated = fmt.Errorf("resync required: %w", mcp.ErrEventsPurged)

var _ mcp.EventStore = (*SessionStore)(nil)

// SessionStore plugs a Store into the streamable HTTP transport. Each
// logical MCP stream maps to one Store stream keyed by StreamKey, and
// closing a session starts the grace period on all of its streams.
//
// The transport numbers events from 0; the Store numbers them from 1, so
// transport index i is Store id i+1.
type SessionStore struct {
	store    *Store
	sessions sync.Map // session id -> *sessionStreams
}

type sessionStreams struct {
	mu   sync.Mutex
	keys map[string]struct{}
}

// NewSessionStore wraps store.
func NewSessionStore(store *Store) *SessionStore {
	return &SessionStore{store: store}
}

// StreamKey names the Store stream behind one stream of one session.
func StreamKey(sessionID, streamID string) string {
	return sessionID + "/" + streamID
}

// Store returns the underlying store.
func (s *SessionStore) Store() *Store {
	return s.store
}

// Open implements mcp.EventStore.
func (s *SessionStore) Open(_ context.Context, sessionID, streamID string) error {
	key := s.track(sessionID, streamID)
	s.store.Open(key)
	return nil
}

// Append implements mcp.EventStore.
func (s *SessionStore) Append(_ context.Context, sessionID, streamID string, data []byte) error {
	key := s.track(sessionID, streamID)
	s.store.Append(key, data)
	return nil
}

// After implements mcp.EventStore. A truncated replay yields ErrTruncated
// and nothing else.
func (s *SessionStore) After(_ context.Context, sessionID, streamID string, index int) iter.Seq2[[]byte, error] {
	key := StreamKey(sessionID, streamID)
	return func(yield func([]byte, error) bool) {
		if _, ok := s.store.LastID(key); !ok {
			yield(nil, fmt.Errorf("unknown stream %q in session %q", streamID, sessionID))
			return
		}
		lastID := uint64(0)
		if index >= 0 {
			lastID = uint64(index) + 1
		}
		replay := s.store.ReplaySince(key, lastID)
		if replay.Truncated {
			yield(nil, fmt.Errorf("stream %q after index %d: %w", streamID, index, ErrTruncated))
			return
		}
		for _, evt := range replay.Events {
			if !yield(evt.Data, nil) {
				return
			}
		}
	}
}

// SessionClosed implements mcp.EventStore by closing every stream the
// session opened.
func (s *SessionStore) SessionClosed(_ context.Context, sessionID string) error {
	v, ok := s.sessions.LoadAndDelete(sessionID)
	if !ok {
		return nil
	}
	ss := v.(*sessionStreams)
	ss.mu.Lock()
	defer ss.mu.Unlock()
	for key := range ss.keys {
		s.store.Close(key)
	}
	return nil
}

// Streams returns the sorted store keys of a live session.
func (s *SessionStore) Streams(sessionID string) []string {
	v, ok := s.sessions.Load(sessionID)
	if !ok {
		return nil
	}
	ss := v.(*sessionStreams)
	ss.mu.Lock()
	defer ss.mu.Unlock()
	keys := make([]string, 0, len(ss.keys))
	for key := range ss.keys {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func (s *SessionStore) track(sessionID, streamID string) string {
	key := StreamKey(sessionID, streamID)
	v, _ := s.sessions.LoadOrStore(sessionID, &sessionStreams{keys: make(map[string]struct{})})
	ss := v.(*sessionStreams)
	ss.mu.Lock()
	ss.keys[key] = struct{}{}
	ss.mu.Unlock()
	return key
}

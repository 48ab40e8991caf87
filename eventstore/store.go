// Package eventstore keeps a bounded, per-stream history of server-sent
// events so that a client reconnecting with Last-Event-ID can be replayed
// what it missed.
//
// Streams are independent. Lookups go through a sync.Map and each stream
// serializes its own appends and replays, so traffic on one stream never
// waits on another.
package eventstore

import (
	"bytes"
	"log/slog"
	"sync"
	"time"
)

const (
	// DefaultMaxEvents is the per-stream retention cap.
	DefaultMaxEvents = 1000
	// DefaultGracePeriod is how long a closed stream stays resumable.
	DefaultGracePeriod = 5 * time.Minute
)

// Event is one message on a stream.
type Event struct {
	ID     uint64    `json:"id"`
	Stream string    `json:"stream"`
	Data   []byte    `json:"data"`
	Time   time.Time `json:"time"`
}

// Replay is the answer to a resumption request. Truncated is set when at
// least one event after the requested id has already been evicted; the
// client must then resynchronize instead of trusting Events as complete.
type Replay struct {
	Events    []Event
	Truncated bool
}

// Stats summarizes the store.
type Stats struct {
	Streams            int `json:"streams"`
	Events             int `json:"events"`
	MaxEventsPerStream int `json:"max_events_per_stream"`
}

// Option configures a Store.
type Option func(*Store)

// WithMaxEvents sets the per-stream retention cap.
func WithMaxEvents(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxEvents = n
		}
	}
}

// WithGracePeriod sets how long a closed stream waits before it is
// discarded. Zero discards immediately on Close.
func WithGracePeriod(d time.Duration) Option {
	return func(s *Store) {
		if d >= 0 {
			s.grace = d
		}
	}
}

// WithLogger sets the logger used for stream lifecycle messages.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Store is an in-memory event store. The zero value is not usable; call New.
type Store struct {
	streams   sync.Map // string -> *stream
	maxEvents int
	grace     time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

type stream struct {
	mu        sync.Mutex
	buf       *ringBuffer
	lastID    uint64
	closing   *time.Timer
	discarded bool
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		maxEvents: DefaultMaxEvents,
		grace:     DefaultGracePeriod,
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// MaxEvents returns the per-stream retention cap.
func (s *Store) MaxEvents() int {
	return s.maxEvents
}

// Open creates streamID if it does not exist yet and cancels a pending
// Close if it does.
func (s *Store) Open(streamID string) {
	for {
		st := s.stream(streamID)
		st.mu.Lock()
		if st.discarded {
			st.mu.Unlock()
			continue
		}
		st.cancelClose()
		st.mu.Unlock()
		return
	}
}

// Append records a copy of data on streamID and returns its id. Ids start
// at 1 and grow by one per stream. Appending to a closing stream resumes it.
func (s *Store) Append(streamID string, data []byte) uint64 {
	for {
		st := s.stream(streamID)
		st.mu.Lock()
		if st.discarded {
			st.mu.Unlock()
			continue
		}
		st.cancelClose()
		st.lastID++
		id := st.lastID
		st.buf.append(Event{ID: id, Stream: streamID, Data: bytes.Clone(data), Time: s.now()})
		st.mu.Unlock()
		return id
	}
}

// ReplaySince returns the retained events on streamID with an id above
// lastID. An unknown stream yields an empty, untruncated replay.
func (s *Store) ReplaySince(streamID string, lastID uint64) Replay {
	v, ok := s.streams.Load(streamID)
	if !ok {
		return Replay{}
	}
	st := v.(*stream)
	st.mu.Lock()
	defer st.mu.Unlock()

	if st.discarded || lastID >= st.lastID {
		return Replay{}
	}
	replay := Replay{Events: st.buf.since(lastID)}
	if oldest, ok := st.buf.oldest(); ok && oldest.ID > lastID+1 {
		replay.Truncated = true
	}
	return replay
}

// LastID returns the newest id assigned on streamID.
func (s *Store) LastID(streamID string) (uint64, bool) {
	v, ok := s.streams.Load(streamID)
	if !ok {
		return 0, false
	}
	st := v.(*stream)
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.discarded {
		return 0, false
	}
	return st.lastID, true
}

// Close marks streamID as disconnected. Its history is discarded once the
// grace period passes unless Resume or Append happens first.
func (s *Store) Close(streamID string) {
	v, ok := s.streams.Load(streamID)
	if !ok {
		return
	}
	st := v.(*stream)
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.discarded {
		return
	}
	st.cancelClose()

	if s.grace == 0 {
		s.discard(streamID, st)
		return
	}
	var timer *time.Timer
	timer = time.AfterFunc(s.grace, func() {
		st.mu.Lock()
		defer st.mu.Unlock()
		if st.closing != timer {
			return
		}
		s.discard(streamID, st)
	})
	st.closing = timer
}

// Resume cancels a pending Close. It reports whether the stream still exists.
func (s *Store) Resume(streamID string) bool {
	v, ok := s.streams.Load(streamID)
	if !ok {
		return false
	}
	st := v.(*stream)
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.discarded {
		return false
	}
	st.cancelClose()
	return true
}

// Stats counts live streams and retained events.
func (s *Store) Stats() Stats {
	stats := Stats{MaxEventsPerStream: s.maxEvents}
	s.streams.Range(func(_, v any) bool {
		st := v.(*stream)
		st.mu.Lock()
		if !st.discarded {
			stats.Streams++
			stats.Events += st.buf.count
		}
		st.mu.Unlock()
		return true
	})
	return stats
}

func (s *Store) stream(streamID string) *stream {
	if v, ok := s.streams.Load(streamID); ok {
		return v.(*stream)
	}
	v, loaded := s.streams.LoadOrStore(streamID, &stream{buf: newRingBuffer(s.maxEvents)})
	if !loaded {
		s.logger.Debug("stream opened", "stream", streamID)
	}
	return v.(*stream)
}

// discard must be called with st.mu held.
func (s *Store) discard(streamID string, st *stream) {
	st.discarded = true
	st.closing = nil
	s.streams.CompareAndDelete(streamID, st)
	s.logger.Debug("stream discarded", "stream", streamID, "last_id", st.lastID)
}

func (st *stream) cancelClose() {
	if st.closing != nil {
		st.closing.Stop()
		st.closing = nil
	}
}

package eventstore

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func ids(events []Event) []uint64 {
	out := make([]uint64, len(events))
	for i, e := range events {
		out[i] = e.ID
	}
	return out
}

func TestAppendAssignsSequentialIDsPerStream(t *testing.T) {
	s := New()
	require.Equal(t, uint64(1), s.Append("a", []byte("x")))
	require.Equal(t, uint64(2), s.Append("a", []byte("y")))
	require.Equal(t, uint64(1), s.Append("b", []byte("z")))

	last, ok := s.LastID("a")
	require.True(t, ok)
	require.Equal(t, uint64(2), last)
}

func TestAppendCopiesData(t *testing.T) {
	s := New()
	buf := []byte("first")
	s.Append("a", buf)
	copy(buf, "XXXXX")

	replay := s.ReplaySince("a", 0)
	require.Len(t, replay.Events, 1)
	require.Equal(t, "first", string(replay.Events[0].Data))
}

func TestOpenCreatesAndResumes(t *testing.T) {
	s := New(WithGracePeriod(50 * time.Millisecond))
	s.Open("a")
	last, ok := s.LastID("a")
	require.True(t, ok)
	require.Zero(t, last)

	s.Close("a")
	s.Open("a")
	time.Sleep(100 * time.Millisecond)
	_, ok = s.LastID("a")
	require.True(t, ok)
}

func TestReplaySinceTruncatedAfterEviction(t *testing.T) {
	s := New(WithMaxEvents(3))
	for i := 1; i <= 5; i++ {
		s.Append("s1", []byte(fmt.Sprint(i)))
	}

	replay := s.ReplaySince("s1", 1)
	require.True(t, replay.Truncated)
	require.Equal(t, []uint64{3, 4, 5}, ids(replay.Events))
}

func TestReplaySince(t *testing.T) {
	s := New(WithMaxEvents(3))
	for i := 1; i <= 5; i++ {
		s.Append("s1", []byte(fmt.Sprint(i)))
	}

	tests := []struct {
		name      string
		stream    string
		lastID    uint64
		want      []uint64
		truncated bool
	}{
		{name: "from start", stream: "s1", lastID: 0, want: []uint64{3, 4, 5}, truncated: true},
		{name: "just before oldest", stream: "s1", lastID: 2, want: []uint64{3, 4, 5}},
		{name: "middle", stream: "s1", lastID: 4, want: []uint64{5}},
		{name: "up to date", stream: "s1", lastID: 5},
		{name: "ahead", stream: "s1", lastID: 9},
		{name: "unknown stream", stream: "nope", lastID: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			replay := s.ReplaySince(tt.stream, tt.lastID)
			require.Equal(t, tt.truncated, replay.Truncated)
			if tt.want == nil {
				require.Empty(t, replay.Events)
				return
			}
			require.Equal(t, tt.want, ids(replay.Events))
		})
	}
}

func TestCloseDiscardsAfterGrace(t *testing.T) {
	s := New(WithGracePeriod(10 * time.Millisecond))
	s.Append("s1", []byte("x"))
	s.Close("s1")

	require.Eventually(t, func() bool {
		_, ok := s.LastID("s1")
		return !ok
	}, time.Second, 5*time.Millisecond)
	require.Equal(t, 0, s.Stats().Streams)
}

func TestCloseImmediateWithZeroGrace(t *testing.T) {
	s := New(WithGracePeriod(0))
	s.Append("s1", []byte("x"))
	s.Close("s1")
	require.False(t, s.Resume("s1"))

	require.Equal(t, uint64(1), s.Append("s1", []byte("again")))
}

func TestResumeCancelsClose(t *testing.T) {
	s := New(WithGracePeriod(20 * time.Millisecond))
	s.Append("s1", []byte("x"))
	s.Close("s1")
	require.True(t, s.Resume("s1"))

	time.Sleep(50 * time.Millisecond)
	last, ok := s.LastID("s1")
	require.True(t, ok)
	require.Equal(t, uint64(1), last)
}

func TestStats(t *testing.T) {
	s := New(WithMaxEvents(2))
	for range 3 {
		s.Append("a", nil)
	}
	s.Append("b", nil)

	require.Equal(t, Stats{Streams: 2, Events: 3, MaxEventsPerStream: 2}, s.Stats())
}

func TestConcurrentAppendKeepsIDsUnique(t *testing.T) {
	s := New(WithMaxEvents(10000))
	const writers, perWriter = 8, 200

	var wg sync.WaitGroup
	var mu sync.Mutex
	seen := make(map[uint64]bool)
	for range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range perWriter {
				id := s.Append("shared", nil)
				mu.Lock()
				seen[id] = true
				mu.Unlock()
				s.ReplaySince("shared", id)
			}
		}()
	}
	wg.Wait()

	require.Len(t, seen, writers*perWriter)
	last, _ := s.LastID("shared")
	require.Equal(t, uint64(writers*perWriter), last)
}

func TestRingBufferRejectsReusedID(t *testing.T) {
	r := newRingBuffer(2)
	r.append(Event{ID: 1})
	require.Panics(t, func() { r.append(Event{ID: 1}) })
}

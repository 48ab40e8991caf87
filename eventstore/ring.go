package eventstore

import "fmt"

type ringBuffer struct {
	items []Event
	size  int
	count int
	head  int
}

// newRingBuffer allocates a fixed-size circular buffer for events.
func newRingBuffer(size int) *ringBuffer {
	if size <= 0 {
		size = 1
	}
	return &ringBuffer{
		items: make([]Event, size),
		size:  size,
	}
}

// append pushes an event, evicting the oldest when capacity is reached.
// Ids must strictly increase.
func (r *ringBuffer) append(evt Event) {
	if newest, ok := r.newest(); ok && evt.ID <= newest.ID {
		panic(fmt.Sprintf("eventstore: event id %d reused on stream %q (newest %d)", evt.ID, evt.Stream, newest.ID))
	}

	if r.count < r.size {
		idx := (r.head + r.count) % r.size
		r.items[idx] = evt
		r.count++
		return
	}

	r.items[r.head] = evt
	r.head = (r.head + 1) % r.size
}

func (r *ringBuffer) oldest() (Event, bool) {
	if r.count == 0 {
		return Event{}, false
	}
	return r.items[r.head], true
}

func (r *ringBuffer) newest() (Event, bool) {
	if r.count == 0 {
		return Event{}, false
	}
	return r.items[(r.head+r.count-1)%r.size], true
}

// since returns the retained events with an id above lastID, oldest first.
func (r *ringBuffer) since(lastID uint64) []Event {
	var out []Event
	for i := 0; i < r.count; i++ {
		evt := r.items[(r.head+i)%r.size]
		if evt.ID > lastID {
			out = append(out, evt)
		}
	}
	return out
}

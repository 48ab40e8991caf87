package eventstore

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
)

// LastEventIDHeader carries the id of the newest event a client received.
const LastEventIDHeader = "Last-Event-ID"

// Handler replays a stream over server-sent events.
//
//	GET ?stream=<id>  with an optional Last-Event-ID header
//
// A truncated replay is answered with 409 Conflict and
// {"error":"resync_required"} so the client starts over instead of
// silently missing events.
func Handler(store *Store) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			writeError(w, http.StatusMethodNotAllowed, "method_not_allowed")
			return
		}

		streamID := r.URL.Query().Get("stream")
		if streamID == "" {
			writeError(w, http.StatusBadRequest, "stream_required")
			return
		}

		var lastID uint64
		if h := r.Header.Get(LastEventIDHeader); h != "" {
			id, err := strconv.ParseUint(h, 10, 64)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_last_event_id")
				return
			}
			lastID = id
		}

		replay := store.ReplaySince(streamID, lastID)
		if replay.Truncated {
			writeError(w, http.StatusConflict, "resync_required")
			return
		}
		store.Resume(streamID)

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.WriteHeader(http.StatusOK)
		for _, evt := range replay.Events {
			writeEvent(w, evt)
		}
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
	})
}

func writeEvent(w http.ResponseWriter, evt Event) {
	fmt.Fprintf(w, "id: %d\n", evt.ID)
	for _, line := range bytes.Split(evt.Data, []byte("\n")) {
		fmt.Fprintf(w, "data: %s\n", line)
	}
	fmt.Fprint(w, "\n")
}

func writeError(w http.ResponseWriter, status int, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": code})
}

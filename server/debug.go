// ABOUTME: DEBUG-gated diagnostics: room statistics dump and a per-board event firehose.
// ABOUTME: litter renders the stats; both routes 404 unless DEBUG is set.
package server

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/sanity-io/litter"
)

// handleDebugRooms handles GET /api/debug/rooms. Hidden unless the DEBUG
// environment variable is set, since member counts and board IDs are
// operational details.
func (s *Server) handleDebugRooms(w http.ResponseWriter, r *http.Request) {
	if os.Getenv("DEBUG") == "" {
		http.NotFound(w, r)
		return
	}
	if _, err := s.auth.IdentityFromRequest(r); err != nil {
		writeError(w, http.StatusUnauthorized, err)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, litter.Sdump(s.hub.Stats()))
	_, _ = io.WriteString(w, "\n")
}

// handleDebugFirehose handles GET /api/debug/boards/{boardID}/events: an SSE
// stream of every event the board's room sees, with no origin exclusion, so
// frames that member fan-out suppresses are still visible. The tap does not
// keep the room alive; the stream ends when the last member leaves.
func (s *Server) handleDebugFirehose(w http.ResponseWriter, r *http.Request) {
	if os.Getenv("DEBUG") == "" {
		http.NotFound(w, r)
		return
	}
	if _, err := s.auth.IdentityFromRequest(r); err != nil {
		writeError(w, http.StatusUnauthorized, err)
		return
	}
	boardID, err := boardIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	events, cancel, err := s.hub.Tap(boardID)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}
	flusher.Flush()

	heartbeat := time.NewTicker(sseHeartbeatInterval)
	defer heartbeat.Stop()

	ctx := r.Context()
	for {
		select {
		case ev, open := <-events:
			if !open {
				// Room reaped: last member left.
				return
			}
			writeSSE(w, camelToKebab(ev.Payload.EventPayloadType()), ev)
			flusher.Flush()

		case <-heartbeat.C:
			_, _ = fmt.Fprint(w, ":heartbeat\n\n")
			flusher.Flush()

		case <-ctx.Done():
			return
		}
	}
}

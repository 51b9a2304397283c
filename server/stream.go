// ABOUTME: Per-connection SSE stream: hello frame, snapshot, then live room events.
// ABOUTME: Kebab-case event names from payload types; comment heartbeats keep proxies awake.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"

	"github.com/2389-research/huddle/hub"
)

// sseHeartbeatInterval is how often the stream sends keep-alive comments.
const sseHeartbeatInterval = 15 * time.Second

// helloFrame opens every stream. The client echoes ConnID in its command
// envelopes so the room can skip this connection on fan-out.
type helloFrame struct {
	ConnID  string    `json:"conn_id"`
	BoardID ulid.ULID `json:"board_id"`
}

// handleStream handles GET /api/boards/{boardID}/stream. Joining the room
// precedes the snapshot read, so anything committed in between is also
// waiting on the subscription channel; replicas absorb the overlap because
// event application is idempotent.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	id, err := s.auth.IdentityFromRequest(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err)
		return
	}
	boardID, err := boardIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if _, err := s.store.GetBoard(r.Context(), boardID); err != nil {
		writeError(w, statusForError(err), err)
		return
	}

	connID := uuid.NewString()
	sub, err := s.hub.Join(r.Context(), boardID, connID, id)
	if err != nil {
		if errors.Is(err, hub.ErrHubClosed) {
			writeError(w, http.StatusServiceUnavailable, err)
			return
		}
		writeAccessError(w, err)
		return
	}
	defer sub.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	log := s.log.WithFields(logrus.Fields{
		"board_id": boardID,
		"conn_id":  connID,
		"user_id":  id.UserID,
	})
	log.Info("stream opened")

	writeSSE(w, "hello", helloFrame{ConnID: connID, BoardID: boardID})
	flusher.Flush()

	snap, err := s.store.Snapshot(r.Context(), boardID)
	if err != nil {
		log.WithError(err).Error("snapshot for stream failed")
		return
	}
	writeSSE(w, "snapshot", snap)
	flusher.Flush()

	heartbeat := time.NewTicker(sseHeartbeatInterval)
	defer heartbeat.Stop()

	ctx := r.Context()
	for {
		select {
		case ev, open := <-sub.Events:
			if !open {
				// Membership ended, e.g. hub shutdown or a replacement join.
				log.Info("stream closed by hub")
				return
			}
			writeSSE(w, camelToKebab(ev.Payload.EventPayloadType()), ev)
			flusher.Flush()

		case <-heartbeat.C:
			_, _ = fmt.Fprint(w, ":heartbeat\n\n")
			flusher.Flush()

		case <-ctx.Done():
			log.Info("stream closed by client")
			return
		}
	}
}

// writeSSE writes one named SSE frame. A marshal failure drops the frame;
// the stream itself stays up.
func writeSSE(w io.Writer, name string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	_, _ = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, data)
}

// camelToKebab converts a CamelCase payload type to its kebab-case wire
// name, e.g. NoteMoved to note-moved.
func camelToKebab(s string) string {
	var result strings.Builder
	for i, r := range s {
		if unicode.IsUpper(r) {
			if i > 0 {
				result.WriteByte('-')
			}
			result.WriteRune(unicode.ToLower(r))
		} else {
			result.WriteRune(r)
		}
	}
	return result.String()
}

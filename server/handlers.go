// ABOUTME: HTTP handlers for board CRUD, the command endpoint, membership, and export.
// ABOUTME: Commands run store-first, then journal, then room fan-out, then respond.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/go-chi/chi/v5"
	"github.com/oklog/ulid/v2"

	"github.com/2389-research/huddle/core"
	"github.com/2389-research/huddle/export"
	"github.com/2389-research/huddle/hub"
)

// maxBodyBytes caps request bodies. A retro note is never this big.
const maxBodyBytes = 1 << 20

type errorResponse struct {
	Error string `json:"error"`
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

// writeAccessError maps authorization failures: denials are 403, the rest 500.
func writeAccessError(w http.ResponseWriter, err error) {
	var denied *hub.DeniedError
	if errors.As(err, &denied) {
		writeError(w, http.StatusForbidden, err)
		return
	}
	writeError(w, http.StatusInternalServerError, err)
}

// statusForError maps store and core errors onto HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, core.ErrEmptyContent),
		errors.Is(err, core.ErrEmptyTitle),
		errors.Is(err, core.ErrNoopMove),
		errors.Is(err, core.ErrInvalidIntent):
		return http.StatusBadRequest
	case core.IsNotFound(err):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// decodeBody decodes a size-capped JSON request body into v.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := sonic.ConfigStd.NewDecoder(body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// boardIDParam parses the {boardID} route parameter.
func boardIDParam(r *http.Request) (ulid.ULID, error) {
	boardID, err := ulid.Parse(chi.URLParam(r, "boardID"))
	if err != nil {
		return ulid.ULID{}, fmt.Errorf("invalid board ID: %w", err)
	}
	return boardID, nil
}

// handleHealth returns a JSON health check response.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleCreateBoard handles POST /api/boards.
func (s *Server) handleCreateBoard(w http.ResponseWriter, r *http.Request) {
	id, err := s.auth.IdentityFromRequest(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err)
		return
	}

	var req struct {
		Title string `json:"title"`
	}
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid body: %w", err))
		return
	}

	board, err := s.store.CreateBoard(r.Context(), req.Title, id.UserID)
	if err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, board)
}

// handleListBoards handles GET /api/boards.
func (s *Server) handleListBoards(w http.ResponseWriter, r *http.Request) {
	if _, err := s.auth.IdentityFromRequest(r); err != nil {
		writeError(w, http.StatusUnauthorized, err)
		return
	}

	boards, err := s.store.ListBoards(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, boards)
}

// handleGetBoard handles GET /api/boards/{boardID}. The snapshot it returns
// is the bootstrap and resync source for replicas, so it carries the full
// column and note sets in visual order.
func (s *Server) handleGetBoard(w http.ResponseWriter, r *http.Request) {
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
	if err := s.canAccess(r.Context(), id, boardID); err != nil {
		writeAccessError(w, err)
		return
	}

	snap, err := s.store.Snapshot(r.Context(), boardID)
	if err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// handleCommands handles POST /api/boards/{boardID}/commands. One command
// per request. The response carries the broadcast event so the submitter
// gets its confirmation even though the room skips its stream connection.
func (s *Server) handleCommands(w http.ResponseWriter, r *http.Request) {
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
	if err := s.canAccess(r.Context(), id, boardID); err != nil {
		writeAccessError(w, err)
		return
	}

	var env core.CommandEnvelope
	if err := decodeBody(w, r, &env); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid body: %w", err))
		return
	}

	ctx := r.Context()
	if env.IdempotencyKey != "" {
		fresh, err := s.dedupe.Add(ctx, boardID, env.IdempotencyKey)
		if err != nil {
			writeError(w, http.StatusInternalServerError, fmt.Errorf("dedupe: %w", err))
			return
		}
		if !fresh {
			writeJSON(w, http.StatusOK, map[string]bool{"duplicate": true})
			return
		}
	}

	ev, err := s.applyCommand(ctx, boardID, id, env)
	if err != nil {
		if env.IdempotencyKey != "" {
			if rmErr := s.dedupe.Remove(ctx, boardID, env.IdempotencyKey); rmErr != nil {
				s.log.WithError(rmErr).Warn("failed to release idempotency key")
			}
		}
		writeError(w, statusForError(err), err)
		return
	}

	s.hub.Publish(boardID, ev)
	writeJSON(w, http.StatusOK, map[string]any{"event": ev})
}

// handleExport handles GET /api/boards/{boardID}/export?format=markdown|html|yaml.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
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
	if err := s.canAccess(r.Context(), id, boardID); err != nil {
		writeAccessError(w, err)
		return
	}

	snap, err := s.store.Snapshot(r.Context(), boardID)
	if err != nil {
		writeError(w, statusForError(err), err)
		return
	}

	format := r.URL.Query().Get("format")
	if format == "" {
		format = "markdown"
	}

	switch format {
	case "markdown":
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		_, _ = io.WriteString(w, export.ExportMarkdown(snap))
	case "html":
		html, err := export.ExportHTML(snap)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = io.WriteString(w, html)
	case "yaml":
		doc, err := export.ExportYAML(snap)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		w.Header().Set("Content-Type", "application/yaml")
		_, _ = io.WriteString(w, doc)
	default:
		writeError(w, http.StatusBadRequest, fmt.Errorf("unknown export format %q", format))
	}
}

// handleGrantMember handles POST /api/boards/{boardID}/members. The first
// grant flips an open board private, so callers granting anyone should
// include themselves or lose access on their next request.
func (s *Server) handleGrantMember(w http.ResponseWriter, r *http.Request) {
	id, err := s.auth.IdentityFromRequest(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err)
		return
	}
	if s.members == nil {
		writeError(w, http.StatusNotImplemented, errors.New("membership registry not configured"))
		return
	}
	boardID, err := boardIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.canAccess(r.Context(), id, boardID); err != nil {
		writeAccessError(w, err)
		return
	}
	if _, err := s.store.GetBoard(r.Context(), boardID); err != nil {
		writeError(w, statusForError(err), err)
		return
	}

	var req struct {
		UserID string `json:"user_id"`
	}
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid body: %w", err))
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		writeError(w, http.StatusBadRequest, errors.New("user_id must not be empty"))
		return
	}

	if err := s.members.Grant(r.Context(), boardID, req.UserID); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleRevokeMember handles DELETE /api/boards/{boardID}/members/{userID}.
func (s *Server) handleRevokeMember(w http.ResponseWriter, r *http.Request) {
	id, err := s.auth.IdentityFromRequest(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err)
		return
	}
	if s.members == nil {
		writeError(w, http.StatusNotImplemented, errors.New("membership registry not configured"))
		return
	}
	boardID, err := boardIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.canAccess(r.Context(), id, boardID); err != nil {
		writeAccessError(w, err)
		return
	}

	userID := chi.URLParam(r, "userID")
	if err := s.members.Revoke(r.Context(), boardID, userID); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ABOUTME: Translates posted commands into store mutations and broadcast events.
// ABOUTME: Mutations journal after commit; presence commands publish without persisting.
package server

import (
	"context"
	"fmt"

	"github.com/oklog/ulid/v2"

	"github.com/2389-research/huddle/core"
	"github.com/2389-research/huddle/hub"
	"github.com/2389-research/huddle/store"
)

// applyCommand runs one command against the store and wraps the outcome in
// an event stamped with the submitting identity and connection. The store
// commit happens before the event exists, so confirmed values in the
// payload are authoritative and broadcast safely as-is.
func (s *Server) applyCommand(ctx context.Context, boardID ulid.ULID, id hub.Identity, env core.CommandEnvelope) (core.Event, error) {
	if env.Command == nil {
		return core.Event{}, fmt.Errorf("command envelope missing command")
	}

	var payload core.EventPayload

	switch cmd := env.Command.(type) {
	case core.CreateNoteCommand:
		note, err := s.store.CreateNote(ctx, boardID, store.CreateNoteParams{
			Content:  cmd.Content,
			Color:    cmd.Color,
			Author:   id.UserID,
			ColumnID: cmd.ColumnID,
		})
		if err != nil {
			return core.Event{}, err
		}
		payload = core.NoteCreatedPayload{Note: note}

	case core.UpdateNoteCommand:
		note, err := s.store.UpdateNote(ctx, boardID, cmd.NoteID, store.UpdateNoteParams{
			Content: cmd.Content,
			Color:   cmd.Color,
			Editor:  id.UserID,
		})
		if err != nil {
			return core.Event{}, err
		}
		payload = core.NoteUpdatedPayload{
			NoteID:   note.NoteID,
			Content:  cmd.Content,
			Color:    cmd.Color,
			EditedBy: note.EditedBy,
		}

	case core.MoveNoteCommand:
		res, err := s.store.MoveNote(ctx, boardID, cmd.NoteID, cmd.Intent)
		if err != nil {
			return core.Event{}, err
		}
		payload = core.NoteMovedPayload{
			NoteID:         res.Note.NoteID,
			ColumnID:       res.Note.ColumnID,
			ConfirmedOrder: res.Placement.Order,
			Renumbered:     res.Placement.Renumbered,
		}

	case core.DeleteNoteCommand:
		if err := s.store.DeleteNote(ctx, boardID, cmd.NoteID); err != nil {
			return core.Event{}, err
		}
		payload = core.NoteDeletedPayload{NoteID: cmd.NoteID}

	case core.CreateColumnCommand:
		col, err := s.store.CreateColumn(ctx, boardID, cmd.Title, cmd.Color)
		if err != nil {
			return core.Event{}, err
		}
		payload = core.ColumnCreatedPayload{Column: col}

	case core.RenameColumnCommand:
		col, err := s.store.RenameColumn(ctx, boardID, cmd.ColumnID, cmd.Title)
		if err != nil {
			return core.Event{}, err
		}
		payload = core.ColumnRenamedPayload{ColumnID: col.ColumnID, Title: col.Title}

	case core.DeleteColumnCommand:
		orphaned, err := s.store.DeleteColumn(ctx, boardID, cmd.ColumnID)
		if err != nil {
			return core.Event{}, err
		}
		payload = core.ColumnDeletedPayload{ColumnID: cmd.ColumnID, Orphaned: orphaned}

	case core.StartEditingCommand:
		payload = core.EditingStartPayload{NoteID: cmd.NoteID, UserID: id.UserID, UserName: id.Name}

	case core.StopEditingCommand:
		payload = core.EditingStopPayload{NoteID: cmd.NoteID, UserID: id.UserID, UserName: id.Name}

	default:
		return core.Event{}, fmt.Errorf("unsupported command type %q", env.Command.CommandType())
	}

	ev := core.NewEvent(boardID, id.UserID, env.ConnID, payload)

	if s.journal != nil && isMutation(ev.Payload) {
		if err := s.journal.Append(&ev); err != nil {
			// The store already committed; failing the request now would make
			// the client retry a mutation that happened. Log and move on.
			s.log.WithError(err).WithField("board_id", boardID).Error("journal append failed")
		}
	}
	return ev, nil
}

// isMutation reports whether the payload belongs in the board's mutation
// journal. Presence traffic is ephemeral and never persisted.
func isMutation(p core.EventPayload) bool {
	switch p.(type) {
	case core.UserConnectedPayload, core.UserDisconnectedPayload,
		core.EditingStartPayload, core.EditingStopPayload:
		return false
	default:
		return true
	}
}

// ABOUTME: BoardState is the materialized content of one board, folded from events.
// ABOUTME: The Apply reducer is idempotent and reports unknown references for stale detection.
package core

import (
	"fmt"

	"github.com/oklog/ulid/v2"
)

// BoardState holds one board's columns and notes. It is the shared reducer
// target for the server's materializer and for client replicas. Methods are
// not safe for concurrent use; owners serialize access.
type BoardState struct {
	Board   Board
	Columns map[ulid.ULID]Column
	Notes   map[ulid.ULID]Note
}

// NewBoardState creates an empty state for the given board.
func NewBoardState(board Board) *BoardState {
	return &BoardState{
		Board:   board,
		Columns: make(map[ulid.ULID]Column),
		Notes:   make(map[ulid.ULID]Note),
	}
}

// StateFromSnapshot materializes a snapshot into a fresh BoardState.
func StateFromSnapshot(snap Snapshot) *BoardState {
	s := NewBoardState(snap.Board)
	for _, c := range snap.Columns {
		s.Columns[c.ColumnID] = c
	}
	for _, n := range snap.Notes {
		s.Notes[n.NoteID] = n
	}
	return s
}

// Clone returns a deep copy of the state.
func (s *BoardState) Clone() *BoardState {
	c := NewBoardState(s.Board)
	for id, col := range s.Columns {
		c.Columns[id] = col
	}
	for id, n := range s.Notes {
		cp := n
		cp.ColumnID = CloneContainerRef(n.ColumnID)
		cp.EditedBy = append([]string{}, n.EditedBy...)
		c.Notes[id] = cp
	}
	return c
}

// OrderedColumns returns the board's columns sorted by display position.
func (s *BoardState) OrderedColumns() []Column {
	cols := make([]Column, 0, len(s.Columns))
	for _, c := range s.Columns {
		cols = append(cols, c)
	}
	SortColumns(cols)
	return cols
}

// ContainerNotes returns the notes of one container in visual order. A nil
// columnID addresses the unassigned pool.
func (s *BoardState) ContainerNotes(columnID *ulid.ULID) []Note {
	var notes []Note
	for _, n := range s.Notes {
		if SameContainer(n.ColumnID, columnID) {
			notes = append(notes, n)
		}
	}
	SortNotes(notes)
	return notes
}

// Snapshot flattens the state into a deterministic wire snapshot: columns in
// display order, then each column's notes in visual order, with the
// unassigned pool last.
func (s *BoardState) Snapshot() Snapshot {
	cols := s.OrderedColumns()
	notes := make([]Note, 0, len(s.Notes))
	for _, c := range cols {
		id := c.ColumnID
		notes = append(notes, s.ContainerNotes(&id)...)
	}
	notes = append(notes, s.ContainerNotes(nil)...)
	return Snapshot{Board: s.Board, Columns: cols, Notes: notes}
}

// Apply folds a single event into the state. Re-applying an already-folded
// event leaves the state unchanged, which lets joiners overlap a snapshot
// with buffered events safely.
//
// Mutations referencing a note or column this state has never seen return a
// not-found error; replicas treat that as proof they missed events and must
// resync. Deletes of unknown entities and presence events are no-ops.
func (s *BoardState) Apply(event *Event) error {
	switch p := event.Payload.(type) {
	case NoteCreatedPayload:
		s.Notes[p.Note.NoteID] = p.Note

	case NoteUpdatedPayload:
		note, ok := s.Notes[p.NoteID]
		if !ok {
			return &NoteNotFoundError{NoteID: p.NoteID}
		}
		changed := false
		if p.Content != nil && note.Content != *p.Content {
			note.Content = *p.Content
			changed = true
		}
		if p.Color != nil && note.Color != *p.Color {
			note.Color = *p.Color
			changed = true
		}
		if p.EditedBy != nil && !sameStrings(note.EditedBy, p.EditedBy) {
			note.EditedBy = append([]string{}, p.EditedBy...)
			changed = true
		}
		if changed {
			note.UpdatedAt = event.Timestamp
			s.Notes[p.NoteID] = note
		}

	case NoteMovedPayload:
		note, ok := s.Notes[p.NoteID]
		if !ok {
			return &NoteNotFoundError{NoteID: p.NoteID}
		}
		changed := false
		for _, a := range p.Renumbered {
			sib, ok := s.Notes[a.NoteID]
			if !ok {
				return &NoteNotFoundError{NoteID: a.NoteID}
			}
			if sib.Order != a.Order {
				sib.Order = a.Order
				s.Notes[a.NoteID] = sib
				changed = true
			}
		}
		// Re-read: the moved note may itself appear in Renumbered.
		note = s.Notes[p.NoteID]
		if !SameContainer(note.ColumnID, p.ColumnID) || note.Order != p.ConfirmedOrder {
			note.ColumnID = CloneContainerRef(p.ColumnID)
			note.Order = p.ConfirmedOrder
			changed = true
		}
		if changed {
			note.UpdatedAt = event.Timestamp
			s.Notes[p.NoteID] = note
		}

	case NoteDeletedPayload:
		delete(s.Notes, p.NoteID)

	case ColumnCreatedPayload:
		s.Columns[p.Column.ColumnID] = p.Column

	case ColumnRenamedPayload:
		col, ok := s.Columns[p.ColumnID]
		if !ok {
			return &ColumnNotFoundError{ColumnID: p.ColumnID}
		}
		if col.Title != p.Title {
			col.Title = p.Title
			col.UpdatedAt = event.Timestamp
			s.Columns[p.ColumnID] = col
		}

	case ColumnDeletedPayload:
		delete(s.Columns, p.ColumnID)
		for _, a := range p.Orphaned {
			note, ok := s.Notes[a.NoteID]
			if !ok {
				continue
			}
			note.ColumnID = nil
			note.Order = a.Order
			note.UpdatedAt = event.Timestamp
			s.Notes[a.NoteID] = note
		}
		// Sweep stragglers the orphan list missed so no note points at a
		// column that no longer exists.
		for id, note := range s.Notes {
			if note.ColumnID != nil && *note.ColumnID == p.ColumnID {
				note.ColumnID = nil
				note.UpdatedAt = event.Timestamp
				s.Notes[id] = note
			}
		}

	case UserConnectedPayload, UserDisconnectedPayload,
		EditingStartPayload, EditingStopPayload:
		// Presence only, no content effect.

	default:
		return fmt.Errorf("unknown event payload %T", event.Payload)
	}
	return nil
}

// sameStrings reports element-wise equality.
func sameStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

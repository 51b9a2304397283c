// ABOUTME: MoveIntent is the neighbor-relative directive describing where a note lands.
// ABOUTME: ResolveMove converts raw drag-drop gestures into intents, correcting for index shift.
package core

import (
	"fmt"

	"github.com/oklog/ulid/v2"
)

// EdgePosition addresses a container boundary rather than a sibling note.
type EdgePosition string

const (
	EdgeStart EdgePosition = "start"
	EdgeEnd   EdgePosition = "end"
)

// MoveIntent describes where a note should land inside a target container,
// relative to the notes already there. Exactly one of AfterNoteID,
// BeforeNoteID, or Edge is set. A nil ColumnID targets the unassigned pool.
//
// Intents survive concurrent edits better than absolute indexes: the anchor
// note pins the insertion point even when other notes have moved since the
// gesture was made.
type MoveIntent struct {
	ColumnID     *ulid.ULID    `json:"column_id,omitempty"`
	AfterNoteID  *ulid.ULID    `json:"after_note_id,omitempty"`
	BeforeNoteID *ulid.ULID    `json:"before_note_id,omitempty"`
	Edge         *EdgePosition `json:"edge,omitempty"`
}

// InsertAfter builds an intent placing the note directly after anchor.
func InsertAfter(columnID *ulid.ULID, anchor ulid.ULID) MoveIntent {
	a := anchor
	return MoveIntent{ColumnID: CloneContainerRef(columnID), AfterNoteID: &a}
}

// InsertBefore builds an intent placing the note directly before anchor.
func InsertBefore(columnID *ulid.ULID, anchor ulid.ULID) MoveIntent {
	a := anchor
	return MoveIntent{ColumnID: CloneContainerRef(columnID), BeforeNoteID: &a}
}

// InsertAt builds an intent placing the note at a container edge.
func InsertAt(columnID *ulid.ULID, edge EdgePosition) MoveIntent {
	e := edge
	return MoveIntent{ColumnID: CloneContainerRef(columnID), Edge: &e}
}

// Validate checks that exactly one directive is set and the edge, if any,
// names a known position.
func (m MoveIntent) Validate() error {
	set := 0
	if m.AfterNoteID != nil {
		set++
	}
	if m.BeforeNoteID != nil {
		set++
	}
	if m.Edge != nil {
		set++
		if *m.Edge != EdgeStart && *m.Edge != EdgeEnd {
			return fmt.Errorf("%w: unknown edge %q", ErrInvalidIntent, *m.Edge)
		}
	}
	if set != 1 {
		return fmt.Errorf("%w: %d directives set, want exactly 1", ErrInvalidIntent, set)
	}
	return nil
}

// DropTarget identifies what a drag gesture was released over: a sibling
// note inside a container, or the body of the container itself.
type DropTarget struct {
	ColumnID *ulid.ULID
	NoteID   *ulid.ULID
}

// OverContainer builds a drop target for a release over a container body.
func OverContainer(columnID *ulid.ULID) DropTarget {
	return DropTarget{ColumnID: CloneContainerRef(columnID)}
}

// OverNote builds a drop target for a release over a sibling note.
func OverNote(columnID *ulid.ULID, noteID ulid.ULID) DropTarget {
	n := noteID
	return DropTarget{ColumnID: CloneContainerRef(columnID), NoteID: &n}
}

// ResolveMove converts a drag gesture for active into a MoveIntent against
// the drop target's container. siblings must hold that container's notes in
// SortNotes order as the dragging client saw them, before any removal of the
// active note.
//
// The pivot is direction: when the active note starts above the drop target
// in the same container, it vacates its slot before insertion, so landing at
// the target's visual index means going after the target, not before it.
// Cross-container drags have no vacated slot and always land after the
// target. Dropping a note onto itself reports ErrNoopMove.
func ResolveMove(active ulid.ULID, over DropTarget, siblings []Note) (MoveIntent, error) {
	// Released over the container body rather than a sibling: append, or
	// lead off when the container is empty. A container holding only the
	// active note counts as empty for this purpose.
	if over.NoteID == nil {
		if containerEmptyWithout(active, siblings) {
			return InsertAt(over.ColumnID, EdgeStart), nil
		}
		return InsertAt(over.ColumnID, EdgeEnd), nil
	}

	if *over.NoteID == active {
		return MoveIntent{}, ErrNoopMove
	}

	j := noteIndex(siblings, *over.NoteID)
	if j < 0 {
		return MoveIntent{}, &NeighborNotFoundError{NoteID: *over.NoteID}
	}
	i := noteIndex(siblings, active)

	if i >= 0 && i < j {
		// Downward within the container: the slot at i closes up when the
		// note leaves, shifting the target one position toward the cursor.
		return InsertAfter(over.ColumnID, siblings[j].NoteID), nil
	}
	if j == 0 {
		return InsertAt(over.ColumnID, EdgeStart), nil
	}
	if i >= 0 {
		// Upward within the container: no shift, land in front of the target.
		return InsertBefore(over.ColumnID, siblings[j].NoteID), nil
	}
	// Arriving from another container: land after the target.
	return InsertAfter(over.ColumnID, siblings[j].NoteID), nil
}

// containerEmptyWithout reports whether notes would be empty once active is
// excluded.
func containerEmptyWithout(active ulid.ULID, notes []Note) bool {
	for _, n := range notes {
		if n.NoteID != active {
			return false
		}
	}
	return true
}

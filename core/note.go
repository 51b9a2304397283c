// ABOUTME: Note, Column, and Board are the content units of a retrospective board.
// ABOUTME: Notes sort within a container by float64 order key with ULID tiebreak.
package core

import (
	"sort"
	"time"

	"github.com/oklog/ulid/v2"
)

// Note represents a sticky note on a retrospective board.
// A nil ColumnID places the note in the board's unassigned pool.
type Note struct {
	NoteID    ulid.ULID  `json:"note_id"`
	BoardID   ulid.ULID  `json:"board_id"`
	ColumnID  *ulid.ULID `json:"column_id,omitempty"`
	Content   string     `json:"content"`
	Color     string     `json:"color,omitempty"`
	Author    string     `json:"author"`
	EditedBy  []string   `json:"edited_by"`
	Order     float64    `json:"order"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// NewNote creates a Note with the given content and author, unplaced until
// the caller assigns a container and order key.
func NewNote(boardID ulid.ULID, content, color, author string) Note {
	now := time.Now().UTC()
	return Note{
		NoteID:    NewULID(),
		BoardID:   boardID,
		Content:   content,
		Color:     color,
		Author:    author,
		EditedBy:  []string{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// RecordEditor appends editor to EditedBy unless it is the note's author or
// already recorded. Returns true when the list changed.
func (n *Note) RecordEditor(editor string) bool {
	if editor == "" || editor == n.Author {
		return false
	}
	for _, e := range n.EditedBy {
		if e == editor {
			return false
		}
	}
	n.EditedBy = append(n.EditedBy, editor)
	return true
}

// Column represents a named vertical grouping of notes on a board.
type Column struct {
	ColumnID  ulid.ULID `json:"column_id"`
	BoardID   ulid.ULID `json:"board_id"`
	Title     string    `json:"title"`
	Color     string    `json:"color,omitempty"`
	Position  int       `json:"position"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewColumn creates a Column on the given board at the given display position.
func NewColumn(boardID ulid.ULID, title, color string, position int) Column {
	now := time.Now().UTC()
	return Column{
		ColumnID:  NewULID(),
		BoardID:   boardID,
		Title:     title,
		Color:     color,
		Position:  position,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Board identifies one retrospective and owns its columns and notes.
type Board struct {
	BoardID   ulid.ULID `json:"board_id"`
	Title     string    `json:"title"`
	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}

// NewBoard creates a Board with the given title and creator.
func NewBoard(title, createdBy string) Board {
	return Board{
		BoardID:   NewULID(),
		Title:     title,
		CreatedBy: createdBy,
		CreatedAt: time.Now().UTC(),
	}
}

// Snapshot is the full content of a board at a point in time. It seeds
// replicas on join and resynchronizes stale ones. Notes covers every
// container including the unassigned pool.
type Snapshot struct {
	Board   Board    `json:"board"`
	Columns []Column `json:"columns"`
	Notes   []Note   `json:"notes"`
}

// SortNotes sorts notes ascending by (order, note_id). The ULID tiebreak
// keeps the relation total even if two order keys collide.
func SortNotes(notes []Note) {
	sort.SliceStable(notes, func(i, j int) bool {
		if notes[i].Order != notes[j].Order {
			return notes[i].Order < notes[j].Order
		}
		return notes[i].NoteID.Compare(notes[j].NoteID) < 0
	})
}

// SortColumns sorts columns ascending by (position, column_id).
func SortColumns(columns []Column) {
	sort.SliceStable(columns, func(i, j int) bool {
		if columns[i].Position != columns[j].Position {
			return columns[i].Position < columns[j].Position
		}
		return columns[i].ColumnID.Compare(columns[j].ColumnID) < 0
	})
}

// SameContainer reports whether two container references address the same
// note list. A nil reference addresses the unassigned pool.
func SameContainer(a, b *ulid.ULID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// CloneContainerRef copies a container reference so callers can hold it
// without aliasing the source pointer.
func CloneContainerRef(id *ulid.ULID) *ulid.ULID {
	if id == nil {
		return nil
	}
	c := *id
	return &c
}

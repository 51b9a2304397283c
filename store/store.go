// ABOUTME: Store is the authoritative persistence interface for boards, columns, and notes.
// ABOUTME: Backends compute move placement inside their write transaction so order keys never race.
package store

import (
	"context"

	"github.com/oklog/ulid/v2"

	"github.com/2389-research/huddle/core"
)

// CreateNoteParams describes a new note. A nil ColumnID targets the
// unassigned pool; the note is appended at its container's end.
type CreateNoteParams struct {
	Content  string
	Color    string
	Author   string
	ColumnID *ulid.ULID
}

// UpdateNoteParams is a partial note update. Nil fields are unchanged.
// Editor, when it differs from the note's author, is recorded in EditedBy.
type UpdateNoteParams struct {
	Content *string
	Color   *string
	Editor  string
}

// MoveResult is the transactional outcome of a note move. Note carries the
// post-move row; Placement carries the confirmed order key and any sibling
// renumbering committed in the same transaction.
type MoveResult struct {
	Note      core.Note
	Placement core.Placement

	// Fallback reports that the intent's anchor had vanished by commit time
	// and the note was appended to the container's end instead.
	Fallback bool
}

// Store is authoritative board storage. Each mutation is one atomic write:
// move placement runs against the container's committed rows inside the same
// transaction that persists it, so the store is the single writer for order
// keys and events built from the returned values broadcast safely as-is.
type Store interface {
	CreateBoard(ctx context.Context, title, createdBy string) (core.Board, error)
	GetBoard(ctx context.Context, boardID ulid.ULID) (core.Board, error)
	ListBoards(ctx context.Context) ([]core.Board, error)
	Snapshot(ctx context.Context, boardID ulid.ULID) (core.Snapshot, error)

	CreateColumn(ctx context.Context, boardID ulid.ULID, title, color string) (core.Column, error)
	RenameColumn(ctx context.Context, boardID, columnID ulid.ULID, title string) (core.Column, error)
	DeleteColumn(ctx context.Context, boardID, columnID ulid.ULID) ([]core.OrderAssignment, error)

	CreateNote(ctx context.Context, boardID ulid.ULID, p CreateNoteParams) (core.Note, error)
	UpdateNote(ctx context.Context, boardID, noteID ulid.ULID, p UpdateNoteParams) (core.Note, error)
	MoveNote(ctx context.Context, boardID, noteID ulid.ULID, intent core.MoveIntent) (MoveResult, error)
	DeleteNote(ctx context.Context, boardID, noteID ulid.ULID) error

	Close() error
}

// ABOUTME: Sentinel and typed errors shared by the board core, store, and replica.
// ABOUTME: Not-found errors carry the missing entity's ID for stale-replica detection.
package core

import (
	"errors"
	"fmt"

	"github.com/oklog/ulid/v2"
)

var (
	// ErrNoopMove indicates a drag gesture that would not change anything,
	// such as dropping a note onto itself.
	ErrNoopMove = errors.New("move is a no-op")

	// ErrInvalidIntent indicates a MoveIntent that does not name exactly one
	// insertion directive.
	ErrInvalidIntent = errors.New("invalid move intent")

	// ErrEmptyContent indicates a note create or update with no content.
	ErrEmptyContent = errors.New("note content must not be empty")

	// ErrEmptyTitle indicates a board or column create or rename with no title.
	ErrEmptyTitle = errors.New("title must not be empty")
)

// NoteNotFoundError indicates the referenced note doesn't exist.
type NoteNotFoundError struct {
	NoteID ulid.ULID
}

func (e *NoteNotFoundError) Error() string {
	return fmt.Sprintf("note not found: %s", e.NoteID)
}

// ColumnNotFoundError indicates the referenced column doesn't exist.
type ColumnNotFoundError struct {
	ColumnID ulid.ULID
}

func (e *ColumnNotFoundError) Error() string {
	return fmt.Sprintf("column not found: %s", e.ColumnID)
}

// BoardNotFoundError indicates the referenced board doesn't exist.
type BoardNotFoundError struct {
	BoardID ulid.ULID
}

func (e *BoardNotFoundError) Error() string {
	return fmt.Sprintf("board not found: %s", e.BoardID)
}

// NeighborNotFoundError indicates a MoveIntent anchored on a note that is
// missing from the target container. Callers fall back to insert-at-end.
type NeighborNotFoundError struct {
	NoteID ulid.ULID
}

func (e *NeighborNotFoundError) Error() string {
	return fmt.Sprintf("move anchor not in target container: %s", e.NoteID)
}

// IsNotFound reports whether err is any of the entity not-found errors.
// Replicas treat a not-found during event application as a stale signal.
func IsNotFound(err error) bool {
	var nf *NoteNotFoundError
	var cf *ColumnNotFoundError
	var bf *BoardNotFoundError
	return errors.As(err, &nf) || errors.As(err, &cf) || errors.As(err, &bf)
}

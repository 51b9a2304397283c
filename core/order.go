// ABOUTME: Pure order-key arithmetic for placing notes within a container.
// ABOUTME: Float64 midpoint insertion with an even-spacing renumber when gaps exhaust.
package core

import (
	"fmt"

	"github.com/oklog/ulid/v2"
)

// OrderSpacing is the gap between order keys assigned by a renumber pass and
// to notes appended at a container edge. With integer spacing the midpoint of
// any renumbered pair is exactly representable, so a renumber always opens
// room for the pending insertion.
const OrderSpacing = 1.0

// OrderAssignment pairs a note with a newly assigned order key.
type OrderAssignment struct {
	NoteID ulid.ULID `json:"note_id"`
	Order  float64   `json:"order"`
}

// Placement is the outcome of placing one note into a container. Order is
// the key for the placed note. Renumbered is non-empty only when the
// container's keys had to be reassigned to open a gap; it then lists every
// sibling's new key in visual order and must be persisted and broadcast
// together with the move itself.
type Placement struct {
	Order      float64           `json:"order"`
	Renumbered []OrderAssignment `json:"renumbered,omitempty"`
}

// OrderBetween returns a key strictly between left and right, or ok=false
// when no representable float64 exists in the open interval. Callers must
// pass left < right; a degenerate interval also reports false.
func OrderBetween(left, right float64) (float64, bool) {
	if right <= left {
		return 0, false
	}
	mid := left + (right-left)/2
	if mid <= left || mid >= right {
		return 0, false
	}
	return mid, true
}

// PlaceNote computes the order key satisfying intent against the target
// container's current contents. siblings must hold the container's notes in
// SortNotes order and must not include the note being placed.
//
// The returned Placement usually carries just the new key. When the gap
// named by the intent has collapsed below float64 resolution, the whole
// container is renumbered to even OrderSpacing multiples first and the
// Placement reports every reassigned sibling.
//
// Anchor notes absent from siblings yield a NeighborNotFoundError; callers
// are expected to retry with an insert-at-end intent.
func PlaceNote(intent MoveIntent, siblings []Note) (Placement, error) {
	if err := intent.Validate(); err != nil {
		return Placement{}, err
	}

	// Empty container: the first note lands on a clean integer key.
	if len(siblings) == 0 {
		return Placement{Order: OrderSpacing}, nil
	}

	left, right, err := anchorIndexes(intent, siblings)
	if err != nil {
		return Placement{}, err
	}

	switch {
	case left < 0:
		// Before the first note: stay strictly below the container minimum.
		return Placement{Order: siblings[right].Order - OrderSpacing}, nil
	case right < 0:
		// After the last note: stay strictly above the container maximum.
		return Placement{Order: siblings[left].Order + OrderSpacing}, nil
	}

	if mid, ok := OrderBetween(siblings[left].Order, siblings[right].Order); ok {
		return Placement{Order: mid}, nil
	}

	// Gap exhausted between the anchors. Renumber every sibling to even
	// spacing, then split the now guaranteed-open target gap.
	renumbered := make([]OrderAssignment, len(siblings))
	for i, n := range siblings {
		renumbered[i] = OrderAssignment{
			NoteID: n.NoteID,
			Order:  OrderSpacing * float64(i+1),
		}
	}
	order := renumbered[left].Order + OrderSpacing/2
	return Placement{Order: order, Renumbered: renumbered}, nil
}

// anchorIndexes maps an intent onto the sibling indexes bracketing the
// insertion point. An index of -1 marks an open container edge.
func anchorIndexes(intent MoveIntent, siblings []Note) (left, right int, err error) {
	switch {
	case intent.Edge != nil:
		if *intent.Edge == EdgeStart {
			return -1, 0, nil
		}
		return len(siblings) - 1, -1, nil

	case intent.AfterNoteID != nil:
		i := noteIndex(siblings, *intent.AfterNoteID)
		if i < 0 {
			return 0, 0, &NeighborNotFoundError{NoteID: *intent.AfterNoteID}
		}
		if i == len(siblings)-1 {
			return i, -1, nil
		}
		return i, i + 1, nil

	case intent.BeforeNoteID != nil:
		i := noteIndex(siblings, *intent.BeforeNoteID)
		if i < 0 {
			return 0, 0, &NeighborNotFoundError{NoteID: *intent.BeforeNoteID}
		}
		if i == 0 {
			return -1, 0, nil
		}
		return i - 1, i, nil
	}

	return 0, 0, fmt.Errorf("%w: no directive", ErrInvalidIntent)
}

// noteIndex returns the index of id within notes, or -1 when absent.
func noteIndex(notes []Note, id ulid.ULID) int {
	for i, n := range notes {
		if n.NoteID == id {
			return i
		}
	}
	return -1
}

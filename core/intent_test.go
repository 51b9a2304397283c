// ABOUTME: Tests for ResolveMove: gesture-to-intent translation and index-shift correction.
// ABOUTME: The round-trip test proves resolved intents land notes on the targeted visual slot.
package core_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/2389-research/huddle/core"
)

func TestResolveMove_DropOnContainerAppends(t *testing.T) {
	siblings := makeNotes(t, 1.0, 2.0)
	active := core.NewULID()

	intent, err := core.ResolveMove(active, core.OverContainer(nil), siblings)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if intent.Edge == nil || *intent.Edge != core.EdgeEnd {
		t.Errorf("intent: got %+v, want EdgeEnd", intent)
	}
}

func TestResolveMove_DropOnEmptyContainerLeadsOff(t *testing.T) {
	active := core.NewULID()

	intent, err := core.ResolveMove(active, core.OverContainer(nil), nil)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if intent.Edge == nil || *intent.Edge != core.EdgeStart {
		t.Errorf("intent: got %+v, want EdgeStart", intent)
	}
}

func TestResolveMove_ContainerHoldingOnlyActiveCountsAsEmpty(t *testing.T) {
	siblings := makeNotes(t, 1.0)

	intent, err := core.ResolveMove(siblings[0].NoteID, core.OverContainer(nil), siblings)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if intent.Edge == nil || *intent.Edge != core.EdgeStart {
		t.Errorf("intent: got %+v, want EdgeStart", intent)
	}
}

func TestResolveMove_DropOnSelfIsNoop(t *testing.T) {
	siblings := makeNotes(t, 1.0, 2.0)
	active := siblings[0].NoteID

	_, err := core.ResolveMove(active, core.OverNote(nil, active), siblings)
	if !errors.Is(err, core.ErrNoopMove) {
		t.Fatalf("err: got %v, want ErrNoopMove", err)
	}
}

func TestResolveMove_DownwardGoesAfterTarget(t *testing.T) {
	siblings := makeNotes(t, 1.0, 2.0, 3.0)
	active := siblings[0].NoteID
	target := siblings[2].NoteID

	intent, err := core.ResolveMove(active, core.OverNote(nil, target), siblings)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if intent.AfterNoteID == nil || *intent.AfterNoteID != target {
		t.Errorf("intent: got %+v, want after target", intent)
	}
}

func TestResolveMove_UpwardGoesBeforeTarget(t *testing.T) {
	siblings := makeNotes(t, 1.0, 2.0, 3.0)
	active := siblings[2].NoteID
	target := siblings[1].NoteID

	intent, err := core.ResolveMove(active, core.OverNote(nil, target), siblings)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if intent.BeforeNoteID == nil || *intent.BeforeNoteID != target {
		t.Errorf("intent: got %+v, want before target", intent)
	}
}

func TestResolveMove_OntoFirstSlotLeadsOff(t *testing.T) {
	siblings := makeNotes(t, 1.0, 2.0, 3.0)
	active := siblings[2].NoteID
	target := siblings[0].NoteID

	intent, err := core.ResolveMove(active, core.OverNote(nil, target), siblings)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if intent.Edge == nil || *intent.Edge != core.EdgeStart {
		t.Errorf("intent: got %+v, want EdgeStart", intent)
	}
}

func TestResolveMove_CrossContainerGoesAfterTarget(t *testing.T) {
	colID := core.NewULID()
	siblings := makeNotes(t, 1.0, 2.0)
	active := core.NewULID() // lives elsewhere
	target := siblings[1].NoteID

	intent, err := core.ResolveMove(active, core.OverNote(&colID, target), siblings)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if intent.AfterNoteID == nil || *intent.AfterNoteID != target {
		t.Errorf("intent: got %+v, want after target", intent)
	}
	if intent.ColumnID == nil || *intent.ColumnID != colID {
		t.Errorf("columnID: got %v, want %v", intent.ColumnID, colID)
	}
}

func TestResolveMove_UnknownTargetNote(t *testing.T) {
	siblings := makeNotes(t, 1.0)
	active := core.NewULID()

	_, err := core.ResolveMove(active, core.OverNote(nil, core.NewULID()), siblings)
	var nfe *core.NeighborNotFoundError
	if !errors.As(err, &nfe) {
		t.Fatalf("err: got %v, want NeighborNotFoundError", err)
	}
}

// TestResolveMove_LandsOnTargetedSlot drives every same-container (from, to)
// pair through resolve and place, then checks the note ends up exactly at
// the slot the gesture pointed at.
func TestResolveMove_LandsOnTargetedSlot(t *testing.T) {
	const size = 5
	for from := 0; from < size; from++ {
		for to := 0; to < size; to++ {
			if from == to {
				continue
			}
			t.Run(fmt.Sprintf("from%d_to%d", from, to), func(t *testing.T) {
				siblings := makeNotes(t, 1.0, 2.0, 3.0, 4.0, 5.0)
				active := siblings[from]
				over := siblings[to]

				intent, err := core.ResolveMove(active.NoteID, core.OverNote(nil, over.NoteID), siblings)
				if err != nil {
					t.Fatalf("resolve: %v", err)
				}

				// The container as the store sees it: active removed.
				remaining := make([]core.Note, 0, size-1)
				for _, n := range siblings {
					if n.NoteID != active.NoteID {
						remaining = append(remaining, n)
					}
				}

				p, err := core.PlaceNote(intent, remaining)
				if err != nil {
					t.Fatalf("place: %v", err)
				}
				moved := active
				moved.Order = p.Order
				final := append(remaining, moved)
				core.SortNotes(final)

				got := -1
				for i, n := range final {
					if n.NoteID == active.NoteID {
						got = i
					}
				}
				if got != to {
					t.Errorf("final index: got %d, want %d", got, to)
				}
			})
		}
	}
}

func TestMoveIntentValidate(t *testing.T) {
	anchor := core.NewULID()

	if err := core.InsertAfter(nil, anchor).Validate(); err != nil {
		t.Errorf("valid after-intent: %v", err)
	}
	if err := core.InsertAt(nil, core.EdgeEnd).Validate(); err != nil {
		t.Errorf("valid edge-intent: %v", err)
	}

	bogus := core.EdgePosition("middle")
	bad := core.MoveIntent{Edge: &bogus}
	if err := bad.Validate(); !errors.Is(err, core.ErrInvalidIntent) {
		t.Errorf("bogus edge: got %v, want ErrInvalidIntent", err)
	}
}

// ABOUTME: Tests for the SQLite-backed board store.
// ABOUTME: Covers CRUD, transactional move placement, anchor fallback, renumbering, and orphan relocation.
package store_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/oklog/ulid/v2"

	"github.com/2389-research/huddle/core"
	"github.com/2389-research/huddle/store"
)

func openStore(t *testing.T) *store.SqliteStore {
	t.Helper()
	s, err := store.OpenSqlite(filepath.Join(t.TempDir(), "huddle.db"))
	if err != nil {
		t.Fatalf("OpenSqlite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedBoard(t *testing.T, s *store.SqliteStore) core.Board {
	t.Helper()
	board, err := s.CreateBoard(context.Background(), "Sprint 12 Retro", "alice")
	if err != nil {
		t.Fatalf("CreateBoard: %v", err)
	}
	return board
}

func seedColumn(t *testing.T, s *store.SqliteStore, boardID ulid.ULID, title string) core.Column {
	t.Helper()
	col, err := s.CreateColumn(context.Background(), boardID, title, "")
	if err != nil {
		t.Fatalf("CreateColumn %s: %v", title, err)
	}
	return col
}

func seedNote(t *testing.T, s *store.SqliteStore, boardID ulid.ULID, columnID *ulid.ULID, content string) core.Note {
	t.Helper()
	note, err := s.CreateNote(context.Background(), boardID, store.CreateNoteParams{
		Content:  content,
		Author:   "alice",
		ColumnID: columnID,
	})
	if err != nil {
		t.Fatalf("CreateNote %s: %v", content, err)
	}
	return note
}

// containerSequence returns the note IDs of one container in visual order.
func containerSequence(t *testing.T, s *store.SqliteStore, boardID ulid.ULID, columnID *ulid.ULID) []ulid.ULID {
	t.Helper()
	snap, err := s.Snapshot(context.Background(), boardID)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	var ids []ulid.ULID
	for _, n := range snap.Notes {
		if core.SameContainer(n.ColumnID, columnID) {
			ids = append(ids, n.NoteID)
		}
	}
	return ids
}

func wantSequence(t *testing.T, got []ulid.ULID, want ...ulid.ULID) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("sequence length = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("sequence[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestBoardLifecycle(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	board := seedBoard(t, s)
	got, err := s.GetBoard(ctx, board.BoardID)
	if err != nil {
		t.Fatalf("GetBoard: %v", err)
	}
	if got.Title != "Sprint 12 Retro" {
		t.Errorf("title = %q, want %q", got.Title, "Sprint 12 Retro")
	}
	if got.CreatedBy != "alice" {
		t.Errorf("created_by = %q, want alice", got.CreatedBy)
	}

	boards, err := s.ListBoards(ctx)
	if err != nil {
		t.Fatalf("ListBoards: %v", err)
	}
	if len(boards) != 1 || boards[0].BoardID != board.BoardID {
		t.Fatalf("boards = %+v, want exactly the created board", boards)
	}

	if _, err := s.CreateBoard(ctx, "   ", "alice"); !errors.Is(err, core.ErrEmptyTitle) {
		t.Errorf("empty title err = %v, want ErrEmptyTitle", err)
	}

	var nf *core.BoardNotFoundError
	if _, err := s.GetBoard(ctx, core.NewULID()); !errors.As(err, &nf) {
		t.Errorf("unknown board err = %v, want BoardNotFoundError", err)
	}
}

func TestColumnPositionsAndRename(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	board := seedBoard(t, s)

	went := seedColumn(t, s, board.BoardID, "Went well")
	meh := seedColumn(t, s, board.BoardID, "Meh")
	bad := seedColumn(t, s, board.BoardID, "Needs work")

	for i, col := range []core.Column{went, meh, bad} {
		if col.Position != i {
			t.Errorf("column %q position = %d, want %d", col.Title, col.Position, i)
		}
	}

	renamed, err := s.RenameColumn(ctx, board.BoardID, meh.ColumnID, "Could improve")
	if err != nil {
		t.Fatalf("RenameColumn: %v", err)
	}
	if renamed.Title != "Could improve" {
		t.Errorf("renamed title = %q", renamed.Title)
	}
	if !renamed.UpdatedAt.After(meh.UpdatedAt) && renamed.UpdatedAt != meh.UpdatedAt {
		t.Errorf("rename did not advance updated_at")
	}

	snap, err := s.Snapshot(ctx, board.BoardID)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if len(snap.Columns) != 3 {
		t.Fatalf("columns = %d, want 3", len(snap.Columns))
	}
	if snap.Columns[1].Title != "Could improve" {
		t.Errorf("snapshot column[1] = %q, want renamed title", snap.Columns[1].Title)
	}

	var cf *core.ColumnNotFoundError
	if _, err := s.RenameColumn(ctx, board.BoardID, core.NewULID(), "X"); !errors.As(err, &cf) {
		t.Errorf("rename unknown column err = %v, want ColumnNotFoundError", err)
	}
}

func TestCreateNoteAppendsToContainer(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	board := seedBoard(t, s)
	col := seedColumn(t, s, board.BoardID, "Went well")

	n1 := seedNote(t, s, board.BoardID, &col.ColumnID, "ship went out")
	n2 := seedNote(t, s, board.BoardID, &col.ColumnID, "tests green")
	pool := seedNote(t, s, board.BoardID, nil, "unsorted thought")

	if n1.Order != core.OrderSpacing {
		t.Errorf("first note order = %v, want %v", n1.Order, core.OrderSpacing)
	}
	if n2.Order <= n1.Order {
		t.Errorf("second note order %v not after first %v", n2.Order, n1.Order)
	}
	if pool.ColumnID != nil {
		t.Errorf("pool note has column %v, want nil", pool.ColumnID)
	}
	if pool.Order != core.OrderSpacing {
		t.Errorf("pool order = %v, want fresh container start", pool.Order)
	}

	if _, err := s.CreateNote(ctx, board.BoardID, store.CreateNoteParams{Content: "  ", Author: "a"}); !errors.Is(err, core.ErrEmptyContent) {
		t.Errorf("empty content err = %v, want ErrEmptyContent", err)
	}

	missing := core.NewULID()
	var cf *core.ColumnNotFoundError
	if _, err := s.CreateNote(ctx, board.BoardID, store.CreateNoteParams{
		Content: "x", Author: "a", ColumnID: &missing,
	}); !errors.As(err, &cf) {
		t.Errorf("unknown column err = %v, want ColumnNotFoundError", err)
	}
}

func TestUpdateNoteRecordsEditors(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	board := seedBoard(t, s)
	note := seedNote(t, s, board.BoardID, nil, "draft")

	content := "polished"
	got, err := s.UpdateNote(ctx, board.BoardID, note.NoteID, store.UpdateNoteParams{
		Content: &content,
		Editor:  "bob",
	})
	if err != nil {
		t.Fatalf("UpdateNote: %v", err)
	}
	if got.Content != "polished" {
		t.Errorf("content = %q", got.Content)
	}
	if len(got.EditedBy) != 1 || got.EditedBy[0] != "bob" {
		t.Errorf("edited_by = %v, want [bob]", got.EditedBy)
	}

	// Same editor again and the author both leave the list unchanged.
	color := "yellow"
	got, err = s.UpdateNote(ctx, board.BoardID, note.NoteID, store.UpdateNoteParams{Color: &color, Editor: "bob"})
	if err != nil {
		t.Fatalf("UpdateNote second: %v", err)
	}
	if got.Color != "yellow" || got.Content != "polished" {
		t.Errorf("partial update lost fields: %+v", got)
	}
	if len(got.EditedBy) != 1 {
		t.Errorf("edited_by = %v, want still [bob]", got.EditedBy)
	}

	got, err = s.UpdateNote(ctx, board.BoardID, note.NoteID, store.UpdateNoteParams{Editor: "alice"})
	if err != nil {
		t.Fatalf("UpdateNote by author: %v", err)
	}
	if len(got.EditedBy) != 1 {
		t.Errorf("author recorded as editor: %v", got.EditedBy)
	}

	var nf *core.NoteNotFoundError
	if _, err := s.UpdateNote(ctx, board.BoardID, core.NewULID(), store.UpdateNoteParams{}); !errors.As(err, &nf) {
		t.Errorf("update unknown note err = %v, want NoteNotFoundError", err)
	}
}

func TestMoveNoteWithinColumn(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	board := seedBoard(t, s)
	col := seedColumn(t, s, board.BoardID, "Went well")

	n1 := seedNote(t, s, board.BoardID, &col.ColumnID, "one")
	n2 := seedNote(t, s, board.BoardID, &col.ColumnID, "two")
	n3 := seedNote(t, s, board.BoardID, &col.ColumnID, "three")

	// three goes between one and two.
	res, err := s.MoveNote(ctx, board.BoardID, n3.NoteID, core.InsertAfter(&col.ColumnID, n1.NoteID))
	if err != nil {
		t.Fatalf("MoveNote: %v", err)
	}
	if res.Fallback {
		t.Error("unexpected fallback on live anchor")
	}
	if res.Note.Order <= n1.Order || res.Note.Order >= n2.Order {
		t.Errorf("order %v not between %v and %v", res.Note.Order, n1.Order, n2.Order)
	}
	wantSequence(t, containerSequence(t, s, board.BoardID, &col.ColumnID), n1.NoteID, n3.NoteID, n2.NoteID)

	// one goes to the end.
	if _, err := s.MoveNote(ctx, board.BoardID, n1.NoteID, core.InsertAt(&col.ColumnID, core.EdgeEnd)); err != nil {
		t.Fatalf("MoveNote to end: %v", err)
	}
	wantSequence(t, containerSequence(t, s, board.BoardID, &col.ColumnID), n3.NoteID, n2.NoteID, n1.NoteID)

	// two leads off.
	if _, err := s.MoveNote(ctx, board.BoardID, n2.NoteID, core.InsertAt(&col.ColumnID, core.EdgeStart)); err != nil {
		t.Fatalf("MoveNote to start: %v", err)
	}
	wantSequence(t, containerSequence(t, s, board.BoardID, &col.ColumnID), n2.NoteID, n3.NoteID, n1.NoteID)

	// before an anchor.
	if _, err := s.MoveNote(ctx, board.BoardID, n1.NoteID, core.InsertBefore(&col.ColumnID, n3.NoteID)); err != nil {
		t.Fatalf("MoveNote before: %v", err)
	}
	wantSequence(t, containerSequence(t, s, board.BoardID, &col.ColumnID), n2.NoteID, n1.NoteID, n3.NoteID)
}

func TestMoveNoteAcrossContainers(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	board := seedBoard(t, s)
	colA := seedColumn(t, s, board.BoardID, "A")
	colB := seedColumn(t, s, board.BoardID, "B")

	a1 := seedNote(t, s, board.BoardID, &colA.ColumnID, "a1")
	a2 := seedNote(t, s, board.BoardID, &colA.ColumnID, "a2")
	b1 := seedNote(t, s, board.BoardID, &colB.ColumnID, "b1")

	res, err := s.MoveNote(ctx, board.BoardID, a1.NoteID, core.InsertAfter(&colB.ColumnID, b1.NoteID))
	if err != nil {
		t.Fatalf("MoveNote across: %v", err)
	}
	if !core.SameContainer(res.Note.ColumnID, &colB.ColumnID) {
		t.Errorf("note container = %v, want column B", res.Note.ColumnID)
	}
	wantSequence(t, containerSequence(t, s, board.BoardID, &colA.ColumnID), a2.NoteID)
	wantSequence(t, containerSequence(t, s, board.BoardID, &colB.ColumnID), b1.NoteID, a1.NoteID)

	// Into the pool.
	res, err = s.MoveNote(ctx, board.BoardID, a2.NoteID, core.InsertAt(nil, core.EdgeEnd))
	if err != nil {
		t.Fatalf("MoveNote to pool: %v", err)
	}
	if res.Note.ColumnID != nil {
		t.Errorf("pooled note container = %v, want nil", res.Note.ColumnID)
	}
	wantSequence(t, containerSequence(t, s, board.BoardID, nil), a2.NoteID)
	if got := containerSequence(t, s, board.BoardID, &colA.ColumnID); len(got) != 0 {
		t.Errorf("column A still holds %d notes", len(got))
	}
}

func TestMoveNoteAnchorVanishedFallsBackToEnd(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	board := seedBoard(t, s)
	col := seedColumn(t, s, board.BoardID, "A")

	n1 := seedNote(t, s, board.BoardID, &col.ColumnID, "one")
	n2 := seedNote(t, s, board.BoardID, &col.ColumnID, "two")
	n3 := seedNote(t, s, board.BoardID, &col.ColumnID, "three")

	if err := s.DeleteNote(ctx, board.BoardID, n2.NoteID); err != nil {
		t.Fatalf("DeleteNote: %v", err)
	}

	// The drag was aimed after the now-deleted note.
	res, err := s.MoveNote(ctx, board.BoardID, n1.NoteID, core.InsertAfter(&col.ColumnID, n2.NoteID))
	if err != nil {
		t.Fatalf("MoveNote with dead anchor: %v", err)
	}
	if !res.Fallback {
		t.Error("Fallback = false, want true")
	}
	wantSequence(t, containerSequence(t, s, board.BoardID, &col.ColumnID), n3.NoteID, n1.NoteID)
}

func TestMoveNoteRenumbersExhaustedGap(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	board := seedBoard(t, s)
	col := seedColumn(t, s, board.BoardID, "A")

	left := seedNote(t, s, board.BoardID, &col.ColumnID, "left")
	seedNote(t, s, board.BoardID, &col.ColumnID, "right")

	// Repeatedly wedging a fresh note directly after left halves the same
	// gap until float64 runs out of room and the container renumbers.
	var renumbered bool
	for i := 0; i < 80 && !renumbered; i++ {
		n := seedNote(t, s, board.BoardID, nil, "wedge")
		res, err := s.MoveNote(ctx, board.BoardID, n.NoteID, core.InsertAfter(&col.ColumnID, left.NoteID))
		if err != nil {
			t.Fatalf("MoveNote wedge %d: %v", i, err)
		}
		if len(res.Placement.Renumbered) > 0 {
			renumbered = true
			if res.Placement.Order <= 0 {
				t.Errorf("renumbered placement order = %v", res.Placement.Order)
			}
		}
	}
	if !renumbered {
		t.Fatal("gap never exhausted; renumber path untested")
	}

	// After renumbering every order key is distinct and ascending, and left
	// still leads the container.
	snap, err := s.Snapshot(ctx, board.BoardID)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	var prev float64
	first := true
	for _, n := range snap.Notes {
		if !core.SameContainer(n.ColumnID, &col.ColumnID) {
			continue
		}
		if !first && n.Order <= prev {
			t.Fatalf("orders not strictly ascending: %v then %v", prev, n.Order)
		}
		prev = n.Order
		first = false
	}
	seq := containerSequence(t, s, board.BoardID, &col.ColumnID)
	if seq[0] != left.NoteID {
		t.Errorf("container head = %s, want left", seq[0])
	}
}

func TestDeleteColumnRelocatesNotesToPool(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	board := seedBoard(t, s)
	col := seedColumn(t, s, board.BoardID, "Doomed")

	poolNote := seedNote(t, s, board.BoardID, nil, "already pooled")
	c1 := seedNote(t, s, board.BoardID, &col.ColumnID, "first")
	c2 := seedNote(t, s, board.BoardID, &col.ColumnID, "second")

	orphaned, err := s.DeleteColumn(ctx, board.BoardID, col.ColumnID)
	if err != nil {
		t.Fatalf("DeleteColumn: %v", err)
	}
	if len(orphaned) != 2 {
		t.Fatalf("orphaned = %d, want 2", len(orphaned))
	}
	if orphaned[0].NoteID != c1.NoteID || orphaned[1].NoteID != c2.NoteID {
		t.Errorf("orphan order lost: %+v", orphaned)
	}

	// Pool keeps its own notes first, then the orphans in their old order.
	wantSequence(t, containerSequence(t, s, board.BoardID, nil), poolNote.NoteID, c1.NoteID, c2.NoteID)

	snap, err := s.Snapshot(ctx, board.BoardID)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if len(snap.Columns) != 0 {
		t.Errorf("columns = %d, want 0", len(snap.Columns))
	}

	var cf *core.ColumnNotFoundError
	if _, err := s.DeleteColumn(ctx, board.BoardID, col.ColumnID); !errors.As(err, &cf) {
		t.Errorf("double delete err = %v, want ColumnNotFoundError", err)
	}
}

func TestDeleteNote(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	board := seedBoard(t, s)
	note := seedNote(t, s, board.BoardID, nil, "gone soon")

	if err := s.DeleteNote(ctx, board.BoardID, note.NoteID); err != nil {
		t.Fatalf("DeleteNote: %v", err)
	}
	var nf *core.NoteNotFoundError
	if err := s.DeleteNote(ctx, board.BoardID, note.NoteID); !errors.As(err, &nf) {
		t.Errorf("double delete err = %v, want NoteNotFoundError", err)
	}
}

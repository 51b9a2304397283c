// ABOUTME: SQLite-backed Store for single-node deployments: one file, WAL mode, immediate write txs.
// ABOUTME: Move placement reads the container's committed rows inside the same transaction that persists it.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/oklog/ulid/v2"

	"github.com/2389-research/huddle/core"
)

const timeLayout = time.RFC3339Nano

// SqliteStore is a Store backed by a single SQLite database file.
type SqliteStore struct {
	db *sql.DB
}

// querier is satisfied by both *sql.DB and *sql.Tx so read helpers work in
// and out of transactions.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// OpenSqlite opens or creates the board database at path and migrates the
// schema. Write transactions take the database lock up front (txlock
// immediate), so concurrent movers queue instead of failing mid-transaction.
func OpenSqlite(path string) (*SqliteStore, error) {
	db, err := sql.Open("sqlite3", "file:"+path+"?_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	schema := `
		CREATE TABLE IF NOT EXISTS boards (
			board_id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			created_by TEXT NOT NULL,
			created_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS columns (
			column_id TEXT PRIMARY KEY,
			board_id TEXT NOT NULL,
			title TEXT NOT NULL,
			color TEXT NOT NULL DEFAULT '',
			position INTEGER NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			FOREIGN KEY (board_id) REFERENCES boards(board_id)
		);

		CREATE TABLE IF NOT EXISTS notes (
			note_id TEXT PRIMARY KEY,
			board_id TEXT NOT NULL,
			column_id TEXT,
			content TEXT NOT NULL,
			color TEXT NOT NULL DEFAULT '',
			author TEXT NOT NULL,
			edited_by TEXT NOT NULL DEFAULT '[]',
			sort_order REAL NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			FOREIGN KEY (board_id) REFERENCES boards(board_id)
		);

		CREATE INDEX IF NOT EXISTS idx_columns_board ON columns(board_id);
		CREATE INDEX IF NOT EXISTS idx_notes_board ON notes(board_id);`

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &SqliteStore{db: db}, nil
}

// Close closes the database.
func (s *SqliteStore) Close() error {
	return s.db.Close()
}

func (s *SqliteStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// CreateBoard inserts a new board.
func (s *SqliteStore) CreateBoard(ctx context.Context, title, createdBy string) (core.Board, error) {
	if strings.TrimSpace(title) == "" {
		return core.Board{}, core.ErrEmptyTitle
	}
	board := core.NewBoard(title, createdBy)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO boards (board_id, title, created_by, created_at) VALUES (?, ?, ?, ?)`,
		board.BoardID.String(), board.Title, board.CreatedBy, board.CreatedAt.Format(timeLayout))
	if err != nil {
		return core.Board{}, fmt.Errorf("insert board: %w", err)
	}
	return board, nil
}

// GetBoard fetches one board by id.
func (s *SqliteStore) GetBoard(ctx context.Context, boardID ulid.ULID) (core.Board, error) {
	return getBoard(ctx, s.db, boardID)
}

// ListBoards returns all boards, newest first.
func (s *SqliteStore) ListBoards(ctx context.Context) ([]core.Board, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT board_id, title, created_by, created_at FROM boards ORDER BY board_id DESC`)
	if err != nil {
		return nil, fmt.Errorf("query boards: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var boards []core.Board
	for rows.Next() {
		b, err := scanBoard(rows)
		if err != nil {
			return nil, err
		}
		boards = append(boards, b)
	}
	return boards, rows.Err()
}

// Snapshot returns the board's full content: columns in display order, notes
// in global visual order.
func (s *SqliteStore) Snapshot(ctx context.Context, boardID ulid.ULID) (core.Snapshot, error) {
	board, err := getBoard(ctx, s.db, boardID)
	if err != nil {
		return core.Snapshot{}, err
	}

	colRows, err := s.db.QueryContext(ctx,
		`SELECT column_id, board_id, title, color, position, created_at, updated_at
		 FROM columns WHERE board_id = ? ORDER BY position ASC, column_id ASC`,
		boardID.String())
	if err != nil {
		return core.Snapshot{}, fmt.Errorf("query columns: %w", err)
	}
	defer func() { _ = colRows.Close() }()

	columns := []core.Column{}
	for colRows.Next() {
		c, err := scanColumn(colRows)
		if err != nil {
			return core.Snapshot{}, err
		}
		columns = append(columns, c)
	}
	if err := colRows.Err(); err != nil {
		return core.Snapshot{}, err
	}

	noteRows, err := s.db.QueryContext(ctx,
		`SELECT note_id, board_id, column_id, content, color, author, edited_by, sort_order, created_at, updated_at
		 FROM notes WHERE board_id = ? ORDER BY sort_order ASC, note_id ASC`,
		boardID.String())
	if err != nil {
		return core.Snapshot{}, fmt.Errorf("query notes: %w", err)
	}
	defer func() { _ = noteRows.Close() }()

	notes := []core.Note{}
	for noteRows.Next() {
		n, err := scanNote(noteRows)
		if err != nil {
			return core.Snapshot{}, err
		}
		notes = append(notes, n)
	}
	if err := noteRows.Err(); err != nil {
		return core.Snapshot{}, err
	}

	return core.Snapshot{Board: board, Columns: columns, Notes: notes}, nil
}

// CreateColumn appends a column at the end of the board's display order.
func (s *SqliteStore) CreateColumn(ctx context.Context, boardID ulid.ULID, title, color string) (core.Column, error) {
	if strings.TrimSpace(title) == "" {
		return core.Column{}, core.ErrEmptyTitle
	}
	var column core.Column
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := getBoard(ctx, tx, boardID); err != nil {
			return err
		}
		var position int
		if err := tx.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(position) + 1, 0) FROM columns WHERE board_id = ?`,
			boardID.String()).Scan(&position); err != nil {
			return fmt.Errorf("next column position: %w", err)
		}
		column = core.NewColumn(boardID, title, color, position)
		_, err := tx.ExecContext(ctx,
			`INSERT INTO columns (column_id, board_id, title, color, position, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			column.ColumnID.String(), boardID.String(), column.Title, column.Color,
			column.Position, column.CreatedAt.Format(timeLayout), column.UpdatedAt.Format(timeLayout))
		if err != nil {
			return fmt.Errorf("insert column: %w", err)
		}
		return nil
	})
	if err != nil {
		return core.Column{}, err
	}
	return column, nil
}

// RenameColumn sets a column's title.
func (s *SqliteStore) RenameColumn(ctx context.Context, boardID, columnID ulid.ULID, title string) (core.Column, error) {
	if strings.TrimSpace(title) == "" {
		return core.Column{}, core.ErrEmptyTitle
	}
	var column core.Column
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		col, err := getColumn(ctx, tx, boardID, columnID)
		if err != nil {
			return err
		}
		col.Title = title
		col.UpdatedAt = time.Now().UTC()
		if _, err := tx.ExecContext(ctx,
			`UPDATE columns SET title = ?, updated_at = ? WHERE column_id = ?`,
			col.Title, col.UpdatedAt.Format(timeLayout), columnID.String()); err != nil {
			return fmt.Errorf("rename column: %w", err)
		}
		column = col
		return nil
	})
	if err != nil {
		return core.Column{}, err
	}
	return column, nil
}

// DeleteColumn removes a column. Its notes survive: each is relocated to the
// end of the unassigned pool, keeping their previous relative order. The
// returned assignments list the new pool order keys.
func (s *SqliteStore) DeleteColumn(ctx context.Context, boardID, columnID ulid.ULID) ([]core.OrderAssignment, error) {
	var orphaned []core.OrderAssignment
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := getColumn(ctx, tx, boardID, columnID); err != nil {
			return err
		}

		var poolMax float64
		if err := tx.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(sort_order), 0) FROM notes WHERE board_id = ? AND column_id IS NULL`,
			boardID.String()).Scan(&poolMax); err != nil {
			return fmt.Errorf("pool max order: %w", err)
		}

		colRef := columnID
		strays, err := containerNotes(ctx, tx, boardID, &colRef, nil)
		if err != nil {
			return err
		}

		now := time.Now().UTC().Format(timeLayout)
		orphaned = make([]core.OrderAssignment, 0, len(strays))
		for i, n := range strays {
			a := core.OrderAssignment{
				NoteID: n.NoteID,
				Order:  poolMax + core.OrderSpacing*float64(i+1),
			}
			if _, err := tx.ExecContext(ctx,
				`UPDATE notes SET column_id = NULL, sort_order = ?, updated_at = ? WHERE note_id = ?`,
				a.Order, now, a.NoteID.String()); err != nil {
				return fmt.Errorf("orphan note: %w", err)
			}
			orphaned = append(orphaned, a)
		}

		if _, err := tx.ExecContext(ctx,
			`DELETE FROM columns WHERE column_id = ?`, columnID.String()); err != nil {
			return fmt.Errorf("delete column: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return orphaned, nil
}

// CreateNote appends a note at the end of its target container.
func (s *SqliteStore) CreateNote(ctx context.Context, boardID ulid.ULID, p CreateNoteParams) (core.Note, error) {
	if strings.TrimSpace(p.Content) == "" {
		return core.Note{}, core.ErrEmptyContent
	}
	var note core.Note
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := getBoard(ctx, tx, boardID); err != nil {
			return err
		}
		if p.ColumnID != nil {
			if _, err := getColumn(ctx, tx, boardID, *p.ColumnID); err != nil {
				return err
			}
		}

		var maxOrder float64
		if err := tx.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(sort_order), 0) FROM notes WHERE board_id = ? AND column_id IS ?`,
			boardID.String(), containerArg(p.ColumnID)).Scan(&maxOrder); err != nil {
			return fmt.Errorf("container max order: %w", err)
		}

		note = core.NewNote(boardID, p.Content, p.Color, p.Author)
		note.ColumnID = core.CloneContainerRef(p.ColumnID)
		note.Order = maxOrder + core.OrderSpacing

		editedBy, err := json.Marshal(note.EditedBy)
		if err != nil {
			return fmt.Errorf("marshal edited_by: %w", err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO notes (note_id, board_id, column_id, content, color, author, edited_by, sort_order, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			note.NoteID.String(), boardID.String(), containerArg(note.ColumnID),
			note.Content, note.Color, note.Author, string(editedBy), note.Order,
			note.CreatedAt.Format(timeLayout), note.UpdatedAt.Format(timeLayout))
		if err != nil {
			return fmt.Errorf("insert note: %w", err)
		}
		return nil
	})
	if err != nil {
		return core.Note{}, err
	}
	return note, nil
}

// UpdateNote applies a partial update and records the editor.
func (s *SqliteStore) UpdateNote(ctx context.Context, boardID, noteID ulid.ULID, p UpdateNoteParams) (core.Note, error) {
	if p.Content != nil && strings.TrimSpace(*p.Content) == "" {
		return core.Note{}, core.ErrEmptyContent
	}
	var note core.Note
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		n, err := getNote(ctx, tx, boardID, noteID)
		if err != nil {
			return err
		}
		if p.Content != nil {
			n.Content = *p.Content
		}
		if p.Color != nil {
			n.Color = *p.Color
		}
		n.RecordEditor(p.Editor)
		n.UpdatedAt = time.Now().UTC()

		editedBy, err := json.Marshal(n.EditedBy)
		if err != nil {
			return fmt.Errorf("marshal edited_by: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE notes SET content = ?, color = ?, edited_by = ?, updated_at = ? WHERE note_id = ?`,
			n.Content, n.Color, string(editedBy), n.UpdatedAt.Format(timeLayout), noteID.String()); err != nil {
			return fmt.Errorf("update note: %w", err)
		}
		note = n
		return nil
	})
	if err != nil {
		return core.Note{}, err
	}
	return note, nil
}

// MoveNote places a note per intent against the container's committed rows.
// An intent anchored on a note that no longer sits in the target container
// falls back to appending at the container's end rather than failing the
// move; MoveResult.Fallback reports when that happened.
func (s *SqliteStore) MoveNote(ctx context.Context, boardID, noteID ulid.ULID, intent core.MoveIntent) (MoveResult, error) {
	var res MoveResult
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		note, err := getNote(ctx, tx, boardID, noteID)
		if err != nil {
			return err
		}
		if intent.ColumnID != nil {
			if _, err := getColumn(ctx, tx, boardID, *intent.ColumnID); err != nil {
				return err
			}
		}

		siblings, err := containerNotes(ctx, tx, boardID, intent.ColumnID, &noteID)
		if err != nil {
			return err
		}

		placement, err := core.PlaceNote(intent, siblings)
		var anchorGone *core.NeighborNotFoundError
		if errors.As(err, &anchorGone) {
			res.Fallback = true
			placement, err = core.PlaceNote(core.InsertAt(intent.ColumnID, core.EdgeEnd), siblings)
		}
		if err != nil {
			return err
		}

		for _, a := range placement.Renumbered {
			if _, err := tx.ExecContext(ctx,
				`UPDATE notes SET sort_order = ? WHERE note_id = ?`,
				a.Order, a.NoteID.String()); err != nil {
				return fmt.Errorf("renumber sibling: %w", err)
			}
		}

		note.ColumnID = core.CloneContainerRef(intent.ColumnID)
		note.Order = placement.Order
		note.UpdatedAt = time.Now().UTC()
		if _, err := tx.ExecContext(ctx,
			`UPDATE notes SET column_id = ?, sort_order = ?, updated_at = ? WHERE note_id = ?`,
			containerArg(note.ColumnID), note.Order, note.UpdatedAt.Format(timeLayout), noteID.String()); err != nil {
			return fmt.Errorf("move note: %w", err)
		}

		res.Note = note
		res.Placement = placement
		return nil
	})
	if err != nil {
		return MoveResult{}, err
	}
	return res, nil
}

// DeleteNote removes a note.
func (s *SqliteStore) DeleteNote(ctx context.Context, boardID, noteID ulid.ULID) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM notes WHERE board_id = ? AND note_id = ?`,
		boardID.String(), noteID.String())
	if err != nil {
		return fmt.Errorf("delete note: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete note rows affected: %w", err)
	}
	if n == 0 {
		return &core.NoteNotFoundError{NoteID: noteID}
	}
	return nil
}

// containerArg converts a container reference into a bindable value; both
// SQLite's "IS ?" and a plain column assignment accept NULL this way.
func containerArg(columnID *ulid.ULID) any {
	if columnID == nil {
		return nil
	}
	return columnID.String()
}

func getBoard(ctx context.Context, q querier, boardID ulid.ULID) (core.Board, error) {
	row := q.QueryRowContext(ctx,
		`SELECT board_id, title, created_by, created_at FROM boards WHERE board_id = ?`,
		boardID.String())
	b, err := scanBoard(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Board{}, &core.BoardNotFoundError{BoardID: boardID}
	}
	return b, err
}

func getColumn(ctx context.Context, q querier, boardID, columnID ulid.ULID) (core.Column, error) {
	row := q.QueryRowContext(ctx,
		`SELECT column_id, board_id, title, color, position, created_at, updated_at
		 FROM columns WHERE board_id = ? AND column_id = ?`,
		boardID.String(), columnID.String())
	c, err := scanColumn(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Column{}, &core.ColumnNotFoundError{ColumnID: columnID}
	}
	return c, err
}

func getNote(ctx context.Context, q querier, boardID, noteID ulid.ULID) (core.Note, error) {
	row := q.QueryRowContext(ctx,
		`SELECT note_id, board_id, column_id, content, color, author, edited_by, sort_order, created_at, updated_at
		 FROM notes WHERE board_id = ? AND note_id = ?`,
		boardID.String(), noteID.String())
	n, err := scanNote(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Note{}, &core.NoteNotFoundError{NoteID: noteID}
	}
	return n, err
}

// containerNotes returns one container's notes in visual order, optionally
// excluding a note (the one being moved).
func containerNotes(ctx context.Context, q querier, boardID ulid.ULID, columnID *ulid.ULID, exclude *ulid.ULID) ([]core.Note, error) {
	query := `SELECT note_id, board_id, column_id, content, color, author, edited_by, sort_order, created_at, updated_at
		 FROM notes WHERE board_id = ? AND column_id IS ?`
	args := []any{boardID.String(), containerArg(columnID)}
	if exclude != nil {
		query += ` AND note_id != ?`
		args = append(args, exclude.String())
	}
	query += ` ORDER BY sort_order ASC, note_id ASC`

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query container notes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var notes []core.Note
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, err
		}
		notes = append(notes, n)
	}
	return notes, rows.Err()
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanBoard(r rowScanner) (core.Board, error) {
	var b core.Board
	var id, createdAt string
	if err := r.Scan(&id, &b.Title, &b.CreatedBy, &createdAt); err != nil {
		return core.Board{}, err
	}
	var err error
	if b.BoardID, err = ulid.Parse(id); err != nil {
		return core.Board{}, fmt.Errorf("parse board_id: %w", err)
	}
	if b.CreatedAt, err = parseTime(createdAt); err != nil {
		return core.Board{}, err
	}
	return b, nil
}

func scanColumn(r rowScanner) (core.Column, error) {
	var c core.Column
	var id, boardID, createdAt, updatedAt string
	if err := r.Scan(&id, &boardID, &c.Title, &c.Color, &c.Position, &createdAt, &updatedAt); err != nil {
		return core.Column{}, err
	}
	var err error
	if c.ColumnID, err = ulid.Parse(id); err != nil {
		return core.Column{}, fmt.Errorf("parse column_id: %w", err)
	}
	if c.BoardID, err = ulid.Parse(boardID); err != nil {
		return core.Column{}, fmt.Errorf("parse board_id: %w", err)
	}
	if c.CreatedAt, err = parseTime(createdAt); err != nil {
		return core.Column{}, err
	}
	if c.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return core.Column{}, err
	}
	return c, nil
}

func scanNote(r rowScanner) (core.Note, error) {
	var n core.Note
	var id, boardID, editedBy, createdAt, updatedAt string
	var columnID sql.NullString
	if err := r.Scan(&id, &boardID, &columnID, &n.Content, &n.Color, &n.Author,
		&editedBy, &n.Order, &createdAt, &updatedAt); err != nil {
		return core.Note{}, err
	}
	var err error
	if n.NoteID, err = ulid.Parse(id); err != nil {
		return core.Note{}, fmt.Errorf("parse note_id: %w", err)
	}
	if n.BoardID, err = ulid.Parse(boardID); err != nil {
		return core.Note{}, fmt.Errorf("parse board_id: %w", err)
	}
	if columnID.Valid {
		col, err := ulid.Parse(columnID.String)
		if err != nil {
			return core.Note{}, fmt.Errorf("parse column_id: %w", err)
		}
		n.ColumnID = &col
	}
	if err := json.Unmarshal([]byte(editedBy), &n.EditedBy); err != nil {
		return core.Note{}, fmt.Errorf("parse edited_by: %w", err)
	}
	if n.CreatedAt, err = parseTime(createdAt); err != nil {
		return core.Note{}, err
	}
	if n.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return core.Note{}, err
	}
	return n, nil
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t.UTC(), nil
}

// ABOUTME: Postgres-backed Store for multi-node deployments, via the pgx stdlib driver.
// ABOUTME: Every mutation locks its board row first, so per-board writes serialize across nodes.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/oklog/ulid/v2"

	"github.com/2389-research/huddle/core"
)

// PostgresStore is a Store backed by PostgreSQL. Unlike SQLite there is no
// global write lock, so each mutating transaction takes a row lock on its
// board; movers on the same board queue while different boards proceed in
// parallel.
type PostgresStore struct {
	db *sql.DB
}

// OpenPostgres connects to databaseURL, verifies the connection, and migrates
// the schema.
func OpenPostgres(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetConnMaxIdleTime(5 * time.Minute)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetMaxIdleConns(10)
	db.SetMaxOpenConns(20)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	schema := `
		CREATE TABLE IF NOT EXISTS boards (
			board_id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			created_by TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		);

		CREATE TABLE IF NOT EXISTS columns (
			column_id TEXT PRIMARY KEY,
			board_id TEXT NOT NULL REFERENCES boards(board_id) ON DELETE CASCADE,
			title TEXT NOT NULL,
			color TEXT NOT NULL DEFAULT '',
			position INTEGER NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		);

		CREATE TABLE IF NOT EXISTS notes (
			note_id TEXT PRIMARY KEY,
			board_id TEXT NOT NULL REFERENCES boards(board_id) ON DELETE CASCADE,
			column_id TEXT,
			content TEXT NOT NULL,
			color TEXT NOT NULL DEFAULT '',
			author TEXT NOT NULL,
			edited_by JSONB NOT NULL DEFAULT '[]',
			sort_order DOUBLE PRECISION NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_columns_board ON columns(board_id);
		CREATE INDEX IF NOT EXISTS idx_notes_board ON notes(board_id);`

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

// Close closes the connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
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

// lockBoard takes the board's row lock, serializing this transaction against
// other mutations of the same board. Doubles as the existence check.
func lockBoard(ctx context.Context, tx *sql.Tx, boardID ulid.ULID) error {
	var id string
	err := tx.QueryRowContext(ctx,
		`SELECT board_id FROM boards WHERE board_id = $1 FOR UPDATE`,
		boardID.String()).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return &core.BoardNotFoundError{BoardID: boardID}
	}
	if err != nil {
		return fmt.Errorf("lock board: %w", err)
	}
	return nil
}

// CreateBoard inserts a new board.
func (s *PostgresStore) CreateBoard(ctx context.Context, title, createdBy string) (core.Board, error) {
	if strings.TrimSpace(title) == "" {
		return core.Board{}, core.ErrEmptyTitle
	}
	board := core.NewBoard(title, createdBy)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO boards (board_id, title, created_by, created_at) VALUES ($1, $2, $3, $4)`,
		board.BoardID.String(), board.Title, board.CreatedBy, board.CreatedAt)
	if err != nil {
		return core.Board{}, fmt.Errorf("insert board: %w", err)
	}
	return board, nil
}

// GetBoard fetches one board by id.
func (s *PostgresStore) GetBoard(ctx context.Context, boardID ulid.ULID) (core.Board, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT board_id, title, created_by, created_at FROM boards WHERE board_id = $1`,
		boardID.String())
	b, err := scanBoardPg(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Board{}, &core.BoardNotFoundError{BoardID: boardID}
	}
	return b, err
}

// ListBoards returns all boards, newest first.
func (s *PostgresStore) ListBoards(ctx context.Context) ([]core.Board, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT board_id, title, created_by, created_at FROM boards ORDER BY board_id DESC`)
	if err != nil {
		return nil, fmt.Errorf("query boards: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var boards []core.Board
	for rows.Next() {
		b, err := scanBoardPg(rows)
		if err != nil {
			return nil, err
		}
		boards = append(boards, b)
	}
	return boards, rows.Err()
}

// Snapshot returns the board's full content: columns in display order, notes
// in global visual order.
func (s *PostgresStore) Snapshot(ctx context.Context, boardID ulid.ULID) (core.Snapshot, error) {
	board, err := s.GetBoard(ctx, boardID)
	if err != nil {
		return core.Snapshot{}, err
	}

	colRows, err := s.db.QueryContext(ctx,
		`SELECT column_id, board_id, title, color, position, created_at, updated_at
		 FROM columns WHERE board_id = $1 ORDER BY position ASC, column_id ASC`,
		boardID.String())
	if err != nil {
		return core.Snapshot{}, fmt.Errorf("query columns: %w", err)
	}
	defer func() { _ = colRows.Close() }()

	columns := []core.Column{}
	for colRows.Next() {
		c, err := scanColumnPg(colRows)
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
		 FROM notes WHERE board_id = $1 ORDER BY sort_order ASC, note_id ASC`,
		boardID.String())
	if err != nil {
		return core.Snapshot{}, fmt.Errorf("query notes: %w", err)
	}
	defer func() { _ = noteRows.Close() }()

	notes := []core.Note{}
	for noteRows.Next() {
		n, err := scanNotePg(noteRows)
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
func (s *PostgresStore) CreateColumn(ctx context.Context, boardID ulid.ULID, title, color string) (core.Column, error) {
	if strings.TrimSpace(title) == "" {
		return core.Column{}, core.ErrEmptyTitle
	}
	var column core.Column
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if err := lockBoard(ctx, tx, boardID); err != nil {
			return err
		}
		var position int
		if err := tx.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(position) + 1, 0) FROM columns WHERE board_id = $1`,
			boardID.String()).Scan(&position); err != nil {
			return fmt.Errorf("next column position: %w", err)
		}
		column = core.NewColumn(boardID, title, color, position)
		_, err := tx.ExecContext(ctx,
			`INSERT INTO columns (column_id, board_id, title, color, position, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			column.ColumnID.String(), boardID.String(), column.Title, column.Color,
			column.Position, column.CreatedAt, column.UpdatedAt)
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
func (s *PostgresStore) RenameColumn(ctx context.Context, boardID, columnID ulid.ULID, title string) (core.Column, error) {
	if strings.TrimSpace(title) == "" {
		return core.Column{}, core.ErrEmptyTitle
	}
	var column core.Column
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if err := lockBoard(ctx, tx, boardID); err != nil {
			return err
		}
		col, err := getColumnPg(ctx, tx, boardID, columnID)
		if err != nil {
			return err
		}
		col.Title = title
		col.UpdatedAt = time.Now().UTC()
		if _, err := tx.ExecContext(ctx,
			`UPDATE columns SET title = $1, updated_at = $2 WHERE column_id = $3`,
			col.Title, col.UpdatedAt, columnID.String()); err != nil {
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

// DeleteColumn removes a column, relocating its notes to the end of the
// unassigned pool in their previous relative order.
func (s *PostgresStore) DeleteColumn(ctx context.Context, boardID, columnID ulid.ULID) ([]core.OrderAssignment, error) {
	var orphaned []core.OrderAssignment
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if err := lockBoard(ctx, tx, boardID); err != nil {
			return err
		}
		if _, err := getColumnPg(ctx, tx, boardID, columnID); err != nil {
			return err
		}

		var poolMax float64
		if err := tx.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(sort_order), 0) FROM notes WHERE board_id = $1 AND column_id IS NULL`,
			boardID.String()).Scan(&poolMax); err != nil {
			return fmt.Errorf("pool max order: %w", err)
		}

		colRef := columnID
		strays, err := containerNotesPg(ctx, tx, boardID, &colRef, nil)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		orphaned = make([]core.OrderAssignment, 0, len(strays))
		for i, n := range strays {
			a := core.OrderAssignment{
				NoteID: n.NoteID,
				Order:  poolMax + core.OrderSpacing*float64(i+1),
			}
			if _, err := tx.ExecContext(ctx,
				`UPDATE notes SET column_id = NULL, sort_order = $1, updated_at = $2 WHERE note_id = $3`,
				a.Order, now, a.NoteID.String()); err != nil {
				return fmt.Errorf("orphan note: %w", err)
			}
			orphaned = append(orphaned, a)
		}

		if _, err := tx.ExecContext(ctx,
			`DELETE FROM columns WHERE column_id = $1`, columnID.String()); err != nil {
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
func (s *PostgresStore) CreateNote(ctx context.Context, boardID ulid.ULID, p CreateNoteParams) (core.Note, error) {
	if strings.TrimSpace(p.Content) == "" {
		return core.Note{}, core.ErrEmptyContent
	}
	var note core.Note
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if err := lockBoard(ctx, tx, boardID); err != nil {
			return err
		}
		if p.ColumnID != nil {
			if _, err := getColumnPg(ctx, tx, boardID, *p.ColumnID); err != nil {
				return err
			}
		}

		var maxOrder float64
		if err := tx.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(sort_order), 0) FROM notes
			 WHERE board_id = $1 AND column_id IS NOT DISTINCT FROM $2`,
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
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			note.NoteID.String(), boardID.String(), containerArg(note.ColumnID),
			note.Content, note.Color, note.Author, editedBy, note.Order,
			note.CreatedAt, note.UpdatedAt)
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
func (s *PostgresStore) UpdateNote(ctx context.Context, boardID, noteID ulid.ULID, p UpdateNoteParams) (core.Note, error) {
	if p.Content != nil && strings.TrimSpace(*p.Content) == "" {
		return core.Note{}, core.ErrEmptyContent
	}
	var note core.Note
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if err := lockBoard(ctx, tx, boardID); err != nil {
			return err
		}
		n, err := getNotePg(ctx, tx, boardID, noteID)
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
			`UPDATE notes SET content = $1, color = $2, edited_by = $3, updated_at = $4 WHERE note_id = $5`,
			n.Content, n.Color, editedBy, n.UpdatedAt, noteID.String()); err != nil {
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

// MoveNote places a note per intent against the container's committed rows,
// falling back to append-at-end when the intent's anchor has vanished.
func (s *PostgresStore) MoveNote(ctx context.Context, boardID, noteID ulid.ULID, intent core.MoveIntent) (MoveResult, error) {
	var res MoveResult
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if err := lockBoard(ctx, tx, boardID); err != nil {
			return err
		}
		note, err := getNotePg(ctx, tx, boardID, noteID)
		if err != nil {
			return err
		}
		if intent.ColumnID != nil {
			if _, err := getColumnPg(ctx, tx, boardID, *intent.ColumnID); err != nil {
				return err
			}
		}

		siblings, err := containerNotesPg(ctx, tx, boardID, intent.ColumnID, &noteID)
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
				`UPDATE notes SET sort_order = $1 WHERE note_id = $2`,
				a.Order, a.NoteID.String()); err != nil {
				return fmt.Errorf("renumber sibling: %w", err)
			}
		}

		note.ColumnID = core.CloneContainerRef(intent.ColumnID)
		note.Order = placement.Order
		note.UpdatedAt = time.Now().UTC()
		if _, err := tx.ExecContext(ctx,
			`UPDATE notes SET column_id = $1, sort_order = $2, updated_at = $3 WHERE note_id = $4`,
			containerArg(note.ColumnID), note.Order, note.UpdatedAt, noteID.String()); err != nil {
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
func (s *PostgresStore) DeleteNote(ctx context.Context, boardID, noteID ulid.ULID) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM notes WHERE board_id = $1 AND note_id = $2`,
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

func getColumnPg(ctx context.Context, q querier, boardID, columnID ulid.ULID) (core.Column, error) {
	row := q.QueryRowContext(ctx,
		`SELECT column_id, board_id, title, color, position, created_at, updated_at
		 FROM columns WHERE board_id = $1 AND column_id = $2`,
		boardID.String(), columnID.String())
	c, err := scanColumnPg(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Column{}, &core.ColumnNotFoundError{ColumnID: columnID}
	}
	return c, err
}

func getNotePg(ctx context.Context, q querier, boardID, noteID ulid.ULID) (core.Note, error) {
	row := q.QueryRowContext(ctx,
		`SELECT note_id, board_id, column_id, content, color, author, edited_by, sort_order, created_at, updated_at
		 FROM notes WHERE board_id = $1 AND note_id = $2`,
		boardID.String(), noteID.String())
	n, err := scanNotePg(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Note{}, &core.NoteNotFoundError{NoteID: noteID}
	}
	return n, err
}

func containerNotesPg(ctx context.Context, q querier, boardID ulid.ULID, columnID *ulid.ULID, exclude *ulid.ULID) ([]core.Note, error) {
	query := `SELECT note_id, board_id, column_id, content, color, author, edited_by, sort_order, created_at, updated_at
		 FROM notes WHERE board_id = $1 AND column_id IS NOT DISTINCT FROM $2`
	args := []any{boardID.String(), containerArg(columnID)}
	if exclude != nil {
		query += ` AND note_id != $3`
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
		n, err := scanNotePg(rows)
		if err != nil {
			return nil, err
		}
		notes = append(notes, n)
	}
	return notes, rows.Err()
}

func scanBoardPg(r rowScanner) (core.Board, error) {
	var b core.Board
	var id string
	if err := r.Scan(&id, &b.Title, &b.CreatedBy, &b.CreatedAt); err != nil {
		return core.Board{}, err
	}
	var err error
	if b.BoardID, err = ulid.Parse(id); err != nil {
		return core.Board{}, fmt.Errorf("parse board_id: %w", err)
	}
	b.CreatedAt = b.CreatedAt.UTC()
	return b, nil
}

func scanColumnPg(r rowScanner) (core.Column, error) {
	var c core.Column
	var id, boardID string
	if err := r.Scan(&id, &boardID, &c.Title, &c.Color, &c.Position, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return core.Column{}, err
	}
	var err error
	if c.ColumnID, err = ulid.Parse(id); err != nil {
		return core.Column{}, fmt.Errorf("parse column_id: %w", err)
	}
	if c.BoardID, err = ulid.Parse(boardID); err != nil {
		return core.Column{}, fmt.Errorf("parse board_id: %w", err)
	}
	c.CreatedAt = c.CreatedAt.UTC()
	c.UpdatedAt = c.UpdatedAt.UTC()
	return c, nil
}

func scanNotePg(r rowScanner) (core.Note, error) {
	var n core.Note
	var id, boardID string
	var columnID sql.NullString
	var editedBy []byte
	if err := r.Scan(&id, &boardID, &columnID, &n.Content, &n.Color, &n.Author,
		&editedBy, &n.Order, &n.CreatedAt, &n.UpdatedAt); err != nil {
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
	if err := json.Unmarshal(editedBy, &n.EditedBy); err != nil {
		return core.Note{}, fmt.Errorf("parse edited_by: %w", err)
	}
	n.CreatedAt = n.CreatedAt.UTC()
	n.UpdatedAt = n.UpdatedAt.UTC()
	return n, nil
}

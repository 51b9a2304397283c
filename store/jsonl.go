// ABOUTME: Append-only JSONL event journal, one file per board, fsynced per append.
// ABOUTME: Provides sequential replay and repair for truncated files after a crash.
package store

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/oklog/ulid/v2"

	"github.com/2389-research/huddle/core"
)

// boardLog is one board's append-only journal file. Each line is a single
// JSON-encoded Event terminated by a newline.
type boardLog struct {
	path string
	file *os.File
}

func openBoardLog(path string) (*boardLog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create journal dir: %w", err)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}

	return &boardLog{path: path, file: file}, nil
}

// append encodes one event onto the log and fsyncs before returning, so an
// acknowledged event survives a crash.
func (l *boardLog) append(event *core.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	if _, err := l.file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("append journal line: %w", err)
	}

	if err := l.file.Sync(); err != nil {
		return fmt.Errorf("sync journal: %w", err)
	}

	return nil
}

func (l *boardLog) close() error {
	return l.file.Close()
}

// journalScanner sizes the line buffer for large note payloads; the default
// 64KB token limit is too small for boards exported back into a journal.
func journalScanner(file *os.File) *bufio.Scanner {
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return scanner
}

// readJournal decodes every event in a journal file in append order. Blank
// lines are skipped; a line that fails to decode aborts the read with its
// line number so the operator knows where the file went bad.
func readJournal(path string) ([]core.Event, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	defer func() { _ = file.Close() }()

	var events []core.Event
	scanner := journalScanner(file)
	lineNo := 0

	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var event core.Event
		if err := json.Unmarshal([]byte(line), &event); err != nil {
			return nil, fmt.Errorf("journal line %d: %w", lineNo, err)
		}
		events = append(events, event)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan journal: %w", err)
	}

	return events, nil
}

// compactJournal rewrites a journal keeping only lines that decode as events,
// dropping the partial trailing line an interrupted append leaves behind.
// Valid lines are preserved byte for byte. The rewrite is atomic: temp file,
// fsync, rename, then directory fsync so the rename itself is durable.
// Returns how many events survived.
func compactJournal(path string) (int, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open journal for repair: %w", err)
	}

	var kept []string
	scanner := journalScanner(file)
	for scanner.Scan() {
		if strings.TrimSpace(scanner.Text()) == "" {
			continue
		}
		var event core.Event
		if json.Unmarshal(scanner.Bytes(), &event) == nil {
			kept = append(kept, scanner.Text())
		}
	}
	scanErr := scanner.Err()
	_ = file.Close()
	if scanErr != nil {
		return 0, fmt.Errorf("scan journal for repair: %w", scanErr)
	}

	tmpPath := path + ".tmp"
	tmp, err := os.Create(tmpPath)
	if err != nil {
		return 0, fmt.Errorf("create repair file: %w", err)
	}

	w := bufio.NewWriter(tmp)
	for _, line := range kept {
		if _, err := fmt.Fprintln(w, line); err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
			return 0, fmt.Errorf("write repair file: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return 0, fmt.Errorf("flush repair file: %w", err)
	}

	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return 0, fmt.Errorf("sync repair file: %w", err)
	}
	_ = tmp.Close()

	if err := os.Rename(tmpPath, path); err != nil {
		return 0, fmt.Errorf("swap repaired journal: %w", err)
	}

	if dir, err := os.Open(filepath.Dir(path)); err == nil {
		_ = dir.Sync()
		_ = dir.Close()
	}

	return len(kept), nil
}

// Journal manages one JSONL log per board under a home directory:
//
//	home/boards/{ulid}/events.jsonl
//
// Appends are serialized; logs open lazily on first append and stay open
// until Close. The journal is an audit trail beside the authoritative SQL
// store, not a second source of truth.
type Journal struct {
	home string

	mu   sync.Mutex
	logs map[ulid.ULID]*boardLog
}

// OpenJournal creates the journal root directory and returns the manager.
func OpenJournal(home string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Join(home, "boards"), 0o755); err != nil {
		return nil, fmt.Errorf("create journal dirs: %w", err)
	}
	return &Journal{home: home, logs: make(map[ulid.ULID]*boardLog)}, nil
}

// BoardPath returns the journal file path for one board.
func (j *Journal) BoardPath(boardID ulid.ULID) string {
	return filepath.Join(j.home, "boards", boardID.String(), "events.jsonl")
}

// Append durably records one event in its board's log.
func (j *Journal) Append(event *core.Event) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	log, ok := j.logs[event.BoardID]
	if !ok {
		var err error
		log, err = openBoardLog(j.BoardPath(event.BoardID))
		if err != nil {
			return err
		}
		j.logs[event.BoardID] = log
	}
	return log.append(event)
}

// Replay reads one board's full event history. A board that never journaled
// anything replays to an empty slice.
func (j *Journal) Replay(boardID ulid.ULID) ([]core.Event, error) {
	path := j.BoardPath(boardID)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, nil
	}
	return readJournal(path)
}

// Repair drops partial trailing data from one board's log. Call before
// replaying after an unclean shutdown.
func (j *Journal) Repair(boardID ulid.ULID) (int, error) {
	path := j.BoardPath(boardID)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return 0, nil
	}
	return compactJournal(path)
}

// ListBoards scans the journal directory for boards with event history.
func (j *Journal) ListBoards() ([]ulid.ULID, error) {
	entries, err := os.ReadDir(filepath.Join(j.home, "boards"))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read journal dir: %w", err)
	}

	var ids []ulid.ULID
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		id, err := ulid.Parse(entry.Name())
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Close closes every open board log.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	var firstErr error
	for id, log := range j.logs {
		if err := log.close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(j.logs, id)
	}
	return firstErr
}

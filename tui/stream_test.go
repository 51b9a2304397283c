// ABOUTME: Tests for the Client SSE stream loop and snapshot fetches against stub servers.
// ABOUTME: Covers frame parsing order, reconnects, identity headers, and failure reporting.
package tui

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/oklog/ulid/v2"

	"github.com/2389-research/huddle/core"
)

// writeFrame emits one SSE frame. Handlers run off the test goroutine, so
// failures report via Errorf.
func writeFrame(t *testing.T, w http.ResponseWriter, name string, v any) {
	t.Helper()
	body, err := json.Marshal(v)
	if err != nil {
		t.Errorf("marshal %s frame: %v", name, err)
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, body)
	if fl, ok := w.(http.Flusher); ok {
		fl.Flush()
	}
}

func streamPath(boardID ulid.ULID) string {
	return "/api/boards/" + boardID.String() + "/stream"
}

// testStreamClient builds a client pointed at ts with a short retry delay so
// reconnect tests run fast.
func testStreamClient(ts *httptest.Server) *Client {
	c := NewClient(ts.URL, "viewer", "")
	c.RetryDelay = 10 * time.Millisecond
	return c
}

// runClient starts c.Run in the background and returns the message channel
// plus a stop func that cancels the run and waits for it to exit.
func runClient(t *testing.T, c *Client, boardID ulid.ULID) (chan tea.Msg, func()) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	msgs := make(chan tea.Msg, 256)
	done := make(chan struct{})
	go func() {
		defer close(done)
		c.Run(ctx, boardID, func(msg tea.Msg) { msgs <- msg })
	}()
	stop := func() {
		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Error("client did not stop within 2s")
		}
	}
	return msgs, stop
}

func nextMsg(t *testing.T, msgs chan tea.Msg) tea.Msg {
	t.Helper()
	select {
	case msg := <-msgs:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a stream message")
		return nil
	}
}

func expectHello(t *testing.T, msgs chan tea.Msg) HelloMsg {
	t.Helper()
	msg := nextMsg(t, msgs)
	hello, ok := msg.(HelloMsg)
	if !ok {
		t.Fatalf("got %T, want HelloMsg", msg)
	}
	return hello
}

func expectSnapshot(t *testing.T, msgs chan tea.Msg) SnapshotMsg {
	t.Helper()
	msg := nextMsg(t, msgs)
	snap, ok := msg.(SnapshotMsg)
	if !ok {
		t.Fatalf("got %T, want SnapshotMsg", msg)
	}
	return snap
}

func expectEvent(t *testing.T, msgs chan tea.Msg) EventMsg {
	t.Helper()
	msg := nextMsg(t, msgs)
	ev, ok := msg.(EventMsg)
	if !ok {
		t.Fatalf("got %T, want EventMsg", msg)
	}
	return ev
}

func expectDown(t *testing.T, msgs chan tea.Msg) StreamDownMsg {
	t.Helper()
	msg := nextMsg(t, msgs)
	down, ok := msg.(StreamDownMsg)
	if !ok {
		t.Fatalf("got %T, want StreamDownMsg", msg)
	}
	return down
}

func TestStreamDeliversFramesInOrder(t *testing.T) {
	snap := testSnapshot()
	boardID := snap.Board.BoardID
	note := snap.Notes[0]
	ev := core.NewEvent(boardID, "bob", "conn-bob", core.NoteCreatedPayload{Note: note})

	mux := http.NewServeMux()
	mux.HandleFunc(streamPath(boardID), func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		writeFrame(t, w, "hello", map[string]string{"conn_id": "conn-77"})
		writeFrame(t, w, "snapshot", snap)
		fmt.Fprint(w, ":heartbeat\n\n")
		if fl, ok := w.(http.Flusher); ok {
			fl.Flush()
		}
		writeFrame(t, w, "note-created", ev)
		// Returning drops the connection.
	})
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)

	msgs, stop := runClient(t, testStreamClient(ts), boardID)
	defer stop()

	hello := expectHello(t, msgs)
	if hello.ConnID != "conn-77" {
		t.Errorf("ConnID = %q, want %q", hello.ConnID, "conn-77")
	}

	snapMsg := expectSnapshot(t, msgs)
	if snapMsg.Snapshot.Board.Title != "Sprint 12" {
		t.Errorf("Board.Title = %q, want %q", snapMsg.Snapshot.Board.Title, "Sprint 12")
	}

	evMsg := expectEvent(t, msgs)
	if evMsg.Event.OriginUser != "bob" {
		t.Errorf("OriginUser = %q, want %q", evMsg.Event.OriginUser, "bob")
	}
	payload, ok := evMsg.Event.Payload.(core.NoteCreatedPayload)
	if !ok {
		t.Fatalf("Payload is %T, want NoteCreatedPayload", evMsg.Event.Payload)
	}
	if payload.Note.Content != note.Content {
		t.Errorf("Note.Content = %q, want %q", payload.Note.Content, note.Content)
	}

	down := expectDown(t, msgs)
	if down.Err == nil {
		t.Error("StreamDownMsg.Err is nil, want the drop error")
	}
}

func TestStreamReconnectsAfterDrop(t *testing.T) {
	snap := testSnapshot()
	boardID := snap.Board.BoardID

	var mu sync.Mutex
	conns := 0

	mux := http.NewServeMux()
	mux.HandleFunc(streamPath(boardID), func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		conns++
		n := conns
		mu.Unlock()

		w.Header().Set("Content-Type", "text/event-stream")
		writeFrame(t, w, "hello", map[string]string{"conn_id": fmt.Sprintf("conn-%d", n)})
		writeFrame(t, w, "snapshot", snap)
	})
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)

	msgs, stop := runClient(t, testStreamClient(ts), boardID)
	defer stop()

	first := expectHello(t, msgs)
	expectSnapshot(t, msgs)
	expectDown(t, msgs)
	second := expectHello(t, msgs)
	expectSnapshot(t, msgs)

	if first.ConnID == second.ConnID {
		t.Errorf("reconnect reused conn ID %q, want a fresh one", first.ConnID)
	}
	if second.ConnID != "conn-2" {
		t.Errorf("second ConnID = %q, want %q", second.ConnID, "conn-2")
	}
}

func TestStreamSendsIdentity(t *testing.T) {
	snap := testSnapshot()
	boardID := snap.Board.BoardID
	headers := make(chan http.Header, 1)

	mux := http.NewServeMux()
	mux.HandleFunc(streamPath(boardID), func(w http.ResponseWriter, r *http.Request) {
		select {
		case headers <- r.Header.Clone():
		default:
		}
		w.Header().Set("Content-Type", "text/event-stream")
		writeFrame(t, w, "hello", map[string]string{"conn_id": "conn-1"})
		writeFrame(t, w, "snapshot", snap)
		<-r.Context().Done()
	})
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)

	c := NewClient(ts.URL, "alice", "sesame")
	c.RetryDelay = 10 * time.Millisecond
	msgs, stop := runClient(t, c, boardID)
	defer stop()

	expectHello(t, msgs)
	h := <-headers

	if got := h.Get("Authorization"); got != "Bearer sesame" {
		t.Errorf("Authorization = %q, want %q", got, "Bearer sesame")
	}
	if got := h.Get("X-Huddle-User"); got != "alice" {
		t.Errorf("X-Huddle-User = %q, want %q", got, "alice")
	}
	if got := h.Get("Accept"); got != "text/event-stream" {
		t.Errorf("Accept = %q, want %q", got, "text/event-stream")
	}
}

func TestStreamDropsUndecodableFrames(t *testing.T) {
	snap := testSnapshot()
	boardID := snap.Board.BoardID
	ev := core.NewEvent(boardID, "bob", "conn-bob", core.UserConnectedPayload{UserID: "bob", UserName: "Bob"})

	mux := http.NewServeMux()
	mux.HandleFunc(streamPath(boardID), func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		writeFrame(t, w, "hello", map[string]string{"conn_id": "conn-1"})
		writeFrame(t, w, "snapshot", snap)
		fmt.Fprint(w, "event: note-created\ndata: {not json\n\n")
		if fl, ok := w.(http.Flusher); ok {
			fl.Flush()
		}
		writeFrame(t, w, "user-connected", ev)
		<-r.Context().Done()
	})
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)

	msgs, stop := runClient(t, testStreamClient(ts), boardID)
	defer stop()

	expectHello(t, msgs)
	expectSnapshot(t, msgs)

	// The broken frame is dropped; the next message is the valid event.
	evMsg := expectEvent(t, msgs)
	payload, ok := evMsg.Event.Payload.(core.UserConnectedPayload)
	if !ok {
		t.Fatalf("Payload is %T, want UserConnectedPayload", evMsg.Event.Payload)
	}
	if payload.UserID != "bob" {
		t.Errorf("UserID = %q, want %q", payload.UserID, "bob")
	}
}

func TestStreamReportsFailedOpen(t *testing.T) {
	snap := testSnapshot()
	boardID := snap.Board.BoardID

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	t.Cleanup(ts.Close)

	msgs, stop := runClient(t, testStreamClient(ts), boardID)
	defer stop()

	down := expectDown(t, msgs)
	if down.Err == nil {
		t.Fatal("StreamDownMsg.Err is nil, want an open error")
	}
	if !strings.Contains(down.Err.Error(), "403") {
		t.Errorf("error = %q, want it to contain the status code", down.Err.Error())
	}
}

func TestRunReturnsWhenCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := NewClient("http://127.0.0.1:0", "viewer", "")
	var got []tea.Msg
	done := make(chan struct{})
	go func() {
		defer close(done)
		c.Run(ctx, core.NewULID(), func(msg tea.Msg) { got = append(got, msg) })
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if len(got) != 0 {
		t.Errorf("Run sent %d messages after cancel, want 0", len(got))
	}
}

func TestClientSnapshot(t *testing.T) {
	snap := testSnapshot()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/boards/"+snap.Board.BoardID.String(), func(w http.ResponseWriter, r *http.Request) {
		body, err := json.Marshal(snap)
		if err != nil {
			t.Errorf("marshal snapshot: %v", err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(body)
	})
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)

	c := NewClient(ts.URL, "viewer", "")
	got, err := c.Snapshot(context.Background(), snap.Board.BoardID)
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if got.Board.Title != "Sprint 12" {
		t.Errorf("Board.Title = %q, want %q", got.Board.Title, "Sprint 12")
	}
	if len(got.Columns) != 2 {
		t.Errorf("Columns length = %d, want 2", len(got.Columns))
	}
	if len(got.Notes) != 3 {
		t.Errorf("Notes length = %d, want 3", len(got.Notes))
	}
}

func TestClientSnapshotErrorStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	t.Cleanup(ts.Close)

	c := NewClient(ts.URL, "viewer", "")
	_, err := c.Snapshot(context.Background(), core.NewULID())
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !strings.Contains(err.Error(), "404") {
		t.Errorf("error = %q, want it to contain the status code", err.Error())
	}
}

func TestNewClientNormalizesBaseURL(t *testing.T) {
	c := NewClient("http://example.test/", "viewer", "")

	if c.BaseURL != "http://example.test" {
		t.Errorf("BaseURL = %q, want trailing slash trimmed", c.BaseURL)
	}
	if c.RetryDelay != defaultRetryDelay {
		t.Errorf("RetryDelay = %v, want %v", c.RetryDelay, defaultRetryDelay)
	}
	if c.HTTP == nil {
		t.Error("HTTP client is nil")
	}
}

// ABOUTME: Bubble Tea message types used in the TUI message loop.
// ABOUTME: Each type wraps a stream frame or fetch result for the tea.Msg interface.
package tui

import (
	"time"

	"github.com/2389-research/huddle/core"
)

// HelloMsg carries the connection ID the server assigned to this stream.
// Commands echo it so the room can skip this connection on fan-out.
type HelloMsg struct {
	ConnID string
}

// SnapshotMsg carries the board snapshot that opens every stream. It arrives
// once per connection, including reconnects.
type SnapshotMsg struct {
	Snapshot core.Snapshot
}

// EventMsg wraps a live board event from the stream.
type EventMsg struct {
	Event core.Event
}

// StreamDownMsg signals that the stream dropped. The client keeps redialing;
// a fresh HelloMsg follows when it gets through.
type StreamDownMsg struct {
	Err error
}

// ResyncMsg carries the result of a snapshot refetch for a stale replica.
type ResyncMsg struct {
	Snapshot core.Snapshot
	Err      error
}

// TickMsg is sent periodically to refresh clocks.
type TickMsg struct {
	Time time.Time
}
